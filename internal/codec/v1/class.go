// Copyright 2025 The Katana Authors
// This file is part of Katana.
//
// Katana is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Katana is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Katana. If not, see <http://www.gnu.org/licenses/>.

package v1

import (
	"fmt"

	"github.com/katana-sequencer/katana/internal/classes"
)

func writeEntryPoints(w *writer, eps []classes.EntryPoint) {
	w.uvarint(uint64(len(eps)))
	for _, ep := range eps {
		w.felt(ep.Selector)
		w.uvarint(ep.Offset)
	}
}

func readEntryPoints(r *reader) []classes.EntryPoint {
	n := r.uvarint()
	if n == 0 {
		return nil
	}
	out := make([]classes.EntryPoint, n)
	for i := range out {
		out[i] = classes.EntryPoint{Selector: r.felt(), Offset: r.uvarint()}
	}
	return out
}

// EncodeClassArtifact serializes a tagged class Artifact (legacy or
// Sierra). The leading Kind byte matches classes.Kind's persisted
// numbering.
func EncodeClassArtifact(a classes.Artifact) ([]byte, error) {
	w := &writer{}
	w.byte(byte(a.Kind))
	switch a.Kind {
	case classes.KindLegacy:
		c := a.Legacy
		w.bytes(c.Program)
		w.bytes(c.ABI)
		writeEntryPoints(w, c.ExternalEntries)
		writeEntryPoints(w, c.L1HandlerEntries)
		writeEntryPoints(w, c.ConstructorEntry)
	case classes.KindSierra:
		c := a.Sierra
		w.bytes(c.SierraProgram)
		w.bytes(c.CompiledCASM)
		w.bytes(c.ABI)
		writeEntryPoints(w, c.ExternalEntries)
		writeEntryPoints(w, c.L1HandlerEntries)
		writeEntryPoints(w, c.ConstructorEntry)
		w.felt(c.CompiledClassHash)
	default:
		return nil, fmt.Errorf("codec/v1: unknown class kind %d", a.Kind)
	}
	return w.buf, nil
}

// DecodeClassArtifact is the inverse of EncodeClassArtifact.
func DecodeClassArtifact(b []byte) (classes.Artifact, error) {
	r := newReader(b)
	kind := classes.Kind(r.byte())
	a := classes.Artifact{Kind: kind}
	switch kind {
	case classes.KindLegacy:
		c := &classes.LegacyClass{}
		c.Program = r.bytes()
		c.ABI = r.bytes()
		c.ExternalEntries = readEntryPoints(r)
		c.L1HandlerEntries = readEntryPoints(r)
		c.ConstructorEntry = readEntryPoints(r)
		a.Legacy = c
	case classes.KindSierra:
		c := &classes.SierraClass{}
		c.SierraProgram = r.bytes()
		c.CompiledCASM = r.bytes()
		c.ABI = r.bytes()
		c.ExternalEntries = readEntryPoints(r)
		c.L1HandlerEntries = readEntryPoints(r)
		c.ConstructorEntry = readEntryPoints(r)
		c.CompiledClassHash = r.felt()
		a.Sierra = c
	default:
		return classes.Artifact{}, fmt.Errorf("codec/v1: unknown class kind %d", kind)
	}
	if err := r.done(); err != nil {
		return classes.Artifact{}, err
	}
	return a, nil
}
