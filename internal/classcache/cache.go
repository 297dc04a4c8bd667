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

// Package classcache is the process-wide class registry:
// content-addressed, shared by all readers, entries immutable once
// inserted, populated lazily on miss, never invalidated. Capacity
// eviction is LRU at the cache layer and invisible to callers (an
// evicted class simply reloads on the next miss).
package classcache

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/katana-sequencer/katana/internal/classes"
	"github.com/katana-sequencer/katana/internal/felt"
)

// DefaultCapacity bounds resident classes; Sierra artifacts are large.
const DefaultCapacity = 1024

// Builder is the explicit constructor for the global registry: built
// once at node start, torn down at shutdown.
type Builder struct {
	capacity int
}

func NewBuilder() *Builder { return &Builder{capacity: DefaultCapacity} }

// WithCapacity overrides the entry cap.
func (b *Builder) WithCapacity(n int) *Builder {
	b.capacity = n
	return b
}

// Build constructs the cache.
func (b *Builder) Build() (*Cache, error) {
	if b.capacity <= 0 {
		return nil, errors.New("classcache: capacity must be positive")
	}
	inner, err := lru.New[felt.Felt, classes.Artifact](b.capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Cache is the registry. The underlying LRU is internally locked;
// entries are immutable, so a racing double-load stores the same value
// twice and both callers see identical artifacts.
type Cache struct {
	inner *lru.Cache[felt.Felt, classes.Artifact]
}

// Get returns the cached artifact for hash, calling load on miss and
// caching its result.
func (c *Cache) Get(hash felt.Felt, load func() (classes.Artifact, error)) (classes.Artifact, error) {
	if a, ok := c.inner.Get(hash); ok {
		return a, nil
	}
	a, err := load()
	if err != nil {
		return classes.Artifact{}, err
	}
	c.inner.Add(hash, a)
	return a, nil
}

// Len reports resident entries (diagnostics only).
func (c *Cache) Len() int { return c.inner.Len() }

// Purge drops every entry; called only at process shutdown.
func (c *Cache) Purge() { c.inner.Purge() }
