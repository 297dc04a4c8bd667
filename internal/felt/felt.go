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

// Package felt implements the 252-bit prime-field scalar that underlies
// every Starknet value: addresses, class hashes, storage keys and values.
package felt

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// primeBig is the Starknet field modulus: 2**251 + 17*2**192 + 1.
var primeBig = func() *big.Int {
	p, ok := new(big.Int).SetString("800000000000011000000000000000000000000000000000000000000000001", 16)
	if !ok {
		panic("felt: bad prime literal")
	}
	return p
}()

// Prime is the modulus, exposed as a uint256 for callers that need bounds
// checks against the raw 256-bit encoding.
var Prime = uint256.MustFromBig(primeBig)

// Felt is a field element, always kept reduced modulo the Starknet prime
// and stored as its canonical 32-byte big-endian encoding. That makes Felt
// comparable and usable directly as a map key (the natural choice for
// state deltas keyed by address/storage-slot); arithmetic converts to
// math/big.Int on demand rather than keeping one resident, trading a
// little CPU for a type the rest of the module can put in a map.
type Felt struct {
	b [32]byte
}

// Zero, One are the additive and multiplicative identities.
var (
	Zero = Felt{}
	One  = FromUint64(1)
)

func (f Felt) big() *big.Int {
	return new(big.Int).SetBytes(f.b[:])
}

func fromBig(x *big.Int) Felt {
	var r big.Int
	r.Mod(x, primeBig)
	var f Felt
	r.FillBytes(f.b[:])
	return f
}

// FromUint64 builds a Felt from a small unsigned integer.
func FromUint64(x uint64) Felt {
	var f Felt
	big.NewInt(0).SetUint64(x).FillBytes(f.b[:])
	return f
}

// FromBytesBE interprets b as a big-endian integer and reduces it mod Prime.
func FromBytesBE(b []byte) Felt {
	return fromBig(new(big.Int).SetBytes(b))
}

// FromHex parses a "0x"-prefixed hex string.
func FromHex(s string) (Felt, error) {
	s2, ok := stripHexPrefix(s)
	if !ok {
		return Felt{}, fmt.Errorf("felt: not a hex string: %q", s)
	}
	if s2 == "" {
		return Zero, nil
	}
	b, err := hex.DecodeString(padEven(s2))
	if err != nil {
		return Felt{}, fmt.Errorf("felt: %w", err)
	}
	return FromBytesBE(b), nil
}

func stripHexPrefix(s string) (string, bool) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:], true
	}
	return "", false
}

func padEven(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}

// Bytes returns the 32-byte big-endian encoding (the top four bits are
// always zero since the field is 252-bit).
func (f Felt) Bytes() [32]byte { return f.b }

// Hex renders the canonical "0x..." representation with no leading zeros
// (except the value zero itself, rendered "0x0").
func (f Felt) Hex() string {
	if f.IsZero() {
		return "0x0"
	}
	return "0x" + f.big().Text(16)
}

func (f Felt) String() string { return f.Hex() }

// Cmp compares two field elements as unsigned integers; used for the
// deterministic (address ascending, then key ascending) replay order the
// trie layer requires.
func (f Felt) Cmp(o Felt) int {
	for i := range f.b {
		if f.b[i] != o.b[i] {
			if f.b[i] < o.b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (f Felt) IsZero() bool { return f.b == [32]byte{} }

func (f Felt) Equal(o Felt) bool { return f.b == o.b }

func (f Felt) Uint64() uint64 { return f.big().Uint64() }

// Add returns (f+o) mod Prime.
func (f Felt) Add(o Felt) Felt { return fromBig(new(big.Int).Add(f.big(), o.big())) }

// Sub returns (f-o) mod Prime.
func (f Felt) Sub(o Felt) Felt { return fromBig(new(big.Int).Sub(f.big(), o.big())) }

// Mul returns (f*o) mod Prime.
func (f Felt) Mul(o Felt) Felt { return fromBig(new(big.Int).Mul(f.big(), o.big())) }

// Inv returns the multiplicative inverse of f, or an error if f is zero.
func (f Felt) Inv() (Felt, error) {
	if f.IsZero() {
		return Felt{}, errors.New("felt: inverse of zero")
	}
	var r big.Int
	r.ModInverse(f.big(), primeBig)
	return fromBig(&r), nil
}

// MarshalBinary/UnmarshalBinary support the storage-engine codec layer: a
// fixed 32-byte big-endian encoding, one value per Felt, no length prefix.
func (f Felt) MarshalBinary() ([]byte, error) {
	b := f.b
	return b[:], nil
}

func (f *Felt) UnmarshalBinary(b []byte) error {
	if len(b) != 32 {
		return fmt.Errorf("felt: want 32 bytes, got %d", len(b))
	}
	reduced := fromBig(new(big.Int).SetBytes(b))
	f.b = reduced.b
	return nil
}
