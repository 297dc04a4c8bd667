package felt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromHexRoundTrip(t *testing.T) {
	cases := []string{"0x0", "0x1", "0xf4240", "0x800000000000011000000000000000000000000000000000000000000000000"}
	for _, c := range cases {
		f, err := FromHex(c)
		require.NoError(t, err)
		var g Felt
		b, err := f.MarshalBinary()
		require.NoError(t, err)
		require.NoError(t, g.UnmarshalBinary(b))
		require.True(t, f.Equal(g))
	}
}

func TestArithmeticWrapsModPrime(t *testing.T) {
	primeBytes := Prime.Bytes32()
	maxish := FromBytesBE(primeBytes[:])
	require.True(t, maxish.IsZero(), "Prime reduces to zero")

	one := FromUint64(1)
	zeroMinusOne := Zero.Sub(one)
	require.False(t, zeroMinusOne.IsZero())
	require.True(t, zeroMinusOne.Add(one).IsZero())
}

func TestInvIsMultiplicativeInverse(t *testing.T) {
	f := FromUint64(12345)
	inv, err := f.Inv()
	require.NoError(t, err)
	require.True(t, f.Mul(inv).Equal(One))

	_, err = Zero.Inv()
	require.Error(t, err)
}

func TestPoseidonDeterministicAndSensitiveToInput(t *testing.T) {
	a := FromUint64(1)
	b := FromUint64(2)
	h1 := PoseidonHash(a, b)
	h2 := PoseidonHash(a, b)
	require.True(t, h1.Equal(h2))

	h3 := PoseidonHash(b, a)
	require.False(t, h1.Equal(h3))
}

func TestPedersenDeterministicAndSensitiveToInput(t *testing.T) {
	a := FromUint64(7)
	b := FromUint64(9)
	require.True(t, PedersenHash(a, b).Equal(PedersenHash(a, b)))
	require.False(t, PedersenHash(a, b).Equal(PedersenHash(b, a)))
}

func TestPedersenHashNNotEqualToPoseidon(t *testing.T) {
	elems := []Felt{FromUint64(1), FromUint64(2), FromUint64(3)}
	p := PedersenHashN(elems...)
	require.False(t, p.IsZero())
	require.False(t, p.Equal(PoseidonHash(elems...)))
}
