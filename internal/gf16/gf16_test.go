package gf16_test

import (
	"math/rand"
	"testing"

	"github.com/par2kit/par2kit/internal/gf16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldLaws(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(1)) //nolint:gosec

	for i := 0; i < 2000; i++ {
		a := uint16(r.Intn(65535) + 1)
		b := uint16(r.Intn(65535) + 1)

		assert.Equal(t, uint16(1), gf16.Multiply(a, gf16.Inverse(a)), "mul(a, inv(a)) == 1")
		assert.Equal(t, gf16.Multiply(a, b), gf16.Multiply(b, a), "mul commutes")
		assert.Equal(t, a, gf16.Divide(gf16.Multiply(a, b), b), "div(mul(a,b),b) == a")
	}
}

func TestMultiplyZero(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint16(0), gf16.Multiply(0, 42))
	assert.Equal(t, uint16(0), gf16.Multiply(42, 0))
}

func TestDivideByZeroPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { gf16.Divide(5, 0) })
	assert.Panics(t, func() { gf16.Inverse(0) })
}

func TestPowMatchesRepeatedMultiply(t *testing.T) {
	t.Parallel()

	base := uint16(3)
	want := uint16(1)

	for exp := uint32(0); exp < 40; exp++ {
		got := gf16.Pow(base, exp)
		require.Equal(t, want, got, "exponent %d", exp)
		want = gf16.Multiply(want, base)
	}
}

func TestPowZeroExponent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint16(1), gf16.Pow(1234, 0))
	assert.Equal(t, uint16(0), gf16.Pow(0, 5))
}

func TestBaseSequenceIsUsableAndIncreasing(t *testing.T) {
	t.Parallel()

	var last uint16

	for g := uint32(0); g < 500; g++ {
		b := gf16.Base(g)
		assert.True(t, gf16.IsUsable(uint32(b)), "base(%d)=%d must be usable", g, b)
		assert.Greater(t, b, last, "base sequence must be strictly increasing")
		last = b
	}
}

func TestIsUsable(t *testing.T) {
	t.Parallel()

	assert.False(t, gf16.IsUsable(0))
	assert.True(t, gf16.IsUsable(1))
	assert.False(t, gf16.IsUsable(3))  // shares factor 3 with 65535
	assert.False(t, gf16.IsUsable(5))  // shares factor 5
	assert.False(t, gf16.IsUsable(17)) // shares factor 17
	assert.True(t, gf16.IsUsable(2))
}
