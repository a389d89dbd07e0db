package vector_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhlRahman/vector-database/vector"
)

func TestNewZeroFill(t *testing.T) {
	v, err := vector.New(4)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Dim())
	for i := 0; i < 4; i++ {
		f, err := v.At(i)
		require.NoError(t, err)
		assert.Equal(t, float32(0), f)
	}
}

func TestNewRejectsNonPositiveDimension(t *testing.T) {
	_, err := vector.New(0)
	assert.ErrorIs(t, err, vector.ErrZeroDimension)
}

func TestFromSliceClonesBackingArray(t *testing.T) {
	src := []float32{1, 2, 3}
	v, err := vector.FromSlice(src)
	require.NoError(t, err)
	src[0] = 99
	f, err := v.At(0)
	require.NoError(t, err)
	assert.Equal(t, float32(1), f)
}

func TestAtSetBounds(t *testing.T) {
	v, _ := vector.New(2)
	_, err := v.At(2)
	assert.ErrorIs(t, err, vector.ErrInvalidIndex)
	assert.ErrorIs(t, v.Set(-1, 1), vector.ErrInvalidIndex)

	require.NoError(t, v.Set(1, 5))
	f, err := v.At(1)
	require.NoError(t, err)
	assert.Equal(t, float32(5), f)
}

func TestEqual(t *testing.T) {
	a, _ := vector.FromSlice([]float32{1, 2, 3})
	b, _ := vector.FromSlice([]float32{1, 2, 3})
	c, _ := vector.FromSlice([]float32{1, 2, 4})
	d, _ := vector.FromSlice([]float32{1, 2})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}

func TestBytesRoundTrip(t *testing.T) {
	a, _ := vector.FromSlice([]float32{1.5, -2.25, 3, 0})
	b, err := vector.FromBytes(a.Bytes())
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestHasNaN(t *testing.T) {
	a, _ := vector.FromSlice([]float32{1, 2})
	assert.False(t, a.HasNaN())

	b, _ := vector.FromSlice([]float32{float32(math.NaN()), 2})
	assert.True(t, b.HasNaN())
}

func TestFromBytesRejectsInvalidLength(t *testing.T) {
	_, err := vector.FromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = vector.FromBytes(nil)
	assert.Error(t, err)
}
