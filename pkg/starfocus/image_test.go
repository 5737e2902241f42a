package starfocus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImage(t *testing.T) {
	t.Parallel()

	data := []float64{1, 2, 3, 4, 5, 6}
	img, err := NewImage(data, 3, 2, 16)
	require.NoError(t, err)
	data[0] = 99
	assert.Equal(t, 1.0, img.At(0, 0), "constructor must copy")
	assert.Equal(t, 6.0, img.At(2, 1))
	assert.Equal(t, []float64{4, 5, 6}, img.Row(1))

	_, err = NewImage(data, 4, 2, 16)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = NewImage(nil, 0, 2, 16)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	img16, err := NewImageFromUint16([]uint16{0, 65535, 1200, 7}, 2, 2, 16)
	require.NoError(t, err)
	assert.Equal(t, 65535.0, img16.At(1, 0))
	assert.Equal(t, 1200.0, img16.At(0, 1))
}

func TestImage_SubpixelValue(t *testing.T) {
	t.Parallel()

	const w, h = 8, 8
	data := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = float64(10*x + y)
		}
	}
	img, err := NewImage(data, w, h, 16)
	require.NoError(t, err)

	assert.InDelta(t, 32.0, img.SubpixelValue(3, 2), 1e-12)
	assert.InDelta(t, 37.0, img.SubpixelValue(3.5, 2), 1e-12)
	assert.InDelta(t, 37.5, img.SubpixelValue(3.5, 2.5), 1e-12)

	// The outer two-pixel frame yields 0.
	assert.Equal(t, 0.0, img.SubpixelValue(0.5, 3))
	assert.Equal(t, 0.0, img.SubpixelValue(3, 0.2))
	assert.Equal(t, 0.0, img.SubpixelValue(6.0, 3))
	assert.Equal(t, 0.0, img.SubpixelValue(3, 6.5))
	assert.NotZero(t, img.SubpixelValue(5.9, 5.9))

	data[3*w+4] = math.NaN()
	img, err = NewImage(data, w, h, 16)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(img.SubpixelValue(3.5, 2.5)), "NaN neighbor must not read as 0")
	assert.True(t, math.IsNaN(img.SubpixelValue(4, 3)))
	assert.InDelta(t, 22.0, img.SubpixelValue(2, 2), 1e-12)
}
