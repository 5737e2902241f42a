package starfocus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bayerMosaic lays a single channel of value v on the photosites of colour
// at the given 2x2 parity; all other sites are zero.
func bayerMosaic(width, height int, site bayerOrigin, v float64) []float64 {
	data := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if y%2 == site.row && x%2 == site.col {
				data[y*width+x] = v
			}
		}
	}
	return data
}

func TestDebayer_ConstantStaysConstant(t *testing.T) {
	t.Parallel()

	img := constImage(t, 7, 5, 420)
	for pattern := range bayerPatterns {
		out, err := DebayerImage(img, pattern)
		require.NoError(t, err, pattern)
		for _, v := range out.Data() {
			require.InDelta(t, 420, v, 1e-9, pattern)
		}
	}
}

func TestDebayer_SingleChannel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		site    bayerOrigin
	}{
		{"red of RGGB", "RGGB", bayerOrigin{0, 0}},
		{"blue of RGGB", "RGGB", bayerOrigin{1, 1}},
		{"red of GBRG", "gbrg", bayerOrigin{1, 0}},
		{"blue of GRBG", "GRBG", bayerOrigin{1, 0}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			const w, h = 8, 8
			img, err := NewImage(bayerMosaic(w, h, tt.site, 300), w, h, 16)
			require.NoError(t, err)
			out, err := DebayerImage(img, tt.pattern)
			require.NoError(t, err)
			// Away from the clamped border every pixel sees the full plane.
			for y := 1; y < h-1; y++ {
				for x := 1; x < w-1; x++ {
					assert.InDelta(t, 100, out.At(x, y), 1e-9, "(%d,%d)", x, y)
				}
			}
		})
	}
}

func TestDebayer_Defaults(t *testing.T) {
	t.Parallel()

	data := synthFrame(16, 12, 500, 40, nil, 9)
	img, err := NewImage(data, 16, 12, 16)
	require.NoError(t, err)

	out, err := DebayerImage(img, "")
	require.NoError(t, err)
	assert.Equal(t, DebayerRGGB(data, 16, 12), out.Data())
	assert.Equal(t, img.Width, out.Width)
	assert.Equal(t, img.BitDepth, out.BitDepth)
}

func TestDebayer_Errors(t *testing.T) {
	t.Parallel()

	_, err := DebayerImage(nil, "RGGB")
	assert.ErrorIs(t, err, ErrNilImage)
	_, err = DebayerImage(constImage(t, 4, 4, 1), "CYGM")
	assert.Error(t, err)
}
