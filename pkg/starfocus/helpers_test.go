package starfocus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// lcg is a tiny deterministic generator so synthetic frames are identical
// on every platform.
type lcg struct{ s uint32 }

func (r *lcg) next() float64 {
	r.s = r.s*1664525 + 1013904223
	return float64(r.s>>8) / (1 << 24)
}

type synthStar struct {
	x, y, peak, sigma float64
}

// synthFrame renders Gaussian stars on a uniform background with noise in
// [bg-amp, bg+amp).
func synthFrame(width, height int, bg, amp float64, stars []synthStar, seed uint32) []float64 {
	r := &lcg{s: seed}
	data := make([]float64, width*height)
	for i := range data {
		data[i] = bg + (r.next()-0.5)*2*amp
	}
	for _, s := range stars {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				dx, dy := float64(x)-s.x, float64(y)-s.y
				data[y*width+x] += s.peak * math.Exp(-(dx*dx+dy*dy)/(2*s.sigma*s.sigma))
			}
		}
	}
	return data
}

func synthImage(t *testing.T, width, height int, bg, amp float64, stars []synthStar, seed uint32) *Image {
	t.Helper()
	img, err := NewImage(synthFrame(width, height, bg, amp, stars, seed), width, height, 16)
	require.NoError(t, err)
	return img
}

func constImage(t *testing.T, width, height int, v float64) *Image {
	t.Helper()
	data := make([]float64, width*height)
	for i := range data {
		data[i] = v
	}
	img, err := NewImage(data, width, height, 16)
	require.NoError(t, err)
	return img
}

// addRing adds a defocused-star ring with a Gaussian radial profile.
func addRing(data []float64, width int, cx, cy, peak, radius, sigma float64) {
	height := len(data) / width
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := math.Hypot(float64(x)-cx, float64(y)-cy)
			data[y*width+x] += peak * math.Exp(-(r-radius)*(r-radius)/(2*sigma*sigma))
		}
	}
}

// addAnnulus adds v to every pixel whose squared distance from (cx, cy)
// lies in [r0*r0, r1*r1].
func addAnnulus(data []float64, width, cx, cy int, v float64, r0, r1 int) {
	height := len(data) / width
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := (x-cx)*(x-cx) + (y-cy)*(y-cy)
			if d >= r0*r0 && d <= r1*r1 {
				data[y*width+x] += v
			}
		}
	}
}
