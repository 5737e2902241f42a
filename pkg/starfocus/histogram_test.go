package starfocus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHistogram_SkipsMargins(t *testing.T) {
	t.Parallel()

	const w, h = 100, 100
	data := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 100.0
			// 4.2% of 100 columns -> 4; 1.5% of 100 rows -> 1
			if x < 4 || x > 95 || y < 1 || y > 98 {
				v = 500
			}
			data[y*w+x] = v
		}
	}
	img, err := NewImage(data, w, h, 16)
	require.NoError(t, err)

	hist := BuildHistogram(img)
	assert.Equal(t, uint32(98*92), hist.Counts[100])
	assert.Zero(t, hist.Counts[500])
	assert.Equal(t, 98*92, hist.Total)
	assert.InDelta(t, 100.0*9016/9017, hist.Mean, 1e-9)
}

func TestBuildHistogram_IgnoresOutOfRangeValues(t *testing.T) {
	t.Parallel()

	img, err := NewImage([]float64{0, 0.4, 1, 64999.4, 64999.6, 70000}, 6, 1, 16)
	require.NoError(t, err)
	hist := BuildHistogram(img)
	assert.Equal(t, uint32(1), hist.Counts[1])
	assert.Equal(t, uint32(1), hist.Counts[64999])
	assert.Equal(t, 2, hist.Total)
}

func TestEstimateBackground_Constant(t *testing.T) {
	t.Parallel()

	stats := EstimateBackground(constImage(t, 100, 100, 100))
	assert.Equal(t, 100.0, stats.Background)
	assert.Equal(t, 0.0, stats.NoiseLevel)
	assert.Equal(t, 101.0, stats.StarLevel, "degenerate star level floors at background+1")
	assert.False(t, stats.Abnormal())
}

func TestEstimateBackground_Abnormal(t *testing.T) {
	t.Parallel()

	for _, v := range []float64{0, 65535} {
		stats := EstimateBackground(constImage(t, 64, 64, v))
		assert.True(t, stats.Abnormal(), "constant %v", v)
	}
}

func TestEstimateBackground_LowPeakUsesMean(t *testing.T) {
	t.Parallel()

	const w, h = 100, 100
	data := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < 50 {
				data[y*w+x] = 10
			} else {
				data[y*w+x] = 1000
			}
		}
	}
	img, err := NewImage(data, w, h, 16)
	require.NoError(t, err)

	stats := EstimateBackground(img)
	assert.InDelta(t, (10.0*4508+1000*4508)/9017, stats.Background, 1e-9)
}

func TestEstimateBackground_NoisyFrame(t *testing.T) {
	t.Parallel()

	img := synthImage(t, 120, 120, 800, 15, nil, 3)
	stats := EstimateBackground(img)
	assert.InDelta(t, 800, stats.Background, 2)
	// The mode sits one count off the true level, which adds to the
	// uniform-noise sigma of 15/sqrt(3).
	assert.InDelta(t, 8.66, stats.NoiseLevel, 0.05)
	assert.InDelta(t, 15.0, stats.StarLevel, 0.5)
}

func TestEstimateBackground_StarLevel(t *testing.T) {
	t.Parallel()

	img := synthImage(t, 96, 96, 1000, 17, []synthStar{{48.3, 47.6, 5000, 2}}, 1)
	stats := EstimateBackground(img)
	assert.Equal(t, 1010.0, stats.Background)
	assert.InDelta(t, 3568, stats.StarLevel, 0.5)
	assert.InDelta(t, 14.2156, stats.NoiseLevel, 0.01)
}
