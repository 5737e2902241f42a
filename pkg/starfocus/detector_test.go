package starfocus

import (
	"context"
	"image"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fieldStars = []synthStar{
	{40.5, 40.2, 6000, 1.8},
	{150.2, 35.7, 3000, 2.2},
	{100.4, 80.6, 8000, 1.5},
	{45.8, 120.3, 2500, 2.5},
	{160.6, 125.1, 4000, 2.0},
}

func TestFindStars_SingleStar(t *testing.T) {
	t.Parallel()

	img := synthImage(t, 96, 96, 1000, 17, []synthStar{{48.3, 47.6, 5000, 2}}, 1)
	result, err := FindStars(context.Background(), img, nil)
	require.NoError(t, err)

	require.Len(t, result.Stars, 1)
	s := result.Stars[0]
	assert.InDelta(t, 48.3, s.X, 0.05)
	assert.InDelta(t, 47.6, s.Y, 0.05)
	assert.InDelta(t, 5.17, s.HFD, 0.05)
	assert.Greater(t, s.SNR, 20.0)

	// 3568 -> 30 sigma -> 7 sigma
	assert.Equal(t, 3, result.Passes)
	assert.InDelta(t, 6.999*result.Background.NoiseLevel, result.DetectionLevel, 1e-9)
	assert.Equal(t, 1010.0, result.Background.Background)
}

func TestFindStars_Field(t *testing.T) {
	t.Parallel()

	img := synthImage(t, 200, 160, 1200, 20, fieldStars, 7)
	result, err := FindStars(context.Background(), img, DefaultDetectorParams())
	require.NoError(t, err)
	require.Len(t, result.Stars, len(fieldStars), "each star is found exactly once")

	want := append([]synthStar(nil), fieldStars...)
	sort.Slice(want, func(i, j int) bool { return want[i].x < want[j].x })
	got := append([]Star(nil), result.Stars...)
	sort.Slice(got, func(i, j int) bool { return got[i].X < got[j].X })
	for i := range want {
		assert.InDelta(t, want[i].x, got[i].X, 0.1)
		assert.InDelta(t, want[i].y, got[i].Y, 0.1)
		assert.Greater(t, got[i].HFD, 3.0)
		assert.Less(t, got[i].HFD, 7.0)
	}
	assert.Equal(t, len(fieldStars), result.Metrics.Candidates)
}

func TestFindStars_RetryBudget(t *testing.T) {
	t.Parallel()

	img := synthImage(t, 200, 160, 1200, 20, fieldStars, 7)

	tests := []struct {
		name       string
		mutate     func(p *DetectorParams)
		wantPasses int
		wantStars  int
	}{
		{"no retries", func(p *DetectorParams) { p.MaxRetries = 0 }, 1, 3},
		{"max stars reached", func(p *DetectorParams) { p.MaxStars = 2 }, 1, 3},
		{"defaults", func(p *DetectorParams) {}, 3, 5},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := DefaultDetectorParams()
			tt.mutate(p)
			result, err := FindStars(context.Background(), img, p)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPasses, result.Passes)
			assert.LessOrEqual(t, result.Passes, p.MaxRetries+1)
			assert.Len(t, result.Stars, tt.wantStars)
		})
	}
}

func TestFindStars_NoStars(t *testing.T) {
	t.Parallel()

	result, err := FindStars(context.Background(), synthImage(t, 120, 120, 800, 15, nil, 3), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Stars)
	assert.Equal(t, 1, result.Passes, "a level already below 7 sigma is not retried")
}

func TestFindStars_HotPixelRejected(t *testing.T) {
	t.Parallel()

	data := synthFrame(96, 96, 1000, 17, nil, 1)
	data[40*96+40] += 5000
	img, err := NewImage(data, 96, 96, 16)
	require.NoError(t, err)

	result, err := FindStars(context.Background(), img, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Stars)
	assert.Equal(t, 1, result.Metrics.Candidates)
	assert.Equal(t, 1, result.Metrics.Rejected[RejectHotPixel])
}

func TestFindStars_AbnormalBackground(t *testing.T) {
	t.Parallel()

	for _, v := range []float64{0, 65535} {
		result, err := FindStars(context.Background(), constImage(t, 64, 64, v), nil)
		require.NoError(t, err)
		assert.Empty(t, result.Stars)
		assert.Zero(t, result.Passes)
	}
}

func TestFindStars_Region(t *testing.T) {
	t.Parallel()

	img := synthImage(t, 200, 160, 1200, 20, fieldStars, 7)
	p := DefaultDetectorParams()
	// Columns 0..79 only: the stars at x=40.5 and x=45.8.
	region, err := NewRatioRect(0, 0, 0.4, 1)
	require.NoError(t, err)
	p.Region = region

	result, err := FindStars(context.Background(), img, p)
	require.NoError(t, err)
	require.Len(t, result.Stars, 2)
	for _, s := range result.Stars {
		assert.Less(t, s.X, 80.0)
	}
}

func TestRatioRect(t *testing.T) {
	t.Parallel()

	assert.True(t, RatioRectFull.IsFull())
	assert.Equal(t, image.Rect(0, 0, 200, 160), RatioRectFull.Pixels(200, 160))

	center := RatioRectFromCenterROI(0.5)
	assert.False(t, center.IsFull())
	assert.Equal(t, image.Rect(50, 40, 150, 120), center.Pixels(200, 160))

	clipped, err := NewRatioRect(0.5, 0, 0.8, 1)
	require.NoError(t, err)
	assert.False(t, clipped.IsFull())
	assert.Equal(t, image.Rect(100, 0, 200, 160), clipped.Pixels(200, 160))
}

func TestFindStars_Errors(t *testing.T) {
	t.Parallel()

	_, err := FindStars(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNilImage)

	p := DefaultDetectorParams()
	p.BoxRadius = 51
	_, err = FindStars(context.Background(), constImage(t, 32, 32, 100), p)
	assert.ErrorIs(t, err, ErrInvalidRadius)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	img := synthImage(t, 96, 96, 1000, 17, []synthStar{{48.3, 47.6, 5000, 2}}, 1)
	result, err := FindStars(ctx, img, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Empty(t, result.Stars)
}
