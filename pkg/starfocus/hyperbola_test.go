package starfocus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vcurve(p, a, b float64, from, to, step int) []FocusPoint {
	var points []FocusPoint
	for x := from; x <= to; x += step {
		points = append(points, FocusPoint{Position: x, Value: ValueAt(float64(x), p, a, b)})
	}
	return points
}

func TestValueAt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3.0, ValueAt(1500, 1500, 3, 120))
	// symmetric around p
	assert.InDelta(t, ValueAt(1400, 1500, 3, 120), ValueAt(1600, 1500, 3, 120), 1e-12)
	// y = a*sqrt(1+((x-p)/b)^2)
	assert.InDelta(t, 3*math.Sqrt(1+1.0/1.44), ValueAt(1400, 1500, 3, 120), 1e-12)
	assert.Greater(t, ValueAt(1300, 1500, 3, 120), ValueAt(1400, 1500, 3, 120))
}

func TestStepsToFocus(t *testing.T) {
	t.Parallel()

	const p, a, b = 1500.0, 3.0, 120.0
	for _, d := range []float64{0, 25, 100, 400} {
		assert.InDelta(t, d, StepsToFocus(ValueAt(p+d, p, a, b), a, b), 1e-6)
	}
	// Samples below the minimum clamp to zero steps.
	assert.Equal(t, 0.0, StepsToFocus(2.5, a, b))
}

func TestFocusSolution_EstimateFocus(t *testing.T) {
	t.Parallel()

	s := FocusSolution{P: 1500, A: 3, B: 120}
	assert.Equal(t, 1500, s.EstimateFocus(s.ValueAt(1400), 1400, IntraFocus))
	assert.Equal(t, 1500, s.EstimateFocus(s.ValueAt(1650), 1650, ExtraFocus))
}

func TestMeanError(t *testing.T) {
	t.Parallel()

	data := vcurve(1500, 3, 120, 1200, 1800, 100)
	assert.InDelta(t, 0, MeanError(data, 1500, 3, 120), 1e-12)

	// One point off by a factor of two contributes 0.5 to the sum.
	data[3].Value *= 2
	assert.InDelta(t, 0.5/float64(len(data)), MeanError(data, 1500, 3, 120), 1e-12)

	assert.True(t, math.IsNaN(MeanError(nil, 0, 1, 1)))
}

func TestFindBestFit_Recovers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		p, a, b  float64
		from, to int
		step     int
	}{
		{"off-grid focus", 1530, 3.0, 120, 1000, 2000, 100},
		{"narrow sweep", 2017, 4.2, 65, 1800, 2200, 50},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data := vcurve(tt.p, tt.a, tt.b, tt.from, tt.to, tt.step)
			sol, err := FindBestFit(data, DefaultFitThreshold, DefaultFitMaxIterations)
			require.NoError(t, err)
			assert.InDelta(t, tt.p, sol.P, 1.0)
			assert.InEpsilon(t, tt.a, sol.A, 0.01)
			assert.InEpsilon(t, tt.b, sol.B, 0.02)
			assert.Less(t, sol.Error, 1e-3)
			assert.LessOrEqual(t, sol.Iterations, DefaultFitMaxIterations)
		})
	}
}

func TestFindBestFit_ExactSeed(t *testing.T) {
	t.Parallel()

	// Minimum sampled at p and symmetric extremes: the seed is the answer.
	data := vcurve(1000, 2, 80, 800, 1200, 50)
	sol, err := FindBestFit(data, DefaultFitThreshold, DefaultFitMaxIterations)
	require.NoError(t, err)
	assert.InDelta(t, 1000, sol.P, 1e-6)
	assert.InDelta(t, 2, sol.A, 1e-9)
	assert.InDelta(t, 80, sol.B, 1e-6)
	assert.LessOrEqual(t, sol.Error, DefaultFitThreshold)
	assert.Equal(t, 1, sol.Iterations)
}

func TestFindBestFit_IterationCap(t *testing.T) {
	t.Parallel()

	data := vcurve(1530, 3.0, 120, 1000, 2000, 100)
	sol, err := FindBestFit(data, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, sol.Iterations)
}

func TestFindBestFit_Errors(t *testing.T) {
	t.Parallel()

	_, err := FindBestFit([]FocusPoint{{100, 3}, {200, 2}}, DefaultFitThreshold, 10)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = FindBestFit([]FocusPoint{{100, 3}, {100, 2}, {200, 2}, {200, 4}}, DefaultFitThreshold, 10)
	assert.ErrorIs(t, err, ErrInsufficientData, "positions must be distinct")

	_, err = FindBestFit([]FocusPoint{{100, 0}, {200, 0}, {300, -1}}, DefaultFitThreshold, 10)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = FindBestFit([]FocusPoint{{100, 3}, {200, math.NaN()}, {300, 3}}, DefaultFitThreshold, 10)
	assert.Error(t, err)

	_, err = FindBestFit(vcurve(1500, 3, 120, 1200, 1800, 100), DefaultFitThreshold, 0)
	assert.Error(t, err)
}

func TestSortFocusPoints(t *testing.T) {
	t.Parallel()

	points := []FocusPoint{{300, 1}, {100, 2}, {200, 3}}
	SortFocusPoints(points)
	assert.Equal(t, []FocusPoint{{100, 2}, {200, 3}, {300, 1}}, points)
}
