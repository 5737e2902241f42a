package starfocus

import (
	"math"
	"sort"
)

// madToSigma converts a median absolute deviation to a normal-equivalent sigma.
const madToSigma = 1.4826

// Median returns the median of values, averaging the two middle elements for
// even counts. It returns NaN for an empty slice. values is not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	return medianInPlace(sorted)
}

// medianInPlace sorts values and returns their median.
func medianInPlace(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2.0
	}
	return values[n/2]
}

// MAD returns the median absolute deviation of values around their median.
func MAD(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	m := Median(values)
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - m)
	}
	return medianInPlace(dev)
}

// MedianMAD returns the median and the normal-equivalent sigma (MAD*1.4826).
func MedianMAD(values []float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	return Median(values), madToSigma * MAD(values)
}
