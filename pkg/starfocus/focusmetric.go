package starfocus

// MeasureFocusMetric reduces a star list to one focus sample: the median HFD
// or FWHM of the stars. It reports false when there are no stars.
func MeasureFocusMetric(stars []Star, kind SampleKind) (float64, bool) {
	if len(stars) == 0 {
		return 0, false
	}
	values := make([]float64, len(stars))
	for i, s := range stars {
		if kind == SampleFWHM {
			values[i] = s.FWHM
		} else {
			values[i] = s.HFD
		}
	}
	return medianInPlace(values), true
}
