package starfocus

import "math"

const (
	// fieldEdgeFraction is the width of the outer zone bands.
	fieldEdgeFraction    = 0.25
	minStarsPerZone      = 3
	minTotalStarsForTilt = 20
)

var zoneLabels = [...]string{
	ZoneTopLeft:     "TL",
	ZoneTop:         "T",
	ZoneTopRight:    "TR",
	ZoneLeft:        "L",
	ZoneCenter:      "Center",
	ZoneRight:       "R",
	ZoneBottomLeft:  "BL",
	ZoneBottom:      "B",
	ZoneBottomRight: "BR",
}

var cornerPositions = [...]ZonePosition{ZoneTopLeft, ZoneTopRight, ZoneBottomLeft, ZoneBottomRight}

func (z ZonePosition) String() string {
	if z < 0 || int(z) >= len(zoneLabels) {
		return "unknown"
	}
	return zoneLabels[z]
}

// AnalyzeField buckets stars into a 3x3 grid over a width x height frame and
// compares the outer zones with the center. TiltPct is the HFD spread
// between the best and worst populated corner, OffAxisPct the mean excess of
// the populated outer zones; both are percentages of the center HFD.
// It returns nil when there are no stars.
func AnalyzeField(stars []Star, width, height int) *FieldAnalysis {
	if len(stars) == 0 {
		return nil
	}

	xLo, xHi := float64(width)*fieldEdgeFraction, float64(width)*(1-fieldEdgeFraction)
	yLo, yHi := float64(height)*fieldEdgeFraction, float64(height)*(1-fieldEdgeFraction)
	var buckets [len(zoneLabels)][]Star
	for _, s := range stars {
		pos := classifyZone(s.X, s.Y, xLo, xHi, yLo, yHi)
		buckets[pos] = append(buckets[pos], s)
	}

	field := &FieldAnalysis{Zones: make(map[ZonePosition]ZoneData, len(buckets))}
	for pos, bucket := range buckets {
		field.Zones[ZonePosition(pos)] = computeZoneData(ZonePosition(pos), bucket)
	}

	center := field.Zones[ZoneCenter]
	if center.MedianHFD <= 0 {
		return field
	}

	best, worst, corners := cornerExtremes(field.Zones)
	if corners >= 2 {
		bestHFD, worstHFD := field.Zones[best].MedianHFD, field.Zones[worst].MedianHFD
		field.TiltPct = (worstHFD - bestHFD) / center.MedianHFD * 100
		field.BestCorner = best.String()
		field.WorstCorner = worst.String()
	}
	if offAxis, ok := meanOuterHFD(field.Zones); ok {
		field.OffAxisPct = (offAxis - center.MedianHFD) / center.MedianHFD * 100
	}

	field.Reliable = len(stars) >= minTotalStarsForTilt &&
		corners == len(cornerPositions) &&
		center.StarCount >= minStarsPerZone
	return field
}

// cornerExtremes finds the corners with the lowest and highest median HFD
// among those with enough stars, and how many such corners there are.
func cornerExtremes(zones map[ZonePosition]ZoneData) (best, worst ZonePosition, n int) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, pos := range cornerPositions {
		z := zones[pos]
		if z.StarCount < minStarsPerZone {
			continue
		}
		n++
		if z.MedianHFD < lo {
			lo, best = z.MedianHFD, pos
		}
		if z.MedianHFD > hi {
			hi, worst = z.MedianHFD, pos
		}
	}
	return best, worst, n
}

// meanOuterHFD averages the median HFD of every populated non-center zone.
func meanOuterHFD(zones map[ZonePosition]ZoneData) (float64, bool) {
	var sum float64
	n := 0
	for pos, z := range zones {
		if pos == ZoneCenter || z.StarCount < minStarsPerZone {
			continue
		}
		sum += z.MedianHFD
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// classifyZone maps a pixel position onto zoneGrid.
func classifyZone(x, y, xLo, xHi, yLo, yHi float64) ZonePosition {
	band := func(v, lo, hi float64) int {
		switch {
		case v < lo:
			return 0
		case v < hi:
			return 1
		default:
			return 2
		}
	}
	return zoneGrid[band(y, yLo, yHi)][band(x, xLo, xHi)]
}

// computeZoneData takes the FWHM from the fitted PSF where one exists.
func computeZoneData(pos ZonePosition, stars []Star) ZoneData {
	zd := ZoneData{Label: pos.String(), StarCount: len(stars)}
	if len(stars) == 0 {
		return zd
	}
	hfd := make([]float64, len(stars))
	fwhm := make([]float64, len(stars))
	for i, s := range stars {
		hfd[i] = s.HFD
		fwhm[i] = s.FWHM
		if s.PSF != nil {
			fwhm[i] = s.PSF.FWHMPixels
		}
	}
	zd.MedianHFD = medianInPlace(hfd)
	zd.MedianFWHM = medianInPlace(fwhm)
	return zd
}
