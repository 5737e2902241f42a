/*
Extracted from HocusFocus plugin by George Hilios.
Original Copyright © 2021 George Hilios <ghilios+NINA@googlemail.com>
Licensed under Mozilla Public License 2.0.
Ported to Go.
*/

package starfocus

import (
	"fmt"
	"math"
)

const (
	histogramSize = 65000

	// Unused sensor areas (e.g. LibRaw output) can cover up to this much of each edge.
	histogramMarginX = 0.042
	histogramMarginY = 0.015

	noiseGridDivisions    = 71
	noiseBorder           = 15
	noiseMaxIterations    = 7
	noiseConvergence      = 0.05
	noiseOutlierSigma     = 3.0
	starLevelFluxFraction = 0.001

	abnormalBackground = 60000
)

// ImageHistogram is the intensity distribution of an image's interior.
type ImageHistogram struct {
	Counts []uint32
	Mean   float64
	Total  int
}

// BackgroundStats holds the background level, star threshold and noise of an image.
type BackgroundStats struct {
	Background float64
	StarLevel  float64
	NoiseLevel float64
	Histogram  *ImageHistogram
}

// Abnormal reports whether the background is outside the range star detection can work with.
func (s BackgroundStats) Abnormal() bool {
	return !(s.Background > 0 && s.Background < abnormalBackground)
}

func (s BackgroundStats) String() string {
	return fmt.Sprintf("{Background=%f, StarLevel=%f, NoiseLevel=%f}", s.Background, s.StarLevel, s.NoiseLevel)
}

// BuildHistogram counts rounded pixel values in [1, 65000) over the image
// interior, skipping the sensor-edge margins.
func BuildHistogram(img *Image) *ImageHistogram {
	h := &ImageHistogram{Counts: make([]uint32, histogramSize)}
	offsetW := int(float64(img.Width) * histogramMarginX)
	offsetH := int(float64(img.Height) * histogramMarginY)

	var totalValue float64
	count := 1 // never divide by zero
	for y := offsetH; y <= img.Height-1-offsetH; y++ {
		row := img.Row(y)
		for x := offsetW; x <= img.Width-1-offsetW; x++ {
			v := row[x]
			if math.IsNaN(v) {
				continue
			}
			col := int(math.Round(v))
			if col < 1 || col >= histogramSize {
				continue
			}
			h.Counts[col]++
			h.Total++
			totalValue += float64(col)
			count++
		}
	}
	h.Mean = totalValue / float64(count)
	return h
}

// EstimateBackground derives background, star level and noise level from
// the interior histogram and a coarse sampling grid.
func EstimateBackground(img *Image) BackgroundStats {
	hist := BuildHistogram(img)
	stats := BackgroundStats{Histogram: hist}

	// Images made of 0 or 65535 only still need some background value.
	background := img.At(0, 0)

	// Histogram peak, ignoring 0 and anything above the mean.
	maxRange := int(math.Round(hist.Mean))
	if maxRange > histogramSize-1 {
		maxRange = histogramSize - 1
	}
	var peak uint32
	for i := 1; i <= maxRange; i++ {
		if hist.Counts[i] > peak {
			peak = hist.Counts[i]
			background = float64(i)
		}
	}
	// A strange peak at a low value (bias frames): use the mean instead.
	if hist.Mean > 1.5*background {
		background = hist.Mean
	}
	stats.Background = background
	stats.NoiseLevel = estimateNoise(img, background)
	stats.StarLevel = estimateStarLevel(hist, background, img.maxValue())
	return stats
}

// estimateStarLevel walks down from the top of the range until 0.1% of the
// pixels are brighter. The result is relative to the background, except in
// the degenerate case where it is floored at background+1.
func estimateStarLevel(hist *ImageHistogram, background float64, top int) float64 {
	var starLevel float64
	var above float64
	threshold := starLevelFluxFraction * float64(hist.Total)
	for i := top; starLevel == 0 && float64(i) > background+1; {
		i--
		above += float64(hist.Counts[i])
		if above > threshold {
			starLevel = float64(i)
		}
	}
	if starLevel <= background {
		return background + 1
	}
	// Subtract 1 so saturated images still detect stars.
	return starLevel - background - 1
}

// estimateNoise computes the standard deviation of grid samples around the
// background, iteratively rejecting outliers beyond 3 sigma.
func estimateNoise(img *Image, background float64) float64 {
	step := int(math.Round(float64(img.Height) / noiseGridDivisions))
	if step%2 == 0 {
		// odd steps avoid sampling one Bayer channel of raw OSC frames
		step++
	}

	sd := 99999.0
	for iterations := 0; ; {
		sdOld := sd
		var sum float64
		counter := 1
		for x := noiseBorder; x <= img.Width-1-noiseBorder; x += step {
			for y := noiseBorder; y <= img.Height-1-noiseBorder; y += step {
				v := img.At(x, y)
				// NaN fails every comparison and is skipped here.
				if !(v < 2*background) || v == 0 {
					continue
				}
				if iterations > 0 && !(math.Abs(v-background) <= noiseOutlierSigma*sdOld) {
					continue
				}
				d := v - background
				sum += d * d
				counter++
			}
		}
		sd = math.Sqrt(sum / float64(counter))
		iterations++
		if sdOld-sd < noiseConvergence*sd || iterations >= noiseMaxIterations {
			break
		}
	}
	return sd
}
