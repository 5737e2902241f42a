/*
Extracted from HocusFocus plugin by George Hilios.
Original Copyright © 2021 George Hilios <ghilios+NINA@googlemail.com>
Licensed under Mozilla Public License 2.0.
Ported to Go.
*/

package starfocus

import (
	"context"
	"image"
	"math"
)

const (
	initialNoiseMultiplier = 3.5
	minNoiseMultiplier     = 7.0
	retryFloorMultiplier   = 6.999
	retryCeilMultiplier    = 30.0
	// A mask radius between 2.5 and 3.5 HFD performs the same; real PSFs
	// have wider wings than a Gaussian.
	maskHFDMultiplier = 3.0
)

// FindStars detects stars with an adaptive threshold. It starts at the
// brighter of 3.5 sigma and the image star level, and lowers the level
// geometrically on each retry until MaxStars are found, the level reaches
// 7 sigma, or MaxRetries extra passes have run. Each pass starts from an
// empty star list and occupancy mask.
//
// Images with an abnormal background return an empty result and no error.
// ctx is checked once per row; on cancellation the stars of the current
// pass are returned together with ctx.Err().
func FindStars(ctx context.Context, img *Image, p *DetectorParams) (*DetectorResult, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	if p == nil {
		p = DefaultDetectorParams()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	bgStats := EstimateBackground(img)
	result := &DetectorResult{
		Stars:      []Star{},
		Background: bgStats,
		Metrics:    &DetectorMetrics{},
	}
	if bgStats.Abnormal() {
		return result, nil
	}

	noise := bgStats.NoiseLevel
	level := math.Max(initialNoiseMultiplier*noise, bgStats.StarLevel)
	scan := image.Rect(0, 0, img.Width, img.Height)
	if !p.Region.IsFull() {
		scan = p.Region.Pixels(img.Width, img.Height)
	}
	mask := NewBitMatrix(img.Height, img.Width)

	for retries := p.MaxRetries; ; {
		mask.ClearAll()
		metrics := &DetectorMetrics{}
		stars, err := scanPass(ctx, img, p, bgStats.Background, level, scan, mask, metrics)
		result.Stars = stars
		result.Metrics = metrics
		result.DetectionLevel = level
		result.Passes++
		if err != nil {
			return result, err
		}

		retries--
		if level <= minNoiseMultiplier*noise {
			break
		}
		level = math.Max(retryFloorMultiplier*noise, math.Min(retryCeilMultiplier*noise, level*retryFloorMultiplier/retryCeilMultiplier))
		if len(stars) >= p.MaxStars || retries < 0 {
			break
		}
	}
	return result, nil
}

// scanPass runs one row-major raster pass at the given detection level.
// The last row and column are never candidates.
func scanPass(ctx context.Context, img *Image, p *DetectorParams, background, level float64,
	scan image.Rectangle, mask *BitMatrix, metrics *DetectorMetrics) ([]Star, error) {
	stars := make([]Star, 0, 64)
	yEnd := min(scan.Max.Y, img.Height-1)
	xEnd := min(scan.Max.X, img.Width-1)

	for y := scan.Min.Y; y < yEnd; y++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return stars, ctx.Err()
			default:
			}
		}

		row := img.Row(y)
		for x := scan.Min.X; x < xEnd; x++ {
			if !(row[x]-background > level) || mask.Get(y, x) {
				continue
			}
			metrics.Candidates++
			star, err := AnalyseStar(img, x, y, p.BoxRadius)
			if err != nil {
				if reason, ok := IsNotFound(err); ok {
					metrics.Rejected[reason]++
					continue
				}
				return stars, err
			}
			if star.HFD <= p.MinHFD || star.HFD > p.MaxHFD {
				metrics.RejectedHFD++
				continue
			}
			if !(star.SNR > p.SNRMin) {
				metrics.RejectedSNR++
				continue
			}
			stars = append(stars, star)
			mask.markDisk(int(math.Round(star.X)), int(math.Round(star.Y)), int(math.Round(maskHFDMultiplier*star.HFD)))
		}
	}
	return stars, nil
}
