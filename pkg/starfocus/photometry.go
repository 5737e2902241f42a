package starfocus

import (
	"errors"
	"math"
)

const (
	// MaxBoxRadius bounds the photometry box so the scratch buffers stay fixed-size.
	MaxBoxRadius = 50

	// annulusCap is the largest one-pixel annulus around a box of radius <= 50.
	annulusCap = 328
	// distanceBins covers radii 0..rs after the +2 expansion.
	distanceBins = MaxBoxRadius + 3

	signalSigma        = 3.0
	minFluxSigma       = 12.0
	boxedFraction      = 2.0 / 9.0
	dropOffFraction    = 0.1
	minFillFraction    = 0.35
	minHFD             = 0.7
	minBackgroundNoise = 1.0
)

// ErrInvalidRadius is returned for a photometry box radius outside [1, 50].
var ErrInvalidRadius = errors.New("box radius must be in [1, 50]")

// AnalyseStar measures the star nearest (x1, y1) using a box of half-size rs.
//
// The local background is the median of a one-pixel annulus just outside the
// box, its noise the MAD of the same annulus. The box shrinks until at least
// 2/9 of it is illuminated, then an aperture is chosen where the radial
// profile of illuminated pixels drops below 10% of its peak. HFD is the
// flux-weighted radius approximation 2*sum(v*r)/sum(v), which reads about 6%
// high against an exact Gaussian or disk.
//
// A non-detection is reported as a *NotFoundError.
func AnalyseStar(img *Image, x1, y1, rs int) (Star, error) {
	if img == nil {
		return Star{}, ErrNilImage
	}
	if rs < 1 || rs > MaxBoxRadius {
		return Star{}, ErrInvalidRadius
	}
	width, height := img.Width, img.Height

	r2 := rs + 1
	if x1-r2 <= 0 || x1+r2 >= width-1 || y1-r2 <= 0 || y1+r2 >= height-1 {
		return Star{}, notFound(RejectOutOfBounds)
	}

	// Background and noise from the annulus rs < dist <= rs+1.
	var annulus [annulusCap]float64
	n := 0
	rsSquare, r2Square := rs*rs, r2*r2
	for j := -r2; j <= r2; j++ {
		for i := -r2; i <= r2; i++ {
			d := i*i + j*j
			if d > rsSquare && d <= r2Square {
				if v := img.At(x1+i, y1+j); !math.IsNaN(v) {
					annulus[n] = v
					n++
				}
			}
		}
	}
	if n == 0 {
		return Star{}, notFound(RejectTooFaint)
	}
	bg := medianInPlace(annulus[:n])
	for k := 0; k < n; k++ {
		annulus[k] = math.Abs(annulus[k] - bg)
	}
	// Zero-noise backgrounds (processed JPEGs) must not read as stars.
	sdBg := math.Max(medianInPlace(annulus[:n])*madToSigma, minBackgroundNoise)
	signalLevel := signalSigma * sdBg

	// Centre of gravity, shrinking the box until the star fills it.
	var xc, yc float64
	for {
		var sumVal, sumX, sumY float64
		signal := 0
		for j := -rs; j <= rs; j++ {
			row := img.Row(y1 + j)
			for i := -rs; i <= rs; i++ {
				val := row[x1+i] - bg
				if val > signalLevel {
					sumVal += val
					sumX += val * float64(i)
					sumY += val * float64(j)
					signal++
				}
			}
		}
		if sumVal <= minFluxSigma*sdBg {
			return Star{}, notFound(RejectTooFaint)
		}
		xc = float64(x1) + sumX/sumVal
		yc = float64(y1) + sumY/sumVal

		if xc-float64(rs) <= 1 || xc+float64(rs) >= float64(width-2) ||
			yc-float64(rs) <= 1 || yc+float64(rs) >= float64(height-2) {
			return Star{}, notFound(RejectCentroidOutOfBounds)
		}
		side := float64(2*rs + 1)
		boxed := float64(signal) >= boxedFraction*side*side
		if signal <= 1 {
			return Star{}, notFound(RejectHotPixel)
		}
		if boxed {
			break
		}
		// A smaller window excludes nearby stars.
		if rs > 4 {
			rs -= 2
		} else {
			rs--
		}
		if rs <= 1 {
			return Star{}, notFound(RejectNotBoxed)
		}
	}

	rs += 2

	// Radial histogram of illuminated pixels around the centroid.
	var distHist [distanceBins]int
	var valMax float64
	for j := -rs; j <= rs; j++ {
		for i := -rs; i <= rs; i++ {
			d := int(math.Round(math.Sqrt(float64(i*i + j*j))))
			if d > rs {
				continue
			}
			val := img.SubpixelValue(xc+float64(i), yc+float64(j)) - bg
			if val > signalLevel {
				distHist[d]++
				if val > valMax {
					valMax = val
				}
			}
		}
	}

	// Walk outward past the peak; the core of a defocused star can be dark
	// from a central obstruction, so counting only starts at the first hit.
	rAperture := -1
	top := 0
	illuminated := 0
	started := false
	for {
		rAperture++
		c := distHist[rAperture]
		illuminated += c
		if c > 0 {
			started = true
		}
		if c > top {
			top = c
		}
		if rAperture >= rs || (started && float64(c) <= dropOffFraction*float64(top)) {
			break
		}
	}
	if rAperture >= rs {
		return Star{}, notFound(RejectOversized)
	}
	if rAperture > 2 {
		edge := float64(2*rAperture - 2)
		if float64(illuminated) < minFillFraction*edge*edge {
			return Star{}, notFound(RejectSparse)
		}
	}

	// HFD, FWHM and flux over the square aperture.
	var sumVal, sumValR float64
	halfMax := 0
	for j := -rAperture; j <= rAperture; j++ {
		for i := -rAperture; i <= rAperture; i++ {
			val := img.SubpixelValue(xc+float64(i), yc+float64(j)) - bg
			if math.IsNaN(val) {
				continue
			}
			r := math.Sqrt(float64(i*i + j*j))
			sumVal += val
			sumValR += val * r
			if val >= valMax*0.5 {
				halfMax++
			}
		}
	}
	flux := sumVal
	if flux < 0.00001 {
		flux = 0.00001
	}
	ra := float64(rAperture)
	return Star{
		HFD:        math.Max(minHFD, 2*sumValR/flux),
		FWHM:       2 * math.Sqrt(float64(halfMax)/math.Pi),
		SNR:        flux / math.Sqrt(flux+ra*ra*math.Pi*sdBg*sdBg),
		Flux:       flux,
		X:          xc,
		Y:          yc,
		Background: bg,
	}, nil
}
