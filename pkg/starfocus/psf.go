/*
Extracted from HocusFocus plugin by George Hilios.
Original Copyright © 2021 George Hilios <ghilios+NINA@googlemail.com>
Licensed under Mozilla Public License 2.0.
Ported to Go.
*/

package starfocus

import (
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

var sigmaToFWHM = 2.0 * math.Sqrt(2.0*math.Log(2.0))

const (
	// DefaultPSFMinRSquared rejects fits that explain less of the variance.
	DefaultPSFMinRSquared = 0.8

	psfWindowHFD    = 1.5
	psfMinSamples   = 7
	psfSimplexSize  = 0.25
	psfMaxIteration = 4000
)

// Parameter layout of the elliptical Gaussian. Amplitude and background are
// in units of the initial peak so the simplex works on comparable scales.
const (
	psfAmp = iota
	psfBg
	psfX0
	psfY0
	psfSigX
	psfSigY
	psfTheta
	psfParams
)

type psfSample struct {
	dx, dy, v float64
}

// FitPSF refines a detected star with an elliptical Gaussian fitted by
// Nelder-Mead over the pixels within 1.5 HFD of the centroid. It reports
// false when the window is too small, the fit diverges, or R² is below
// minRSquared.
func FitPSF(img *Image, star Star, minRSquared float64) (*PSFModel, bool) {
	if img == nil || star.HFD <= 0 {
		return nil, false
	}
	half := int(math.Ceil(psfWindowHFD*star.HFD)) + 1
	cx, cy := int(math.Round(star.X)), int(math.Round(star.Y))
	x0, x1 := max(cx-half, 0), min(cx+half, img.Width-1)
	y0, y1 := max(cy-half, 0), min(cy+half, img.Height-1)

	samples := make([]psfSample, 0, (x1-x0+1)*(y1-y0+1))
	for y := y0; y <= y1; y++ {
		row := img.Row(y)
		for x := x0; x <= x1; x++ {
			samples = append(samples, psfSample{dx: float64(x) - star.X, dy: float64(y) - star.Y, v: row[x]})
		}
	}
	if len(samples) < psfMinSamples {
		return nil, false
	}

	background := star.Background
	peak := math.Max(img.At(cx, cy)-background, 1)
	sigma0 := math.Max(star.HFD/2, 0.5)
	limit := float64(half)

	model := func(p []float64, s psfSample) float64 {
		cosT, sinT := math.Cos(p[psfTheta]), math.Sin(p[psfTheta])
		u := (s.dx-p[psfX0])*cosT + (s.dy-p[psfY0])*sinT
		w := -(s.dx-p[psfX0])*sinT + (s.dy-p[psfY0])*cosT
		e := u*u/(2*p[psfSigX]*p[psfSigX]) + w*w/(2*p[psfSigY]*p[psfSigY])
		return background + peak*(p[psfBg]+p[psfAmp]*math.Exp(-e))
	}
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			if p[psfAmp] <= 0 || p[psfSigX] <= 0.1 || p[psfSigY] <= 0.1 ||
				p[psfSigX] > limit || p[psfSigY] > limit ||
				math.Abs(p[psfX0]) > limit/2 || math.Abs(p[psfY0]) > limit/2 {
				return math.Inf(1)
			}
			var sum float64
			for _, s := range samples {
				r := (model(p, s) - s.v) / peak
				sum += r * r
			}
			return sum
		},
	}
	initial := make([]float64, psfParams)
	initial[psfAmp] = 1
	initial[psfSigX] = sigma0
	initial[psfSigY] = sigma0
	settings := &optimize.Settings{
		MajorIterations: psfMaxIteration,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-12, Iterations: 200},
	}
	// Hitting the iteration limit still leaves a usable point; the R² gate decides.
	result, _ := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{SimplexSize: psfSimplexSize})
	if result == nil || math.IsInf(result.F, 1) {
		return nil, false
	}
	p := result.X

	observed := make([]float64, len(samples))
	var rss float64
	for i, s := range samples {
		observed[i] = s.v
		r := model(p, s) - s.v
		rss += r * r
	}
	tss := stat.Variance(observed, nil) * float64(len(observed)-1)
	if tss <= 0 {
		return nil, false
	}
	rSquared := 1 - rss/tss
	if rSquared < minRSquared {
		return nil, false
	}

	sigX, sigY := p[psfSigX], p[psfSigY]
	theta := euclidianModulus(p[psfTheta], math.Pi)
	if theta > math.Pi/2 {
		theta -= math.Pi
	}
	if sigY > sigX {
		if theta < 0 {
			theta += math.Pi / 2
		} else {
			theta -= math.Pi / 2
		}
		sigX, sigY = sigY, sigX
	}
	return newPSFModel(p[psfX0], p[psfY0], peak*p[psfAmp], background+peak*p[psfBg], sigX, sigY, theta, rSquared), true
}

func euclidianModulus(x, y float64) float64 {
	return math.Mod(math.Mod(x, y)+y, y)
}
