package starfocus

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	// DefaultFitThreshold is the default error and improvement threshold of FindBestFit.
	DefaultFitThreshold = 1e-5
	// DefaultFitMaxIterations bounds the number of refinement rounds.
	DefaultFitMaxIterations = 30

	gridHalfSteps = 10
	gridStep      = 0.1
	minFitPoints  = 3
)

// ErrInsufficientData is returned when a fit has fewer than three distinct
// positions or no positive sample.
var ErrInsufficientData = errors.New("at least three distinct focus positions with positive values are required")

// ValueAt evaluates the V-curve y = a*cosh(asinh((p-x)/b)) at position x.
// The minimum, a, lies exactly at x == p.
func ValueAt(position, p, a, b float64) float64 {
	return a * math.Cosh(math.Asinh((p-position)/b))
}

// StepsToFocus inverts the V-curve: the distance from focus at which the
// metric equals sample. The caller decides which side of focus it is on.
func StepsToFocus(sample, a, b float64) float64 {
	x := math.Max(1, sample/a)
	return b * math.Sinh(math.Acosh(x))
}

// MeanError is the mean relative deviation between data and the curve. Each
// point's error is normalised by the larger of simulated and measured value,
// so a single outlier contributes at most 1.
func MeanError(data []FocusPoint, p, a, b float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	var total float64
	for _, d := range data {
		sim := ValueAt(float64(d.Position), p, a, b)
		total += math.Abs(sim-d.Value) / math.Max(sim, d.Value)
	}
	return total / float64(len(data))
}

// FindBestFit fits the V-curve to data with a coarse-to-fine grid search.
//
// The seed takes a and p from the lowest positive sample and b from the
// hyperbola through the highest sample. Every round halves the search ranges
// and evaluates 21 points per axis (step range/10) around the best (p, a, b)
// so far. The search stops when the latest improvement of the error was
// smaller than threshold, when the error itself is at most threshold, or
// after maxIterations rounds. A round without any improvement keeps the
// previous improvement and therefore refines further.
func FindBestFit(data []FocusPoint, threshold float64, maxIterations int) (FocusSolution, error) {
	if maxIterations < 1 {
		return FocusSolution{}, fmt.Errorf("max iterations must be positive, got %d", maxIterations)
	}
	positions := make(map[int]struct{}, len(data))
	lowest := FocusPoint{Value: math.Inf(1)}
	highest := FocusPoint{Value: math.Inf(-1)}
	minPos, maxPos := math.MaxInt, math.MinInt
	for _, d := range data {
		if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) {
			return FocusSolution{}, fmt.Errorf("non-finite sample at position %d", d.Position)
		}
		positions[d.Position] = struct{}{}
		minPos = min(minPos, d.Position)
		maxPos = max(maxPos, d.Position)
		if d.Value > 0 && d.Value < lowest.Value {
			lowest = d
		}
		if d.Value > highest.Value {
			highest = d
		}
	}
	if len(positions) < minFitPoints || math.IsInf(lowest.Value, 1) {
		return FocusSolution{}, ErrInsufficientData
	}

	p, a, b := seedHyperbola(lowest, highest, float64(maxPos-minPos))
	pRange := float64(maxPos - minPos)
	aRange := a
	bRange := b

	// prevErr is the error before the most recent improvement.
	bestErr, prevErr := math.Inf(1), math.Inf(1)
	iterations := 0
	for {
		pRange *= 0.5
		aRange *= 0.5
		bRange *= 0.5
		p0, a0, b0 := p, a, b
		for ip := -gridHalfSteps; ip <= gridHalfSteps; ip++ {
			p1 := p0 + float64(ip)*pRange*gridStep
			for ia := -gridHalfSteps; ia <= gridHalfSteps; ia++ {
				a1 := a0 + float64(ia)*aRange*gridStep
				if a1 <= 0 {
					continue
				}
				for ib := -gridHalfSteps; ib <= gridHalfSteps; ib++ {
					b1 := b0 + float64(ib)*bRange*gridStep
					if b1 <= 0 {
						continue
					}
					if e := MeanError(data, p1, a1, b1); e < bestErr {
						prevErr, bestErr = bestErr, e
						p, a, b = p1, a1, b1
					}
				}
			}
		}
		iterations++
		if prevErr-bestErr < threshold || bestErr <= threshold || iterations >= maxIterations {
			break
		}
	}

	return FocusSolution{P: p, A: a, B: b, Error: bestErr, Iterations: iterations}, nil
}

// seedHyperbola derives starting values from the extreme samples. With
// y = a*sqrt(1+((x-p)/b)^2), the highest sample gives b = |x-p| / sqrt((y/a)^2-1).
func seedHyperbola(lowest, highest FocusPoint, span float64) (p, a, b float64) {
	p = float64(lowest.Position)
	a = lowest.Value
	dx := math.Abs(float64(highest.Position) - p)
	ratio := highest.Value / a
	switch {
	case ratio > 1 && dx > 0:
		b = dx / math.Sqrt(ratio*ratio-1)
	case dx > 0:
		b = dx
	case span > 0:
		b = span / 2
	default:
		b = 1
	}
	return p, a, b
}

// SortFocusPoints orders points by position.
func SortFocusPoints(points []FocusPoint) {
	sort.Slice(points, func(i, j int) bool { return points[i].Position < points[j].Position })
}

// FocusSide tells which side of focus a sample was taken on.
type FocusSide int

const (
	// IntraFocus samples sit below the focus position.
	IntraFocus FocusSide = iota
	// ExtraFocus samples sit above the focus position.
	ExtraFocus
)

// EstimateFocus returns the focuser position a sample taken on the given
// side of focus implies, using the fitted curve shape.
func (s FocusSolution) EstimateFocus(sample float64, current int, side FocusSide) int {
	steps := StepsToFocus(sample, s.A, s.B)
	if side == IntraFocus {
		return current + int(math.Round(steps))
	}
	return current - int(math.Round(steps))
}

// ValueAt evaluates the fitted curve at position.
func (s FocusSolution) ValueAt(position float64) float64 {
	return ValueAt(position, s.P, s.A, s.B)
}
