package starfocus

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FitParams controls FindBestFit when called through a sample map.
type FitParams struct {
	Threshold     float64
	MaxIterations int
}

// DefaultFitParams returns the fitter defaults.
func DefaultFitParams() FitParams {
	return FitParams{Threshold: DefaultFitThreshold, MaxIterations: DefaultFitMaxIterations}
}

// sampleBag is the append-only sample list of one focus position.
type sampleBag struct {
	mu     sync.Mutex
	values []float64
}

func (b *sampleBag) add(v float64) {
	b.mu.Lock()
	b.values = append(b.values, v)
	b.mu.Unlock()
}

// snapshot copies the samples committed so far.
func (b *sampleBag) snapshot() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float64, len(b.values))
	copy(out, b.values)
	return out
}

// FocusMetricSampleMap collects metric samples per focuser position for one
// autofocus run. Samples may be added from several goroutines while another
// goroutine asks for a solution; each position has its own lock, so adding
// to one position never blocks aggregation of another.
type FocusMetricSampleMap struct {
	kind    SampleKind
	fit     FitParams
	samples sync.Map // int -> *sampleBag
}

// NewFocusMetricSampleMap creates an empty map collecting samples of kind.
func NewFocusMetricSampleMap(kind SampleKind) *FocusMetricSampleMap {
	return &FocusMetricSampleMap{kind: kind, fit: DefaultFitParams()}
}

// WithFitParams sets the fitter parameters and returns the map.
func (m *FocusMetricSampleMap) WithFitParams(p FitParams) *FocusMetricSampleMap {
	m.fit = p
	return m
}

// Kind returns the metric the map collects.
func (m *FocusMetricSampleMap) Kind() SampleKind { return m.kind }

// SampleAt records value at position when it is finite and positive, then
// tries an Average fit over all positions sampled so far.
func (m *FocusMetricSampleMap) SampleAt(position int, value float64) (FocusFit, bool) {
	if !math.IsNaN(value) && !math.IsInf(value, 0) && value > 0 {
		bag, _ := m.samples.LoadOrStore(position, &sampleBag{})
		bag.(*sampleBag).add(value)
	}
	return m.TryBestFocusSolution(AggregateAverage)
}

// Positions returns the sampled positions in ascending order.
func (m *FocusMetricSampleMap) Positions() []int {
	var positions []int
	m.samples.Range(func(k, _ any) bool {
		positions = append(positions, k.(int))
		return true
	})
	sort.Ints(positions)
	return positions
}

// Count returns the number of samples recorded at position.
func (m *FocusMetricSampleMap) Count(position int) int {
	bag, ok := m.samples.Load(position)
	if !ok {
		return 0
	}
	b := bag.(*sampleBag)
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.values)
}

// Aggregate reduces the samples at position. It reports false when there are none.
func (m *FocusMetricSampleMap) Aggregate(position int, method AggregationMethod) (float64, bool) {
	bag, ok := m.samples.Load(position)
	if !ok {
		return 0, false
	}
	values := bag.(*sampleBag).snapshot()
	if len(values) == 0 {
		return 0, false
	}
	switch method {
	case AggregateMedian:
		return medianInPlace(values), true
	case AggregateBest:
		return floats.Min(values), true
	case AggregateAverage:
		return stat.Mean(values, nil), true
	default:
		return 0, false
	}
}

// Points returns the aggregated (position, value) pairs sorted by position.
// It reports false if any sampled position cannot be aggregated.
func (m *FocusMetricSampleMap) Points(method AggregationMethod) ([]FocusPoint, bool) {
	positions := m.Positions()
	points := make([]FocusPoint, 0, len(positions))
	for _, pos := range positions {
		v, ok := m.Aggregate(pos, method)
		if !ok {
			return nil, false
		}
		points = append(points, FocusPoint{Position: pos, Value: v})
	}
	return points, true
}

// TryBestFocusSolution fits the V-curve once at least three distinct
// positions are sampled.
func (m *FocusMetricSampleMap) TryBestFocusSolution(method AggregationMethod) (FocusFit, bool) {
	points, ok := m.Points(method)
	if !ok || len(points) < minFitPoints {
		return FocusFit{}, false
	}
	solution, err := FindBestFit(points, m.fit.Threshold, m.fit.MaxIterations)
	if err != nil {
		return FocusFit{}, false
	}
	return FocusFit{
		Solution:    solution,
		MinPosition: points[0].Position,
		MaxPosition: points[len(points)-1].Position,
	}, true
}
