/*
Extracted from HocusFocus plugin by George Hilios.
Original Copyright © 2021 George Hilios <ghilios+NINA@googlemail.com>
Licensed under Mozilla Public License 2.0.
Ported to Go.
*/

package starfocus

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
)

// RatioRect represents a rectangle defined by ratios in [0, 1).
type RatioRect struct {
	StartX float64
	StartY float64
	Width  float64
	Height float64
}

// RatioRectFull is a RatioRect covering the entire image.
var RatioRectFull = RatioRect{StartX: 0, StartY: 0, Width: 1, Height: 1}

// NewRatioRect creates a new RatioRect with validation.
func NewRatioRect(startX, startY, width, height float64) (RatioRect, error) {
	if startX < 0 || startX >= 1 {
		return RatioRect{}, fmt.Errorf("startX must be in [0, 1), got %f", startX)
	}
	if startY < 0 || startY >= 1 {
		return RatioRect{}, fmt.Errorf("startY must be in [0, 1), got %f", startY)
	}
	if width <= 0 {
		return RatioRect{}, fmt.Errorf("width must be positive, got %f", width)
	}
	if height <= 0 {
		return RatioRect{}, fmt.Errorf("height must be positive, got %f", height)
	}
	return RatioRect{
		StartX: startX,
		StartY: startY,
		Width:  math.Min(width, 1.0-startX),
		Height: math.Min(height, 1.0-startY),
	}, nil
}

// RatioRectFromCenterROI creates a RatioRect centered on the image with the given ROI ratio.
func RatioRectFromCenterROI(roi float64) RatioRect {
	return RatioRect{
		StartX: (1.0 - roi) / 2.0,
		StartY: (1.0 - roi) / 2.0,
		Width:  roi,
		Height: roi,
	}
}

// IsFull reports whether r covers the whole image.
func (r RatioRect) IsFull() bool {
	return r.StartX <= 0 && r.StartY <= 0 && r.Width >= 1 && r.Height >= 1
}

// Pixels maps the ratio rectangle onto a width x height image.
func (r RatioRect) Pixels(width, height int) image.Rectangle {
	x0 := int(math.Floor(float64(width) * r.StartX))
	y0 := int(math.Floor(float64(height) * r.StartY))
	return image.Rect(x0, y0, x0+int(float64(width)*r.Width), y0+int(float64(height)*r.Height)).
		Intersect(image.Rect(0, 0, width, height))
}

// DetectorParams contains all parameters for star detection.
type DetectorParams struct {
	// SNRMin is the exclusive lower SNR bound for accepted stars.
	SNRMin float64
	// MaxStars stops the detection retries once reached.
	MaxStars int
	// MaxRetries is the number of extra passes at lower detection levels.
	MaxRetries int
	// BoxRadius is the initial half-size of the photometry box (<= 50).
	BoxRadius int
	MinHFD    float64
	MaxHFD    float64
	// Region limits the raster scan for new candidates.
	Region RatioRect
}

// DefaultDetectorParams returns the detector defaults.
func DefaultDetectorParams() *DetectorParams {
	return &DetectorParams{
		SNRMin:     20,
		MaxStars:   500,
		MaxRetries: 2,
		BoxRadius:  14,
		MinHFD:     0.8,
		MaxHFD:     30,
		Region:     RatioRectFull,
	}
}

// Validate checks the parameters for values AnalyseStar cannot honour.
func (p *DetectorParams) Validate() error {
	if p.BoxRadius < 1 || p.BoxRadius > MaxBoxRadius {
		return fmt.Errorf("box radius %d: %w", p.BoxRadius, ErrInvalidRadius)
	}
	if p.MaxStars <= 0 {
		return fmt.Errorf("max stars must be positive, got %d", p.MaxStars)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", p.MaxRetries)
	}
	if p.MinHFD < 0 || p.MaxHFD <= p.MinHFD {
		return fmt.Errorf("invalid HFD window (%f, %f]", p.MinHFD, p.MaxHFD)
	}
	return nil
}

// Star is one detected star. Coordinates are 0-based pixel positions.
type Star struct {
	HFD  float64
	FWHM float64
	SNR  float64
	Flux float64
	X    float64
	Y    float64
	// Background is the local annulus median the star was measured against.
	Background float64
	// PSF is set by FitPSF when requested.
	PSF *PSFModel
}

func (s Star) String() string {
	return fmt.Sprintf("{Center=(%f,%f), HFD=%f, FWHM=%f, SNR=%f, Flux=%f}", s.X, s.Y, s.HFD, s.FWHM, s.SNR, s.Flux)
}

// RejectReason tags why AnalyseStar did not produce a star.
type RejectReason int

const (
	RejectOutOfBounds RejectReason = iota
	RejectTooFaint
	RejectHotPixel
	RejectNotBoxed
	RejectCentroidOutOfBounds
	RejectOversized
	RejectSparse
	numRejectReasons
)

func (r RejectReason) String() string {
	switch r {
	case RejectOutOfBounds:
		return "out of bounds"
	case RejectTooFaint:
		return "too faint"
	case RejectHotPixel:
		return "hot pixel"
	case RejectNotBoxed:
		return "not boxed"
	case RejectCentroidOutOfBounds:
		return "centroid out of bounds"
	case RejectOversized:
		return "oversized"
	case RejectSparse:
		return "sparse"
	default:
		return "unknown"
	}
}

// NotFoundError reports a non-detection. It is an expected outcome.
type NotFoundError struct {
	Reason RejectReason
}

func (e *NotFoundError) Error() string {
	return "no star found: " + e.Reason.String()
}

var notFoundErrors = func() [numRejectReasons]*NotFoundError {
	var errs [numRejectReasons]*NotFoundError
	for i := range errs {
		errs[i] = &NotFoundError{Reason: RejectReason(i)}
	}
	return errs
}()

func notFound(r RejectReason) error { return notFoundErrors[r] }

// IsNotFound reports whether err is a non-detection and returns its reason.
func IsNotFound(err error) (RejectReason, bool) {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Reason, true
	}
	return 0, false
}

// DetectorMetrics tracks detection filtering statistics for the last pass.
type DetectorMetrics struct {
	Candidates  int
	Rejected    [numRejectReasons]int
	RejectedHFD int
	RejectedSNR int
}

func (m *DetectorMetrics) String() string {
	s := fmt.Sprintf("{Candidates=%d, HFD=%d, SNR=%d", m.Candidates, m.RejectedHFD, m.RejectedSNR)
	for r, n := range m.Rejected {
		if n > 0 {
			s += fmt.Sprintf(", %s=%d", RejectReason(r), n)
		}
	}
	return s + "}"
}

// DetectorResult is the output of FindStars.
type DetectorResult struct {
	Stars          []Star
	Background     BackgroundStats
	DetectionLevel float64
	Passes         int
	Metrics        *DetectorMetrics
}

// PSFModel contains the result of PSF fitting.
type PSFModel struct {
	OffsetX      float64
	OffsetY      float64
	Peak         float64
	Background   float64
	SigmaX       float64
	SigmaY       float64
	FWHMx        float64
	FWHMy        float64
	ThetaRadians float64
	FWHMPixels   float64
	Eccentricity float64
	RSquared     float64
}

func newPSFModel(offsetX, offsetY, peak, background, sigmaX, sigmaY, theta, rSquared float64) *PSFModel {
	fwhmX := sigmaX * sigmaToFWHM
	fwhmY := sigmaY * sigmaToFWHM
	a := math.Max(fwhmX, fwhmY)
	b := math.Min(fwhmX, fwhmY)
	return &PSFModel{
		OffsetX:      offsetX,
		OffsetY:      offsetY,
		Peak:         peak,
		Background:   background,
		SigmaX:       sigmaX,
		SigmaY:       sigmaY,
		FWHMx:        fwhmX,
		FWHMy:        fwhmY,
		ThetaRadians: theta,
		FWHMPixels:   math.Sqrt(fwhmX * fwhmY),
		Eccentricity: math.Sqrt(1 - b*b/(a*a)),
		RSquared:     rSquared,
	}
}

func (p *PSFModel) String() string {
	return fmt.Sprintf("{OffsetX=%f, OffsetY=%f, Peak=%f, Background=%f, SigmaX=%f, SigmaY=%f, FWHMx=%f, FWHMy=%f, FWHMPixels=%f, Eccentricity=%f, RSquared=%f}",
		p.OffsetX, p.OffsetY, p.Peak, p.Background, p.SigmaX, p.SigmaY, p.FWHMx, p.FWHMy, p.FWHMPixels, p.Eccentricity, p.RSquared)
}

// ZonePosition identifies a zone in the 3x3 field grid.
type ZonePosition int

const (
	ZoneTopLeft ZonePosition = iota
	ZoneTop
	ZoneTopRight
	ZoneLeft
	ZoneCenter
	ZoneRight
	ZoneBottomLeft
	ZoneBottom
	ZoneBottomRight
)

// ZoneData holds per-zone statistics.
type ZoneData struct {
	Label      string
	MedianHFD  float64
	MedianFWHM float64
	StarCount  int
}

// FieldAnalysis holds the result of 3x3 field tilt analysis.
type FieldAnalysis struct {
	Zones       map[ZonePosition]ZoneData
	TiltPct     float64
	OffAxisPct  float64
	BestCorner  string
	WorstCorner string
	Reliable    bool
}

// SampleKind is the size metric collected during a focus sweep.
type SampleKind int

const (
	SampleHFD SampleKind = iota
	SampleFWHM
)

func (k SampleKind) String() string {
	switch k {
	case SampleHFD:
		return "HFD"
	case SampleFWHM:
		return "FWHM"
	default:
		return "Unknown"
	}
}

// ParseSampleKind parses "hfd" or "fwhm", ignoring case.
func ParseSampleKind(s string) (SampleKind, error) {
	switch strings.ToLower(s) {
	case "hfd":
		return SampleHFD, nil
	case "fwhm":
		return SampleFWHM, nil
	}
	return 0, fmt.Errorf("unknown sample kind %q", s)
}

// AggregationMethod reduces the samples taken at one focus position.
type AggregationMethod int

const (
	AggregateMedian AggregationMethod = iota
	AggregateBest
	AggregateAverage
)

func (m AggregationMethod) String() string {
	switch m {
	case AggregateMedian:
		return "Median"
	case AggregateBest:
		return "Best"
	case AggregateAverage:
		return "Average"
	default:
		return "Unknown"
	}
}

// ParseAggregationMethod parses "median", "best" or "average".
func ParseAggregationMethod(s string) (AggregationMethod, error) {
	switch strings.ToLower(s) {
	case "median":
		return AggregateMedian, nil
	case "best":
		return AggregateBest, nil
	case "average", "mean":
		return AggregateAverage, nil
	}
	return 0, fmt.Errorf("unknown aggregation method %q", s)
}

// FocusPoint is one aggregated (position, metric) pair.
type FocusPoint struct {
	Position int
	Value    float64
}

// FocusSolution is the fitted hyperbola y = a*cosh(asinh((p-x)/b)).
type FocusSolution struct {
	P          float64
	A          float64
	B          float64
	Error      float64
	Iterations int
}

func (s FocusSolution) String() string {
	return fmt.Sprintf("{P=%f, A=%f, B=%f, Error=%g, Iterations=%d}", s.P, s.A, s.B, s.Error, s.Iterations)
}

// FocusFit is a solution together with the sampled position span.
type FocusFit struct {
	Solution    FocusSolution
	MinPosition int
	MaxPosition int
}
