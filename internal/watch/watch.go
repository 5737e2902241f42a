package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	sf "starfocus/pkg/starfocus"
)

// DefaultSettle is how long a file must stay unchanged before it is measured.
const DefaultSettle = 500 * time.Millisecond

// Measurement is the focus sample taken from one exposure.
type Measurement struct {
	Path     string
	Position int
	Value    float64
	Stars    int
	// Fit is the V-curve fitted over all samples so far, if one exists.
	Fit *sf.FocusFit
}

// Measurer turns an exposure file into a focus sample.
type Measurer struct {
	Params  *sf.DetectorParams
	Kind    sf.SampleKind
	Debayer bool
}

var trailingNumber = regexp.MustCompile(`(\d+)\D*$`)

// PositionFromName extracts the last number in a file's base name, as in
// "focus_12840.fits".
func PositionFromName(path string) (int, bool) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m := trailingNumber.FindStringSubmatch(base)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

// Measure reads a FITS exposure, detects stars and reduces them to one
// metric sample. The focuser position comes from the FOCUSPOS/FOCPOS
// header, falling back to the file name.
func (m *Measurer) Measure(ctx context.Context, path string) (Measurement, error) {
	fits, err := sf.ReadFits(path)
	if err != nil {
		return Measurement{}, err
	}
	position, ok := fits.Metadata.FocusPosition()
	if !ok {
		if position, ok = PositionFromName(path); !ok {
			return Measurement{}, fmt.Errorf("%s: no focuser position in header or file name", path)
		}
	}
	img, err := fits.Image()
	if err != nil {
		return Measurement{}, err
	}
	if m.Debayer {
		if img, err = sf.DebayerImage(img, fits.Metadata.BayerPattern()); err != nil {
			return Measurement{}, err
		}
	}
	result, err := sf.FindStars(ctx, img, m.Params)
	if err != nil {
		return Measurement{}, fmt.Errorf("%s: detecting stars: %w", path, err)
	}
	value, ok := sf.MeasureFocusMetric(result.Stars, m.Kind)
	if !ok {
		return Measurement{}, fmt.Errorf("%s: no stars detected", path)
	}
	return Measurement{Path: path, Position: position, Value: value, Stars: len(result.Stars)}, nil
}

// IsExposure reports whether path names a FITS file.
func IsExposure(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		return true
	default:
		return false
	}
}

// Watcher measures exposures as they appear in a directory and feeds the
// samples into a FocusMetricSampleMap.
type Watcher struct {
	Results chan Measurement

	dir     string
	samples *sf.FocusMetricSampleMap
	log     *slog.Logger
	settle  time.Duration
	measure func(ctx context.Context, path string) (Measurement, error)
}

// New creates a watcher for dir. Results is buffered; measurements are
// dropped with a warning when nobody drains it.
func New(dir string, m *Measurer, samples *sf.FocusMetricSampleMap, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		Results: make(chan Measurement, 100),
		dir:     dir,
		samples: samples,
		log:     log,
		settle:  DefaultSettle,
		measure: m.Measure,
	}
}

// SetSettle changes the quiet period before a file is measured.
func (w *Watcher) SetSettle(d time.Duration) { w.settle = d }

// Run watches until ctx is cancelled. Results is closed on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.Results)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.log.Info("watching directory", "dir", w.dir)

	// Capture software writes files in chunks; measure only once they settle.
	pending := make(map[string]time.Time)
	tick := time.NewTicker(max(w.settle/4, 10*time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if IsExposure(event.Name) {
				pending[event.Name] = time.Now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)
		case now := <-tick.C:
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				w.process(ctx, path)
			}
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	m, err := w.measure(ctx, path)
	if err != nil {
		w.log.Warn("exposure skipped", "file", path, "error", err)
		return
	}
	if fit, ok := w.samples.SampleAt(m.Position, m.Value); ok {
		m.Fit = &fit
		w.log.Info("focus fit updated", "focus", fit.Solution.P, "error", fit.Solution.Error,
			"positions", len(w.samples.Positions()))
	}
	w.log.Info("exposure measured", "file", path, "position", m.Position,
		"metric", w.samples.Kind(), "value", m.Value, "stars", m.Stars)

	select {
	case w.Results <- m:
	default:
		w.log.Warn("result buffer full, dropping measurement", "file", path)
	}
}
