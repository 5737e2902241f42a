package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	sf "starfocus/pkg/starfocus"
)

// Config is the starfocus configuration file.
type Config struct {
	Detector  DetectorConfig  `toml:"detector" yaml:"detector"`
	Autofocus AutofocusConfig `toml:"autofocus" yaml:"autofocus"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Output    OutputConfig    `toml:"output" yaml:"output"`
}

// DetectorConfig mirrors sf.DetectorParams. Region is a centered ROI ratio.
type DetectorConfig struct {
	SNRMin     float64 `toml:"snr_min" yaml:"snr_min"`
	MaxStars   int     `toml:"max_stars" yaml:"max_stars"`
	MaxRetries int     `toml:"max_retries" yaml:"max_retries"`
	BoxRadius  int     `toml:"box_radius" yaml:"box_radius"`
	MinHFD     float64 `toml:"min_hfd" yaml:"min_hfd"`
	MaxHFD     float64 `toml:"max_hfd" yaml:"max_hfd"`
	ROI        float64 `toml:"roi" yaml:"roi"`
	Debayer    bool    `toml:"debayer" yaml:"debayer"`
	FitPSF     bool    `toml:"fit_psf" yaml:"fit_psf"`
}

// AutofocusConfig controls sample aggregation and the hyperbola fit.
type AutofocusConfig struct {
	Metric        string  `toml:"metric" yaml:"metric"`
	Aggregation   string  `toml:"aggregation" yaml:"aggregation"`
	Threshold     float64 `toml:"threshold" yaml:"threshold"`
	MaxIterations int     `toml:"max_iterations" yaml:"max_iterations"`
	Workers       int     `toml:"workers" yaml:"workers"`
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// OutputConfig names the optional diagnostic artefacts.
type OutputConfig struct {
	Dir          string `toml:"dir" yaml:"dir"`
	StarOverlay  bool   `toml:"star_overlay" yaml:"star_overlay"`
	FieldOverlay bool   `toml:"field_overlay" yaml:"field_overlay"`
	CurvePlot    bool   `toml:"curve_plot" yaml:"curve_plot"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dp := sf.DefaultDetectorParams()
	return &Config{
		Detector: DetectorConfig{
			SNRMin:     dp.SNRMin,
			MaxStars:   dp.MaxStars,
			MaxRetries: dp.MaxRetries,
			BoxRadius:  dp.BoxRadius,
			MinHFD:     dp.MinHFD,
			MaxHFD:     dp.MaxHFD,
			ROI:        1,
		},
		Autofocus: AutofocusConfig{
			Metric:        "hfd",
			Aggregation:   "median",
			Threshold:     sf.DefaultFitThreshold,
			MaxIterations: sf.DefaultFitMaxIterations,
			Workers:       4,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Output:  OutputConfig{Dir: "."},
	}
}

// Load reads a TOML or YAML file, chosen by extension, over Default.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Keys absent from the file keep their default values.
	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the engine cannot accept.
func (c *Config) Validate() error {
	if err := c.DetectorParams().Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if c.Detector.ROI <= 0 || c.Detector.ROI > 1 {
		return fmt.Errorf("detector: roi must be in (0, 1], got %f", c.Detector.ROI)
	}
	if _, err := c.SampleKind(); err != nil {
		return fmt.Errorf("autofocus: %w", err)
	}
	if _, err := c.Aggregation(); err != nil {
		return fmt.Errorf("autofocus: %w", err)
	}
	if c.Autofocus.Threshold <= 0 {
		return fmt.Errorf("autofocus: threshold must be positive, got %g", c.Autofocus.Threshold)
	}
	if c.Autofocus.MaxIterations < 1 {
		return fmt.Errorf("autofocus: max_iterations must be positive, got %d", c.Autofocus.MaxIterations)
	}
	if c.Autofocus.Workers < 1 {
		return fmt.Errorf("autofocus: workers must be positive, got %d", c.Autofocus.Workers)
	}
	return nil
}

// DetectorParams converts the detector section.
func (c *Config) DetectorParams() *sf.DetectorParams {
	region := sf.RatioRectFull
	if c.Detector.ROI > 0 && c.Detector.ROI < 1 {
		region = sf.RatioRectFromCenterROI(c.Detector.ROI)
	}
	return &sf.DetectorParams{
		SNRMin:     c.Detector.SNRMin,
		MaxStars:   c.Detector.MaxStars,
		MaxRetries: c.Detector.MaxRetries,
		BoxRadius:  c.Detector.BoxRadius,
		MinHFD:     c.Detector.MinHFD,
		MaxHFD:     c.Detector.MaxHFD,
		Region:     region,
	}
}

// FitParams converts the fitter settings.
func (c *Config) FitParams() sf.FitParams {
	return sf.FitParams{Threshold: c.Autofocus.Threshold, MaxIterations: c.Autofocus.MaxIterations}
}

func (c *Config) SampleKind() (sf.SampleKind, error) {
	return sf.ParseSampleKind(c.Autofocus.Metric)
}

func (c *Config) Aggregation() (sf.AggregationMethod, error) {
	return sf.ParseAggregationMethod(c.Autofocus.Aggregation)
}

// Save writes c as TOML or YAML, chosen by the extension of path.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return c.writeTo(f, filepath.Ext(path))
}

// writeTo encodes c and closes w. A failed close is reported like a failed
// write.
func (c *Config) writeTo(w io.WriteCloser, ext string) (err error) {
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing config: %w", cerr)
		}
	}()

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return enc.Close()
	default:
		if err := toml.NewEncoder(w).Encode(c); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return nil
	}
}
