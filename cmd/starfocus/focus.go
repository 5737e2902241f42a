package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"starfocus/internal/watch"
	sf "starfocus/pkg/starfocus"
)

func newFocusCmd(a *app) *cobra.Command {
	var (
		metric      string
		aggregation string
		workers     int
		plotPath    string
	)
	cmd := &cobra.Command{
		Use:   "focus <exposure.fits>...",
		Short: "Fit the V-curve over a focus sweep",
		Long: `Measure every exposure of a focus sweep and fit the hyperbola through the
aggregated samples. The focuser position of each exposure is read from the
FOCUSPOS/FOCPOS header or, failing that, from the last number in its name.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if metric != "" {
				a.cfg.Autofocus.Metric = metric
			}
			if aggregation != "" {
				a.cfg.Autofocus.Aggregation = aggregation
			}
			if workers > 0 {
				a.cfg.Autofocus.Workers = workers
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return runFocus(cmd, a, args, plotPath)
		},
	}
	cmd.Flags().StringVar(&metric, "metric", "", "focus metric: hfd or fwhm")
	cmd.Flags().StringVar(&aggregation, "aggregation", "", "per-position aggregation: median, best or average")
	cmd.Flags().IntVarP(&workers, "workers", "j", 0, "exposures measured concurrently")
	cmd.Flags().StringVar(&plotPath, "plot", "", "write the V-curve PNG to this file")
	return cmd
}

func runFocus(cmd *cobra.Command, a *app, paths []string, plotPath string) error {
	kind, _ := a.cfg.SampleKind()
	method, _ := a.cfg.Aggregation()
	log := a.log.With("run", uuid.NewString())
	log.Info("autofocus run started", "exposures", len(paths), "metric", kind, "aggregation", method)

	samples := sf.NewFocusMetricSampleMap(kind).WithFitParams(a.cfg.FitParams())
	measurer := &watch.Measurer{Params: a.cfg.DetectorParams(), Kind: kind, Debayer: a.cfg.Detector.Debayer}
	if err := measureAll(cmd.Context(), log, a.cfg.Autofocus.Workers, measurer, samples, paths); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	points, _ := samples.Points(method)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "=== Focus Sweep (%s, %s) ===\n", kind, method)
	for _, p := range points {
		fmt.Fprintf(out, "  %8d  %7.3f  n=%d\n", p.Position, p.Value, samples.Count(p.Position))
	}

	fit, ok := samples.TryBestFocusSolution(method)
	if !ok {
		fmt.Fprintln(out, "  no solution: fewer than three positions with samples")
		return errors.New("autofocus failed")
	}
	s := fit.Solution
	fmt.Fprintf(out, "\n  Best focus:  %.0f\n", s.P)
	fmt.Fprintf(out, "  Min %s:     %.3f\n", kind, s.A)
	fmt.Fprintf(out, "  Curve b:     %.3f\n", s.B)
	fmt.Fprintf(out, "  Fit error:   %.5f (%d iterations)\n", s.Error, s.Iterations)
	if s.P < float64(fit.MinPosition) || s.P > float64(fit.MaxPosition) {
		fmt.Fprintln(out, "  [FOCUS OUTSIDE SAMPLED RANGE]")
	}
	fmt.Fprintln(out, "==============================")
	log.Info("autofocus run finished", "focus", s.P, "error", s.Error)

	if plotPath == "" && a.cfg.Output.CurvePlot {
		plotPath = filepath.Join(a.cfg.Output.Dir, "vcurve.png")
	}
	if plotPath != "" {
		err := createFile(plotPath, func(w io.Writer) error {
			return sf.RenderFocusCurve(w, points, &fit, kind)
		})
		if err != nil {
			return fmt.Errorf("write plot file: %w", err)
		}
		log.Info("focus curve written", "file", plotPath)
	}
	return nil
}

// measureAll measures the exposures on a bounded worker pool. Samples go
// into the map concurrently; a failed exposure is logged and skipped.
func measureAll(ctx context.Context, log *slog.Logger, workers int, m *watch.Measurer, samples *sf.FocusMetricSampleMap, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				res, err := m.Measure(ctx, path)
				if err != nil {
					log.Warn("exposure skipped", "file", path, "error", err)
					continue
				}
				samples.SampleAt(res.Position, res.Value)
				log.Info("exposure measured", "file", path, "position", res.Position,
					"value", res.Value, "stars", res.Stars)
			}
		}()
	}

	var err error
feed:
	for _, p := range paths {
		select {
		case jobs <- p:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return err
}
