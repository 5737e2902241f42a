package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"starfocus/internal/watch"
	sf "starfocus/pkg/starfocus"
)

func newWatchCmd(a *app) *cobra.Command {
	var settle time.Duration
	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Measure exposures as they are written and refit the V-curve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := a.cfg.SampleKind()
			log := a.log.With("run", uuid.NewString())
			samples := sf.NewFocusMetricSampleMap(kind).WithFitParams(a.cfg.FitParams())
			measurer := &watch.Measurer{Params: a.cfg.DetectorParams(), Kind: kind, Debayer: a.cfg.Detector.Debayer}

			w := watch.New(args[0], measurer, samples, log)
			w.SetSettle(settle)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() { errc <- w.Run(ctx) }()

			out := cmd.OutOrStdout()
			for m := range w.Results {
				fmt.Fprintf(out, "%8d  %7.3f  %s\n", m.Position, m.Value, m.Path)
				if m.Fit != nil {
					fmt.Fprintf(out, "          focus %.0f (error %.5f)\n", m.Fit.Solution.P, m.Fit.Solution.Error)
				}
			}
			return <-errc
		},
	}
	cmd.Flags().DurationVar(&settle, "settle", watch.DefaultSettle, "quiet period before a new file is measured")
	return cmd
}
