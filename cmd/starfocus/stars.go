package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	sf "starfocus/pkg/starfocus"
)

var zoneOrder = []sf.ZonePosition{
	sf.ZoneTopLeft, sf.ZoneTop, sf.ZoneTopRight,
	sf.ZoneLeft, sf.ZoneCenter, sf.ZoneRight,
	sf.ZoneBottomLeft, sf.ZoneBottom, sf.ZoneBottomRight,
}

func newStarsCmd(a *app) *cobra.Command {
	var (
		debayer bool
		fitPSF  bool
		field   bool
	)
	cmd := &cobra.Command{
		Use:   "stars <image>",
		Short: "Detect stars and report HFD, FWHM and field tilt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("debayer") {
				a.cfg.Detector.Debayer = debayer
			}
			if cmd.Flags().Changed("psf") {
				a.cfg.Detector.FitPSF = fitPSF
			}
			if cmd.Flags().Changed("field") {
				a.cfg.Output.FieldOverlay = field
			}
			return runStars(cmd, a, args[0])
		},
	}
	cmd.Flags().BoolVar(&debayer, "debayer", false, "debayer one-shot-colour data (RGGB unless BAYERPAT says otherwise)")
	cmd.Flags().BoolVar(&fitPSF, "psf", false, "refine each star with a Gaussian PSF fit")
	cmd.Flags().BoolVar(&field, "field", false, "write the 3x3 field overlay JPEG")
	return cmd
}

func runStars(cmd *cobra.Command, a *app, path string) error {
	out := cmd.OutOrStdout()
	a.log.Info("loading image", "file", path)

	start := time.Now()
	img, _, err := loadImage(path, a.cfg.Detector.Debayer)
	if err != nil {
		return err
	}
	result, err := sf.FindStars(cmd.Context(), img, a.cfg.DetectorParams())
	if err != nil {
		return fmt.Errorf("detecting stars: %w", err)
	}
	stars := result.Stars
	a.log.Debug("detection finished", "passes", result.Passes, "level", result.DetectionLevel,
		"metrics", result.Metrics.String())

	if a.cfg.Detector.FitPSF {
		fitStarPSFs(img, stars)
	}
	elapsed := time.Since(start)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "=== Star Detection Results (%.1fs) ===\n", elapsed.Seconds())
	fmt.Fprintf(out, "  Image size:      %d x %d\n", img.Width, img.Height)
	fmt.Fprintf(out, "  Background:      %s\n", result.Background)
	fmt.Fprintf(out, "  Stars detected:  %d (passes %d, level %.1f)\n", len(stars), result.Passes, result.DetectionLevel)
	printStarStats(out, stars)
	fmt.Fprintln(out, "==============================")

	if fa := sf.AnalyzeField(stars, img.Width, img.Height); fa != nil {
		printField(out, fa)
		if a.cfg.Output.FieldOverlay {
			name := overlayName(a.cfg.Output.Dir, path, "field")
			if err := sf.RenderFieldOverlay(fa, img.Width, img.Height, name); err != nil {
				return err
			}
			a.log.Info("field overlay written", "file", name)
		}
	}

	if a.cfg.Output.StarOverlay {
		name := overlayName(a.cfg.Output.Dir, path, "stars")
		err := createFile(name, func(w io.Writer) error {
			return sf.RenderStarOverlay(w, img, stars)
		})
		if err != nil {
			return fmt.Errorf("write overlay file: %w", err)
		}
		a.log.Info("star overlay written", "file", name)
	}
	return nil
}

// fitStarPSFs refines every star in parallel; stars whose fit fails keep a nil PSF.
func fitStarPSFs(img *sf.Image, stars []sf.Star) {
	var wg sync.WaitGroup
	for i := range stars {
		wg.Add(1)
		go func(s *sf.Star) {
			defer wg.Done()
			if psf, ok := sf.FitPSF(img, *s, sf.DefaultPSFMinRSquared); ok {
				s.PSF = psf
			}
		}(&stars[i])
	}
	wg.Wait()
}

func printStarStats(out io.Writer, stars []sf.Star) {
	if len(stars) == 0 {
		return
	}
	hfd := make([]float64, len(stars))
	fwhm := make([]float64, len(stars))
	snr := make([]float64, len(stars))
	var psfFWHM, ecc []float64
	for i, s := range stars {
		hfd[i], fwhm[i], snr[i] = s.HFD, s.FWHM, s.SNR
		if s.PSF != nil {
			psfFWHM = append(psfFWHM, s.PSF.FWHMPixels)
			ecc = append(ecc, s.PSF.Eccentricity)
		}
	}
	hfdMedian, hfdMAD := sf.MedianMAD(hfd)
	fwhmMedian, fwhmMAD := sf.MedianMAD(fwhm)
	fmt.Fprintf(out, "  HFD (median):    %.3f +/- %.3f px\n", hfdMedian, hfdMAD)
	fmt.Fprintf(out, "  FWHM (median):   %.3f +/- %.3f px\n", fwhmMedian, fwhmMAD)
	fmt.Fprintf(out, "  SNR (mean):      %.1f +/- %.1f\n", stat.Mean(snr, nil), stat.StdDev(snr, nil))
	if len(psfFWHM) > 0 {
		psfMedian, psfMAD := sf.MedianMAD(psfFWHM)
		eccMedian, eccMAD := sf.MedianMAD(ecc)
		fmt.Fprintf(out, "  Stars with PSF:  %d\n", len(psfFWHM))
		fmt.Fprintf(out, "  PSF FWHM:        %.3f +/- %.3f px\n", psfMedian, psfMAD)
		fmt.Fprintf(out, "  Eccentricity:    %.3f +/- %.3f\n", eccMedian, eccMAD)
	}
}

func printField(out io.Writer, field *sf.FieldAnalysis) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Field Analysis (3x3) ===")
	for i, pos := range zoneOrder {
		z := field.Zones[pos]
		fmt.Fprintf(out, "  %-8s HFD=%.3f  FWHM=%.3f  n=%d\n", z.Label, z.MedianHFD, z.MedianFWHM, z.StarCount)
		if (i+1)%3 == 0 && i < 8 {
			fmt.Fprintln(out, "  ---")
		}
	}
	fmt.Fprintf(out, "\n  Tilt:     %.1f%% (best: %s, worst: %s)\n", field.TiltPct, field.BestCorner, field.WorstCorner)
	fmt.Fprintf(out, "  Off-axis: %.1f%%\n", field.OffAxisPct)
	if !field.Reliable {
		fmt.Fprintln(out, "  [LOW STAR COUNT - UNRELIABLE]")
	}
	fmt.Fprintln(out, "==============================")
}

// overlayName builds "<dir>/<input base>_<suffix>.jpg".
func overlayName(dir, input, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, base+"_"+suffix+".jpg")
}

// createFile creates path and hands it to write.
func createFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return writeAndClose(f, write)
}

// writeAndClose runs write against w and closes it, keeping the first error.
func writeAndClose(w io.WriteCloser, write func(io.Writer) error) error {
	err := write(w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}
