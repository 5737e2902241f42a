package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"starfocus/internal/config"
	"starfocus/internal/logging"
	sf "starfocus/pkg/starfocus"
)

// Version is set at build time.
var Version = "dev"

// app carries state shared by the subcommands once the root has loaded it.
type app struct {
	cfgFile   string
	logLevel  string
	logFormat string
	cfg       *config.Config
	log       *slog.Logger
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	root := newRootCmd(&app{})
	root.SetArgs(args)
	return root.Execute()
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "starfocus",
		Short: "Star detection and V-curve autofocus analysis",
		Long: `starfocus measures star sizes (HFD/FWHM) in exposures and fits the
autofocus V-curve over a focus sweep to find the best focuser position.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if a.logLevel != "" {
				cfg.Logging.Level = a.logLevel
			}
			if a.logFormat != "" {
				cfg.Logging.Format = a.logFormat
			}
			a.cfg = cfg
			a.log = logging.Setup(cfg)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (.toml, .yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	rootCmd.AddCommand(newStarsCmd(a))
	rootCmd.AddCommand(newFocusCmd(a))
	rootCmd.AddCommand(newWatchCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "starfocus %s\n", Version)
		},
	}
}

// isFits reports whether path has a FITS extension.
func isFits(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		return true
	}
	return false
}

// loadImage reads a FITS file or, through the build's image backend, any
// other raster format. The FITS metadata is nil for non-FITS input.
func loadImage(path string, debayer bool) (*sf.Image, *sf.FitsMetadata, error) {
	if !isFits(path) {
		img, err := loadNonFitsImage(path)
		return img, nil, err
	}
	fits, err := sf.ReadFits(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading FITS: %w", err)
	}
	img, err := fits.Image()
	if err != nil {
		return nil, nil, err
	}
	if debayer {
		if img, err = sf.DebayerImage(img, fits.Metadata.BayerPattern()); err != nil {
			return nil, nil, err
		}
	}
	return img, fits.Metadata, nil
}
