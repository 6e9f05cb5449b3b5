// Package main provides the CLI entry point for rpcheck.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName    = "rpcheck"
	appVersion = "0.1.0"
)

// errChecksFailed is returned when every job ran but some did not pass.
var errChecksFailed = errors.New("one or more comparisons did not pass")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errChecksFailed) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   appName,
		Short: "Per-frame video quality checks with VapourSynth or FFmpeg",
		Long: `Compare a source clip against its encode frame by frame.

PSNR is measured through vspipe and a generated VapourSynth script (vs-psnr),
or with the FFmpeg psnr or ssim filters (ff-psnr, ff-ssim). The worst frames
are reported with timecodes and all samples are saved to a results file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./rpcheck.yaml)")

	root.AddCommand(
		newCheckCmd(&cfgFile),
		newShowCmd(&cfgFile),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, appVersion)
		},
	}
}
