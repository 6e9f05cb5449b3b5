package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/five82/rpcheck/internal/collector"
	"github.com/five82/rpcheck/internal/config"
	"github.com/five82/rpcheck/internal/metric"
	"github.com/five82/rpcheck/internal/reporter"
	"github.com/five82/rpcheck/internal/result"
	"github.com/five82/rpcheck/internal/util"
)

type showArgs struct {
	threshold  float64
	frameRate  float64
	worst      int
	all        bool
	jsonOutput bool
}

func newShowCmd(cfgFile *string) *cobra.Command {
	var sa showArgs

	cmd := &cobra.Command{
		Use:   "show <results.rpc>",
		Short: "Summarize a results file from an earlier check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("frame-rate") {
				cfg.FrameRate = sa.frameRate
			}
			if cfg.FrameRate <= 0 {
				return fmt.Errorf("%w: got %g", config.ErrInvalidFrameRate, cfg.FrameRate)
			}

			results, err := result.Load(args[0])
			if err != nil {
				return err
			}

			var rep reporter.Reporter
			if sa.jsonOutput {
				rep = reporter.NewJSONReporterWithWriter(cmd.OutOrStdout())
			} else {
				rep = reporter.NewTerminalReporterWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr(), false)
			}
			showResults(cmd.OutOrStdout(), rep, results, sa, cfg.FrameRate)
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64VarP(&sa.threshold, "threshold", "t", 0, "Threshold to judge samples against (default: backend default)")
	f.Float64Var(&sa.frameRate, "frame-rate", 0, "Frame rate for timecodes. Default: 23.976")
	f.IntVar(&sa.worst, "worst", collector.DefaultWorstFrames, "Number of worst frames to list per job")
	f.BoolVar(&sa.all, "all", false, "List every sample, worst first")
	f.BoolVar(&sa.jsonOutput, "json", false, "Emit newline-delimited JSON events")

	return cmd
}

func showResults(w io.Writer, rep reporter.Reporter, results []*result.Result, sa showArgs, frameRate float64) {
	summary := reporter.BatchSummary{TotalJobs: len(results)}

	for _, r := range results {
		backend, err := metric.Lookup(r.Backend)
		if err != nil {
			rep.Warning(fmt.Sprintf("%s: %v", filepath.Base(r.Job.Secondary), err))
			summary.FailedCount++
			continue
		}
		threshold := sa.threshold
		if threshold == 0 {
			threshold = backend.DefaultThreshold
		}

		s := collector.Summarize(r, backend, threshold, frameRate, sa.worst, 0)
		rep.JobComplete(s)

		if sa.all && !sa.jsonOutput {
			for _, sample := range r.Samples {
				fmt.Fprintf(w, "  %6d  %s  %s\n", sample.Frame,
					util.FrameToTimecode(sample.Frame, frameRate), util.FormatMetric(sample.Value))
			}
		}

		switch r.Outcome {
		case result.OutcomeAborted:
			summary.AbortedCount++
		case result.OutcomeCompleted:
			summary.CompletedCount++
		default:
			summary.FailedCount++
		}
		if s.Passed() {
			summary.PassedCount++
		}
		summary.JobResults = append(summary.JobResults, reporter.JobResult{
			Name:       filepath.Base(r.Job.Secondary),
			Passed:     s.Passed(),
			BelowCount: s.BelowCount,
			Min:        s.Min,
		})
	}

	rep.BatchComplete(summary)
}
