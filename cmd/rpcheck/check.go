package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/five82/rpcheck/internal/collector"
	"github.com/five82/rpcheck/internal/config"
	"github.com/five82/rpcheck/internal/discovery"
	"github.com/five82/rpcheck/internal/logging"
	"github.com/five82/rpcheck/internal/metric"
	"github.com/five82/rpcheck/internal/reporter"
	"github.com/five82/rpcheck/internal/util"
)

// checkArgs holds the parsed flags for the check command.
type checkArgs struct {
	backend          string
	threshold        float64
	ffmpegPath       string
	ffmpegArgs       []string
	vspipePath       string
	ffprobePath      string
	probeFrameRate   bool
	template         string
	keepIntermediate bool
	frameRate        float64
	outputDir        string
	logDir           string
	noLog            bool
	verbose          bool
	jsonOutput       bool
	worstFrames      int
}

func newCheckCmd(cfgFile *string) *cobra.Command {
	var ca checkArgs

	cmd := &cobra.Command{
		Use:   "check <primary> <secondary>",
		Short: "Compare a source clip (or directory) against its encode",
		Long: `Runs the selected backend on each primary/secondary pair and reports
progress, the lowest-scoring frames, and a pass/fail verdict against the
threshold. Two directories are paired by file name.

Exit status is 0 when every comparison passed, 2 when a comparison fell
below the threshold or failed, and 1 on any other error.`,
		Example: `  # FFmpeg PSNR with the default 30 dB threshold
  rpcheck check source.mkv encode.mkv

  # SSIM over two directories of clips
  rpcheck check --backend ff-ssim --threshold 0.97 sources/ encodes/

  # VapourSynth PSNR, keeping the generated script and index
  rpcheck check --backend vs-psnr --keep-intermediate source.mkv encode.mkv`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			if err := applyCheckFlags(cmd, &ca, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return executeCheck(cfg, ca.worstFrames, args[0], args[1])
		},
	}

	bindCheckFlags(cmd, &ca)
	return cmd
}

func bindCheckFlags(cmd *cobra.Command, ca *checkArgs) {
	f := cmd.Flags()
	f.StringVarP(&ca.backend, "backend", "b", "", "Backend: vs-psnr, ff-psnr or ff-ssim. Default: "+string(config.DefaultBackend))
	f.Float64VarP(&ca.threshold, "threshold", "t", 0, "Frames scoring below this fail (default: 30 dB PSNR, 0.95 SSIM)")
	f.StringVar(&ca.ffmpegPath, "ffmpeg", "", "Path to ffmpeg")
	f.StringSliceVar(&ca.ffmpegArgs, "ffmpeg-arg", nil, "Extra ffmpeg argument placed before the inputs (repeatable)")
	f.StringVar(&ca.vspipePath, "vspipe", "", "Path to vspipe")
	f.StringVar(&ca.ffprobePath, "ffprobe", "", "Path to ffprobe")
	f.BoolVar(&ca.probeFrameRate, "probe-frame-rate", false, "Read each encode's frame rate with ffprobe for timecodes")
	f.StringVar(&ca.template, "template", "", "VapourSynth script template for vs-psnr")
	f.BoolVar(&ca.keepIntermediate, "keep-intermediate", false, "Keep generated .vpy scripts and .lwi indexes")
	f.Float64Var(&ca.frameRate, "frame-rate", 0, "Frame rate for timecodes. Default: 23.976")
	f.StringVarP(&ca.outputDir, "output-dir", "o", "", "Directory for the results file. Default: current directory")
	f.StringVarP(&ca.logDir, "log-dir", "l", "", "Log directory (defaults to OUTPUT/logs)")
	f.BoolVar(&ca.noLog, "no-log", false, "Disable log file creation")
	f.BoolVarP(&ca.verbose, "verbose", "v", false, "Enable verbose output for troubleshooting")
	f.BoolVar(&ca.jsonOutput, "json", false, "Emit newline-delimited JSON events instead of terminal output")
	f.IntVar(&ca.worstFrames, "worst", collector.DefaultWorstFrames, "Number of worst frames to list per job")
}

// applyCheckFlags overrides cfg with the flags the user actually set, so
// config file and environment values survive unset flags.
func applyCheckFlags(cmd *cobra.Command, ca *checkArgs, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("backend") {
		kind, err := metric.ParseKind(ca.backend)
		if err != nil {
			return err
		}
		cfg.Backend = kind
	}
	if f.Changed("threshold") {
		cfg.Threshold = ca.threshold
	}
	if f.Changed("ffmpeg") {
		cfg.FFmpegPath = ca.ffmpegPath
	}
	if f.Changed("ffmpeg-arg") {
		cfg.FFmpegExtraArgs = ca.ffmpegArgs
	}
	if f.Changed("vspipe") {
		cfg.VSPipePath = ca.vspipePath
	}
	if f.Changed("ffprobe") {
		cfg.FFprobePath = ca.ffprobePath
	}
	if f.Changed("probe-frame-rate") {
		cfg.ProbeFrameRate = ca.probeFrameRate
	}
	if f.Changed("template") {
		cfg.TemplatePath = ca.template
	}
	if f.Changed("keep-intermediate") {
		cfg.KeepIntermediate = ca.keepIntermediate
	}
	if f.Changed("frame-rate") {
		cfg.FrameRate = ca.frameRate
	}
	if f.Changed("output-dir") {
		cfg.OutputDir = ca.outputDir
	}
	if f.Changed("log-dir") {
		cfg.LogDir = ca.logDir
	}
	if f.Changed("no-log") {
		cfg.NoLog = ca.noLog
	}
	if f.Changed("verbose") {
		cfg.Verbose = ca.verbose
	}
	if f.Changed("json") {
		cfg.JSONOutput = ca.jsonOutput
	}
	return nil
}

func executeCheck(cfg *config.Config, worst int, primary, secondary string) error {
	outputDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	cfg.OutputDir = outputDir

	if err := util.EnsureDirectory(outputDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Resolve log directory
	logDir := cfg.LogDir
	if logDir == "" {
		logDir = filepath.Join(outputDir, "logs")
	}

	runLog, err := logging.Setup(logDir, cfg.Verbose, cfg.NoLog)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if runLog != nil {
		defer func() { _ = runLog.Close() }()
	}
	initGlobalLogger(runLog, cfg.Verbose)

	found, err := discovery.Resolve(primary, secondary)
	if err != nil {
		return err
	}
	if len(found.Pairs) == 0 {
		return fmt.Errorf("no matching clips in %s and %s", primary, secondary)
	}
	runLog.Info("discovered pairs", "pairs", len(found.Pairs), "unmatched", len(found.Unmatched), "skipped", found.SkippedCount)
	for i, p := range found.Pairs {
		runLog.Debug("pair", "index", i+1, "primary", p.Primary, "secondary", p.Secondary)
	}

	rep := newReporter(cfg, runLog)
	for _, name := range found.Unmatched {
		rep.Warning(fmt.Sprintf("No counterpart for %s", name))
	}
	rep.Tools(toolsSummary(cfg))
	if runLog != nil {
		rep.Verbose("Log file: " + runLog.FilePath())
	}

	col, err := collector.New(cfg, rep,
		collector.WithLogger(logging.Global()),
		collector.WithRunLog(runLog),
		collector.WithWorstFrames(worst),
	)
	if err != nil {
		return err
	}

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			runLog.Warn("interrupted, aborting the running job")
			cancel()
		case <-ctx.Done():
		}
	}()

	batch, err := col.Run(ctx, found.Pairs)
	if err != nil {
		return err
	}
	if len(batch.Failures) > 0 || batch.Passed() < len(found.Pairs) {
		return errChecksFailed
	}
	return nil
}

// initGlobalLogger points the structured logger at the run log, or at
// stderr for warnings only when no log file is written.
func initGlobalLogger(runLog *logging.RunLog, verbose bool) {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	if runLog == nil {
		logging.Init(logging.LevelWarn, os.Stderr)
		return
	}
	logging.Init(level, runLog.Writer())
}

func newReporter(cfg *config.Config, runLog *logging.RunLog) reporter.Reporter {
	var out reporter.Reporter
	if cfg.JSONOutput {
		out = reporter.NewJSONReporter()
	} else {
		out = reporter.NewTerminalReporter(cfg.Verbose)
	}
	if runLog == nil {
		return out
	}
	return reporter.NewCompositeReporter(out, runLogReporter{log: runLog})
}

func toolsSummary(cfg *config.Config) reporter.ToolsSummary {
	info := util.GetSystemInfo()
	tool := cfg.FFmpegPath
	if cfg.Backend == metric.KindVSPSNR {
		tool = cfg.VSPipePath
	}
	exe, _ := util.ResolveExecutable(tool)

	template := ""
	if cfg.Backend == metric.KindVSPSNR {
		template = "built-in"
		if cfg.TemplatePath != "" {
			template = cfg.TemplatePath
		}
	}

	return reporter.ToolsSummary{
		Hostname:   info.Hostname,
		Backend:    string(cfg.Backend),
		Executable: exe,
		Template:   template,
	}
}

// runLogReporter copies user-facing warnings into the run log. Job and
// batch records are written by the collector.
type runLogReporter struct {
	reporter.NullReporter
	log *logging.RunLog
}

func (r runLogReporter) Warning(message string) {
	r.log.Warn("warning", "message", message)
}
