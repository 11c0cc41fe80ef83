package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/idbforensics/internal/audit"
	"github.com/roach88/idbforensics/internal/metrics"
	"github.com/roach88/idbforensics/internal/output"
	"github.com/roach88/idbforensics/internal/reader"
)

// DumpHeader is printed at the start of every text-mode dump.
const DumpHeader = `
  _     _ _         _
 (_) __| | |__   __| |_   _ _ __ ___  _ __
 | |/ _' | '_ \ / _' | | | | '_ ' _ \| '_ \
 | | (_| | |_) | (_| | |_| | | | | | | |_) |
 |_|\__,_|_.__/ \__,_|\__,_|_| |_| |_| .__/
                                     |_|
 Forensic extraction of browser IndexedDB, Local Storage and Session Storage.
`

// dumpJob describes one dump command invocation.
type dumpJob struct {
	Kind     string
	Input    string
	Output   string
	BlobPath string
	RawDump  bool
	Extract  func(ctx context.Context, src reader.Source, trail *audit.Trail) (dumpResult, error)
}

// dumpResult is what an extractor hands back, possibly partial.
type dumpResult struct {
	// Write stores the structured artifact. Nil means there is nothing to write.
	Write  func(dest string) output.Outcome
	Totals metrics.Totals
}

// DumpSummary is the success payload of the dump commands.
type DumpSummary struct {
	RunID     string  `json:"run_id"`
	Kind      string  `json:"kind"`
	Input     string  `json:"input"`
	Output    string  `json:"output,omitempty"`
	Digest    string  `json:"digest,omitempty"`
	RawDump   string  `json:"raw_dump,omitempty"`
	LogDir    string  `json:"log_dir"`
	Records   int     `json:"records"`
	Extracted int     `json:"extracted"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	Seconds   float64 `json:"seconds"`
}

func (s DumpSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ %s: %d record(s) read, %d extracted, %d skipped, %d failed\n",
		s.Kind, s.Records, s.Extracted, s.Skipped, s.Failed)
	if s.Output != "" {
		fmt.Fprintf(&b, "  output:   %s\n", s.Output)
		fmt.Fprintf(&b, "  sha256:   %s\n", s.Digest)
	}
	if s.RawDump != "" {
		fmt.Fprintf(&b, "  raw dump: %s\n", s.RawDump)
	}
	fmt.Fprintf(&b, "  logs:     %s\n", s.LogDir)
	fmt.Fprintf(&b, "  run id:   %s\n", s.RunID)
	fmt.Fprintf(&b, "  took:     %.2fs", s.Seconds)
	return b.String()
}

// runDump opens the input, runs the extractor inside an audit trail and
// writes the artifact and metrics. A fatal extraction error still writes
// whatever was extracted before it.
func runDump(cmd *cobra.Command, opts *RootOptions, job dumpJob) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.config()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	runID := opts.runIDGenerator().Generate()
	formatter.RunID = runID
	if formatter.Format == "text" {
		fmt.Fprint(formatter.Writer, DumpHeader)
	}

	logDir := cfg.Logs.Dir
	if logDir == "" {
		logDir = filepath.Dir(job.Output)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	summary := DumpSummary{RunID: runID, Kind: job.Kind, Input: job.Input, LogDir: logDir}
	started := time.Now()
	var cmdErr error

	trailCfg := audit.Config{
		Dir:     logDir,
		Raw:     job.RawDump,
		RunID:   runID,
		Console: consoleCore(formatter.GetErrWriter(), opts.Verbose),
	}
	err = audit.With(trailCfg, func(trail *audit.Trail) error {
		log := trail.Debug()
		blob := job.BlobPath
		if blob == "" {
			blob = "None"
		}
		log.Info("starting extraction",
			zap.String("kind", job.Kind),
			zap.String("input", job.Input),
			zap.String("output", job.Output),
			zap.String("blob_path", blob),
			zap.Bool("raw_dump", job.RawDump),
		)

		src, err := reader.Open(job.Input, job.BlobPath)
		if err != nil {
			trail.Fatal(err)
			cmdErr = formatter.Fail(ExitCommandError, ErrCodeOpenInput, "failed to open input", err)
			return nil
		}
		defer func() {
			if closeErr := src.Close(); closeErr != nil {
				trail.Errors().Error("error closing input", zap.Error(closeErr))
			}
		}()

		res, extractErr := job.Extract(ctx, src, trail)
		t := res.Totals
		summary.Records, summary.Skipped, summary.Failed = t.Records, t.Skipped, t.Failed
		for _, n := range t.PerStore {
			summary.Extracted += n
		}
		log.Info("extraction finished",
			zap.Int("records", t.Records),
			zap.Int("extracted", summary.Extracted),
			zap.Int("skipped", t.Skipped),
			zap.Int("failed", t.Failed),
		)

		var writeErr error
		switch {
		case job.RawDump:
			summary.RawDump = filepath.Join(logDir, audit.RawDumpName)
			log.Info("raw records written", zap.String("path", summary.RawDump))
		case res.Write != nil:
			out := res.Write(job.Output)
			if out.OK() {
				summary.Output, summary.Digest = out.Path, out.Digest
				log.Info("processed data written",
					zap.String("path", out.Path),
					zap.Int("count", out.Count),
					zap.Int("bytes", out.Bytes),
					zap.String("sha256", out.Digest),
				)
			} else {
				writeErr = out.Err
				trail.Errors().Error("output not written", zap.String("path", out.Path), zap.Error(out.Err))
			}
		}

		summary.Seconds = time.Since(started).Seconds()
		log.Info("processing completed", zap.Float64("seconds", summary.Seconds))

		if cfg.Metrics.File != "" {
			run := metrics.NewRun(runID, job.Kind)
			run.Observe(t, summary.Seconds)
			if err := run.WriteTextfile(cfg.Metrics.File); err != nil {
				trail.Errors().Error("metrics not written", zap.Error(err))
			}
		}

		switch {
		case extractErr != nil:
			cmdErr = formatter.Fail(ExitFailure, ErrCodeExtract, "extraction aborted", extractErr)
		case writeErr != nil:
			cmdErr = formatter.Fail(ExitFailure, ErrCodeWriteFailed, "failed to write output", writeErr)
		}
		return nil
	})
	if err != nil && cmdErr == nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "audit logs unavailable", err)
	}
	if cmdErr != nil {
		return cmdErr
	}
	return formatter.Success(summary)
}

// consoleCore mirrors debug-sink events at info level, or debug with --verbose.
func consoleCore(w io.Writer, verbose bool) zapcore.Core {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	return zapcore.NewCore(zapcore.NewConsoleEncoder(audit.EncoderConfig()), zapcore.AddSync(w), level)
}
