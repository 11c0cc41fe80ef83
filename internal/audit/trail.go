package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/idbforensics/internal/record"
)

// File names inside the audit directory.
const (
	DebugLogName      = "debug.log"
	ErrorLogName      = "error.log"
	RawDumpName       = "raw_data.jsonl"
	FailedRecordsName = "failed_records.json"
)

// Config selects which sinks Open creates.
type Config struct {
	// Dir holds every audit file. Empty disables all file sinks.
	Dir string
	// Raw enables the raw dump sink.
	Raw bool
	// RunID is stamped on every debug and error line.
	RunID string
	// Console, when set, also receives debug-sink events at its own level.
	Console zapcore.Core
}

// RawEntry is one line of the raw dump.
type RawEntry struct {
	Database   string     `json:"database"`
	Store      string     `json:"store"`
	Key        record.Key `json:"key"`
	OriginFile string     `json:"origin_file,omitempty"`
	Value      any        `json:"value"`
}

// Trail is the set of audit sinks borrowed by one extraction call.
type Trail struct {
	debug  *zap.Logger
	errs   *zap.Logger
	raw    io.Writer
	dir    string
	files  []*os.File
	closed bool
}

// Open creates the configured sinks. On error every file already opened is closed.
func Open(cfg Config) (*Trail, error) {
	if cfg.Dir == "" {
		t := Nop()
		if cfg.Console != nil {
			t.debug = withRunID(zap.New(cfg.Console), cfg.RunID)
		}
		return t, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create audit dir %s", cfg.Dir)
	}

	t := &Trail{dir: cfg.Dir}
	debugFile, err := t.create(DebugLogName, os.O_APPEND)
	if err != nil {
		return nil, err
	}
	errFile, err := t.create(ErrorLogName, os.O_TRUNC)
	if err != nil {
		t.Close()
		return nil, err
	}

	debugCore := fileCore(debugFile, zapcore.DebugLevel)
	if cfg.Console != nil {
		debugCore = zapcore.NewTee(debugCore, cfg.Console)
	}
	t.debug = withRunID(zap.New(debugCore), cfg.RunID)
	t.errs = withRunID(zap.New(fileCore(errFile, zapcore.ErrorLevel)), cfg.RunID)

	if cfg.Raw {
		rawFile, err := t.create(RawDumpName, os.O_TRUNC)
		if err != nil {
			t.Close()
			return nil, err
		}
		t.raw = rawFile
	}

	return t, nil
}

// New builds a Trail from caller-owned cores and writer. Nil arguments disable
// that sink. Close on such a Trail only syncs the loggers.
func New(debug, errs zapcore.Core, raw io.Writer) *Trail {
	t := Nop()
	if debug != nil {
		t.debug = zap.New(debug)
	}
	if errs != nil {
		t.errs = zap.New(errs)
	}
	t.raw = raw
	return t
}

// Nop returns a Trail with every sink disabled.
func Nop() *Trail {
	return &Trail{debug: zap.NewNop(), errs: zap.NewNop()}
}

// With opens a Trail, runs fn with it and always closes it.
func With(cfg Config, fn func(*Trail) error) (err error) {
	t, err := Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := t.Close(); closeErr != nil {
			err = errors.CombineErrors(err, closeErr)
		}
	}()
	return fn(t)
}

// Debug returns the debug sink.
func (t *Trail) Debug() *zap.Logger { return t.debug }

// Errors returns the error sink.
func (t *Trail) Errors() *zap.Logger { return t.errs }

// RawEnabled reports whether a raw sink is attached.
func (t *Trail) RawEnabled() bool { return t.raw != nil }

// Raw appends one entry to the raw dump. Values are written in full;
// leaves encoding/json cannot represent are stringified.
func (t *Trail) Raw(e RawEntry) error {
	if t.raw == nil {
		return nil
	}
	e.Value = record.JSONSafe(e.Value)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return errors.Wrap(err, "encode raw entry")
	}
	if _, err := t.raw.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "write raw entry")
	}
	return nil
}

// Fatal records a run-level failure with its full stack trace.
func (t *Trail) Fatal(err error) {
	if err == nil {
		return
	}
	t.errs.Error("run failed",
		zap.String("error", err.Error()),
		zap.String("trace", fmt.Sprintf("%+v", err)),
	)
}

// FailedRecordsPath is where the failed-records diagnostic goes, next to the
// debug log. Empty when the Trail has no directory.
func (t *Trail) FailedRecordsPath() string {
	if t.dir == "" {
		return ""
	}
	return filepath.Join(t.dir, FailedRecordsName)
}

// Dir returns the audit directory, or "" for in-memory trails.
func (t *Trail) Dir() string { return t.dir }

// Close flushes and releases every sink. Safe to call more than once.
func (t *Trail) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	var result error
	for _, l := range []*zap.Logger{t.debug, t.errs} {
		if err := l.Sync(); err != nil && !isIgnorableSyncError(err) {
			result = errors.CombineErrors(result, errors.Wrap(err, "sync audit log"))
		}
	}
	for _, f := range t.files {
		if err := f.Close(); err != nil {
			result = errors.CombineErrors(result, errors.Wrapf(err, "close %s", f.Name()))
		}
	}
	t.files = nil
	return result
}

func (t *Trail) create(name string, mode int) (*os.File, error) {
	path := filepath.Join(t.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	t.files = append(t.files, f)
	return f, nil
}

func fileCore(f *os.File, level zapcore.Level) zapcore.Core {
	return zapcore.NewCore(zapcore.NewConsoleEncoder(EncoderConfig()), zapcore.AddSync(f), level)
}

// EncoderConfig is the line format shared by every audit log:
// ISO-8601 time, capital level, message, then fields as JSON.
func EncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	return cfg
}

func withRunID(l *zap.Logger, runID string) *zap.Logger {
	if runID == "" {
		return l
	}
	return l.With(zap.String("run_id", runID))
}

// isIgnorableSyncError filters the EINVAL/ENOTTY that Sync returns on
// terminals and pipes.
func isIgnorableSyncError(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
