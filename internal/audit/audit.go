// Package audit builds the per-run logger: a coloured console handler and an
// append-only text log shared by every run against the same workspace.
package audit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/henrycmeen/dimo/internal/utils"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// FileName is the audit log's name inside the logs directory.
const FileName = "mets_update.log"

const (
	consoleTimeFormat = "15:04:05.000"
	filePerm          = 0o644
)

type Options struct {
	// Path of the append-only log file. Required.
	Path string
	// Console receives human-oriented output. Nil disables it.
	Console io.Writer
	// Verbose lowers the console level to debug. The file always gets debug.
	Verbose bool
}

// Log owns the open audit file and the logger writing to it.
type Log struct {
	path   string
	runID  string
	file   *os.File
	lines  *lineWriter
	logger *slog.Logger
}

// Open appends to the audit file at opts.Path, creating it if needed. Every
// record logged through Logger carries the run id.
func Open(opts Options) (*Log, error) {
	if opts.Path == "" {
		return nil, errors.New("audit: log path is required")
	}
	if err := utils.EnsureParent(opts.Path); err != nil {
		return nil, fmt.Errorf("audit: create log dir: %w", err)
	}

	file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", opts.Path, err)
	}

	lines := newLineWriter(file)
	fileHandler := slog.NewTextHandler(lines, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// time is written by the line writer
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	handlers := []slog.Handler{fileHandler}
	if opts.Console != nil {
		level := slog.LevelInfo
		if opts.Verbose {
			level = slog.LevelDebug
		}
		handlers = append(handlers, tint.NewHandler(opts.Console, &tint.Options{
			Level:      level,
			TimeFormat: consoleTimeFormat,
			NoColor:    !isTerminal(opts.Console),
		}))
	}

	runID := uuid.NewString()
	logger := slog.New(newMultiHandler(handlers...)).With("run", runID)

	return &Log{
		path:   opts.Path,
		runID:  runID,
		file:   file,
		lines:  lines,
		logger: logger,
	}, nil
}

func (l *Log) Logger() *slog.Logger { return l.logger }

func (l *Log) RunID() string { return l.runID }

func (l *Log) Path() string { return l.path }

// Close flushes pending output and closes the file.
func (l *Log) Close() error {
	flushErr := l.lines.Close()
	syncErr := l.file.Sync()
	closeErr := l.file.Close()
	return errors.Join(flushErr, syncErr, closeErr)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
