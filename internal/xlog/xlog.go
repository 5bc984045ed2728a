// Package xlog provides the structured, leveled logging used across the
// engine's long-running operations. It wraps go-ethereum's slog-based log
// package, which already gives us a package-level Info/Warn/Error API with
// key-value context, and points its handler at a lumberjack-rotated file
// when one is configured.
package xlog

import (
	"io"
	"os"

	ethlog "github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig describes the rotating log file xlog writes to. A zero value
// (empty Path) leaves logging on stderr.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

const (
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 5
	defaultMaxAgeDays = 30
)

// Init installs the default logger. Call it once during process startup;
// the package-level Info/Warn/Error/Debug functions forward to whatever
// was last installed here.
func Init(cfg FileConfig) {
	var out io.Writer = os.Stderr

	if cfg.Path != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    orDefault(cfg.MaxSizeMB, defaultMaxSizeMB),
			MaxBackups: orDefault(cfg.MaxBackups, defaultMaxBackups),
			MaxAge:     orDefault(cfg.MaxAgeDays, defaultMaxAgeDays),
		}
	}

	handler := ethlog.NewTerminalHandler(out, false)
	ethlog.SetDefault(ethlog.NewLogger(handler))
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}

	return v
}

// Info logs a structured informational line: Info("block dedup hit", "uid", uid).
func Info(msg string, ctx ...any) { ethlog.Info(msg, ctx...) }

// Warn logs a transient-fault line, e.g. a per-block NOT_FOUND or
// CHECKSUM_MISMATCH that the caller logs-and-continues past.
func Warn(msg string, ctx ...any) { ethlog.Warn(msg, ctx...) }

// Error logs an operation-ending failure.
func Error(msg string, ctx ...any) { ethlog.Error(msg, ctx...) }

// Debug logs fine-grained tracing, e.g. per-block pipeline progress.
func Debug(msg string, ctx ...any) { ethlog.Debug(msg, ctx...) }
