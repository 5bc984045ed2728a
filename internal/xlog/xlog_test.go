package xlog_test

import (
	"path/filepath"
	"testing"

	"github.com/backy2/backy2/internal/xlog"
)

func TestInit_WithFilePath_DoesNotPanic(t *testing.T) {
	xlog.Init(xlog.FileConfig{Path: filepath.Join(t.TempDir(), "backy2.log")})

	xlog.Info("test message", "key", "value")
	xlog.Warn("test warning", "block", 1)
	xlog.Error("test error")
	xlog.Debug("test debug")
}

func TestInit_WithoutPath_LogsToStderr(t *testing.T) {
	xlog.Init(xlog.FileConfig{})

	xlog.Info("stderr fallback")
}
