package isosurface

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestDefaultLoggerDiscards(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("expected non-nil default logger")
	}
	if l.Enabled(nil, slog.LevelError) {
		t.Error("default logger should be disabled at every level")
	}
}

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	SetLogger(l)

	if Logger() != l {
		t.Error("Logger() did not return the configured logger")
	}

	Logger().Debug("probe")
	if buf.Len() == 0 {
		t.Error("configured logger produced no output")
	}
}

func TestSetLoggerNilRestoresSilence(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	SetLogger(nil)

	if Logger().Enabled(nil, slog.LevelError) {
		t.Error("nil SetLogger should restore the silent default")
	}
}
