// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

func TestNewLogger_JSONFormat(t *testing.T) {
	logger, closer := NewLogger("info", "json", "")
	defer closer.Close()
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	logger, closer := NewLogger("debug", "text", "")
	defer closer.Close()
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewLogger_DefaultFormat(t *testing.T) {
	// Formato desconhecido deve cair no default (JSON)
	logger, closer := NewLogger("info", "unknown", "")
	defer closer.Close()
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewLogger_AllLevels(t *testing.T) {
	levels := []string{"debug", "info", "warn", "warning", "error", "unknown"}
	for _, level := range levels {
		logger, closer := NewLogger(level, "json", "")
		defer closer.Close()
		if logger == nil {
			t.Errorf("expected non-nil logger for level %q", level)
		}
	}
}

func TestNewLogger_WithFileOutput(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "test.log")

	logger, closer := NewLogger("info", "json", logFile)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}

	// Escreve algo no log
	logger.Info("test message", "key", "value")

	// Fecha o closer para flush
	closer.Close()

	// Verifica que o arquivo foi criado e contém dados
	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "test message") {
		t.Errorf("expected log file to contain 'test message', got: %s", content)
	}
	if !strings.Contains(content, "key") {
		t.Errorf("expected log file to contain 'key', got: %s", content)
	}
}

func TestNewLogger_WithFileOutput_InvalidPath(t *testing.T) {
	// Path inválido — deve logar warning em stderr e retornar logger funcional
	logger, closer := NewLogger("info", "json", "/nonexistent/dir/test.log")
	defer closer.Close()

	if logger == nil {
		t.Fatal("expected non-nil logger even with invalid file path")
	}

	// Logger deve funcionar (stdout only)
	logger.Info("still works")
}

func TestThrottledHandler_DropsExcessDebugButNeverWarn(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	// Burst of 1, zero refill rate: the first Allow() spends the only token
	// and every call after it is denied for the rest of the test.
	limiter := rate.NewLimiter(rate.Limit(0), 1)
	logger := slog.New(NewThrottledHandler(inner, limiter))

	logger.Debug("first debug")
	logger.Debug("second debug")
	logger.Warn("a warning")
	logger.Error("an error")

	out := buf.String()
	if !strings.Contains(out, "first debug") {
		t.Errorf("expected first debug record to pass, got: %s", out)
	}
	if strings.Contains(out, "second debug") {
		t.Errorf("expected second debug record to be throttled, got: %s", out)
	}
	if !strings.Contains(out, "a warning") {
		t.Errorf("expected warn record to bypass the limiter, got: %s", out)
	}
	if !strings.Contains(out, "an error") {
		t.Errorf("expected error record to bypass the limiter, got: %s", out)
	}
}

func TestThrottledHandler_WithAttrsPreservesLimiter(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	limiter := rate.NewLimiter(rate.Limit(0), 1)
	logger := slog.New(NewThrottledHandler(inner, limiter)).With("component", "test")

	logger.Debug("first")
	logger.Debug("second")

	out := buf.String()
	if !strings.Contains(out, "first") || !strings.Contains(out, "component=test") {
		t.Errorf("expected first record with attrs, got: %s", out)
	}
	if strings.Contains(out, "second") {
		t.Errorf("expected second record to still be throttled after With, got: %s", out)
	}
}
