// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/time/rate"
)

// NewLogger cria um slog.Logger configurado com o nível, formato e output especificados.
// Formatos suportados: "json" (default) e "text".
// Níveis suportados: "debug", "info" (default), "warn", "error".
// Se filePath não for vazio, grava logs em stdout + file (MultiWriter).
// Retorna o logger e um io.Closer que deve ser chamado no shutdown para fechar o arquivo.
// Se filePath for vazio, o Closer retornado é um no-op.
func NewLogger(level, format, filePath string) (*slog.Logger, io.Closer) {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	var w io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(strings.NewReader(""))

	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			// Se não conseguir abrir o arquivo, loga stderr e continua só com stdout
			fmt.Fprintf(os.Stderr, "WARNING: could not open log file %q: %v (logging to stdout only)\n", filePath, err)
		} else {
			w = io.MultiWriter(os.Stdout, f)
			closer = f
		}
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler), closer
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// throttledHandler gates Debug/Info records through a token-bucket limiter,
// so a caller stuck emitting the same diagnostic on every tick of a fast
// loop (the publisher's broadcaster, paced at up to 100Hz) doesn't flood
// the log. Warn and Error always pass through untouched.
type throttledHandler struct {
	handler slog.Handler
	limiter *rate.Limiter
}

// NewThrottledHandler wraps handler so that Debug/Info records are admitted
// only as fast as limiter allows; Warn/Error bypass the limiter entirely.
// limiter is the same golang.org/x/time/rate.Limiter the publisher already
// uses to pace its broadcast ticks, reused here to pace the logging of
// high-frequency pacing diagnostics rather than hand-rolling a separate
// rate gate.
func NewThrottledHandler(handler slog.Handler, limiter *rate.Limiter) slog.Handler {
	return &throttledHandler{handler: handler, limiter: limiter}
}

func (h *throttledHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *throttledHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn || h.limiter.Allow() {
		return h.handler.Handle(ctx, r)
	}
	return nil
}

func (h *throttledHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &throttledHandler{handler: h.handler.WithAttrs(attrs), limiter: h.limiter}
}

func (h *throttledHandler) WithGroup(name string) slog.Handler {
	return &throttledHandler{handler: h.handler.WithGroup(name), limiter: h.limiter}
}
