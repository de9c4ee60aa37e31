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
	"path/filepath"
)

// fanOutHandler é um slog.Handler que despacha cada registro para dois handlers.
// Usado pelo SessionLogger para gravar simultaneamente no handler global e no
// arquivo de log dedicado da sessão.
type fanOutHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *fanOutHandler) Handle(ctx context.Context, r slog.Record) error {
	// Verifica Enabled() de cada handler individualmente antes de despachar.
	// Isso garante que registros DEBUG não são enviados ao handler primário
	// quando este aceita apenas INFO (ou superior).
	if h.primary.Enabled(ctx, r.Level) {
		if err := h.primary.Handle(ctx, r); err != nil {
			return err
		}
	}
	// Erros de escrita no arquivo de sessão não devem impedir o log global.
	if h.secondary.Enabled(ctx, r.Level) {
		_ = h.secondary.Handle(ctx, r)
	}
	return nil
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithAttrs(attrs),
		secondary: h.secondary.WithAttrs(attrs),
	}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	return &fanOutHandler{
		primary:   h.primary.WithGroup(name),
		secondary: h.secondary.WithGroup(name),
	}
}

// NewSessionLogger cria um logger que grava tanto no logger base (global) quanto
// em um arquivo dedicado para a conexão de um subscriber. O arquivo é criado em:
//
//	{sessionLogDir}/{subscriberName}/{connectionID}.log
//
// subscriberName identifica o subscriber conforme registrado no handshake
// (wire.ValidateName); connectionID distingue duas conexões sucessivas do
// mesmo nome (reconexões reaproveitam o nome, não o arquivo).
//
// Retorna o logger enriched, um io.Closer para fechar o arquivo dedicado e o
// path do arquivo criado (relativo se sessionLogDir for relativo). O Closer DEVE ser chamado (defer) quando a
// conexão terminar.
//
// Se sessionLogDir for vazio, retorna o logger base sem modificações (no-op).
func NewSessionLogger(baseLogger *slog.Logger, sessionLogDir, subscriberName, connectionID string) (*slog.Logger, io.Closer, string, error) {
	if sessionLogDir == "" {
		return baseLogger, io.NopCloser(nil), "", nil
	}

	dir := filepath.Join(sessionLogDir, subscriberName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, "", fmt.Errorf("creating subscriber log directory %s: %w", dir, err)
	}

	logPath := filepath.Join(dir, connectionID+".log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, "", fmt.Errorf("opening subscriber log file %s: %w", logPath, err)
	}

	// Arquivo da conexão sempre usa JSON com nível DEBUG para captura máxima,
	// independente do nível configurado no logger base do publisher.
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	// Fan-out: despacha para o handler do logger base + handler do arquivo,
	// preservando os atributos "component"/"port" já anexados ao logger base.
	combined := &fanOutHandler{
		primary:   baseLogger.Handler(),
		secondary: fileHandler,
	}

	return slog.New(combined).With("subscriber", subscriberName), f, logPath, nil
}

// RemoveSessionLog remove o arquivo de log de uma conexão encerrada
// normalmente (die frame ou Close do publisher, não uma queda de ACK).
// É no-op se sessionLogDir for vazio ou o arquivo não existir.
func RemoveSessionLog(sessionLogDir, subscriberName, connectionID string) {
	if sessionLogDir == "" {
		return
	}
	logPath := filepath.Join(sessionLogDir, subscriberName, connectionID+".log")
	os.Remove(logPath)
}
