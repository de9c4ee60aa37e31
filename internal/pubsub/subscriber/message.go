// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package subscriber

import (
	"log/slog"
	"sync"

	"github.com/nishisan-dev/fanoutd/internal/wire"
)

// Message is the lazy-decode container spec.md §9's Design Note describes:
// "decode on first access, cache result." It wraps a __jsn__ frame's raw
// payload when the sender set unpack=false, so the handler can choose
// whether to pay the decode cost at all.
type Message struct {
	raw    []byte
	logger *slog.Logger

	once   sync.Once
	value  any
	decErr error
}

// newMessage wraps raw extended-JSON bytes. logger may be nil.
func newMessage(raw []byte, logger *slog.Logger) *Message {
	return &Message{raw: raw, logger: logger}
}

// Value decodes raw on first access and memoizes the result (and any
// decode error) for subsequent calls.
func (m *Message) Value() (any, error) {
	m.once.Do(func() {
		m.value, m.decErr = wire.LoadJSON(m.raw, m.logger)
	})
	return m.value, m.decErr
}

// Raw returns the original undecoded payload bytes.
func (m *Message) Raw() []byte { return m.raw }
