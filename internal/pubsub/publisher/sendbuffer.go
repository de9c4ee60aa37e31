// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package publisher

import "sync"

// queuedFrame is one send-buffer entry: framed wire bytes plus whether this
// is a __png__ frame (pings never coalesce and never cross another ping,
// per spec.md §4.2).
type queuedFrame struct {
	bytes  []byte
	isPing bool
}

// sendBuffer is the publisher-side send buffer of spec.md §3: an ordered
// sequence of (frame, is-ping) pairs. Producers (Tell/TellRaw/Ping/
// CloseReceivers) append without blocking; the broadcast worker drains from
// the head. Modeled as a mutex-guarded slice rather than the teacher's
// wraparound byte ring buffer (internal/agent/ringbuffer.go) because the
// unit here is a whole frame, not a byte range — snapshot-then-drain-N
// keeps the same discipline the ring buffer uses (copy under lock, mutate
// outside, then trim the head under lock) without the wraparound
// complexity a byte ring needs.
type sendBuffer struct {
	mu    sync.Mutex
	items []queuedFrame
}

func (b *sendBuffer) append(f queuedFrame) {
	b.mu.Lock()
	b.items = append(b.items, f)
	b.mu.Unlock()
}

// snapshot returns a copy of the current queue without removing anything.
func (b *sendBuffer) snapshot() []queuedFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]queuedFrame, len(b.items))
	copy(out, b.items)
	return out
}

// drainN removes the first n entries from the head, re-checking the
// current length so a racing append (which only appends, never grows the
// head) can never cause it to drop an entry that was appended after the
// snapshot was taken.
func (b *sendBuffer) drainN(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.items) {
		n = len(b.items)
	}
	b.items = b.items[n:]
}

func (b *sendBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
