// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package publisher

import (
	"context"
	"io"
	"time"

	"golang.org/x/time/rate"
)

// coalescedEntry is one (possibly merged) unit of work the broadcast worker
// sends in a tick: the concatenated bytes of one or more adjacent
// send-buffer frames, plus how many original queue entries it consumed (so
// the caller can drain the right count from the head afterward).
type coalescedEntry struct {
	bytes       []byte
	isPing      bool
	sourceCount int
}

// coalesce implements spec.md §4.2's overload frame-merging policy: adjacent
// non-ping frames are concatenated into a single send, bounded by avg =
// floor(len/overloadThreshold) merges per group; ping frames never coalesce
// and never cross a previous ping.
func coalesce(items []queuedFrame, overloadThreshold int) []coalescedEntry {
	avg := 1
	if overloadThreshold > 0 {
		if a := len(items) / overloadThreshold; a > 1 {
			avg = a
		}
	}

	var out []coalescedEntry
	i := 0
	for i < len(items) {
		if items[i].isPing {
			out = append(out, coalescedEntry{bytes: items[i].bytes, isPing: true, sourceCount: 1})
			i++
			continue
		}
		var merged []byte
		count := 0
		for i+count < len(items) && count < avg && !items[i+count].isPing {
			merged = append(merged, items[i+count].bytes...)
			count++
		}
		out = append(out, coalescedEntry{bytes: merged, isPing: false, sourceCount: count})
		i += count
	}
	return out
}

// broadcastLoop is the publisher's single paced broadcast worker. It targets
// rateHz ticks per second using a token-bucket limiter (the same
// golang.org/x/time/rate idiom the teacher uses for byte-rate pacing in
// internal/agent/throttle.go, here pacing ticks instead of bytes), and
// spends up to 0.99/F of each tick's budget doing the tick's send/ACK work
// before sleeping out the remainder in small increments so a Close() is
// noticed promptly.
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	limiter := rate.NewLimiter(rate.Limit(p.rateHz), 1)
	tickPeriod := time.Duration(float64(time.Second) / p.rateHz)
	tickBudget := time.Duration(0.99 * float64(tickPeriod))
	overloadThreshold := int(0.85 * p.rateHz)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	for p.running.Load() {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		start := time.Now()

		snap := p.sendBuf.snapshot()
		if len(snap) == 0 {
			p.sleepRemaining(start, tickBudget)
			continue
		}

		entries := []coalescedEntry{}
		if len(snap) >= overloadThreshold {
			entries = coalesce(snap, overloadThreshold)
			p.tickLogger.Debug("send buffer overloaded, coalescing frames",
				"queued", len(snap), "merged_into", len(entries))
		} else {
			for _, it := range snap {
				entries = append(entries, coalescedEntry{bytes: it.bytes, isPing: it.isPing, sourceCount: 1})
			}
		}

		consumed := 0
		for _, e := range entries {
			results := p.broadcastEntry(e)
			if e.isPing {
				p.publishPingResult(results)
			}
			consumed += e.sourceCount
		}
		p.sendBuf.drainN(consumed)

		p.sleepRemaining(start, tickBudget)
	}
}

// broadcastEntry sends one (possibly coalesced) entry to every subscriber in
// a registry snapshot, returning a name->ack map populated only when e is a
// ping (non-ping sends don't need a result map).
func (p *Publisher) broadcastEntry(e coalescedEntry) map[string]*bool {
	var results map[string]*bool
	if e.isPing {
		results = make(map[string]*bool)
	}
	for name, sc := range p.reg.snapshot() {
		ok := p.tellReceiver(sc, e.bytes, e.isPing)
		if e.isPing {
			results[name] = &ok
		}
	}
	return results
}

// publishPingResult delivers results on the single-slot ping channel. A
// non-blocking send is safe here because each Ping() call drains exactly
// one result before returning (see Publisher.Ping), so the channel never
// backs up under the concurrency spec.md §5 describes.
func (p *Publisher) publishPingResult(results map[string]*bool) {
	select {
	case p.pingCh <- results:
	default:
	}
}

// tellReceiver implements spec.md §4.2's _tell_receiver: write the bytes,
// then — unless ACK waiting is disabled — block for an ACK within the
// configured timeout, dropping the subscriber on timeout or write error.
func (p *Publisher) tellReceiver(sc *subscriberConn, frame []byte, ping bool) bool {
	sc.writeMu.Lock()
	_, err := sc.conn.Write(frame)
	sc.writeMu.Unlock()
	if err != nil {
		p.dropped(sc.name, "write error")
		return false
	}

	if p.timeoutACK <= 0 {
		if !ping {
			return true
		}
		return p.awaitACK(sc, time.Second)
	}
	return p.awaitACK(sc, p.timeoutACK)
}

// awaitACK blocks for a single ACK byte within deadline, dropping the
// subscriber and returning false on timeout or I/O error.
func (p *Publisher) awaitACK(sc *subscriberConn, deadline time.Duration) bool {
	_ = sc.conn.SetReadDeadline(time.Now().Add(deadline))
	buf := make([]byte, 1)
	_, err := io.ReadFull(sc.conn, buf)
	_ = sc.conn.SetReadDeadline(time.Time{})
	if err != nil {
		p.dropped(sc.name, "ack timeout")
		return false
	}
	return true
}

// sleepRemaining sleeps, in small increments so Close() is noticed
// promptly, until budget has elapsed since start.
func (p *Publisher) sleepRemaining(start time.Time, budget time.Duration) {
	const increment = 5 * time.Millisecond
	for p.running.Load() {
		remaining := budget - time.Since(start)
		if remaining <= 0 {
			return
		}
		if remaining > increment {
			remaining = increment
		}
		select {
		case <-p.closing:
			return
		case <-time.After(remaining):
		}
	}
}

// dropped removes name from the registry and closes its connection. It is
// the LIVE -> DROPPED transition of spec.md §4.2's state machine.
func (p *Publisher) dropped(name, reason string) {
	if sc, ok := p.reg.get(name); ok {
		p.reg.delete(name)
		_ = sc.conn.Close()
		p.logger.Warn("subscriber dropped", "name", name, "reason", reason)
		if fn, ok := p.onDropped.Load().(func(string)); ok && fn != nil {
			safeInvoke(func() { fn(name) })
		}
	}
}
