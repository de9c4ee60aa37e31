// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package publisher

import (
	"net"
	"time"

	"github.com/nishisan-dev/fanoutd/internal/wire"
)

// acceptLoop is the publisher's single acceptor worker. It implements
// spec.md §4.2's 8-step admission sequence, grounded on the teacher's
// accept-loop-with-backoff shape (internal/server/server.go's Run) for the
// outer loop and its handshake-then-register pattern for each candidate.
func (p *Publisher) acceptLoop() {
	defer p.wg.Done()

	consecutiveErrors := 0
	for p.running.Load() {
		if tl, ok := p.listener.(interface{ SetDeadline(time.Time) error }); ok {
			_ = tl.SetDeadline(time.Now().Add(time.Second))
		}

		conn, err := p.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !p.running.Load() {
				return
			}
			consecutiveErrors++
			delay := time.Duration(consecutiveErrors) * 100 * time.Millisecond
			if delay > 2*time.Second {
				delay = 2 * time.Second
			}
			p.logger.Warn("accept error", "error", err, "consecutive_errors", consecutiveErrors)
			time.Sleep(delay)
			continue
		}
		consecutiveErrors = 0

		go p.admit(conn)
	}
}

// admit runs the handshake for one candidate connection and, on success,
// inserts it into the registry. Any deviation from the handshake closes the
// candidate silently (spec.md §4.2's Errors section).
func (p *Publisher) admit(conn net.Conn) {
	if _, err := conn.Write([]byte{wire.ACK}); err != nil {
		conn.Close()
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	nameBuf := make([]byte, wire.MaxNameLen)
	n, err := conn.Read(nameBuf)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil || n == 0 {
		conn.Close()
		return
	}
	name := string(nameBuf[:n])
	if err := wire.ValidateName(name); err != nil {
		conn.Close()
		return
	}

	if existing, ok := p.reg.get(name); ok {
		if p.probeAlive(existing) {
			p.logger.Info("rejecting duplicate subscriber name", "name", name)
			conn.Close()
			return
		}
		p.dropped(name, "replaced by new connection with same name")
	}

	if p.reg.count() >= p.maxReceivers {
		p.logger.Warn("subscriber registry full, refusing connection", "name", name, "max", p.maxReceivers)
		conn.Close()
		return
	}

	if _, err := conn.Write([]byte{wire.ACK}); err != nil {
		conn.Close()
		return
	}

	sc := &subscriberConn{
		name:        name,
		conn:        conn,
		connectedAt: time.Now(),
		remoteAddr:  conn.RemoteAddr().String(),
	}
	p.reg.put(sc)
	p.logger.Info("subscriber connected", "name", name, "remote", sc.remoteAddr)

	if fn, ok := p.onNewConn.Load().(func(string)); ok && fn != nil {
		safeInvoke(func() { fn(name) })
	}
}

// probeAlive sends a __png__ frame straight to the single existing
// connection (via tellReceiver, from the admitting goroutine rather than
// through the broadcaster's send buffer) for a collision check: true means
// the incumbent acked and the new connection is refused; on a write error
// or ACK timeout tellReceiver has already dropped the incumbent.
func (p *Publisher) probeAlive(sc *subscriberConn) bool {
	ok := p.tellReceiver(sc, wire.BuildFrame(wire.KeyPngStr, "", false, nil), true)
	return ok
}

// safeInvoke calls fn, recovering a panic so a misbehaving user callback
// never takes down a publisher worker (spec.md §7's propagation policy).
func safeInvoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			_ = r
		}
	}()
	fn()
}
