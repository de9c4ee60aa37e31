// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package subscriber

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/nishisan-dev/fanoutd/internal/wire"
)

// reconnectLoop is the subscriber's supervisor goroutine, grounded on the
// teacher's ControlChannel.run(): while not stopped, if disconnected it
// dials, handshakes, and — on success — spawns the reader worker before
// sleeping connectWait and iterating. Per spec.md §5, the only explicit
// deadlines in this loop are connectWait/1s/5s; unlike the teacher's
// run(), this loop does not grow its retry delay with exponential backoff,
// since spec.md §4.3 specifies a plain connectWait cadence with no backoff
// step.
func (s *Subscriber) reconnectLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if s.Connected() {
			if !s.sleep(s.connectWait) {
				return
			}
			continue
		}

		s.state.Store(StateConnecting)
		conn, err := s.handshake()
		if err != nil {
			s.logger.Warn("handshake failed, retrying", "error", err, "retry_in", s.connectWait)
			s.state.Store(StateDisconnected)
			if !s.sleep(s.connectWait) {
				return
			}
			continue
		}

		s.connMu.Lock()
		s.conn = conn
		s.connMu.Unlock()
		s.state.Store(StateConnected)
		s.logger.Info("subscriber connected", "server", s.addr())

		s.wg.Add(1)
		go s.readLoop(conn)
		s.invokeNewConnection()

		if !s.sleep(s.connectWait) {
			return
		}
	}
}

// sleep waits for d or the stop signal, returning false if stopped.
func (s *Subscriber) sleep(d time.Duration) bool {
	select {
	case <-s.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

// handshake implements spec.md §6's ACK / name / ACK exchange: dial, await
// the publisher's ACK within 1s, send the (already-truncated) name, then
// await the publisher's second ACK within 1s.
func (s *Subscriber) handshake() (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.Dial("tcp", s.addr())
	if err != nil {
		return nil, fmt.Errorf("subscriber: dial %s: %w", s.addr(), err)
	}

	if err := readACK(conn, time.Second); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscriber: awaiting publisher ack: %w", err)
	}

	if _, err := conn.Write([]byte(s.name)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscriber: sending name: %w", err)
	}

	if err := readACK(conn, time.Second); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscriber: awaiting name ack: %w", err)
	}

	return conn, nil
}

func readACK(conn net.Conn, deadline time.Duration) error {
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	buf := make([]byte, 1)
	_, err := io.ReadFull(conn, buf)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		return err
	}
	if buf[0] != wire.ACK {
		return fmt.Errorf("subscriber: expected ACK byte, got %x", buf[0])
	}
	return nil
}
