// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package subscriber

import (
	"errors"
	"net"
	"time"

	"github.com/nishisan-dev/fanoutd/internal/wire"
)

// readLoop is the subscriber's reader worker, grounded on the teacher's
// pingLoop reader goroutine (magic-dispatch switch over frame types). It
// reads from conn until a die frame, a read error, Close(), or the stop
// signal of StopConnectLoop (checked between reads), reassembling
// the byte stream into frames and dispatching each by control key.
func (s *Subscriber) readLoop(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.connMu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.connMu.Unlock()
		s.state.Store(StateDisconnected)
		s.logger.Info("subscriber disconnected")
	}()

	var reassembly []byte
	buf := make([]byte, s.bufferSize)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("read error", "error", err)
			}
			return
		}
		if n == 0 {
			return
		}

		reassembly = append(reassembly, buf[:n]...)
		frames, tail := wire.SplitStream(reassembly)
		reassembly = tail

		if len(frames) == 0 {
			continue
		}

		if _, err := conn.Write([]byte{wire.ACK}); err != nil {
			s.logger.Debug("ack write failed", "error", err)
			return
		}

		for _, raw := range frames {
			if s.dispatch(raw) {
				return
			}
		}
	}
}

// dispatch handles one reassembled frame, returning true if the reader
// should terminate (a die frame was received). Per spec.md §7, a malformed
// frame or decode failure is surfaced into the process callback or logged,
// never treated as fatal to the reader.
func (s *Subscriber) dispatch(raw []byte) (shouldStop bool) {
	hdr, payload, err := wire.ParseFrame(raw)
	if err != nil {
		s.logger.Warn("dropping frame with unknown key or malformed header", "error", err)
		return false
	}

	switch hdr.Key {
	case wire.KeyDieStr:
		return true
	case wire.KeyPngStr:
		// The batch ACK already sent is the reply; nothing else to do.
		return false
	case wire.KeyRawStr:
		s.invokeProcess(append([]byte{}, payload...), hdr.Tag)
		return false
	case wire.KeyJsnStr:
		if hdr.Unpack {
			v, err := wire.LoadJSON(payload, s.logger)
			if err != nil {
				s.logger.Warn("decode failure, delivering raw payload", "error", err)
				s.invokeProcess(newMessage(payload, s.logger), hdr.Tag)
				return false
			}
			s.invokeProcess(v, hdr.Tag)
		} else {
			s.invokeProcess(newMessage(payload, s.logger), hdr.Tag)
		}
		return false
	default:
		return false
	}
}
