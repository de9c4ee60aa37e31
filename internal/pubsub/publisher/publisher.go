// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package publisher implements the publisher half of the fanout fabric: bind
// a port, admit up to a small fixed number of named subscribers, and
// broadcast every produced message to each live subscriber with a paced,
// backpressure-aware worker and a synchronous per-subscriber ACK.
//
// Grounded on the teacher's internal/server package: the accept-loop-with-
// backoff shape of server.Run, the name-keyed sync.Map connection registry
// of Handler.controlConns, and internal/agent/throttle.go's token-bucket
// pacing idiom (generalized here from byte-rate to tick-rate pacing).
package publisher

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nishisan-dev/fanoutd/internal/logging"
	"github.com/nishisan-dev/fanoutd/internal/wire"
)

// Default tuning, per spec.md §4.2.
const (
	DefaultRateHz        = 100.0
	DefaultTimeoutACK    = time.Second
	DefaultMaxReceivers  = 5
	minMaxReceivers      = 1
	maxMaxReceivers      = 5
)

// Errors returned by the public operations.
var (
	ErrAlreadyRunning = errors.New("publisher: already running")
	ErrNotRunning     = errors.New("publisher: not running")
)

// Option configures a Publisher at construction time, in the
// functional-options style (WithTimeoutACK, WithRateHz, WithLogger,
// WithPortName) applied by New after its defaults are set.
type Option func(*Publisher)

// WithTimeoutACK sets the per-subscriber ACK deadline. A value <= 0 selects
// spec.md's "timeoutACK is nil" mode (fire-and-forget except on ping).
func WithTimeoutACK(d time.Duration) Option {
	return func(p *Publisher) { p.timeoutACK = d }
}

// WithRateHz overrides the broadcaster's target tick rate F (default 100).
func WithRateHz(hz float64) Option {
	return func(p *Publisher) { p.rateHz = hz }
}

// WithLogger injects a *slog.Logger; the default logs JSON to stderr.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// WithPortName sets a human-readable name used only in log lines.
func WithPortName(name string) Option {
	return func(p *Publisher) { p.portName = name }
}

// Publisher is the publisher half of the fanout fabric. See spec.md §4.2
// and §6 for its public operation contract.
type Publisher struct {
	port         int
	portName     string
	maxReceivers int
	timeoutACK   time.Duration
	rateHz       float64
	logger       *slog.Logger
	tickLogger   *slog.Logger // throttled: broadcastLoop's per-tick diagnostics

	listener net.Listener
	reg      registry
	sendBuf  sendBuffer
	pingCh   chan map[string]*bool

	onNewConn atomic.Value // func(string)
	onDropped atomic.Value // func(string)

	running atomic.Bool
	starter sync.Once
	closing chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Publisher bound to port, admitting at most nreceivermax
// subscribers (clamped to [1,5] per spec.md §3).
func New(port, nreceivermax int, opts ...Option) *Publisher {
	if nreceivermax < minMaxReceivers {
		nreceivermax = minMaxReceivers
	}
	if nreceivermax > maxMaxReceivers {
		nreceivermax = maxMaxReceivers
	}
	p := &Publisher{
		port:         port,
		maxReceivers: nreceivermax,
		timeoutACK:   DefaultTimeoutACK,
		rateHz:       DefaultRateHz,
		pingCh:       make(chan map[string]*bool, 1),
		closing:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	p.logger = p.logger.With("component", "publisher", "port", port)
	p.tickLogger = slog.New(logging.NewThrottledHandler(p.logger.Handler(), rate.NewLimiter(1, 1)))
	return p
}

// SetOnNewConnection registers the callback invoked after a subscriber
// successfully completes its handshake (spec.md §6's _newconnection hook).
func (p *Publisher) SetOnNewConnection(fn func(name string)) { p.onNewConn.Store(fn) }

// SetOnDropped registers the callback invoked when a subscriber is dropped
// (spec.md §6's _dropped hook).
func (p *Publisher) SetOnDropped(fn func(name string)) { p.onDropped.Store(fn) }

// Start binds the listener and spawns the acceptor and broadcaster workers.
// Idempotent: a second call is a no-op. A bind failure is fatal to this
// Publisher instance (spec.md §4.2's Errors section).
func (p *Publisher) Start() error {
	var startErr error
	p.starter.Do(func() {
		ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(p.port)))
		if err != nil {
			startErr = fmt.Errorf("publisher: bind %d: %w", p.port, err)
			return
		}
		p.listener = ln
		p.running.Store(true)

		p.wg.Add(2)
		go p.acceptLoop()
		go p.broadcastLoop()

		p.logger.Info("publisher started", "name", p.portName)
	})
	return startErr
}

// Tell encodes v with extended JSON and enqueues a __jsn__ frame. Returns
// false if the publisher is not running.
func (p *Publisher) Tell(v any, tag string, unpack bool) bool {
	if !p.running.Load() {
		return false
	}
	payload, err := wire.DumpJSON(v)
	if err != nil {
		p.logger.Warn("tell: encoding value failed", "error", err)
		return false
	}
	frame := wire.BuildFrame(wire.KeyJsnStr, tag, unpack, payload)
	p.sendBuf.append(queuedFrame{bytes: frame})
	return true
}

// TellRaw enqueues a __raw__ frame carrying b verbatim (unpack=false).
func (p *Publisher) TellRaw(b []byte, tag string) bool {
	if !p.running.Load() {
		return false
	}
	frame := wire.BuildFrame(wire.KeyRawStr, tag, false, b)
	p.sendBuf.append(queuedFrame{bytes: frame})
	return true
}

// Ping enqueues a __png__ frame and blocks until the broadcaster has asked
// every live subscriber and published a result. Every map value is
// non-nil: with ACK waiting disabled a ping still waits up to 1s for each
// subscriber's ACK, so each entry reports true or false.
func (p *Publisher) Ping() map[string]*bool {
	if !p.running.Load() {
		return nil
	}
	p.sendBuf.append(queuedFrame{bytes: wire.BuildFrame(wire.KeyPngStr, "", false, nil), isPing: true})
	select {
	case result := <-p.pingCh:
		return result
	case <-p.closing:
		return nil
	}
}

// CloseReceivers enqueues a __die__ frame; once the send buffer drains, or
// after 2s if it has not, every remaining subscriber is forcibly closed and
// dropped.
func (p *Publisher) CloseReceivers() {
	if !p.running.Load() {
		return
	}
	p.sendBuf.append(queuedFrame{bytes: wire.BuildFrame(wire.KeyDieStr, "", false, nil)})

	deadline := time.Now().Add(2 * time.Second)
	for p.sendBuf.len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	for name, sc := range p.reg.snapshot() {
		p.reg.delete(name)
		_ = sc.conn.Close()
	}
}

// Close stops the broadcaster and acceptor, drops all subscribers, and
// closes the listener.
func (p *Publisher) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.closing)
	if p.listener != nil {
		_ = p.listener.Close()
	}
	p.wg.Wait()

	for name, sc := range p.reg.snapshot() {
		p.reg.delete(name)
		_ = sc.conn.Close()
	}
	p.logger.Info("publisher closed")
}

// Addr returns the listener's bound address, valid after Start returns nil.
// Useful with port 0 (let the OS choose a free port), which this package
// supports for embedding and tests.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// NReceivers returns the current registry cardinality.
func (p *Publisher) NReceivers() int { return p.reg.count() }

// Running reports whether Start has completed successfully and Close has
// not yet been called.
func (p *Publisher) Running() bool { return p.running.Load() }

// Receivers returns a read-only snapshot of the subscriber registry.
func (p *Publisher) Receivers() map[string]SubscriberInfo {
	out := make(map[string]SubscriberInfo)
	for name, sc := range p.reg.snapshot() {
		out[name] = SubscriberInfo{Name: sc.name, ConnectedAt: sc.connectedAt, RemoteAddr: sc.remoteAddr}
	}
	return out
}
