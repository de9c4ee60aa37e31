// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package pubsub_test exercises the real publisher and subscriber packages
// together end to end, covering spec.md §8's literal scenarios.
package pubsub_test

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nishisan-dev/fanoutd/internal/pubsub/publisher"
	"github.com/nishisan-dev/fanoutd/internal/pubsub/subscriber"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// addrParts extracts a dialable host/port pair from a publisher's bound
// address. Start() binds on "" (all interfaces), so Addr().String() may
// come back as "[::]:port" or "0.0.0.0:port" rather than something a
// subscriber can dial directly; the loopback address is always reachable
// for a listener bound to all interfaces.
func addrParts(t *testing.T, addr net.Addr) (string, int) {
	t.Helper()
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi: %v", err)
	}
	return "127.0.0.1", port
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

// TestEndToEndRawBroadcast is spec.md §8 scenario 1: a subscriber's handler
// receives a raw payload exactly once.
func TestEndToEndRawBroadcast(t *testing.T) {
	pub := publisher.New(0, 2, publisher.WithLogger(discardLogger()))
	if err := pub.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pub.Close()
	host, port := addrParts(t, pub.Addr())

	var mu sync.Mutex
	var calls int
	var lastTag string
	var lastData []byte

	sub := subscriber.New(host, port, "A",
		subscriber.WithLogger(discardLogger()), subscriber.WithConnectWait(30*time.Millisecond))
	sub.SetProcess(func(data any, tag string) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		lastTag = tag
		lastData, _ = data.([]byte)
	})
	sub.Connect()
	defer sub.Close()

	waitFor(t, 2*time.Second, func() bool { return pub.NReceivers() == 1 })

	if !pub.TellRaw([]byte("hello"), "t") {
		t.Fatal("TellRaw returned false")
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("handler invoked %d times, want exactly 1", calls)
	}
	if lastTag != "t" {
		t.Errorf("tag = %q, want t", lastTag)
	}
	if !bytes.Equal(lastData, []byte("hello")) {
		t.Errorf("data = %q, want hello", lastData)
	}
}

// TestEndToEndTypedValue is spec.md §8 scenario 2: a typed mapping
// round-trips through Tell(unpack=true), and the int64, float64 and bool
// values keep their Go types. A time.Time value does not: it decodes as a
// wire.ZonedTime, so ts is sent but not compared here.
func TestEndToEndTypedValue(t *testing.T) {
	pub := publisher.New(0, 2, publisher.WithLogger(discardLogger()))
	if err := pub.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pub.Close()
	host, port := addrParts(t, pub.Addr())

	resultCh := make(chan any, 1)
	sub := subscriber.New(host, port, "A",
		subscriber.WithLogger(discardLogger()), subscriber.WithConnectWait(30*time.Millisecond))
	sub.SetProcess(func(data any, tag string) { resultCh <- data })
	sub.Connect()
	defer sub.Close()

	waitFor(t, 2*time.Second, func() bool { return pub.NReceivers() == 1 })

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	v := map[string]any{"n": int64(3), "x": 1.5, "ok": true, "ts": ts}
	if !pub.Tell(v, "", true) {
		t.Fatal("Tell returned false")
	}

	select {
	case got := <-resultCh:
		m, ok := got.(map[string]any)
		if !ok {
			t.Fatalf("got %T, want map[string]any", got)
		}
		if m["n"] != int64(3) {
			t.Errorf("n = %v, want 3", m["n"])
		}
		if m["x"] != 1.5 {
			t.Errorf("x = %v, want 1.5", m["x"])
		}
		if m["ok"] != true {
			t.Errorf("ok = %v, want true", m["ok"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler")
	}
}

// TestEndToEndFramingStress is spec.md §8 scenario 3: payloads containing
// the raw END marker bytes round-trip exactly, one handler call each.
func TestEndToEndFramingStress(t *testing.T) {
	pub := publisher.New(0, 2, publisher.WithLogger(discardLogger()))
	if err := pub.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pub.Close()
	host, port := addrParts(t, pub.Addr())

	type call struct{ data []byte }
	callsCh := make(chan call, 8)

	sub := subscriber.New(host, port, "A",
		subscriber.WithLogger(discardLogger()), subscriber.WithConnectWait(30*time.Millisecond))
	sub.SetProcess(func(data any, tag string) {
		b, _ := data.([]byte)
		callsCh <- call{data: append([]byte{}, b...)}
	})
	sub.Connect()
	defer sub.Close()

	waitFor(t, 2*time.Second, func() bool { return pub.NReceivers() == 1 })

	payloads := [][]byte{
		{0xAC, 0x96},
		{0xAC, 0x96, 0xAC, 0x96},
	}
	for _, p := range payloads {
		if !pub.TellRaw(p, "") {
			t.Fatal("TellRaw returned false")
		}
	}

	for i, want := range payloads {
		select {
		case got := <-callsCh:
			if !bytes.Equal(got.data, want) {
				t.Errorf("call %d: data = %x, want %x", i, got.data, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for call %d", i)
		}
	}
}

// TestEndToEndPingAliveDead is spec.md §8 scenario 4: Ping reports a dead
// subscriber and the registry forgets it.
func TestEndToEndPingAliveDead(t *testing.T) {
	pub := publisher.New(0, 2,
		publisher.WithLogger(discardLogger()), publisher.WithTimeoutACK(300*time.Millisecond))
	if err := pub.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pub.Close()
	host, port := addrParts(t, pub.Addr())

	subA := subscriber.New(host, port, "A",
		subscriber.WithLogger(discardLogger()), subscriber.WithConnectWait(30*time.Millisecond))
	subA.Connect()
	defer subA.Close()

	subB := subscriber.New(host, port, "B",
		subscriber.WithLogger(discardLogger()), subscriber.WithConnectWait(30*time.Millisecond))
	subB.Connect()

	waitFor(t, 2*time.Second, func() bool { return pub.NReceivers() == 2 })

	subB.Close() // B vanishes without telling the publisher

	waitFor(t, time.Second, func() bool { return !subB.Connected() })

	var results map[string]*bool
	waitFor(t, 2*time.Second, func() bool {
		results = pub.Ping()
		return results != nil
	})

	if v, ok := results["A"]; !ok || v == nil || !*v {
		t.Errorf("results[A] = %v, want true", results["A"])
	}
	if v, ok := results["B"]; ok && v != nil && *v {
		t.Errorf("results[B] = %v, want false or absent", results["B"])
	}

	waitFor(t, 2*time.Second, func() bool { return pub.NReceivers() == 1 })
}

// TestEndToEndReconnect is spec.md §8 scenario 6: after the publisher
// restarts, a subscriber with Connect()=true re-handshakes.
func TestEndToEndReconnect(t *testing.T) {
	pub := publisher.New(0, 2, publisher.WithLogger(discardLogger()))
	if err := pub.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	host, port := addrParts(t, pub.Addr())

	sub := subscriber.New(host, port, "A",
		subscriber.WithLogger(discardLogger()), subscriber.WithConnectWait(50*time.Millisecond))
	sub.Connect()
	defer sub.Close()

	waitFor(t, 2*time.Second, func() bool { return pub.NReceivers() == 1 })

	pub.Close()
	waitFor(t, 2*time.Second, func() bool { return !sub.Connected() })

	pub2 := publisher.New(port, 2, publisher.WithLogger(discardLogger()))
	if err := pub2.Start(); err != nil {
		t.Fatalf("restarting publisher on same port: %v", err)
	}
	defer pub2.Close()

	waitFor(t, 500*time.Millisecond*3, func() bool { return pub2.NReceivers() == 1 })
}
