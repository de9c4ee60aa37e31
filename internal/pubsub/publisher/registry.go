// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package publisher

import (
	"net"
	"sync"
	"time"
)

// subscriberConn is one registry entry: the live connection for a named
// subscriber plus the metadata an observer (Receivers) can read safely.
// Grounded on the teacher's ControlConnInfo (internal/server/handler.go):
// one struct per named connection, a dedicated write mutex so the
// broadcaster and any synchronous helper never race a concurrent write.
type subscriberConn struct {
	name        string
	conn        net.Conn
	connectedAt time.Time
	remoteAddr  string

	writeMu sync.Mutex
}

// SubscriberInfo is the read-only view of a registry entry returned by
// Publisher.Receivers.
type SubscriberInfo struct {
	Name        string
	ConnectedAt time.Time
	RemoteAddr  string
}

// registry is the publisher-side subscriber registry: name -> *subscriberConn.
// Mirrors the teacher's controlConns sync.Map keyed by agent name. Reads and
// mutations come from the acceptor, the broadcaster, and dropped-connection
// cleanup, so a sync.Map (rather than a map+mutex) keeps read-heavy
// broadcast iteration lock-free while writes stay rare (admit/drop).
type registry struct {
	conns sync.Map // string -> *subscriberConn
}

func (r *registry) get(name string) (*subscriberConn, bool) {
	v, ok := r.conns.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*subscriberConn), true
}

func (r *registry) put(sc *subscriberConn) {
	r.conns.Store(sc.name, sc)
}

func (r *registry) delete(name string) {
	r.conns.Delete(name)
}

// snapshot returns a point-in-time copy of the registry, safe to iterate
// without holding any lock that could block a concurrent admit/drop. This
// is the "snapshot-iteration" discipline spec.md §5 requires of the shared
// subscriber registry.
func (r *registry) snapshot() map[string]*subscriberConn {
	out := make(map[string]*subscriberConn)
	r.conns.Range(func(k, v any) bool {
		out[k.(string)] = v.(*subscriberConn)
		return true
	})
	return out
}

func (r *registry) count() int {
	n := 0
	r.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
