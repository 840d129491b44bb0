package clienttable

import (
	"net"
	"sync"

	"github.com/kstaniek/zl-offload/internal/logging"
	"github.com/kstaniek/zl-offload/internal/metrics"
)

// Table is the transport's client registry (§4.2), keyed by remote
// address. The lock is held only across map mutations, per §5.
type Table struct {
	mu     sync.RWMutex
	byAddr map[string]*Client
	nextID uint32
}

// New constructs an empty Table.
func New() *Table {
	return &Table{byAddr: make(map[string]*Client), nextID: 1}
}

// Register returns the existing client for addr, or creates one. Per §4.2
// this is idempotent: the same address always resolves to the same entry.
func (t *Table) Register(addr *net.UDPAddr, nowMS uint64) *Client {
	key := addr.String()
	t.mu.RLock()
	c, ok := t.byAddr[key]
	t.mu.RUnlock()
	if ok {
		c.Touch(nowMS)
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.byAddr[key]; ok {
		c.Touch(nowMS)
		return c
	}
	id := t.nextID
	t.nextID++
	c = newClient(id, addr, nowMS)
	t.byAddr[key] = c
	metrics.SetClientsActive(len(t.byAddr))
	logging.L().Info("client_registered", "client_id", id, "remote", key)
	return c
}

// Lookup returns the client for addr without creating one.
func (t *Table) Lookup(addr *net.UDPAddr) (*Client, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byAddr[addr.String()]
	return c, ok
}

// Remove unregisters the client for addr, if present.
func (t *Table) Remove(addr *net.UDPAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := addr.String()
	if _, ok := t.byAddr[key]; !ok {
		return
	}
	delete(t.byAddr, key)
	metrics.SetClientsActive(len(t.byAddr))
}

// Snapshot returns a copy of the list of registered clients, for
// iteration without holding the table lock (§5). The *Client values are
// the live entries, not copies.
func (t *Table) Snapshot() []*Client {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Client, 0, len(t.byAddr))
	for _, c := range t.byAddr {
		out = append(out, c)
	}
	return out
}

// Count returns the number of registered clients.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byAddr)
}

// SweepTimeouts removes every client whose LastActiveMS predates
// nowMS-timeoutMS, marking it TIMED_OUT first so callers can raise a
// disconnect event before the entry disappears (§4.2).
func (t *Table) SweepTimeouts(nowMS, timeoutMS uint64) []*Client {
	var timedOut []*Client
	t.mu.Lock()
	for key, c := range t.byAddr {
		c.mu.Lock()
		stale := nowMS-c.LastActiveMS > timeoutMS
		if stale {
			c.State = StateTimedOut
		}
		c.mu.Unlock()
		if stale {
			timedOut = append(timedOut, c)
			delete(t.byAddr, key)
		}
	}
	if len(timedOut) > 0 {
		metrics.SetClientsActive(len(t.byAddr))
	}
	t.mu.Unlock()
	for range timedOut {
		metrics.IncClientsTimedOut()
	}
	return timedOut
}
