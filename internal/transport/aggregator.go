package transport

import (
	"net"
	"sync"
)

// smallPayloadLimit is the per-packet size below which a datagram is a
// candidate for aggregation (§4.2: "small (<1 KiB) payloads").
const smallPayloadLimit = 1024

// bucket holds datagrams queued for one remote address, concatenated
// back-to-back so the receiver can split them with wire.DeserializeAll.
type bucket struct {
	addr       *net.UDPAddr
	buf        []byte
	deadlineMS uint64
}

// aggregator implements the small-packet coalescing of §4.2: up to
// max_aggregation_size bytes addressed to the same client are buffered for
// aggregation_time_ms and flushed as one datagram, or earlier if the bucket
// would overflow.
type aggregator struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	windowMS uint64
	maxSize  int
	send     func(addr *net.UDPAddr, data []byte)
}

func newAggregator(windowMS uint64, maxSize int, send func(*net.UDPAddr, []byte)) *aggregator {
	return &aggregator{buckets: make(map[string]*bucket), windowMS: windowMS, maxSize: maxSize, send: send}
}

// Enqueue adds data to addr's bucket, flushing the existing bucket first if
// data would overflow it. Callers must not call Enqueue for payloads at or
// above smallPayloadLimit; send those directly instead.
func (a *aggregator) Enqueue(addr *net.UDPAddr, data []byte, nowMS uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := addr.String()
	b, ok := a.buckets[key]
	if ok && len(b.buf)+len(data) > a.maxSize {
		a.flushLocked(key, b)
		b, ok = nil, false
	}
	if !ok {
		b = &bucket{addr: addr, deadlineMS: nowMS + a.windowMS}
		a.buckets[key] = b
	}
	b.buf = append(b.buf, data...)
	if len(b.buf) >= a.maxSize {
		a.flushLocked(key, b)
	}
}

// FlushDue sends every bucket whose deadline has passed.
func (a *aggregator) FlushDue(nowMS uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, b := range a.buckets {
		if nowMS >= b.deadlineMS {
			a.flushLocked(key, b)
		}
	}
}

// FlushAll sends every pending bucket regardless of deadline, for shutdown.
func (a *aggregator) FlushAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, b := range a.buckets {
		a.flushLocked(key, b)
	}
}

// flushLocked sends and removes a bucket. Caller must hold a.mu.
func (a *aggregator) flushLocked(key string, b *bucket) {
	if len(b.buf) > 0 {
		a.send(b.addr, b.buf)
	}
	delete(a.buckets, key)
}
