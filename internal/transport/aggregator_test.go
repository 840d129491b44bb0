package transport

import (
	"net"
	"testing"
)

func TestAggregator_FlushesOnDeadline(t *testing.T) {
	var sent [][]byte
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}
	agg := newAggregator(10, 1400, func(_ *net.UDPAddr, data []byte) {
		sent = append(sent, data)
	})
	agg.Enqueue(addr, []byte("abc"), 0)
	agg.Enqueue(addr, []byte("def"), 5)
	agg.FlushDue(9) // before deadline
	if len(sent) != 0 {
		t.Fatalf("expected no flush before deadline, got %d", len(sent))
	}
	agg.FlushDue(10)
	if len(sent) != 1 || string(sent[0]) != "abcdef" {
		t.Fatalf("expected coalesced flush, got %v", sent)
	}
}

func TestAggregator_FlushesOnOverflow(t *testing.T) {
	var sent [][]byte
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}
	agg := newAggregator(1000, 4, func(_ *net.UDPAddr, data []byte) {
		sent = append(sent, append([]byte(nil), data...))
	})
	agg.Enqueue(addr, []byte("ab"), 0)
	agg.Enqueue(addr, []byte("cd"), 1) // fills bucket to maxSize, self-flushes
	agg.Enqueue(addr, []byte("ef"), 2) // starts a fresh bucket
	if len(sent) != 1 || string(sent[0]) != "abcd" {
		t.Fatalf("expected overflow flush of first bucket, got %v", sent)
	}
	agg.FlushAll()
	if len(sent) != 2 || string(sent[1]) != "ef" {
		t.Fatalf("expected second bucket flushed by FlushAll, got %v", sent)
	}
}
