package clienttable

import (
	"net"
	"testing"
)

func mustAddr(t *testing.T, s string) *net.UDPAddr {
	t.Helper()
	a, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return a
}

func TestTable_RegisterIsIdempotent(t *testing.T) {
	tbl := New()
	addr := mustAddr(t, "127.0.0.1:9000")
	c1 := tbl.Register(addr, 0)
	c2 := tbl.Register(addr, 10)
	if c1 != c2 {
		t.Fatalf("expected same client on re-registration")
	}
	if tbl.Count() != 1 {
		t.Fatalf("expected 1 client, got %d", tbl.Count())
	}
}

func TestTable_SweepTimeouts(t *testing.T) {
	tbl := New()
	addr := mustAddr(t, "127.0.0.1:9001")
	tbl.Register(addr, 0)
	out := tbl.SweepTimeouts(6000, 5000)
	if len(out) != 1 {
		t.Fatalf("expected 1 timed out client, got %d", len(out))
	}
	if tbl.Count() != 0 {
		t.Fatalf("expected client removed after timeout")
	}
}

func TestClient_AckIgnoresDuplicates(t *testing.T) {
	c := newClient(1, mustAddr(t, "127.0.0.1:9002"), 0)
	c.RecordUnacked(5, []byte("hi"), 100)
	rtt, ok := c.Ack(5, 150)
	if !ok || rtt != 50 {
		t.Fatalf("expected ack with rtt=50, got ok=%v rtt=%v", ok, rtt)
	}
	if _, ok := c.Ack(5, 200); ok {
		t.Fatalf("duplicate ack should be ignored")
	}
}

func TestClient_CongestionWindowSlowStartThenAvoidance(t *testing.T) {
	c := newClient(1, mustAddr(t, "127.0.0.1:9003"), 0)
	c.Ssthresh = 4
	for i := 0; i < 3; i++ {
		c.GrowCongestionWindow()
	}
	if c.Cwnd != 4 {
		t.Fatalf("expected slow-start cwnd=4, got %v", c.Cwnd)
	}
	before := c.Cwnd
	c.GrowCongestionWindow()
	if c.Cwnd <= before || c.Cwnd >= before+1 {
		t.Fatalf("expected avoidance growth < 1, got %v -> %v", before, c.Cwnd)
	}
}

func TestClient_OnTimeoutLossHalvesWindow(t *testing.T) {
	c := newClient(1, mustAddr(t, "127.0.0.1:9004"), 0)
	c.Cwnd = 10
	c.OnTimeoutLoss()
	if c.Ssthresh != 5 || c.Cwnd != 1 {
		t.Fatalf("expected ssthresh=5 cwnd=1, got %v %v", c.Ssthresh, c.Cwnd)
	}
}

func TestClient_SweepRetransmitsThenDrops(t *testing.T) {
	c := newClient(1, mustAddr(t, "127.0.0.1:9005"), 0)
	c.RTOMS = 100
	c.RecordUnacked(1, []byte("x"), 0)

	resend, drop, first := c.Sweep(150, 2)
	if len(resend) != 1 || len(drop) != 0 || !first {
		t.Fatalf("expected first retry, got resend=%d drop=%d first=%v", len(resend), len(drop), first)
	}

	resend, drop, first = c.Sweep(260, 2)
	if len(resend) != 1 || len(drop) != 0 || first {
		t.Fatalf("expected second retry without first-retry flag, got resend=%d drop=%d first=%v", len(resend), len(drop), first)
	}

	resend, drop, _ = c.Sweep(370, 2)
	if len(resend) != 0 || len(drop) != 1 {
		t.Fatalf("expected packet dropped after max retries, got resend=%d drop=%d", len(resend), len(drop))
	}
	if c.UnackedCount() != 0 {
		t.Fatalf("expected unacked ledger drained")
	}
}
