package tdma

import (
	"testing"
	"time"
)

type dropRecorder struct {
	dropped []*Packet
}

func (dr *dropRecorder) PacketDropped(pckt *Packet) {
	dr.dropped = append(dr.dropped, pckt)
}

func TestQueueFIFO(t *testing.T) {
	tk := newTestKernel()
	sq := CreateStationQueue(tk, 10, time.Second)
	pckts := []*Packet{CreatePacketOfSize(10), CreatePacketOfSize(20), CreatePacketOfSize(30)}
	for _, pckt := range pckts {
		if !sq.Enqueue(pckt, MacHeader{}) {
			t.Fatalf("enqueue refused")
		}
	}
	if head, _, _ := sq.Peek(); head != pckts[0] {
		t.Fatalf("peek returned %v", head)
	}
	for _, want := range pckts {
		got, _, found := sq.Dequeue()
		if !found || got != want {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if !sq.IsEmpty() {
		t.Fatalf("queue should be empty")
	}
	if _, _, found := sq.Dequeue(); found {
		t.Fatalf("dequeue from empty queue succeeded")
	}
}

func TestQueueFull(t *testing.T) {
	tk := newTestKernel()
	sq := CreateStationQueue(tk, 2, time.Second)
	sq.Enqueue(CreatePacketOfSize(1), MacHeader{})
	sq.Enqueue(CreatePacketOfSize(1), MacHeader{})
	if sq.Enqueue(CreatePacketOfSize(1), MacHeader{}) {
		t.Fatalf("full queue accepted a packet")
	}
	if sq.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", sq.Len())
	}
}

func TestQueueExpiry(t *testing.T) {
	tk := newTestKernel()
	sq := CreateStationQueue(tk, 10, 10*time.Millisecond)
	dr := &dropRecorder{}
	sq.SetDropObserver(dr)

	old := CreatePacketOfSize(1)
	sq.Enqueue(old, MacHeader{})
	tk.Advance(5 * time.Millisecond)
	young := CreatePacketOfSize(1)
	sq.Enqueue(young, MacHeader{})

	// exactly maxDelay old is still held
	tk.Advance(5 * time.Millisecond)
	if head, _, _ := sq.Peek(); head != old {
		t.Fatalf("packet aged exactly the maximum delay was dropped")
	}

	tk.Advance(time.Nanosecond)
	head, _, found := sq.Peek()
	if !found || head != young {
		t.Fatalf("expected the younger packet at the head, got %v", head)
	}
	if len(dr.dropped) != 1 || dr.dropped[0] != old {
		t.Fatalf("expected one drop of the old packet, got %v", dr.dropped)
	}

	tk.Advance(10 * time.Millisecond)
	if !sq.IsEmpty() {
		t.Fatalf("expired packet still queued")
	}
	if len(dr.dropped) != 2 {
		t.Fatalf("expected 2 drops, got %d", len(dr.dropped))
	}
}

func TestQueueExpiryFreesSpace(t *testing.T) {
	tk := newTestKernel()
	sq := CreateStationQueue(tk, 1, time.Millisecond)
	sq.Enqueue(CreatePacketOfSize(1), MacHeader{})
	tk.Advance(2 * time.Millisecond)
	if !sq.Enqueue(CreatePacketOfSize(1), MacHeader{}) {
		t.Fatalf("expired packet kept its place")
	}
}

func TestQueueRemoveAndFlush(t *testing.T) {
	tk := newTestKernel()
	sq := CreateStationQueue(tk, 10, time.Second)
	a, b := CreatePacketOfSize(1), CreatePacketOfSize(1)
	sq.Enqueue(a, MacHeader{})
	sq.Enqueue(b, MacHeader{})

	if sq.Remove(a.Copy()) {
		t.Fatalf("copy matched the queued packet")
	}
	if !sq.Remove(a) {
		t.Fatalf("queued packet not removed")
	}
	if head, _, _ := sq.Peek(); head != b {
		t.Fatalf("expected b at head")
	}
	sq.Flush()
	if sq.Len() != 0 {
		t.Fatalf("flush left %d items", sq.Len())
	}
}

func TestQueueKeepsHeader(t *testing.T) {
	tk := newTestKernel()
	sq := CreateStationQueue(tk, 10, time.Second)
	hdr := MacHeader{Addr1: StationAddress(4), Addr2: StationAddress(1)}
	sq.Enqueue(CreatePacketOfSize(1), hdr)
	_, got, _ := sq.Dequeue()
	if got.Addr1.String() != hdr.Addr1.String() || got.Addr2.String() != hdr.Addr2.String() {
		t.Fatalf("header changed in the queue: %v", got)
	}
}
