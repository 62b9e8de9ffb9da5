package tdma

// mac-queue.go holds the outbound FIFO of a station.  The queue is bounded in
// the number of packets it holds and in how long a packet may wait.  Expired packets
// are found lazily, on each Enqueue, Dequeue, Peek and IsEmpty.

import (
	"time"
)

const (
	DefaultQueueMaxSize  int           = 400
	DefaultQueueMaxDelay time.Duration = 10 * time.Second
)

// DropObserver is told about every packet the queue discards on its own
type DropObserver interface {
	PacketDropped(pckt *Packet)
}

type queueItem struct {
	pckt   *Packet
	hdr    MacHeader
	tstamp time.Duration
}

// StationQueue is the bounded, age-aware FIFO of one station
type StationQueue struct {
	clock    Clock
	maxSize  int
	maxDelay time.Duration
	items    []queueItem
	observer DropObserver
}

// CreateStationQueue is a constructor
func CreateStationQueue(clock Clock, maxSize int, maxDelay time.Duration) *StationQueue {
	sq := new(StationQueue)
	sq.clock = clock
	sq.maxSize = maxSize
	sq.maxDelay = maxDelay
	sq.items = []queueItem{}
	return sq
}

// SetDropObserver registers the observer of evictions
func (sq *StationQueue) SetDropObserver(obs DropObserver) {
	sq.observer = obs
}

func (sq *StationQueue) SetMaxSize(maxSize int) {
	sq.maxSize = maxSize
}

func (sq *StationQueue) MaxSize() int {
	return sq.maxSize
}

func (sq *StationQueue) SetMaxDelay(maxDelay time.Duration) {
	sq.maxDelay = maxDelay
}

func (sq *StationQueue) MaxDelay() time.Duration {
	return sq.maxDelay
}

// Enqueue appends pckt with the current time.  It returns false, changing nothing,
// when the queue is full once expired packets are gone.
func (sq *StationQueue) Enqueue(pckt *Packet, hdr MacHeader) bool {
	sq.cleanup()
	if len(sq.items) >= sq.maxSize {
		return false
	}
	sq.items = append(sq.items, queueItem{pckt: pckt, hdr: hdr, tstamp: sq.clock.Now()})
	return true
}

// Dequeue removes and returns the head packet
func (sq *StationQueue) Dequeue() (*Packet, MacHeader, bool) {
	sq.cleanup()
	if len(sq.items) == 0 {
		return nil, MacHeader{}, false
	}
	item := sq.items[0]
	sq.items[0] = queueItem{}
	sq.items = sq.items[1:]
	return item.pckt, item.hdr, true
}

// Peek returns the head packet without removing it
func (sq *StationQueue) Peek() (*Packet, MacHeader, bool) {
	sq.cleanup()
	if len(sq.items) == 0 {
		return nil, MacHeader{}, false
	}
	return sq.items[0].pckt, sq.items[0].hdr, true
}

// Remove takes out the first item holding pckt itself
func (sq *StationQueue) Remove(pckt *Packet) bool {
	for idx, item := range sq.items {
		if item.pckt == pckt {
			sq.items = append(sq.items[:idx], sq.items[idx+1:]...)
			return true
		}
	}
	return false
}

func (sq *StationQueue) IsEmpty() bool {
	sq.cleanup()
	return len(sq.items) == 0
}

// Len counts what is held, expired or not
func (sq *StationQueue) Len() int {
	return len(sq.items)
}

// Flush empties the queue without notifying anyone
func (sq *StationQueue) Flush() {
	sq.items = []queueItem{}
}

// cleanup drops every item older than maxDelay, telling the observer about each
func (sq *StationQueue) cleanup() {
	if len(sq.items) == 0 {
		return
	}
	now := sq.clock.Now()
	kept := sq.items[:0]
	expired := []*Packet{}
	for _, item := range sq.items {
		if now-item.tstamp > sq.maxDelay {
			expired = append(expired, item.pckt)
			continue
		}
		kept = append(kept, item)
	}
	for idx := len(kept); idx < len(sq.items); idx++ {
		sq.items[idx] = queueItem{}
	}
	sq.items = kept

	if sq.observer != nil {
		for _, pckt := range expired {
			sq.observer.PacketDropped(pckt)
		}
	}
}
