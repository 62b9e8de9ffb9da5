package tdma

// mac.go holds the StationMac, which ties a station's queue to the grants issued by
// the SlotScheduler and to its Framer.  A grant is spent sending queued packets, head
// first, for as long as the next packet's transmission time fits in what is left of
// it.  A packet that does not fit stays at the head of the queue for a later grant.

import (
	"github.com/google/gopacket/layers"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"net"
	"time"
)

// PacketClass says how a received packet was addressed
type PacketClass int

const (
	PacketHost PacketClass = iota
	PacketBroadcast
	PacketMulticast
	PacketOtherHost
)

var pcToStr map[PacketClass]string = map[PacketClass]string{PacketHost: "host",
	PacketBroadcast: "broadcast", PacketMulticast: "multicast", PacketOtherHost: "otherhost"}

func (pc PacketClass) String() string {
	return pcToStr[pc]
}

// ClassifyDestination places to relative to the station whose address is self
func ClassifyDestination(to, self net.HardwareAddr) PacketClass {
	switch {
	case IsBroadcast(to):
		return PacketBroadcast
	case IsGroup(to):
		return PacketMulticast
	case slices.Equal(to, self):
		return PacketHost
	}
	return PacketOtherHost
}

// MacEventKind names the points in the MAC that observers are told about
type MacEventKind int

const (
	MacTx MacEventKind = iota
	MacTxDrop
	MacRx
	MacPromiscRx
	MacRxDrop
)

var mekToStr map[MacEventKind]string = map[MacEventKind]string{MacTx: "MacTx", MacTxDrop: "MacTxDrop",
	MacRx: "MacRx", MacPromiscRx: "MacPromiscRx", MacRxDrop: "MacRxDrop"}

func (mek MacEventKind) String() string {
	return mekToStr[mek]
}

// MacObserver is told of MAC events.  Observers only watch; they must not
// schedule anything that changes the run.
type MacObserver interface {
	MacEvent(kind MacEventKind, mac *StationMac, pckt *Packet)
}

// UplinkSink takes the packets addressed to the station, to its broadcast address,
// or to a group
type UplinkSink interface {
	ForwardUp(pckt *Packet, from, to net.HardwareAddr, class PacketClass)
}

// PromiscSink takes every packet the station receives
type PromiscSink interface {
	PromiscForwardUp(pckt *Packet, from, to net.HardwareAddr, class PacketClass)
}

// StationMac is the MAC of one station
type StationMac struct {
	station   int
	kernel    Kernel
	framer    *Framer
	queue     *StationQueue
	scheduler *SlotScheduler
	uplink    UplinkSink
	promisc   PromiscSink
	observers []MacObserver
	running   bool
	grants    int
	wasted    int
}

// CreateStationMac is a constructor.  The queue is created here with the given bounds.
func CreateStationMac(station int, kernel Kernel, framer *Framer, scheduler *SlotScheduler,
	maxSize int, maxDelay time.Duration) *StationMac {

	sm := new(StationMac)
	sm.station = station
	sm.kernel = kernel
	sm.framer = framer
	sm.scheduler = scheduler
	sm.queue = CreateStationQueue(kernel, maxSize, maxDelay)
	sm.observers = []MacObserver{}
	return sm
}

func (sm *StationMac) Station() int {
	return sm.station
}

func (sm *StationMac) Address() net.HardwareAddr {
	return sm.framer.Address()
}

func (sm *StationMac) Framer() *Framer {
	return sm.framer
}

func (sm *StationMac) Queue() *StationQueue {
	return sm.queue
}

func (sm *StationMac) Scheduler() *SlotScheduler {
	return sm.scheduler
}

func (sm *StationMac) SetUplink(uplink UplinkSink) {
	sm.uplink = uplink
}

// SetPromisc registers the sink that sees every received packet; nil removes it
func (sm *StationMac) SetPromisc(promisc PromiscSink) {
	sm.promisc = promisc
}

func (sm *StationMac) AddObserver(obs MacObserver) {
	sm.observers = append(sm.observers, obs)
}

// Running reports whether Initialize has been called
func (sm *StationMac) Running() bool {
	return sm.running
}

// Grants is the number of grants received, Wasted the number that found nothing to send
func (sm *StationMac) Grants() int {
	return sm.grants
}

func (sm *StationMac) Wasted() int {
	return sm.wasted
}

// QueueState is 0 when the queue is full and 1 otherwise
func (sm *StationMac) QueueState() int {
	if sm.queue.Len() >= sm.queue.MaxSize() {
		return 0
	}
	return 1
}

// Initialize connects the MAC to its framer and queue and starts the scheduler
func (sm *StationMac) Initialize() {
	sm.running = true
	sm.queue.SetDropObserver(sm)
	sm.framer.SetReceiver(sm)
	sm.scheduler.AddGrantObserver(sm)
	sm.scheduler.Start()
}

func (sm *StationMac) notify(kind MacEventKind, pckt *Packet) {
	for _, obs := range sm.observers {
		obs.MacEvent(kind, sm, pckt)
	}
}

// Enqueue queues pckt for to, as originating at this station
func (sm *StationMac) Enqueue(pckt *Packet, to net.HardwareAddr) {
	sm.EnqueueFrom(pckt, to, sm.Address())
}

// EnqueueFrom queues pckt for to on behalf of from.  A full queue drops pckt.
func (sm *StationMac) EnqueueFrom(pckt *Packet, to, from net.HardwareAddr) {
	hdr := MacHeader{
		Type:  layers.Dot11TypeData,
		Flags: layers.Dot11FlagsFromDS,
		Addr1: to,
		Addr2: sm.Address(),
		Addr3: from,
	}
	if !sm.queue.Enqueue(pckt, hdr) {
		log.WithFields(log.Fields{"station": sm.station, "packet": pckt.String()}).Debug("queue full")
		sm.notify(MacTxDrop, pckt)
	}
}

// StartTransmission spends a grant of budget.  It is also called with what is
// left of the grant after each packet goes out.
func (sm *StationMac) StartTransmission(budget time.Duration) {
	pckt, _, found := sm.queue.Peek()
	if !found {
		return
	}
	txTime := sm.scheduler.TxTime(pckt.Size())
	if txTime < budget {
		sm.kernel.Schedule(sm, onAir{pckt: pckt, remaining: budget - txTime}, sendPacketDown, txTime)
		return
	}
	log.WithFields(log.Fields{"station": sm.station, "txtime": txTime, "budget": budget}).Debug("head packet waits for a later grant")
}

// GrantIssued counts the grants given to this MAC
func (sm *StationMac) GrantIssued(slot, nSlots int, grantee Grantee, budget time.Duration) {
	if grantee != Grantee(sm) {
		return
	}
	sm.grants += 1
	if sm.queue.IsEmpty() {
		sm.wasted += 1
	}
}

// onAir is the packet whose transmission time is running and what will be left of
// the grant when it ends
type onAir struct {
	pckt      *Packet
	remaining time.Duration
}

// sendPacketDown is the event handler for the end of a packet's transmission time
func sendPacketDown(kernel Kernel, context any, data any) any {
	sm := context.(*StationMac)
	tx := data.(onAir)

	// the head may have expired while on the air; its time is spent all the same
	head, hdr, found := sm.queue.Peek()
	if !found || head != tx.pckt {
		sm.StartTransmission(tx.remaining)
		return nil
	}
	sm.queue.Dequeue()
	sm.framer.StartTransmission(head, hdr)
	sm.notify(MacTx, head)
	sm.StartTransmission(tx.remaining)
	return nil
}

// PacketDropped is called by the queue for each packet it expires
func (sm *StationMac) PacketDropped(pckt *Packet) {
	sm.notify(MacTxDrop, pckt)
}

// DropFrame is called by the framer for frames it could not accept
func (sm *StationMac) DropFrame(frame *Packet) {
	sm.notify(MacRxDrop, frame)
}

// ReceiveFrame classifies a packet passed up by the framer and forwards it
func (sm *StationMac) ReceiveFrame(pckt *Packet, hdr MacHeader) {
	sm.forwardUp(pckt, hdr.Addr3, hdr.Addr1)
}

func (sm *StationMac) forwardUp(pckt *Packet, from, to net.HardwareAddr) {
	class := ClassifyDestination(to, sm.Address())
	if class != PacketOtherHost {
		sm.notify(MacRx, pckt)
		if sm.uplink != nil {
			sm.uplink.ForwardUp(pckt, from, to, class)
		}
	}
	if sm.promisc != nil {
		sm.notify(MacPromiscRx, pckt)
		sm.promisc.PromiscForwardUp(pckt, from, to, class)
	}
}
