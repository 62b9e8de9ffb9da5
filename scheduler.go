package tdma

// scheduler.go holds the SlotScheduler, the one coordinator of the TDMA epoch.
// Once started it walks the slots forever.  At each slot it finds the owning
// station, merges the following slots that station also owns into one grant, hands
// the station a transmission budget, and schedules the next grant after the granted
// slots and a guard time.  When the last slot has been granted the walk wraps back to
// slot 0 after an additional inter-frame time.

import (
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"math"
	"time"
)

const (
	DefaultSlotTime       time.Duration = 1100 * time.Microsecond
	DefaultGuardTime      time.Duration = 100 * time.Microsecond
	DefaultInterFrameTime time.Duration = 0
	DefaultStartOffset    time.Duration = 10 * time.Nanosecond
	DefaultBitRate        float64       = 11e6
	DefaultTotalSlots     int           = 10000

	// MaxPacketSize bounds, exclusively, the packets whose transmission time may be asked for
	MaxPacketSize int = 1500
)

var ErrPacketTooLarge = errors.New("packet too large")

// Grantee is a station that can be given time to transmit
type Grantee interface {
	StartTransmission(budget time.Duration)
}

// GrantObserver sees every grant the scheduler issues
type GrantObserver interface {
	GrantIssued(slot, nSlots int, grantee Grantee, budget time.Duration)
}

// SlotScheduler maps slots to grantees and runs the epoch
type SlotScheduler struct {
	kernel         Kernel
	slotTime       time.Duration
	guardTime      time.Duration
	interFrameTime time.Duration
	startOffset    time.Duration
	bitRate        float64
	totalSlots     int
	slots          map[int]Grantee
	active         bool
	epochs         int
	medium         *Medium
	grantObs       []GrantObserver
}

// CreateSlotScheduler is a constructor; all timing parameters take their defaults
func CreateSlotScheduler(kernel Kernel) *SlotScheduler {
	ss := new(SlotScheduler)
	ss.kernel = kernel
	ss.slotTime = DefaultSlotTime
	ss.guardTime = DefaultGuardTime
	ss.interFrameTime = DefaultInterFrameTime
	ss.startOffset = DefaultStartOffset
	ss.bitRate = DefaultBitRate
	ss.totalSlots = DefaultTotalSlots
	ss.slots = make(map[int]Grantee)
	ss.grantObs = []GrantObserver{}
	return ss
}

func (ss *SlotScheduler) SetSlotTime(slotTime time.Duration) {
	ss.slotTime = slotTime
}

func (ss *SlotScheduler) SlotTime() time.Duration {
	return ss.slotTime
}

// SetGuardTime sets the idle time between grants.  When a medium is attached its
// worst case propagation delay is used instead of guardTime.
func (ss *SlotScheduler) SetGuardTime(guardTime time.Duration) {
	if ss.medium != nil {
		ss.guardTime = ss.medium.MaxRangeDelay()
		return
	}
	ss.guardTime = guardTime
}

func (ss *SlotScheduler) GuardTime() time.Duration {
	return ss.guardTime
}

func (ss *SlotScheduler) SetInterFrameTime(interFrameTime time.Duration) {
	ss.interFrameTime = interFrameTime
}

func (ss *SlotScheduler) InterFrameTime() time.Duration {
	return ss.interFrameTime
}

// SetStartOffset is the delay between Start and the first grant
func (ss *SlotScheduler) SetStartOffset(offset time.Duration) {
	ss.startOffset = offset
}

// SetBitRate sets the transmission rate in bits per second
func (ss *SlotScheduler) SetBitRate(bps float64) {
	if !(bps > 0.0) {
		panic(fmt.Errorf("bit rate must be positive, got %g", bps))
	}
	ss.bitRate = bps
}

func (ss *SlotScheduler) BitRate() float64 {
	return ss.bitRate
}

// SetTotalSlotsAllowed sets the epoch length in slots.  Any slots already added are forgotten.
func (ss *SlotScheduler) SetTotalSlotsAllowed(total int) {
	ss.totalSlots = total
	ss.slots = make(map[int]Grantee)
}

func (ss *SlotScheduler) TotalSlotsAllowed() int {
	return ss.totalSlots
}

func (ss *SlotScheduler) SetMedium(md *Medium) {
	ss.medium = md
}

func (ss *SlotScheduler) Medium() *Medium {
	return ss.medium
}

// AddGrantObserver registers obs to be told of every grant
func (ss *SlotScheduler) AddGrantObserver(obs GrantObserver) {
	ss.grantObs = append(ss.grantObs, obs)
}

// AddSlot gives slot to grantee.  A slot that already has an owner keeps it; the
// attempt is logged and false returned.
func (ss *SlotScheduler) AddSlot(slot int, grantee Grantee) bool {
	if _, present := ss.slots[slot]; present {
		log.WithFields(log.Fields{"slot": slot}).Warn("slot already has an owner")
		return false
	}
	ss.slots[slot] = grantee
	return true
}

// Owner returns the grantee of slot
func (ss *SlotScheduler) Owner(slot int) (Grantee, bool) {
	grantee, present := ss.slots[slot]
	return grantee, present
}

// Active reports whether the epoch has been started
func (ss *SlotScheduler) Active() bool {
	return ss.active
}

// Epochs counts the completed passes through all slots
func (ss *SlotScheduler) Epochs() int {
	return ss.epochs
}

// Start begins the epoch after the start offset.  Calling it again does nothing.
func (ss *SlotScheduler) Start() {
	if ss.active {
		return
	}
	ss.active = true
	ss.kernel.Schedule(ss, 0, slotSession, ss.startOffset)
}

// StartSessions begins the epoch at slot 0 now.  It does nothing once the epoch is running.
func (ss *SlotScheduler) StartSessions() {
	if ss.active {
		return
	}
	ss.active = true
	ss.session(0)
}

// TxTime is the time needed to send size bytes at the configured bit rate.
// Asking about a packet of MaxPacketSize bytes or more is a configuration error.
func (ss *SlotScheduler) TxTime(size int) time.Duration {
	if size >= MaxPacketSize {
		panic(fmt.Errorf("%w: %d bytes, limit is %d", ErrPacketTooLarge, size, MaxPacketSize))
	}
	secs := float64(size*8) / ss.bitRate
	return time.Duration(math.Round(secs * 1e9))
}

// slotSession is the event handler for the start of the grant at slot data
func slotSession(kernel Kernel, context any, data any) any {
	ss := context.(*SlotScheduler)
	ss.session(data.(int))
	return nil
}

// session issues the grant starting at slot and schedules the next one
func (ss *SlotScheduler) session(slot int) {
	nSlots := 1
	grantee, present := ss.slots[slot]
	if !present {
		log.WithFields(log.Fields{"slot": slot, "time": ss.kernel.Now()}).Warn("no station assigned to slot")
	} else {
		for slot+nSlots < ss.totalSlots {
			nxt, found := ss.slots[slot+nSlots]
			if !found || nxt != grantee {
				break
			}
			nSlots += 1
		}
		budget := time.Duration(nSlots) * ss.slotTime
		log.WithFields(log.Fields{"slot": slot, "slots": nSlots, "budget": budget}).Debug("grant")
		for _, obs := range ss.grantObs {
			obs.GrantIssued(slot, nSlots, grantee, budget)
		}
		grantee.StartTransmission(budget)
	}

	wait := ss.guardTime + time.Duration(nSlots)*ss.slotTime
	nxtSlot := slot + nSlots
	if nxtSlot >= ss.totalSlots {
		nxtSlot = 0
		wait += ss.interFrameTime
		ss.epochs += 1
	}
	ss.kernel.Schedule(ss, nxtSlot, slotSession, wait)
}
