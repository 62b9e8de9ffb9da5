package tdma

// kernel.go connects the TDMA model to a discrete-event kernel. The model only ever
// asks for the current virtual time and for a callback to be run some duration from now.

import (
	"fmt"
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"math"
	"time"
)

// EventHandlerFunction is the signature of every callback the model schedules.
// context identifies the object the event is executed for (a station, the scheduler),
// data carries whatever the handler needs.
type EventHandlerFunction func(kernel Kernel, context any, data any) any

// Clock reports the current virtual time
type Clock interface {
	Now() time.Duration
}

// Kernel is the host simulation kernel as seen by the model
type Kernel interface {
	Clock
	Schedule(context any, data any, handler EventHandlerFunction, after time.Duration)
}

// EvtmKernel drives the model from an evtm event manager.  The model works in
// nanoseconds, so the vrtime ticker must run at one tick per nanosecond.
type EvtmKernel struct {
	EvtMgr *evtm.EventManager
}

// TicksPerSecond is the vrtime ticker frequency EvtmKernel requires
const TicksPerSecond int64 = 1_000_000_000

// CreateEvtmKernel is a constructor.  It sets the process-wide vrtime ticker to
// TicksPerSecond; vrtime's default of one tick per microsecond would round every
// propagation delay and transmission time.
func CreateEvtmKernel(evtMgr *evtm.EventManager) *EvtmKernel {
	if vrtime.TicksPerSecond != TicksPerSecond {
		vrtime.SetTicksPerSecond(TicksPerSecond)
	}
	ek := new(EvtmKernel)
	ek.EvtMgr = evtMgr
	return ek
}

// Now reads the event manager's clock, one tick per nanosecond
func (ek *EvtmKernel) Now() time.Duration {
	ek.checkTicker()
	return time.Duration(ek.EvtMgr.CurrentTicks())
}

// Schedule wraps handler so that it is called with this kernel rather than the event manager
func (ek *EvtmKernel) Schedule(context any, data any, handler EventHandlerFunction, after time.Duration) {
	ek.checkTicker()
	wrapped := func(evtMgr *evtm.EventManager, cxt any, d any) any {
		return handler(ek, cxt, d)
	}
	ek.EvtMgr.Schedule(context, data, wrapped, vrtime.CreateTime(after.Nanoseconds(), 0))
}

// checkTicker panics if the ticker was changed after the kernel was created
func (ek *EvtmKernel) checkTicker() {
	if vrtime.TicksPerSecond != TicksPerSecond {
		panic(fmt.Errorf("vrtime ticks per second is %d, the kernel needs %d", vrtime.TicksPerSecond, TicksPerSecond))
	}
}

// SecondsToDuration rounds a time in seconds to the nearest nanosecond
func SecondsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * 1e9))
}
