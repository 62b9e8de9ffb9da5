package tdma

import (
	"container/heap"
	"time"
)

// testEvent is one scheduled callback of a testKernel
type testEvent struct {
	when    time.Duration
	seq     int
	context any
	data    any
	handler EventHandlerFunction
}

type testEventHeap []*testEvent

func (teh testEventHeap) Len() int { return len(teh) }

// events at the same time run in the order they were scheduled
func (teh testEventHeap) Less(i, j int) bool {
	if teh[i].when == teh[j].when {
		return teh[i].seq < teh[j].seq
	}
	return teh[i].when < teh[j].when
}

func (teh testEventHeap) Swap(i, j int) { teh[i], teh[j] = teh[j], teh[i] }

func (teh *testEventHeap) Push(x any) {
	*teh = append(*teh, x.(*testEvent))
}

func (teh *testEventHeap) Pop() any {
	old := *teh
	n := len(old)
	evt := old[n-1]
	*teh = old[0 : n-1]
	return evt
}

// testKernel is a deterministic Kernel that only advances when told to
type testKernel struct {
	now    time.Duration
	seq    int
	events testEventHeap
}

func newTestKernel() *testKernel {
	tk := new(testKernel)
	tk.events = testEventHeap{}
	return tk
}

func (tk *testKernel) Now() time.Duration {
	return tk.now
}

func (tk *testKernel) Schedule(context any, data any, handler EventHandlerFunction, after time.Duration) {
	tk.seq += 1
	heap.Push(&tk.events, &testEvent{when: tk.now + after, seq: tk.seq, context: context, data: data, handler: handler})
}

// RunUntil executes, in order, every event due at or before limit and leaves the
// clock at limit
func (tk *testKernel) RunUntil(limit time.Duration) {
	for len(tk.events) > 0 && tk.events[0].when <= limit {
		evt := heap.Pop(&tk.events).(*testEvent)
		tk.now = evt.when
		evt.handler(tk, evt.context, evt.data)
	}
	if tk.now < limit {
		tk.now = limit
	}
}

// Advance moves the clock forward by delta, running what falls due
func (tk *testKernel) Advance(delta time.Duration) {
	tk.RunUntil(tk.now + delta)
}

// Pending is the number of events not yet executed
func (tk *testKernel) Pending() int {
	return len(tk.events)
}
