package sim

import (
	"container/heap"

	"github.com/filecoin-project/go-chainsim/event"
)

var _ heap.Interface = (*eventQueue)(nil)

// eventQueue is a priority queue that implements heap.Interface and holds
// pending events prioritised by their timestamp in ascending order.
type eventQueue struct {
	pending []*pendingEvent
	// inserted counts insertions and orders events with equal timestamps.
	inserted uint64
}

type pendingEvent struct {
	event.Event
	seq uint64

	index int // Index in the heap used internally by the heap implementation
}

func newEventQueue() *eventQueue {
	var q eventQueue
	heap.Init(&q)
	return &q
}

// Len returns the number of pending events.
func (q *eventQueue) Len() int { return len(q.pending) }

// Less determines whether the event at index i should be dispatched before the
// event at index j. Earlier timestamps come first; events with equal
// timestamps are dispatched in insertion order.
//
// This function is part of heap.Interface and must not be called externally.
func (q *eventQueue) Less(i, j int) bool {
	switch one, other := q.pending[i], q.pending[j]; {
	case one.Timestamp.Equal(other.Timestamp):
		return one.seq < other.seq
	default:
		return one.Timestamp.Before(other.Timestamp)
	}
}

// Swap swaps the events at index i and j.
//
// This function is part of heap.Interface and must not be called externally.
func (q *eventQueue) Swap(i, j int) {
	q.pending[i], q.pending[j] = q.pending[j], q.pending[i]
	q.pending[i].index = i
	q.pending[j].index = j
}

// Push adds an element to this queue.
//
// This function is part of heap.Interface and must not be called externally.
// See: Insert.
func (q *eventQueue) Push(x any) {
	item := x.(*pendingEvent)
	item.index = len(q.pending)
	q.pending = append(q.pending, item)
}

// Pop removes and returns the Len() - 1 element.
//
// This function is part of heap.Interface and must not be called externally.
// See: Remove.
func (q *eventQueue) Pop() any {
	old := q.pending
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	q.pending = old[0 : n-1]
	return item
}

// Insert schedules e.
func (q *eventQueue) Insert(e event.Event) {
	heap.Push(q, &pendingEvent{Event: e, seq: q.inserted})
	q.inserted++
}

// Remove removes and returns the earliest event, if any.
func (q *eventQueue) Remove() (event.Event, bool) {
	if q.Len() == 0 {
		return event.Event{}, false
	}
	return heap.Pop(q).(*pendingEvent).Event, true
}
