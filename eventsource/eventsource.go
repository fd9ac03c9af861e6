// Package eventsource implements the Event Source contract (§3) and the
// Queued Event Source (§4.4), the dynamic event buffer used to inject
// timestamped values from outside the process.
package eventsource

import (
	"container/heap"
	"sync"

	"mcf/timestamp"
	"mcf/trace"
	"mcf/value"
)

// Source is the four-operation Event Source trait. PeekNext reports the
// next pending event without consuming it; Fire consumes and delivers it.
// IsFinished reports whether the source will produce no events beyond
// those PeekNext can still report.
type Source interface {
	PeekNext() (ts timestamp.Timestamp, topic string, ok bool)
	Fire()
	IsFinished() bool
}

// Dropper is an optional capability a Source may implement to support
// dropping its next event without firing it (defaults to false/no-op for
// sources that don't implement it, replacing the reference design's
// virtual method with a default body).
type Dropper interface {
	Drop() bool
}

// DropNext drops s's next event if s implements Dropper, otherwise it is
// a no-op returning false.
func DropNext(s Source) bool {
	if d, ok := s.(Dropper); ok {
		return d.Drop()
	}
	return false
}

type queueEntry struct {
	ts              timestamp.Timestamp
	seq             uint64 // insertion order, breaks timestamp ties
	topic           string
	value           value.Value
	producerComp    string
	producerPort    string
}

type eventHeap []queueEntry

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].ts != h[j].ts {
		return h[i].ts < h[j].ts
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(queueEntry)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// QueuedSource is a priority queue of (timestamp, topic, value, producer)
// entries, implementing Source. It notifies an owning scheduler via the
// notify callback supplied at construction whenever a new event is
// pushed that might need the scheduler to re-evaluate its next event —
// the scheduler side of this (package timing) wires notify through a
// weak reference to itself, so a torn-down scheduler never keeps a
// QueuedSource alive and a notification after teardown is a silent no-op.
type QueuedSource struct {
	mu       sync.Mutex
	store    value.Store
	notify   func(Source)
	trace    trace.Generator
	queue    eventHeap
	nextSeq  uint64
	finished bool
}

// NewQueued creates a QueuedSource publishing fired events to store.
// notify, if non-nil, is invoked after every PushNewEvent.
func NewQueued(store value.Store, notify func(Source)) *QueuedSource {
	return &QueuedSource{
		store:  store,
		notify: notify,
		trace:  trace.Noop,
	}
}

// UseTraceGenerator installs a trace generator used to emit a
// "set queued event value" notification immediately before each Fire.
func (s *QueuedSource) UseTraceGenerator(g trace.Generator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g != nil {
		s.trace = g
	}
}

// PeekNext returns the smallest-timestamp entry without consuming it. If
// several entries share a timestamp, the one inserted earliest is
// reported, matching the reference multimap's iteration order.
func (s *QueuedSource) PeekNext() (timestamp.Timestamp, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return 0, "", false
	}
	return s.queue[0].ts, s.queue[0].topic, true
}

// Fire removes the smallest-timestamp entry and publishes its value to
// its topic. It is a no-op if the queue is empty.
func (s *QueuedSource) Fire() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	e := heap.Pop(&s.queue).(queueEntry)
	gen := s.trace
	store := s.store
	s.mu.Unlock()

	gen.SetQueuedEventValue(e.topic, e.value, e.producerComp, e.producerPort)
	_ = store.SetValue(e.topic, e.value)
}

// IsFinished reports whether SetEventSourceFinished(true) has been
// called. It does not consider the queue's emptiness: a finished source
// may still have a drained tail and an unfinished one may be empty
// awaiting more pushes.
func (s *QueuedSource) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// PushNewEvent inserts a new entry and notifies the owning scheduler.
// Notification happens with the source's own mutex released (§5).
func (s *QueuedSource) PushNewEvent(ts timestamp.Timestamp, topic string, v value.Value, component, port string) {
	s.mu.Lock()
	e := queueEntry{ts: ts, seq: s.nextSeq, topic: topic, value: v, producerComp: component, producerPort: port}
	s.nextSeq++
	heap.Push(&s.queue, e)
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(s)
	}
}

// ClearEventQueue discards every pending entry.
func (s *QueuedSource) ClearEventQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
}

// SeekQueuedEvent drops every entry strictly before ts. It returns true
// iff at least one entry was dropped.
func (s *QueuedSource) SeekQueuedEvent(ts timestamp.Timestamp) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.queue)
	if before == 0 {
		return false
	}

	kept := s.queue[:0]
	for _, e := range s.queue {
		if e.ts >= ts {
			kept = append(kept, e)
		}
	}
	s.queue = kept
	heap.Init(&s.queue)
	return len(s.queue) < before
}

// SetEventSourceFinished sets or clears the finished flag.
func (s *QueuedSource) SetEventSourceFinished(finished bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = finished
}

// GetEventQueueInfo reports the queue's current size and the timestamps
// of its earliest and latest pending entries (zero if empty).
func (s *QueuedSource) GetEventQueueInfo() (size int, firstTime, lastTime timestamp.Timestamp) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return 0, 0, 0
	}

	first, last := s.queue[0].ts, s.queue[0].ts
	for _, e := range s.queue {
		if e.ts < first {
			first = e.ts
		}
		if e.ts > last {
			last = e.ts
		}
	}
	return len(s.queue), first, last
}
