// Package memstore is a minimal reference implementation of the value.Store
// contract (§6.1) used by mcf's own tests and demo harness. It is not part
// of the core specification — the concrete value store is an external
// collaborator — but mcf needs one concrete implementation to exercise the
// Component Manager, ports, and event sources end to end.
package memstore

import (
	"sync"

	"mcf/timestamp"
	"mcf/value"
)

// Store holds the latest value published per topic and notifies
// subscribers synchronously, on the publisher's own goroutine, matching
// the "delivered synchronously" option permitted by §6.1.
type Store struct {
	mu      sync.Mutex
	latest  map[string]value.Value
	subs    map[string]map[uint64]func(value.Value)
	nextSub uint64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		latest: make(map[string]value.Value),
		subs:   make(map[string]map[uint64]func(value.Value)),
	}
}

// SetValue stamps v with the current time if unstamped, records it as the
// latest value for topic, and synchronously notifies every subscriber
// registered for topic, in registration order.
func (s *Store) SetValue(topic string, v value.Value) error {
	if v.Timestamp().IsZero() {
		v = v.WithTimestamp(timestamp.Now())
	}

	s.mu.Lock()
	s.latest[topic] = v
	var fns []func(value.Value)
	if m := s.subs[topic]; m != nil {
		fns = make([]func(value.Value), 0, len(m))
		for id := uint64(0); id < s.nextSub; id++ {
			if fn, ok := m[id]; ok {
				fns = append(fns, fn)
			}
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
	return nil
}

// GetValue returns the latest value published to topic.
func (s *Store) GetValue(topic string) (value.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.latest[topic]
	return v, ok
}

// HasValue reports whether any value has ever been published to topic.
func (s *Store) HasValue(topic string) bool {
	_, ok := s.GetValue(topic)
	return ok
}

// Subscribe registers fn for every future SetValue on topic. The returned
// function removes the subscription; calling it more than once is safe.
func (s *Store) Subscribe(topic string, fn func(value.Value)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[topic] == nil {
		s.subs[topic] = make(map[uint64]func(value.Value))
	}
	s.subs[topic][id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[topic], id)
			s.mu.Unlock()
		})
	}
}
