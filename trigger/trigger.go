// Package trigger implements Topic Trigger Flags (§4.5): a set of
// per-topic flags driven by value-store notifications, with wait-for-any
// and wait-for-all primitives built on one shared trigger.
package trigger

import (
	"context"
	"sort"
	"sync"

	"mcf/value"
)

// TopicFlags holds one boolean flag per watched topic, each driven by a
// receiver installed on the value store, plus a single shared trigger
// condition used by the wait primitives.
type TopicFlags struct {
	mu      sync.Mutex
	cond    *sync.Cond
	store   value.Store
	flags   map[string]bool
	unsub   map[string]func()
	version uint64
	exit    bool
}

// New creates an empty TopicFlags watching store.
func New(store value.Store) *TopicFlags {
	t := &TopicFlags{
		store: store,
		flags: make(map[string]bool),
		unsub: make(map[string]func()),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// AddTopic begins watching topic, installing a fresh receiver on the
// value store. Re-adding an already-watched topic is a no-op.
func (t *TopicFlags) AddTopic(topic string) {
	t.mu.Lock()
	if _, exists := t.flags[topic]; exists {
		t.mu.Unlock()
		return
	}
	t.flags[topic] = false
	t.mu.Unlock()

	unsub := t.store.Subscribe(topic, func(value.Value) {
		t.mu.Lock()
		t.flags[topic] = true
		t.version++
		t.mu.Unlock()
		t.cond.Broadcast()
	})

	t.mu.Lock()
	t.unsub[topic] = unsub
	t.mu.Unlock()
}

// RemoveTopic stops watching topic.
func (t *TopicFlags) RemoveTopic(topic string) {
	t.mu.Lock()
	unsub := t.unsub[topic]
	delete(t.flags, topic)
	delete(t.unsub, topic)
	t.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// UpdateTopics adds every topic in topics not already watched and drops
// every currently-watched topic not in topics, without resetting the
// flags of topics that remain watched across the call.
func (t *TopicFlags) UpdateTopics(topics []string) {
	want := make(map[string]bool, len(topics))
	for _, topic := range topics {
		want[topic] = true
	}

	t.mu.Lock()
	var toRemove []string
	for topic := range t.flags {
		if !want[topic] {
			toRemove = append(toRemove, topic)
		}
	}
	t.mu.Unlock()

	for _, topic := range toRemove {
		t.RemoveTopic(topic)
	}
	for topic := range want {
		t.AddTopic(topic)
	}
}

// ResetFlags clears every flag to false.
func (t *TopicFlags) ResetFlags() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for topic := range t.flags {
		t.flags[topic] = false
	}
}

// AreAllFlagsSet reports whether every watched topic's flag is true. A
// TopicFlags watching no topics reports true (vacuously).
func (t *TopicFlags) AreAllFlagsSet() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allSetLocked()
}

func (t *TopicFlags) allSetLocked() bool {
	for _, set := range t.flags {
		if !set {
			return false
		}
	}
	return true
}

// GetTopicNames returns every currently-watched topic, sorted.
func (t *TopicFlags) GetTopicNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.flags))
	for topic := range t.flags {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// WaitForAnyTopicModified blocks until any watched topic's flag is set,
// manuallyTriggerEvent is called, or ctx is done.
func (t *TopicFlags) WaitForAnyTopicModified(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stop := context.AfterFunc(ctx, t.cond.Broadcast)
	defer stop()

	baseline := t.version
	for t.version == baseline && ctx.Err() == nil {
		t.cond.Wait()
	}
}

// WaitForAllTopicsModified blocks until every watched topic's flag is
// set, ExitWaitForAllTopicsModified is called, or ctx is done. On a
// normal (all-set) exit it resets every flag before returning; an exit
// caused by ctx leaves the flags as they are and returns false. It
// returns true iff the exit was caused by ExitWaitForAllTopicsModified.
func (t *TopicFlags) WaitForAllTopicsModified(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	stop := context.AfterFunc(ctx, t.cond.Broadcast)
	defer stop()

	for !t.allSetLocked() && !t.exit && ctx.Err() == nil {
		t.cond.Wait()
	}

	if t.exit {
		t.exit = false
		return true
	}
	if !t.allSetLocked() {
		return false
	}

	for topic := range t.flags {
		t.flags[topic] = false
	}
	return false
}

// ExitWaitForAllTopicsModified causes a concurrent WaitForAllTopicsModified
// to return true.
func (t *TopicFlags) ExitWaitForAllTopicsModified() {
	t.mu.Lock()
	t.exit = true
	t.mu.Unlock()
	t.cond.Broadcast()
}

// ManuallyTriggerEvent wakes every waiter without touching any flag.
func (t *TopicFlags) ManuallyTriggerEvent() {
	t.mu.Lock()
	t.version++
	t.mu.Unlock()
	t.cond.Broadcast()
}
