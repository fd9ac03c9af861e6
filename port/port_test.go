package port_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"mcf/idgen"
	"mcf/port"
	"mcf/timestamp"
	"mcf/value"
)

type testValue struct {
	id int
	ts timestamp.Timestamp
}

func (v testValue) ID() value.ID                   { return value.ID(v.id) }
func (v testValue) Timestamp() timestamp.Timestamp   { return v.ts }
func (v testValue) WithTimestamp(t timestamp.Timestamp) value.Value {
	v.ts = t
	return v
}

type fakeStore struct {
	mu   sync.Mutex
	subs map[string][]func(value.Value)
}

func newFakeStore() *fakeStore {
	return &fakeStore{subs: make(map[string][]func(value.Value))}
}

func (s *fakeStore) SetValue(topic string, v value.Value) error {
	s.mu.Lock()
	fns := append([]func(value.Value){}, s.subs[topic]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
	return nil
}

func (s *fakeStore) GetValue(topic string) (value.Value, bool) { return nil, false }

func (s *fakeStore) Subscribe(topic string, fn func(value.Value)) func() {
	s.mu.Lock()
	s.subs[topic] = append(s.subs[topic], fn)
	s.mu.Unlock()
	return func() {}
}

func TestSenderStampsIDOnPublication(t *testing.T) {
	store := newFakeStore()
	s := port.NewSender("out")
	s.MapTopic("/tack")
	s.BindIDGenerator(idgen.NewDefaultIDGenerator())
	s.Bind(store)
	if err := s.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var got value.Value
	store.Subscribe("/tack", func(v value.Value) { got = v })

	if err := s.Send(value.Of("x")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got == nil || got.ID() == 0 {
		t.Fatalf("expected a non-zero id stamped at publication, got %v", got)
	}
}

func TestSenderSendRequiresConnection(t *testing.T) {
	s := port.NewSender("out")
	s.MapTopic("/tack")

	if err := s.Send(testValue{id: 1}); err != nil {
		t.Fatalf("Send on unconnected port should be a no-op, got err: %v", err)
	}
}

func TestUnqueuedReceiverHandler(t *testing.T) {
	store := newFakeStore()
	var got value.Value
	var mu sync.Mutex

	r := port.NewReceiver("in", func(v value.Value) {
		mu.Lock()
		got = v
		mu.Unlock()
	})
	r.MapTopic("/tick")

	r.Bind(store)
	if err := r.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	_ = store.SetValue("/tick", testValue{id: 42})

	mu.Lock()
	defer mu.Unlock()
	if got == nil || got.ID() != 42 {
		t.Fatalf("handler did not receive expected value, got %v", got)
	}
}

func TestQueuedReceiverReceive(t *testing.T) {
	store := newFakeStore()
	r := port.NewReceiver("in", nil, port.WithQueue(port.QueueOptions{MaxLength: 2, Blocking: true}))
	r.MapTopic("/tick")

	r.Bind(store)
	if err := r.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	_ = store.SetValue("/tick", testValue{id: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, ok := r.Receive(ctx)
	if !ok || v.ID() != 1 {
		t.Fatalf("Receive() = %v, %v, want id 1, true", v, ok)
	}
}

func TestQueuedReceiverDropsOldestWhenFull(t *testing.T) {
	store := newFakeStore()
	r := port.NewReceiver("in", nil, port.WithQueue(port.QueueOptions{MaxLength: 1, Blocking: false}))
	r.MapTopic("/tick")
	r.Bind(store)
	if err := r.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	_ = store.SetValue("/tick", testValue{id: 1})
	_ = store.SetValue("/tick", testValue{id: 2})

	ctx := context.Background()
	v, ok := r.Receive(ctx)
	if !ok || v.ID() != 2 {
		t.Fatalf("expected oldest value dropped, got %v, %v", v, ok)
	}
}
