// Package port implements the Port sum type described in §3/§9: a single
// Sender variant and a single Receiver variant (optionally Queued),
// replacing the source's Port class hierarchy.
package port

import (
	"context"
	"sync"

	"mcf/idgen"
	"mcf/value"
)

// Direction distinguishes a Sender port from a Receiver port.
type Direction int

const (
	Sender Direction = iota
	Receiver
)

func (d Direction) String() string {
	if d == Sender {
		return "sender"
	}
	return "receiver"
}

// Port is implemented by both *SenderPort and *ReceiverPort. The manager
// operates on ports through this interface; components hold the concrete
// type they created.
//
// The manager attaches a port to a value.Store in two phases, matching
// configure/startup: Bind associates the store reference at configure
// time (so Send/Receive know where to operate) without activating
// delivery; Connect, gated on IsValid, activates delivery (a receiver
// subscribes; connected becomes true) at startup.
type Port interface {
	Name() string
	Direction() Direction
	Topic() string
	IsConnected() bool
	IsValid() bool

	MapTopic(topic string)

	// SetValid is called only by the manager's validation pass.
	SetValid(bool)

	Bind(store value.Store)
	Connect() error
	Disconnect()

	// BindIDGenerator supplies the id generator a SenderPort uses to stamp
	// a fresh id onto every value.IDStamper it sends (§3, §6.5). Receiver
	// ports ignore it.
	BindIDGenerator(gen idgen.IDGenerator)
}

// QueueOptions configures a queued receiver port.
type QueueOptions struct {
	// MaxLength bounds the number of buffered values; 0 means unbounded.
	MaxLength int
	// Blocking, if true, makes Receive block until a value is available
	// (or ctx is done); if false, Receive returns immediately.
	Blocking bool
}

// SenderPort publishes values to its mapped topic.
type SenderPort struct {
	mu        sync.RWMutex
	name      string
	topic     string
	connected bool
	valid     bool
	store     value.Store
	idGen     idgen.IDGenerator
}

// NewSender creates a sender port with the given name, unmapped.
func NewSender(name string) *SenderPort {
	return &SenderPort{name: name}
}

func (p *SenderPort) Name() string         { return p.name }
func (p *SenderPort) Direction() Direction { return Sender }

func (p *SenderPort) Topic() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.topic
}

func (p *SenderPort) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *SenderPort) IsValid() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.valid
}

func (p *SenderPort) MapTopic(topic string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != topic {
		p.connected = false
	}
	p.topic = topic
	p.valid = false
}

func (p *SenderPort) SetValid(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.valid = v
}

func (p *SenderPort) Bind(store value.Store) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store = store
}

func (p *SenderPort) BindIDGenerator(gen idgen.IDGenerator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idGen = gen
}

func (p *SenderPort) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

func (p *SenderPort) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
}

// Send publishes v to the port's mapped topic. It fails silently (returns
// nil) if the port is not connected, mirroring a disconnected sender being
// a safe no-op in the reference design. If an id generator has been bound
// and v implements value.IDStamper with a still-zero id, Send stamps a
// fresh id onto it before publication (§3, §6.5).
func (p *SenderPort) Send(v value.Value) error {
	p.mu.RLock()
	store, topic, connected, gen := p.store, p.topic, p.connected, p.idGen
	p.mu.RUnlock()

	if !connected || store == nil {
		return nil
	}

	if gen != nil && v.ID() == 0 {
		if stamper, ok := v.(value.IDStamper); ok {
			v = stamper.WithID(gen.Next())
		}
	}
	return store.SetValue(topic, v)
}

// ReceiverPort delivers values published to its mapped topic, either
// synchronously via a handler callback (unqueued) or buffered for pull
// access (queued, when Opts is non-nil).
type ReceiverPort struct {
	mu        sync.Mutex
	name      string
	topic     string
	connected bool
	valid     bool
	store     value.Store
	unsub     func()

	handler func(value.Value)

	opts  *QueueOptions
	queue []value.Value
	cond  *sync.Cond
}

// ReceiverOption configures a ReceiverPort at construction time.
type ReceiverOption func(*ReceiverPort)

// WithQueue makes the receiver a queued port with the given bound and
// blocking behavior.
func WithQueue(opts QueueOptions) ReceiverOption {
	return func(p *ReceiverPort) {
		p.opts = &opts
	}
}

// NewReceiver creates a receiver port. handler, if non-nil, is invoked
// synchronously (on the publisher's notification path) for every value
// delivered to an unqueued port; it is ignored for queued ports, which
// are drained via Receive instead.
func NewReceiver(name string, handler func(value.Value), opts ...ReceiverOption) *ReceiverPort {
	p := &ReceiverPort{name: name, handler: handler}
	for _, o := range opts {
		o(p)
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *ReceiverPort) Name() string         { return p.name }
func (p *ReceiverPort) Direction() Direction { return Receiver }

func (p *ReceiverPort) Topic() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.topic
}

func (p *ReceiverPort) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *ReceiverPort) IsValid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valid
}

// IsQueued reports whether this receiver buffers values for pull access,
// the Go analogue of a dynamic_cast to GenericQueuedReceiverPort.
func (p *ReceiverPort) IsQueued() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts != nil
}

func (p *ReceiverPort) MapTopic(topic string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.topic != topic {
		p.connected = false
	}
	p.topic = topic
	p.valid = false
}

func (p *ReceiverPort) SetValid(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.valid = v
}

func (p *ReceiverPort) Bind(store value.Store) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store = store
}

// BindIDGenerator is a no-op: a receiver never stamps ids on values it
// did not produce.
func (p *ReceiverPort) BindIDGenerator(idgen.IDGenerator) {}

// Connect subscribes to the bound store for this port's topic and marks
// the port connected. A subscription left from an earlier Connect is
// replaced, so the port holds at most one. Calling Connect before Bind is
// a no-op: there is no store to subscribe to.
func (p *ReceiverPort) Connect() error {
	p.mu.Lock()
	store, topic := p.store, p.topic
	p.mu.Unlock()

	if store == nil {
		return nil
	}
	unsub := store.Subscribe(topic, p.deliver)

	p.mu.Lock()
	old := p.unsub
	p.unsub = unsub
	p.connected = true
	p.mu.Unlock()

	if old != nil {
		old()
	}
	return nil
}

func (p *ReceiverPort) Disconnect() {
	p.mu.Lock()
	unsub := p.unsub
	p.unsub = nil
	p.connected = false
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (p *ReceiverPort) deliver(v value.Value) {
	p.mu.Lock()
	if p.opts == nil {
		h := p.handler
		p.mu.Unlock()
		if h != nil {
			h(v)
		}
		return
	}

	if p.opts.MaxLength > 0 && len(p.queue) >= p.opts.MaxLength {
		// Bounded, non-blocking-producer queue: drop the oldest entry to
		// make room, matching a bounded ring buffer's overwrite policy.
		p.queue = p.queue[1:]
	}
	p.queue = append(p.queue, v)
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Receive pops the oldest buffered value from a queued receiver. If the
// port is not queued, it returns ok=false immediately. If Blocking is set
// it waits until a value is available or ctx is done.
func (p *ReceiverPort) Receive(ctx context.Context) (v value.Value, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.opts == nil {
		return nil, false
	}

	if len(p.queue) == 0 {
		if !p.opts.Blocking {
			return nil, false
		}

		stop := context.AfterFunc(ctx, p.cond.Broadcast)
		defer stop()

		for len(p.queue) == 0 {
			if ctx.Err() != nil {
				return nil, false
			}
			p.cond.Wait()
		}
	}

	v = p.queue[0]
	p.queue = p.queue[1:]
	return v, true
}

// QueueLen reports the number of buffered values, 0 for unqueued ports.
func (p *ReceiverPort) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
