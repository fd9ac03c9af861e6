// Package value defines the payload and store contracts that components
// exchange through ports. mcf itself never interprets a Value's payload —
// it only moves it, timestamps it, and routes it by topic.
package value

import "mcf/timestamp"

// ID uniquely identifies a Value instance, assigned at publication by the
// sending port's injected Id Generator. It has no ordering significance.
type ID uint64

// Value is an immutable, timestamped unit of data published to a topic.
// Implementations carry an arbitrary payload; mcf core only needs the
// envelope fields below.
type Value interface {
	// ID returns the identity stamped onto this value at publication, or
	// 0 if none has been assigned.
	ID() ID

	// Timestamp returns when this value was produced.
	Timestamp() timestamp.Timestamp

	// WithTimestamp returns a copy of the value stamped with t, used by
	// the store when a value is published unstamped.
	WithTimestamp(t timestamp.Timestamp) Value
}

// IDStamper is optionally implemented by a Value that supports having its
// publication id assigned. A SenderPort carrying an injected Id Generator
// (§3, §6.5) uses it to stamp a fresh id onto an outgoing value whose id is
// still zero; a Value type that doesn't implement it is sent unstamped.
type IDStamper interface {
	Value
	WithID(id ID) Value
}

// Store is the external topic-addressed value store contract (§6.1 of the
// system design). mcf depends only on this interface; the concrete store
// is a separate concern, reference-implemented in package memstore.
type Store interface {
	// SetValue publishes value under topic, stamping it with the current
	// time if its Timestamp is still zero. The value's id is expected to
	// already have been assigned by the publisher's injected Id
	// Generator — the store does not mint ids. It notifies all
	// registered receivers for topic synchronously on the caller's
	// goroutine.
	SetValue(topic string, v Value) error

	// GetValue returns the most recently published value for topic, or
	// ok=false if nothing has ever been published there.
	GetValue(topic string) (v Value, ok bool)

	// Subscribe registers fn to be invoked with every value published to
	// topic, in publication order. It returns an unsubscribe function.
	Subscribe(topic string, fn func(Value)) (unsubscribe func())
}
