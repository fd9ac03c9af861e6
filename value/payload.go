package value

import "mcf/timestamp"

// Payload is a generic Value implementation wrapping an arbitrary typed
// payload. It is the type mcf's own infrastructure (well-known
// configuration-directory topics, the reference value store, demo
// components) uses when it needs a concrete Value without depending on a
// caller's own payload type.
type Payload struct {
	id   ID
	ts   timestamp.Timestamp
	Data any
}

// Of wraps data in a Payload with no id and no timestamp assigned; on
// publication a sending port stamps the id via WithID and the store
// stamps the timestamp via WithTimestamp.
func Of(data any) Payload {
	return Payload{Data: data}
}

func (p Payload) ID() ID                    { return p.id }
func (p Payload) Timestamp() timestamp.Timestamp { return p.ts }

func (p Payload) WithTimestamp(t timestamp.Timestamp) Value {
	p.ts = t
	return p
}

// WithID returns a copy of p stamped with id, used by a SenderPort
// carrying an injected Id Generator to stamp identity on publication
// (§3, §6.5). Payload implements value.IDStamper.
func (p Payload) WithID(id ID) Value {
	p.id = id
	return p
}
