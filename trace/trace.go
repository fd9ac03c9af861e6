// Package trace defines the optional component-trace hook referenced by
// the manager and the queued event source. It is consumed, not required:
// components and the scheduler run identically with the default no-op
// generator installed.
package trace

import "mcf/value"

// Generator receives trace notifications for component lifecycle and
// queued-event delivery. Implementations must not block the caller for
// long; they run on the publisher's or manager's own goroutine.
type Generator interface {
	// ComponentRegistered is invoked once when a component is registered
	// with the manager.
	ComponentRegistered(instanceName, typeName string)

	// SetQueuedEventValue is invoked by a Queued Event Source immediately
	// before it publishes a dequeued value, naming the producing
	// component and port that originally enqueued it.
	SetQueuedEventValue(topic string, v value.Value, producerComponent, producerPort string)
}

// Noop is a Generator that discards every notification. It is the
// default installed when no trace generator is configured.
var Noop Generator = noopGenerator{}

type noopGenerator struct{}

func (noopGenerator) ComponentRegistered(string, string)          {}
func (noopGenerator) SetQueuedEventValue(string, value.Value, string, string) {}
