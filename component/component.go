// Package component defines the contract a user component implements
// (§6.2), replacing the source's IComponent/Component class hierarchy with
// a single interface plus small value types.
package component

import (
	"mcf/idgen"
	"mcf/port"
)

// State is a component's own view of its run state, distinct from the
// manager's lifecycle view (REGISTERED/CONFIGURED/RUNNING).
type State int

const (
	Stopped State = iota
	Started
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Started:
		return "STARTED"
	case Running:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// SchedulingPolicy mirrors the OS scheduling classes a component's worker
// thread may request. Applying one is best-effort: the manager forwards
// the request but a platform may silently ignore it absent permission.
type SchedulingPolicy int

const (
	Default SchedulingPolicy = iota
	Other
	Fifo
	RoundRobin
)

// SchedulingParameters bundles a policy and a priority value whose valid
// range is policy- and platform-specific.
type SchedulingParameters struct {
	Policy   SchedulingPolicy
	Priority int
}

// LogLevels configures where and how verbosely a component logs.
type LogLevels struct {
	Console string
	Store   string
}

// Registrar is the capability a component's Configure method receives. It
// is the only way a component may register ports — registering through
// anything else is not supported, mirroring the manager being the sole
// port-map owner.
type Registrar interface {
	// RegisterPort attaches a port the component has already constructed
	// to the component's port map, optionally pre-binding it to a topic.
	RegisterPort(p port.Port, topic string) error
}

// Component is the contract every user component implements. Configure is
// invoked exactly once by the manager with a Registrar scoped to this
// component; CtrlStart/CtrlRun/CtrlStop are the lifecycle hooks driven by
// the manager's startup/shutdown operations.
type Component interface {
	// Name returns the component's instance name.
	Name() string

	// Configure registers this component's ports against reg. It is
	// called once, while the manager's state-mutation lock is not held,
	// so it may re-enter the manager via reg.RegisterPort.
	Configure(reg Registrar) error

	// CtrlStart begins the component's worker; it may return before the
	// worker reaches State Started (the manager polls GetState).
	CtrlStart() error

	// CtrlRun is invoked once the component reports State Started; it
	// transitions the component into its main run state.
	CtrlRun() error

	// CtrlStop halts the component's worker and blocks until it has
	// fully stopped.
	CtrlStop() error

	// GetState returns the component's current inner state.
	GetState() State

	// CtrlSetConfigDirs supplies the configuration directory search
	// path.
	CtrlSetConfigDirs(dirs []string)

	// CtrlSetConfigName supplies the component's config file base name.
	CtrlSetConfigName(name string)

	// CtrlSetSchedulingParameters forwards a scheduling request.
	CtrlSetSchedulingParameters(params SchedulingParameters)

	// CtrlSetLogLevels forwards a log-level request.
	CtrlSetLogLevels(levels LogLevels)

	// SetIDGenerator injects the id generator used to stamp values this
	// component publishes.
	SetIDGenerator(gen idgen.IDGenerator)
}

// Base provides a minimal embeddable implementation of the bookkeeping
// portion of Component (state, id generator, config dirs/name, scheduling
// and log levels), leaving Configure/CtrlStart/CtrlRun/CtrlStop to the
// embedding type — mirroring the common base the source's user components
// shared.
type Base struct {
	name       string
	state      State
	gen        idgen.IDGenerator
	configDirs []string
	configName string
	sched      SchedulingParameters
	logLevels  LogLevels
}

// NewBase constructs a Base with the given instance name.
func NewBase(name string) Base {
	return Base{name: name}
}

func (b *Base) Name() string        { return b.name }
func (b *Base) GetState() State     { return b.state }
func (b *Base) setState(s State)    { b.state = s }

func (b *Base) CtrlSetConfigDirs(dirs []string) { b.configDirs = dirs }
func (b *Base) CtrlSetConfigName(name string)   { b.configName = name }
func (b *Base) CtrlSetSchedulingParameters(p SchedulingParameters) { b.sched = p }
func (b *Base) CtrlSetLogLevels(l LogLevels)                       { b.logLevels = l }
func (b *Base) SetIDGenerator(gen idgen.IDGenerator)               { b.gen = gen }

// IDGenerator returns the injected id generator, or nil if none was set.
func (b *Base) IDGenerator() idgen.IDGenerator { return b.gen }

// ConfigDirs returns the injected configuration directory search path.
func (b *Base) ConfigDirs() []string { return b.configDirs }

// SetState transitions the embedding component's inner state; embedders
// call this from their CtrlStart/CtrlRun/CtrlStop implementations.
func (b *Base) SetState(s State) { b.setState(s) }
