// Package mcferr defines the sentinel error values shared across mcf's
// packages, classifiable with errors.Is rather than type assertions.
package mcferr

import "errors"

var (
	// ErrUnknownComponent is returned when a proxy or lookup references
	// a component instance id the manager no longer holds.
	ErrUnknownComponent = errors.New("mcf: unknown component")

	// ErrUnknownPort is returned when a port name does not exist on the
	// targeted component.
	ErrUnknownPort = errors.New("mcf: unknown port")

	// ErrDuplicatePort is returned by RegisterPort when the name is
	// already taken on that component.
	ErrDuplicatePort = errors.New("mcf: duplicate port")

	// ErrDuplicateInstance is returned when an instance name collides
	// with an existing live instance.
	ErrDuplicateInstance = errors.New("mcf: duplicate instance")

	// ErrDuplicateType is returned when a component type's qualified
	// name is already registered.
	ErrDuplicateType = errors.New("mcf: duplicate component type")

	// ErrInvalidArgument covers empty/nil arguments that violate a
	// precondition (empty component reference, empty instance name,
	// empty type name where one is required).
	ErrInvalidArgument = errors.New("mcf: invalid argument")

	// ErrNotConfigured is returned when an operation requires a
	// component to be at least CONFIGURED but it is still REGISTERED.
	ErrNotConfigured = errors.New("mcf: component not configured")

	// ErrTypeMismatch is returned by the system configurator when a
	// declarative entry reuses an instance name with a conflicting type.
	ErrTypeMismatch = errors.New("mcf: component type mismatch")

	// ErrInstantiationError wraps factory or instantiator-level failures.
	ErrInstantiationError = errors.New("mcf: instantiation error")

	// ErrSystemConfigurationError is the aggregate failure raised by the
	// system configurator when one or more declarative entries fail.
	ErrSystemConfigurationError = errors.New("mcf: system configuration error")

	// ErrPluginError is reserved for the external plugin-loader
	// collaborator; mcf never raises it itself.
	ErrPluginError = errors.New("mcf: plugin error")
)
