// Package manager implements the Component Manager (§4.1): the registry
// of components and ports, per-component lifecycle, topic wiring and
// validation, and the ComponentProxy/PortProxy handle types.
//
// Concurrency note (§9 design notes, re-entrant locking): configure()
// re-enters through the user's Configure callback to call RegisterPort.
// Rather than modeling an explicit re-entrant mutex, Configure is split
// into a callback phase (manager lock not held) and a port-registration
// phase (lock held only inside RegisterPort itself).
package manager

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
	"unicode"

	"mcf/component"
	"mcf/idgen"
	"mcf/mcferr"
	"mcf/port"
	"mcf/trace"
	"mcf/value"
)

// LifecycleState is the manager's view of a component, distinct from the
// component's own inner State (§3).
type LifecycleState int

const (
	Registered LifecycleState = iota
	Configured
	Running
)

func (s LifecycleState) String() string {
	switch s {
	case Registered:
		return "REGISTERED"
	case Configured:
		return "CONFIGURED"
	case Running:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

type instanceRecord struct {
	id         uint64
	name       string
	typeName   string
	configName string
	component  component.Component
	state      LifecycleState
	ports      map[string]port.Port
	portOrder  []string // registration order, for deterministic validation
}

// Manager is the Component Manager. The zero value is not usable; build
// one with New.
type Manager struct {
	mu  sync.Mutex
	log *slog.Logger

	store       value.Store
	idGen       idgen.IDGenerator
	traceGen    trace.Generator
	configDirs  []string
	strictSend  bool
	pollInterval time.Duration

	nextID    uint64
	instances map[uint64]*instanceRecord
	byName    map[string]uint64
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithStore sets the value store every port binds to.
func WithStore(s value.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithIDGenerator overrides the default id generator injected into
// components at registration.
func WithIDGenerator(g idgen.IDGenerator) Option {
	return func(m *Manager) { m.idGen = g }
}

// WithTraceGenerator installs an optional trace event generator.
func WithTraceGenerator(g trace.Generator) Option {
	return func(m *Manager) { m.traceGen = g }
}

// WithConfigDirs sets the configuration directory search path injected
// into every registered component.
func WithConfigDirs(dirs []string) Option {
	return func(m *Manager) { m.configDirs = dirs }
}

// WithStrictSenderCardinality makes validateConfiguration treat a topic
// with zero or more than one sender as an error rather than a warning
// (§9 open question: the reference behavior warns only).
func WithStrictSenderCardinality(strict bool) Option {
	return func(m *Manager) { m.strictSend = strict }
}

// WithLogger overrides the manager's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithPollInterval overrides the interval startup() polls a starting
// component's inner state at. Defaults to 10ms, matching the reference
// behavior (§9 open question: kept as a real poll, not replaced by a
// blocking CtrlStart contract).
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

// New constructs a Manager. If a store is configured, it immediately
// publishes the well-known /mcf/configdirectory and
// /mcf/configdirectories topics (§6.4).
func New(opts ...Option) *Manager {
	m := &Manager{
		log:          slog.Default(),
		traceGen:     trace.Noop,
		idGen:        idgen.NewDefaultIDGenerator(),
		pollInterval: 10 * time.Millisecond,
		instances:    make(map[uint64]*instanceRecord),
		byName:       make(map[string]uint64),
	}
	for _, o := range opts {
		o(m)
	}

	if m.store != nil {
		if len(m.configDirs) > 0 {
			_ = m.store.SetValue("/mcf/configdirectory", value.Of(m.configDirs[0]))
		} else {
			_ = m.store.SetValue("/mcf/configdirectory", value.Of(""))
		}
		_ = m.store.SetValue("/mcf/configdirectories", value.Of(append([]string(nil), m.configDirs...)))
	}

	return m
}

// ComponentProxy is an opaque handle to a registered component. Every
// operation re-validates the underlying instance id against the manager
// and fails with mcferr.ErrUnknownComponent if it has been erased.
type ComponentProxy struct {
	mgr *Manager
	id  uint64
}

// ID returns the proxy's manager-assigned instance id.
func (p ComponentProxy) ID() uint64 { return p.id }

// PortProxy is an opaque handle to a named port on a component.
type PortProxy struct {
	mgr  *Manager
	id   uint64
	name string
}

func (m *Manager) lookupLocked(id uint64) (*instanceRecord, error) {
	rec, ok := m.instances[id]
	if !ok {
		return nil, mcferr.ErrUnknownComponent
	}
	return rec, nil
}

// RegisterComponent installs comp in state REGISTERED, injects its
// config directories, config name, and id generator, and returns a proxy.
func (m *Manager) RegisterComponent(comp component.Component, typeName, instanceName, configName string) (ComponentProxy, error) {
	if comp == nil || instanceName == "" {
		return ComponentProxy{}, fmt.Errorf("register component %q: %w", instanceName, mcferr.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[instanceName]; exists {
		return ComponentProxy{}, fmt.Errorf("register component %q: %w", instanceName, mcferr.ErrDuplicateInstance)
	}

	m.nextID++
	id := m.nextID

	comp.SetIDGenerator(m.idGen)
	comp.CtrlSetConfigDirs(m.configDirs)
	comp.CtrlSetConfigName(configName)

	m.instances[id] = &instanceRecord{
		id:         id,
		name:       instanceName,
		typeName:   typeName,
		configName: configName,
		component:  comp,
		state:      Registered,
		ports:      make(map[string]port.Port),
	}
	m.byName[instanceName] = id

	m.traceGen.ComponentRegistered(instanceName, typeName)
	m.log.Debug("component registered", "component", instanceName, "type", typeName)

	return ComponentProxy{mgr: m, id: id}, nil
}

type registrar struct {
	mgr   *Manager
	proxy ComponentProxy
}

func (r registrar) RegisterPort(p port.Port, topic string) error {
	return r.mgr.RegisterPort(r.proxy, p, topic)
}

// RegisterPort attaches p to the component identified by proxy, optionally
// pre-binding it to topic. Callable from a component's Configure callback.
func (m *Manager) RegisterPort(proxy ComponentProxy, p port.Port, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookupLocked(proxy.id)
	if err != nil {
		return err
	}
	if _, exists := rec.ports[p.Name()]; exists {
		return fmt.Errorf("register port %q on %q: %w", p.Name(), rec.name, mcferr.ErrDuplicatePort)
	}

	if topic != "" {
		p.MapTopic(topic)
	}
	rec.ports[p.Name()] = p
	rec.portOrder = append(rec.portOrder, p.Name())
	return nil
}

// Configure runs the configure step on every REGISTERED component. It is
// a bulk operation: per-component failures are logged and do not stop
// the remaining components.
func (m *Manager) Configure() {
	for _, id := range m.snapshotIDs(Registered) {
		if err := m.configureOne(id); err != nil {
			m.log.Warn("configure failed", "error", err)
		}
	}
}

// ConfigureProxy runs the configure step on a single targeted component.
// Unlike Configure, it fails fast and reports the error to the caller.
func (m *Manager) ConfigureProxy(proxy ComponentProxy) error {
	return m.configureOne(proxy.id)
}

func (m *Manager) snapshotIDs(want LifecycleState) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]uint64, 0, len(m.instances))
	for id, rec := range m.instances {
		if rec.state == want {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *Manager) configureOne(id uint64) error {
	m.mu.Lock()
	rec, err := m.lookupLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if rec.state != Registered {
		m.mu.Unlock()
		m.log.Warn("configure: component already configured", "component", rec.name)
		return nil
	}
	comp := rec.component
	name := rec.name
	m.mu.Unlock()

	// User callback phase: no manager lock held, so it may re-enter via
	// RegisterPort.
	reg := registrar{mgr: m, proxy: ComponentProxy{mgr: m, id: id}}
	if err := comp.Configure(reg); err != nil {
		return fmt.Errorf("configure %q: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err = m.lookupLocked(id)
	if err != nil {
		return err
	}

	for _, pname := range rec.portOrder {
		rec.ports[pname].Bind(m.store)
		rec.ports[pname].BindIDGenerator(m.idGen)
	}
	rec.state = Configured
	return nil
}

// isTopicValid reports whether topic is non-empty and every character is
// printable and non-whitespace.
func isTopicValid(topic string) bool {
	if topic == "" {
		return false
	}
	for _, r := range topic {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// ValidateConfiguration groups every non-empty-topic port by topic,
// checks topic validity, warns on sender-cardinality problems, and marks
// each port of a validated topic IsValid. It returns true iff every
// non-empty topic validated. Ports whose topic is empty are left
// unvalidated, not treated as an error.
func (m *Manager) ValidateConfiguration() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateConfigurationLocked()
}

func (m *Manager) validateConfigurationLocked() bool {
	type group struct {
		senders, receivers int
		ports              []port.Port
	}
	byTopic := make(map[string]*group)

	for _, id := range m.sortedIDsLocked() {
		rec := m.instances[id]
		for _, pname := range rec.portOrder {
			p := rec.ports[pname]
			topic := p.Topic()
			if topic == "" {
				p.SetValid(false)
				continue
			}
			g := byTopic[topic]
			if g == nil {
				g = &group{}
				byTopic[topic] = g
			}
			if p.Direction() == port.Sender {
				g.senders++
			} else {
				g.receivers++
			}
			g.ports = append(g.ports, p)
		}
	}

	allValid := true
	for topic, g := range byTopic {
		valid := isTopicValid(topic)
		if !valid {
			allValid = false
		}
		if g.senders != 1 {
			if m.strictSend {
				allValid = false
			}
			m.log.Warn("topic sender cardinality", "topic", topic, "senders", g.senders)
		}
		if g.receivers == 0 {
			m.log.Warn("topic has no receivers", "topic", topic)
		}
		for _, p := range g.ports {
			p.SetValid(valid)
		}
	}

	return allValid
}

func (m *Manager) sortedIDsLocked() []uint64 {
	ids := make([]uint64, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Startup validates configuration, then for every CONFIGURED component
// connects each valid port (if connectPorts), starts it, polls until its
// inner state reaches component.Started, runs it, and transitions it to
// RUNNING. Bulk operation: per-component failures are logged.
func (m *Manager) Startup(connectPorts bool) {
	m.ValidateConfiguration()
	for _, id := range m.snapshotIDs(Configured) {
		if err := m.startupOne(id, connectPorts); err != nil {
			m.log.Warn("startup failed", "error", err)
		}
	}
}

// StartupProxy starts a single targeted component. Fails fast with
// mcferr.ErrNotConfigured if the component is still REGISTERED.
func (m *Manager) StartupProxy(proxy ComponentProxy, connectPorts bool) error {
	m.mu.Lock()
	rec, err := m.lookupLocked(proxy.id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if rec.state == Registered {
		m.mu.Unlock()
		return fmt.Errorf("startup %q: %w", rec.name, mcferr.ErrNotConfigured)
	}
	m.mu.Unlock()

	m.ValidateConfiguration()
	return m.startupOne(proxy.id, connectPorts)
}

func (m *Manager) startupOne(id uint64, connectPorts bool) error {
	m.mu.Lock()
	rec, err := m.lookupLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if rec.state != Configured {
		m.mu.Unlock()
		return nil
	}
	comp := rec.component
	name := rec.name

	if connectPorts {
		for _, pname := range rec.portOrder {
			p := rec.ports[pname]
			if p.IsValid() {
				_ = p.Connect()
			}
		}
	}
	m.mu.Unlock()

	if err := comp.CtrlStart(); err != nil {
		return fmt.Errorf("start %q: %w", name, err)
	}

	for comp.GetState() != component.Started {
		time.Sleep(m.pollInterval)
	}

	if err := comp.CtrlRun(); err != nil {
		return fmt.Errorf("run %q: %w", name, err)
	}

	m.mu.Lock()
	rec, err = m.lookupLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	rec.state = Running
	m.mu.Unlock()
	return nil
}

// Shutdown disconnects all ports and stops every RUNNING component,
// transitioning each back to CONFIGURED. Idempotent bulk operation.
func (m *Manager) Shutdown() {
	for _, id := range m.snapshotIDs(Running) {
		if err := m.shutdownOne(id); err != nil {
			m.log.Warn("shutdown failed", "error", err)
		}
	}
}

// ShutdownProxy stops a single targeted component. Idempotent.
func (m *Manager) ShutdownProxy(proxy ComponentProxy) error {
	return m.shutdownOne(proxy.id)
}

func (m *Manager) shutdownOne(id uint64) error {
	m.mu.Lock()
	rec, err := m.lookupLocked(id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if rec.state != Running {
		m.mu.Unlock()
		return nil
	}
	comp := rec.component
	name := rec.name
	for _, pname := range rec.portOrder {
		rec.ports[pname].Disconnect()
	}
	m.mu.Unlock()

	if err := comp.CtrlStop(); err != nil {
		return fmt.Errorf("stop %q: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err = m.lookupLocked(id)
	if err != nil {
		return err
	}
	rec.state = Configured
	return nil
}

// EraseComponent disconnects all ports, force-stops the component if
// running, and removes it from the manager entirely.
func (m *Manager) EraseComponent(proxy ComponentProxy) error {
	m.mu.Lock()
	rec, err := m.lookupLocked(proxy.id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	running := rec.state == Running
	comp := rec.component
	name := rec.name
	for _, pname := range rec.portOrder {
		rec.ports[pname].Disconnect()
	}
	m.mu.Unlock()

	if running {
		_ = comp.CtrlStop()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, proxy.id)
	delete(m.byName, name)
	return nil
}

// MapPort re-binds a port's topic and immediately re-validates so a
// subsequent Connect call will succeed. A failed attempt leaves the prior
// mapping intact.
func (m *Manager) MapPort(proxy ComponentProxy, portName, topic string) error {
	m.mu.Lock()
	rec, err := m.lookupLocked(proxy.id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	p, ok := rec.ports[portName]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("map port %q on %q: %w", portName, rec.name, mcferr.ErrUnknownPort)
	}
	p.MapTopic(topic)
	m.validateConfigurationLocked()
	m.mu.Unlock()
	return nil
}

// ConnectPort connects a single named port on proxy's component, activating
// delivery, iff the port has already been validated. It is a no-op
// (returns nil) for a port that validation has not marked valid — callers
// that need the failure reason should inspect ValidateConfiguration's
// result separately, matching §4.7 step 3's "mapPort then connect() iff
// connected and topic non-empty" sequencing.
func (m *Manager) ConnectPort(proxy ComponentProxy, portName string) error {
	p, err := m.resolvePort(proxy.id, portName)
	if err != nil {
		return err
	}
	if !p.IsValid() {
		return nil
	}
	return p.Connect()
}

// SetSchedulingParameters forwards params to the component's worker. This
// is best-effort: a platform without the requisite permission may ignore
// it silently.
func (m *Manager) SetSchedulingParameters(proxy ComponentProxy, params component.SchedulingParameters) error {
	m.mu.Lock()
	rec, err := m.lookupLocked(proxy.id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	comp := rec.component
	m.mu.Unlock()

	comp.CtrlSetSchedulingParameters(params)
	return nil
}

// SetComponentLogLevels forwards a log-level request to one component by
// instance name.
func (m *Manager) SetComponentLogLevels(name string, levels component.LogLevels) error {
	m.mu.Lock()
	id, ok := m.byName[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("set log levels %q: %w", name, mcferr.ErrUnknownComponent)
	}
	comp := m.instances[id].component
	m.mu.Unlock()

	comp.CtrlSetLogLevels(levels)
	return nil
}

// SetGlobalLogLevels forwards the same log-level request to every
// registered component.
func (m *Manager) SetGlobalLogLevels(levels component.LogLevels) {
	m.mu.Lock()
	comps := make([]component.Component, 0, len(m.instances))
	for _, rec := range m.instances {
		comps = append(comps, rec.component)
	}
	m.mu.Unlock()

	for _, c := range comps {
		c.CtrlSetLogLevels(levels)
	}
}

// ComponentInfo is a read-only snapshot returned by the observer methods.
type ComponentInfo struct {
	Proxy    ComponentProxy
	Name     string
	TypeName string
	State    LifecycleState
}

// GetComponents returns a snapshot of every registered component, ordered
// by instance id.
func (m *Manager) GetComponents() []ComponentInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ComponentInfo, 0, len(m.instances))
	for _, id := range m.sortedIDsLocked() {
		rec := m.instances[id]
		out = append(out, ComponentInfo{
			Proxy:    ComponentProxy{mgr: m, id: id},
			Name:     rec.name,
			TypeName: rec.typeName,
			State:    rec.state,
		})
	}
	return out
}

// GetComponent looks up a component by instance name.
func (m *Manager) GetComponent(name string) (ComponentProxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byName[name]
	if !ok {
		return ComponentProxy{}, fmt.Errorf("get component %q: %w", name, mcferr.ErrUnknownComponent)
	}
	return ComponentProxy{mgr: m, id: id}, nil
}

// GetPorts returns every port name registered on the proxy's component,
// in registration order.
func (m *Manager) GetPorts(proxy ComponentProxy) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookupLocked(proxy.id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), rec.portOrder...), nil
}

// GetPort returns a proxy for the named port on the proxy's component.
func (m *Manager) GetPort(proxy ComponentProxy, name string) (PortProxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookupLocked(proxy.id)
	if err != nil {
		return PortProxy{}, err
	}
	if _, ok := rec.ports[name]; !ok {
		return PortProxy{}, fmt.Errorf("get port %q on %q: %w", name, rec.name, mcferr.ErrUnknownPort)
	}
	return PortProxy{mgr: m, id: proxy.id, name: name}, nil
}

func (m *Manager) resolvePort(id uint64, name string) (port.Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	p, ok := rec.ports[name]
	if !ok {
		return nil, fmt.Errorf("port %q on %q: %w", name, rec.name, mcferr.ErrUnknownPort)
	}
	return p, nil
}

// Name returns the port's name.
func (p PortProxy) Name() string { return p.name }

// Topic re-validates the proxy against the manager and returns the port's
// currently mapped topic.
func (p PortProxy) Topic() (string, error) {
	underlying, err := p.mgr.resolvePort(p.id, p.name)
	if err != nil {
		return "", err
	}
	return underlying.Topic(), nil
}

// IsConnected re-validates the proxy and returns the port's connected flag.
func (p PortProxy) IsConnected() (bool, error) {
	underlying, err := p.mgr.resolvePort(p.id, p.name)
	if err != nil {
		return false, err
	}
	return underlying.IsConnected(), nil
}

// IsValid re-validates the proxy and returns the port's validated flag.
func (p PortProxy) IsValid() (bool, error) {
	underlying, err := p.mgr.resolvePort(p.id, p.name)
	if err != nil {
		return false, err
	}
	return underlying.IsValid(), nil
}

// Direction re-validates the proxy and returns the port's direction.
func (p PortProxy) Direction() (port.Direction, error) {
	underlying, err := p.mgr.resolvePort(p.id, p.name)
	if err != nil {
		return 0, err
	}
	return underlying.Direction(), nil
}

// Store returns the value store this manager was constructed with.
func (m *Manager) Store() value.Store { return m.store }
