// Package instantiate implements the Component Instantiator (§4.2): a
// factory registry mapping qualified type names to component factories,
// plus the list of currently live instances it created.
package instantiate

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"mcf/component"
	"mcf/manager"
	"mcf/mcferr"
)

// ComponentFactory produces a fresh component instance named instanceName.
type ComponentFactory func(instanceName string) component.Component

// ComponentType is a qualified name (namespace/name) plus the factory
// that builds instances of it.
type ComponentType struct {
	Namespace string
	Name      string
	Factory   ComponentFactory
}

// QualifiedName returns "namespace/name".
func (t ComponentType) QualifiedName() string {
	return t.Namespace + "/" + t.Name
}

// ParseQualifiedName splits q on its last '/' into namespace and name. ok
// is false if q contains no '/'.
func ParseQualifiedName(q string) (namespace, name string, ok bool) {
	i := strings.LastIndexByte(q, '/')
	if i < 0 {
		return "", "", false
	}
	return q[:i], q[i+1:], true
}

type instanceEntry struct {
	proxy        manager.ComponentProxy
	qualifiedName string
}

// Instantiator holds the type registry and the live-instance list, and
// registers every instance it creates with a Manager.
type Instantiator struct {
	mu        sync.Mutex
	mgr       *manager.Manager
	types     map[string]ComponentType
	instances map[string]instanceEntry
	order     []string
}

// New builds an Instantiator that registers instances with mgr.
func New(mgr *manager.Manager) *Instantiator {
	return &Instantiator{
		mgr:       mgr,
		types:     make(map[string]ComponentType),
		instances: make(map[string]instanceEntry),
	}
}

// AddComponentType registers t. Duplicates are rejected.
func (in *Instantiator) AddComponentType(t ComponentType) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	q := t.QualifiedName()
	if _, exists := in.types[q]; exists {
		return fmt.Errorf("add component type %q: %w", q, mcferr.ErrDuplicateType)
	}
	in.types[q] = t
	return nil
}

// RemoveComponentType removes a type by its qualified name. Existing
// instances of that type are left intact.
func (in *Instantiator) RemoveComponentType(qualifiedName string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.types, qualifiedName)
}

// CreateComponent looks up qualifiedName, constructs a fresh instance
// named instanceName, registers it with the manager, and remembers it.
func (in *Instantiator) CreateComponent(qualifiedName, instanceName string) (manager.ComponentProxy, error) {
	in.mu.Lock()
	t, ok := in.types[qualifiedName]
	if !ok {
		in.mu.Unlock()
		return manager.ComponentProxy{}, fmt.Errorf("create component %q: unknown type %q: %w", instanceName, qualifiedName, mcferr.ErrInstantiationError)
	}
	if _, exists := in.instances[instanceName]; exists {
		in.mu.Unlock()
		return manager.ComponentProxy{}, fmt.Errorf("create component %q: %w: instance name collides with a live instance", instanceName, mcferr.ErrInstantiationError)
	}
	in.mu.Unlock()

	comp := t.Factory(instanceName)
	proxy, err := in.mgr.RegisterComponent(comp, qualifiedName, instanceName, "")
	if err != nil {
		return manager.ComponentProxy{}, fmt.Errorf("create component %q: %w", instanceName, err)
	}

	in.mu.Lock()
	in.instances[instanceName] = instanceEntry{proxy: proxy, qualifiedName: qualifiedName}
	in.order = append(in.order, instanceName)
	in.mu.Unlock()

	return proxy, nil
}

// RemoveComponent erases instanceName from the manager and the instance
// list.
func (in *Instantiator) RemoveComponent(instanceName string) error {
	in.mu.Lock()
	entry, ok := in.instances[instanceName]
	if !ok {
		in.mu.Unlock()
		return fmt.Errorf("remove component %q: %w", instanceName, mcferr.ErrUnknownComponent)
	}
	delete(in.instances, instanceName)
	in.order = removeString(in.order, instanceName)
	in.mu.Unlock()

	return in.mgr.EraseComponent(entry.proxy)
}

// ReloadComponent removes the existing instance named instanceName and
// creates a fresh instance of the same qualified type under the same
// name, returning the new proxy. Prior port mappings and scheduling
// parameters are not preserved (§9 open question: kept as-is, a
// documented sharp edge rather than silently fixed).
func (in *Instantiator) ReloadComponent(instanceName string) (manager.ComponentProxy, error) {
	in.mu.Lock()
	entry, ok := in.instances[instanceName]
	in.mu.Unlock()
	if !ok {
		return manager.ComponentProxy{}, fmt.Errorf("reload component %q: %w", instanceName, mcferr.ErrUnknownComponent)
	}

	if err := in.RemoveComponent(instanceName); err != nil {
		return manager.ComponentProxy{}, err
	}
	return in.CreateComponent(entry.qualifiedName, instanceName)
}

// ListComponents returns every live instance name, in creation order.
func (in *Instantiator) ListComponents() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.order...)
}

// ListComponentTypes returns every registered qualified type name, sorted.
// If namespace is non-empty, only types under that namespace are returned.
func (in *Instantiator) ListComponentTypes(namespace string) []string {
	in.mu.Lock()
	defer in.mu.Unlock()

	out := make([]string, 0, len(in.types))
	for q, t := range in.types {
		if namespace == "" || t.Namespace == namespace {
			out = append(out, q)
		}
	}
	sort.Strings(out)
	return out
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
