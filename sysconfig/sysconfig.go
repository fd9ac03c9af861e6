// Package sysconfig implements the System Configurator (§4.7): a
// declarative YAML system description that drives instantiation and
// topic wiring through a manager.Manager and instantiate.Instantiator,
// atomically rolling back every component it created if any entry fails
// or the resulting configuration does not validate.
package sysconfig

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"mcf/component"
	"mcf/instantiate"
	"mcf/manager"
	"mcf/mcferr"
)

// DefaultConfigTopicPath is prepended to an instance name to build the
// implicit per-component configuration topic §4.7 step 3 wires every
// component's ConfigIn/ConfigOut ports to, matching the original's
// Component::DEFAULT_CONFIG_TOPIC_PATH.
const DefaultConfigTopicPath = "/mcf/config/"

// SystemConfig is the declarative tree from §4.7/§6.3.
type SystemConfig struct {
	Components map[string]ComponentConfig `yaml:"Components"`
}

// ComponentConfig is one entry under Components.
type ComponentConfig struct {
	Type                 string                 `yaml:"type"`
	SchedulingParameters SchedulingParamsConfig `yaml:"schedulingParameters"`
	PortMapping          map[string]PortMapping `yaml:"portMapping"`
}

// SchedulingParamsConfig mirrors §6.3's schedulingParameters shape.
// Policy defaults to "default", Priority to 0.
type SchedulingParamsConfig struct {
	Policy   string `yaml:"policy"`
	Priority int    `yaml:"priority"`
}

// PortMapping is one portMapping entry. It accepts three shapes per
// §6.3: a bare topic string, null (unmapped), or an object with an
// explicit topic/connected pair. Connected defaults to true unless the
// topic is null or empty, in which case it defaults to false.
type PortMapping struct {
	Topic     string
	Connected bool
}

// UnmarshalYAML implements the three-shape decoding described above.
func (pm *PortMapping) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*pm = PortMapping{}
			return nil
		}
		var topic string
		if err := node.Decode(&topic); err != nil {
			return err
		}
		*pm = PortMapping{Topic: topic, Connected: topic != ""}
		return nil

	case yaml.MappingNode:
		var raw struct {
			Topic     string `yaml:"topic"`
			Connected *bool  `yaml:"connected"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		connected := raw.Topic != ""
		if raw.Connected != nil {
			connected = *raw.Connected
		}
		*pm = PortMapping{Topic: raw.Topic, Connected: connected}
		return nil

	default:
		return fmt.Errorf("sysconfig: portMapping: unsupported YAML node kind %v", node.Kind)
	}
}

// ParsePolicy translates the declarative policy name to a
// component.SchedulingPolicy. An empty string is "default".
func ParsePolicy(name string) (component.SchedulingPolicy, error) {
	switch name {
	case "", "default":
		return component.Default, nil
	case "other":
		return component.Other, nil
	case "fifo":
		return component.Fifo, nil
	case "round-robin":
		return component.RoundRobin, nil
	default:
		return 0, fmt.Errorf("scheduling policy must be one of 'other', 'fifo', 'round-robin', 'default', got %q", name)
	}
}

// Parse decodes a YAML document into a SystemConfig.
func Parse(data []byte) (*SystemConfig, error) {
	var cfg SystemConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("sysconfig: parse: %w", err)
	}
	return &cfg, nil
}

// LoadFile reads and parses a YAML system configuration from path.
func LoadFile(path string) (*SystemConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sysconfig: read %s: %w", path, err)
	}
	return Parse(data)
}

// Configurator drives SystemConfig.Configure against one manager and
// instantiator pair.
type Configurator struct {
	mgr *manager.Manager
	in  *instantiate.Instantiator
}

// New builds a Configurator wired to mgr and in.
func New(mgr *manager.Manager, in *instantiate.Instantiator) *Configurator {
	return &Configurator{mgr: mgr, in: in}
}

// Configure applies cfg per §4.7: existing (name, type)-matching components
// are reused, new entries are instantiated and configured, scheduling
// parameters and port mappings are applied, and the implicit per-component
// config topic is wired. If any entry fails or the resulting configuration
// does not validate, every component this call instantiated is removed
// before returning the aggregated mcferr.ErrSystemConfigurationError — a
// reused, pre-existing component is never rolled back, even if a later
// entry in the same call fails (§4.7's "created in this call" reading,
// rather than the original implementation's literal `instantiatedComponents`
// list, which also re-removes every reused component on rollback).
func (c *Configurator) Configure(cfg *SystemConfig) error {
	existingProxy := make(map[string]manager.ComponentProxy)
	existingType := make(map[string]string)
	for _, info := range c.mgr.GetComponents() {
		existingProxy[info.Name] = info.Proxy
		existingType[info.Name] = info.TypeName
	}

	names := make([]string, 0, len(cfg.Components))
	for name := range cfg.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs *multierror.Error
	var created []string

	for _, name := range names {
		entry := cfg.Components[name]

		proxy, isNew, err := c.resolveComponent(existingProxy, existingType, name, entry.Type)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s (%s): %w", name, entry.Type, err))
			continue
		}
		if isNew {
			created = append(created, name)
		}

		if err := c.applyEntry(proxy, name, entry); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s (%s): %w", name, entry.Type, err))
		}
	}

	validated := c.mgr.ValidateConfiguration()
	if errs.ErrorOrNil() != nil || !validated {
		if errs.ErrorOrNil() == nil {
			errs = multierror.Append(errs, errors.New("component configuration failed validation"))
		}
		for _, name := range created {
			if rmErr := c.in.RemoveComponent(name); rmErr != nil {
				errs = multierror.Append(errs, fmt.Errorf("rollback %s: %w", name, rmErr))
			}
		}
		return fmt.Errorf("%w: %s", mcferr.ErrSystemConfigurationError, errs)
	}
	return nil
}

func (c *Configurator) resolveComponent(
	existingProxy map[string]manager.ComponentProxy,
	existingType map[string]string,
	name, typeName string,
) (manager.ComponentProxy, bool, error) {
	if proxy, ok := existingProxy[name]; ok {
		if typeName != "" && existingType[name] != typeName {
			return manager.ComponentProxy{}, false, mcferr.ErrTypeMismatch
		}
		return proxy, false, nil
	}

	if typeName == "" {
		return manager.ComponentProxy{}, false, fmt.Errorf("%w: cannot instantiate component with empty type", mcferr.ErrInvalidArgument)
	}

	proxy, err := c.in.CreateComponent(typeName, name)
	if err != nil {
		return manager.ComponentProxy{}, false, err
	}
	if err := c.mgr.ConfigureProxy(proxy); err != nil {
		_ = c.in.RemoveComponent(name)
		return manager.ComponentProxy{}, false, err
	}
	return proxy, true, nil
}

func (c *Configurator) applyEntry(proxy manager.ComponentProxy, name string, entry ComponentConfig) error {
	policy, err := ParsePolicy(entry.SchedulingParameters.Policy)
	if err != nil {
		return err
	}
	if err := c.mgr.SetSchedulingParameters(proxy, component.SchedulingParameters{
		Policy:   policy,
		Priority: entry.SchedulingParameters.Priority,
	}); err != nil {
		return err
	}

	configTopic := DefaultConfigTopicPath + name
	_ = c.mgr.MapPort(proxy, "ConfigIn", configTopic)
	_ = c.mgr.MapPort(proxy, "ConfigOut", configTopic)

	portNames := make([]string, 0, len(entry.PortMapping))
	for pname := range entry.PortMapping {
		portNames = append(portNames, pname)
	}
	sort.Strings(portNames)

	var portErrs *multierror.Error
	for _, pname := range portNames {
		mapping := entry.PortMapping[pname]
		if err := c.mgr.MapPort(proxy, pname, mapping.Topic); err != nil {
			portErrs = multierror.Append(portErrs, fmt.Errorf("port %q: %w", pname, err))
			continue
		}
		if mapping.Connected {
			if err := c.mgr.ConnectPort(proxy, pname); err != nil {
				portErrs = multierror.Append(portErrs, fmt.Errorf("port %q: %w", pname, err))
			}
		}
	}
	return portErrs.ErrorOrNil()
}
