package sysconfig_test

import (
	"errors"
	"testing"
	"time"

	"mcf/component"
	"mcf/instantiate"
	"mcf/manager"
	"mcf/mcferr"
	"mcf/memstore"
	"mcf/port"
	"mcf/sysconfig"
	"mcf/value"
)

type echoComponent struct {
	component.Base
	tick *port.ReceiverPort
	tack *port.SenderPort
}

func newEchoComponent(name string) *echoComponent {
	return &echoComponent{Base: component.NewBase(name)}
}

func (c *echoComponent) Configure(reg component.Registrar) error {
	c.tack = port.NewSender("tack")
	c.tick = port.NewReceiver("tick", func(v value.Value) {
		_ = c.tack.Send(v)
	})
	if err := reg.RegisterPort(c.tack, ""); err != nil {
		return err
	}
	return reg.RegisterPort(c.tick, "")
}

func (c *echoComponent) CtrlStart() error { c.SetState(component.Started); return nil }
func (c *echoComponent) CtrlRun() error   { c.SetState(component.Running); return nil }
func (c *echoComponent) CtrlStop() error  { c.SetState(component.Stopped); return nil }

func newHarness() (*manager.Manager, *instantiate.Instantiator, *memstore.Store) {
	store := memstore.New()
	mgr := manager.New(manager.WithStore(store))
	in := instantiate.New(mgr)
	_ = in.AddComponentType(instantiate.ComponentType{
		Namespace: "examples",
		Name:      "echo",
		Factory:   func(name string) component.Component { return newEchoComponent(name) },
	})
	return mgr, in, store
}

func TestConfigureWiresDeclarativePortMapping(t *testing.T) {
	mgr, in, store := newHarness()
	cfgr := sysconfig.New(mgr, in)

	cfg, err := sysconfig.Parse([]byte(`
Components:
  echo-1:
    type: examples/echo
    portMapping:
      tick: /tick
      tack: /tack
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfgr.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	mgr.Startup(true)

	if err := store.SetValue("/tick", value.Of(7)); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v, ok := store.GetValue("/tack"); ok && v.(value.Payload).Data == 7 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("value never propagated from /tick to /tack via declarative wiring")
}

func TestConfigureDisconnectedMappingNeverConnects(t *testing.T) {
	mgr, in, store := newHarness()
	cfgr := sysconfig.New(mgr, in)

	cfg, err := sysconfig.Parse([]byte(`
Components:
  echo-1:
    type: examples/echo
    portMapping:
      tick: /tick
      tack:
        topic: /tack
        connected: false
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfgr.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	mgr.Startup(false)

	proxy, err := mgr.GetComponent("echo-1")
	if err != nil {
		t.Fatalf("GetComponent: %v", err)
	}
	tack, err := mgr.GetPort(proxy, "tack")
	if err != nil {
		t.Fatalf("GetPort: %v", err)
	}
	if connected, _ := tack.IsConnected(); connected {
		t.Fatalf("tack must not be connected: portMapping declared connected: false")
	}

	_ = store.SetValue("/tick", value.Of(1))
	time.Sleep(20 * time.Millisecond)
	if _, ok := store.GetValue("/tack"); ok {
		t.Fatalf("/tack must never be set when its mapping is disconnected")
	}
}

// TestConfigureAtomicRollback is spec.md §8 end-to-end scenario 6: one
// valid entry plus one entry naming an unknown type must leave neither
// component present afterward.
func TestConfigureAtomicRollback(t *testing.T) {
	mgr, in, _ := newHarness()
	cfgr := sysconfig.New(mgr, in)

	cfg, err := sysconfig.Parse([]byte(`
Components:
  good:
    type: examples/echo
    portMapping:
      tick: /tick
      tack: /tack
  bad:
    type: examples/does-not-exist
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	err = cfgr.Configure(cfg)
	if err == nil {
		t.Fatalf("expected a system configuration error")
	}
	if !errors.Is(err, mcferr.ErrSystemConfigurationError) {
		t.Fatalf("expected ErrSystemConfigurationError, got %v", err)
	}

	if got := mgr.GetComponents(); len(got) != 0 {
		t.Fatalf("expected no components after atomic rollback, got %d", len(got))
	}
}

func TestConfigureReusesExistingComponentByNameAndType(t *testing.T) {
	mgr, in, _ := newHarness()
	cfgr := sysconfig.New(mgr, in)

	first, err := sysconfig.Parse([]byte(`
Components:
  echo-1:
    type: examples/echo
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfgr.Configure(first); err != nil {
		t.Fatalf("first Configure: %v", err)
	}

	proxyBefore, err := mgr.GetComponent("echo-1")
	if err != nil {
		t.Fatalf("GetComponent: %v", err)
	}

	second, err := sysconfig.Parse([]byte(`
Components:
  echo-1:
    type: examples/echo
    portMapping:
      tick: /tick
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfgr.Configure(second); err != nil {
		t.Fatalf("second Configure: %v", err)
	}

	proxyAfter, err := mgr.GetComponent("echo-1")
	if err != nil {
		t.Fatalf("GetComponent: %v", err)
	}
	if proxyBefore.ID() != proxyAfter.ID() {
		t.Fatalf("reconfiguring the same (name, type) must reuse the existing instance")
	}
}

func TestConfigureTypeMismatchRejected(t *testing.T) {
	mgr, in, _ := newHarness()
	_ = in.AddComponentType(instantiate.ComponentType{
		Namespace: "examples",
		Name:      "other",
		Factory:   func(name string) component.Component { return newEchoComponent(name) },
	})
	cfgr := sysconfig.New(mgr, in)

	first, _ := sysconfig.Parse([]byte(`
Components:
  x:
    type: examples/echo
`))
	if err := cfgr.Configure(first); err != nil {
		t.Fatalf("first Configure: %v", err)
	}

	second, _ := sysconfig.Parse([]byte(`
Components:
  x:
    type: examples/other
`))
	err := cfgr.Configure(second)
	if err == nil {
		t.Fatalf("expected a type mismatch error")
	}
	if !errors.Is(err, mcferr.ErrSystemConfigurationError) {
		t.Fatalf("expected ErrSystemConfigurationError wrapping the mismatch, got %v", err)
	}
}

func TestPortMappingUnmarshalShapes(t *testing.T) {
	cfg, err := sysconfig.Parse([]byte(`
Components:
  c:
    type: t
    portMapping:
      bare: /bare
      nulled: null
      obj:
        topic: /obj
        connected: false
      objDefaulted:
        topic: /obj2
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	pm := cfg.Components["c"].PortMapping

	if pm["bare"].Topic != "/bare" || !pm["bare"].Connected {
		t.Fatalf("bare string mapping: got %+v", pm["bare"])
	}
	if pm["nulled"].Topic != "" || pm["nulled"].Connected {
		t.Fatalf("null mapping: got %+v", pm["nulled"])
	}
	if pm["obj"].Topic != "/obj" || pm["obj"].Connected {
		t.Fatalf("explicit connected:false: got %+v", pm["obj"])
	}
	if pm["objDefaulted"].Topic != "/obj2" || !pm["objDefaulted"].Connected {
		t.Fatalf("object with defaulted connected: got %+v", pm["objDefaulted"])
	}
}
