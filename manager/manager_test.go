package manager_test

import (
	"testing"
	"time"

	"mcf/component"
	"mcf/idgen"
	"mcf/manager"
	"mcf/memstore"
	"mcf/port"
	"mcf/value"
)

// echoComponent receives on "tick" and sends the same value on "tack",
// the manager-level analogue of the end-to-end echo scenario.
type echoComponent struct {
	component.Base
	tick *port.ReceiverPort
	tack *port.SenderPort
	stop chan struct{}
}

func newEchoComponent(name string) *echoComponent {
	return &echoComponent{Base: component.NewBase(name), stop: make(chan struct{})}
}

func (c *echoComponent) Configure(reg component.Registrar) error {
	c.tack = port.NewSender("tack")
	c.tick = port.NewReceiver("tick", func(v value.Value) {
		_ = c.tack.Send(v)
	})
	if err := reg.RegisterPort(c.tack, "/tack"); err != nil {
		return err
	}
	return reg.RegisterPort(c.tick, "/tick")
}

func (c *echoComponent) CtrlStart() error {
	c.SetState(component.Started)
	return nil
}

func (c *echoComponent) CtrlRun() error {
	c.SetState(component.Running)
	return nil
}

func (c *echoComponent) CtrlStop() error {
	c.SetState(component.Stopped)
	return nil
}

func TestEndToEndEchoScenario(t *testing.T) {
	store := memstore.New()
	mgr := manager.New(manager.WithStore(store))

	comp := newEchoComponent("echo-1")
	proxy, err := mgr.RegisterComponent(comp, "examples/echo", "echo-1", "")
	if err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}

	mgr.Configure()
	mgr.Startup(true)

	if err := store.SetValue("/tick", value.Of(23)); err != nil {
		t.Fatalf("SetValue: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v, ok := store.GetValue("/tack"); ok && v.(value.Payload).Data == 23 {
			return
		}
		time.Sleep(time.Millisecond)
	}

	t.Fatalf("value never propagated from /tick to /tack")
	_ = proxy
}

func TestEraseBeforeStartupNeverDelivers(t *testing.T) {
	store := memstore.New()
	mgr := manager.New(manager.WithStore(store))

	comp := newEchoComponent("echo-2")
	proxy, err := mgr.RegisterComponent(comp, "examples/echo", "echo-2", "")
	if err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}

	if err := mgr.EraseComponent(proxy); err != nil {
		t.Fatalf("EraseComponent: %v", err)
	}

	_ = store.SetValue("/tick", value.Of(99))
	time.Sleep(20 * time.Millisecond)

	if _, ok := store.GetValue("/tack"); ok {
		t.Fatalf("/tack must never be set once the component was erased pre-startup")
	}
}

func TestStartupWithoutConnectingLeavesPortsDisconnected(t *testing.T) {
	store := memstore.New()
	mgr := manager.New(manager.WithStore(store))

	comp := newEchoComponent("echo-3")
	proxy, err := mgr.RegisterComponent(comp, "examples/echo", "echo-3", "")
	if err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}

	mgr.Configure()
	mgr.Startup(false)

	tack, err := mgr.GetPort(proxy, "tack")
	if err != nil {
		t.Fatalf("GetPort: %v", err)
	}
	connected, err := tack.IsConnected()
	if err != nil {
		t.Fatalf("IsConnected: %v", err)
	}
	if connected {
		t.Fatalf("tack must not be connected when Startup(connectPorts=false)")
	}

	_ = store.SetValue("/tick", value.Of(1))
	time.Sleep(20 * time.Millisecond)
	if _, ok := store.GetValue("/tack"); ok {
		t.Fatalf("/tack must never be set when its sender port is not connected")
	}
}

func TestDuplicateInstanceNameRejected(t *testing.T) {
	mgr := manager.New()
	comp1 := newEchoComponent("dup")
	comp2 := newEchoComponent("dup")

	if _, err := mgr.RegisterComponent(comp1, "t", "dup", ""); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := mgr.RegisterComponent(comp2, "t", "dup", ""); err == nil {
		t.Fatalf("expected duplicate instance error")
	}
}

func TestConfigureIsIdempotent(t *testing.T) {
	mgr := manager.New()
	comp := newEchoComponent("idem")
	proxy, err := mgr.RegisterComponent(comp, "t", "idem", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := mgr.ConfigureProxy(proxy); err != nil {
		t.Fatalf("first configure: %v", err)
	}
	if err := mgr.ConfigureProxy(proxy); err != nil {
		t.Fatalf("second configure should be a no-op, not an error: %v", err)
	}
}

func TestValidateConfigurationRejectsWhitespaceTopic(t *testing.T) {
	mgr := manager.New()
	comp := newEchoComponent("bad-topic")
	proxy, err := mgr.RegisterComponent(comp, "t", "bad-topic", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := mgr.ConfigureProxy(proxy); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := mgr.MapPort(proxy, "tack", "bad topic"); err != nil {
		t.Fatalf("map port: %v", err)
	}

	if mgr.ValidateConfiguration() {
		t.Fatalf("validation must fail on a topic containing whitespace")
	}
}

func TestUnknownComponentErrors(t *testing.T) {
	mgr := manager.New()
	comp := newEchoComponent("temp")
	proxy, err := mgr.RegisterComponent(comp, "t", "temp", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := mgr.EraseComponent(proxy); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if err := mgr.ConfigureProxy(proxy); err == nil {
		t.Fatalf("expected unknown component error after erase")
	}
}

func TestIDGeneratorInjected(t *testing.T) {
	mgr := manager.New(manager.WithIDGenerator(idgen.NewDefaultIDGenerator()))
	comp := newEchoComponent("gen")
	if _, err := mgr.RegisterComponent(comp, "t", "gen", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	// SetIDGenerator is called during RegisterComponent; Base stores it.
	if comp.IDGenerator() == nil {
		t.Fatalf("expected an id generator to be injected")
	}
}
