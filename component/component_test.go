package component_test

import (
	"testing"

	"mcf/component"
	"mcf/idgen"
)

func TestBaseBookkeeping(t *testing.T) {
	b := component.NewBase("echo-1")

	if b.Name() != "echo-1" {
		t.Fatalf("Name() = %q, want echo-1", b.Name())
	}
	if b.GetState() != component.Stopped {
		t.Fatalf("initial state = %v, want Stopped", b.GetState())
	}

	b.SetState(component.Started)
	if b.GetState() != component.Started {
		t.Fatalf("state after SetState = %v, want Started", b.GetState())
	}

	gen := idgen.NewDefaultIDGenerator()
	b.SetIDGenerator(gen)
	if b.IDGenerator() != gen {
		t.Fatalf("IDGenerator() did not return the injected generator")
	}

	b.CtrlSetConfigDirs([]string{"/etc/mcf"})
	if got := b.ConfigDirs(); len(got) != 1 || got[0] != "/etc/mcf" {
		t.Fatalf("ConfigDirs() = %v, want [/etc/mcf]", got)
	}
}

func TestStateString(t *testing.T) {
	cases := map[component.State]string{
		component.Stopped: "STOPPED",
		component.Started: "STARTED",
		component.Running: "RUNNING",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
