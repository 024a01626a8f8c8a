package core

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"gopkg.in/yaml.v3"
)

// testModule is a configurable fake that records lifecycle calls.
type testModule struct {
	id          string
	configured  bool
	provisioned bool
	validated   bool
	started     bool
	stopped     bool

	configureErr error
	provisionErr error
	validateErr  error
	startErr     error
}

func (m *testModule) ModuleInfo() ModuleInfo {
	return ModuleInfo{
		ID:  ModuleID(m.id),
		New: func() Module { return m },
	}
}

func (m *testModule) Configure(_ *yaml.Node) error {
	m.configured = true
	return m.configureErr
}

func (m *testModule) Provision(_ *AppContext) error {
	m.provisioned = true
	return m.provisionErr
}

func (m *testModule) Validate() error {
	m.validated = true
	return m.validateErr
}

func (m *testModule) Start() error {
	m.started = true
	return m.startErr
}

func (m *testModule) Stop(_ context.Context) error {
	m.stopped = true
	return nil
}

func newTestContext() *AppContext {
	return NewAppContext(slog.Default(), "")
}

func TestRegisterModule_Duplicate(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	RegisterModule(&testModule{id: "test.dup"})

	defer func() {
		if recover() == nil {
			t.Fatal("duplicate registration should panic")
		}
	}()
	RegisterModule(&testModule{id: "test.dup"})
}

func TestLoadModule_LifecycleOrder(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	mod := &testModule{id: "test.lifecycle"}
	RegisterModule(mod)

	ctx := newTestContext().WithModuleConfigs(map[string]yaml.Node{
		"test.lifecycle": {},
	})

	if _, err := ctx.LoadModule("test.lifecycle"); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	if !mod.configured || !mod.provisioned || !mod.validated {
		t.Fatalf("lifecycle incomplete: configured=%v provisioned=%v validated=%v",
			mod.configured, mod.provisioned, mod.validated)
	}
}

func TestLoadModule_Unknown(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	_, err := newTestContext().LoadModule("nope")
	if err == nil {
		t.Fatal("expected error for unknown module")
	}
}

func TestLoadModule_ValidateError(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	mod := &testModule{id: "test.invalid", validateErr: errors.New("bad config")}
	RegisterModule(mod)

	if _, err := newTestContext().LoadModule("test.invalid"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestApp_StartFailureStopsStartedModules(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	first := &testModule{id: "test.a"}
	second := &testModule{id: "test.b", startErr: errors.New("boom")}
	RegisterModule(first)
	RegisterModule(second)

	app := NewApp(newTestContext())
	if err := app.LoadModules([]string{"test.a", "test.b"}); err != nil {
		t.Fatalf("LoadModules failed: %v", err)
	}

	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}
	if !first.stopped {
		t.Fatal("first module should be stopped after second failed to start")
	}
}

func TestApp_StopReverseOrder(t *testing.T) {
	resetRegistry()
	defer resetRegistry()

	first := &testModule{id: "test.a"}
	second := &testModule{id: "test.b"}
	RegisterModule(first)
	RegisterModule(second)

	app := NewApp(newTestContext())
	if err := app.LoadModules([]string{"test.a", "test.b"}); err != nil {
		t.Fatalf("LoadModules failed: %v", err)
	}
	if err := app.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	app.Stop()
	if !first.stopped || !second.stopped {
		t.Fatal("all modules should be stopped")
	}
}

func TestAppContext_Services(t *testing.T) {
	t.Parallel()

	ctx := newTestContext()
	ctx.RegisterService("store.users", 42)

	// Scoped copies share the registry.
	scoped := ctx.ForModule("test.scope")
	v, ok := scoped.Service("store.users")
	if !ok || v.(int) != 42 {
		t.Fatalf("Service() = %v, %v; want 42, true", v, ok)
	}

	if _, ok := scoped.Service("missing"); ok {
		t.Fatal("unexpected service resolution")
	}
}
