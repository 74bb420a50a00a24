package realtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockSession returns a connected session backed by the mock transport and
// the given registry.
func mockSession(t *testing.T, registry *MockRegistry) *Session {
	t.Helper()
	authority := newFakeAuthority("")
	authority.mock = true
	s := New(authority,
		WithTimings(testTimings()),
		WithMockRegistry(registry),
	)
	t.Cleanup(s.Cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return s
}

// powerRegistry builds sys-1 with Mod_1 exposing power=true and a
// power_off method that flips it.
func powerRegistry() *MockRegistry {
	registry := NewMockRegistry()
	mod := registry.AddSystem("sys-1").AddModule("Mod")
	mod.SetProperty("power", true)
	mod.SetMethod("power_off", func(m *MockModule, _ []any) any {
		m.SetProperty("power", false)
		return nil
	})
	return registry
}

func TestMockBindEmitsCurrentThenChanges(t *testing.T) {
	s := mockSession(t, powerRegistry())
	id := Identity{System: "sys-1", Module: "Mod", Index: 1, Name: "power"}

	sub := s.Listen(id)
	defer sub.Close()
	if v := recv(t, sub); v != nil {
		t.Fatalf("pre-bind emission = %v, want nil", v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Bind(ctx, id); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	if v := recv(t, sub); v != true {
		t.Fatalf("first bound emission = %v, want true", v)
	}

	if _, err := s.Exec(ctx, Identity{System: "sys-1", Module: "Mod", Index: 1, Name: "power_off"}); err != nil {
		t.Fatalf("Exec(power_off) error = %v", err)
	}

	if v := recv(t, sub); v != false {
		t.Fatalf("post-exec emission = %v, want false", v)
	}
	if v, ok := s.Value(id); !ok || v != false {
		t.Errorf("Value() = %v, %v, want false, true", v, ok)
	}
}

func TestMockUnknownSystemRejectsBind(t *testing.T) {
	s := mockSession(t, powerRegistry())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Bind(ctx, Identity{System: "no-such-sys", Module: "Mod", Index: 1, Name: "power"})

	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("Bind() error = %v, want *Error", err)
	}
	if rerr.Code != CodeSystemNotFound {
		t.Errorf("code = %v, want SYS_NOT_FOUND", rerr.Code)
	}
}

func TestMockUnknownModuleIndexRejects(t *testing.T) {
	s := mockSession(t, powerRegistry())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := s.Exec(ctx, Identity{System: "sys-1", Module: "Mod", Index: 9, Name: "power_off"})

	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Code != CodeModuleNotFound {
		t.Fatalf("Exec() error = %v, want MOD_NOT_FOUND", err)
	}
}

func TestMockUnknownMethodRejects(t *testing.T) {
	s := mockSession(t, powerRegistry())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := s.Exec(ctx, Identity{System: "sys-1", Module: "Mod", Index: 1, Name: "self_destruct"})

	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Code != CodeUnknownCommand {
		t.Fatalf("Exec() error = %v, want UNKNOWN_COMMAND", err)
	}
}

func TestMockUnbindGoesInert(t *testing.T) {
	registry := powerRegistry()
	s := mockSession(t, registry)
	id := Identity{System: "sys-1", Module: "Mod", Index: 1, Name: "power"}

	sub := s.Listen(id)
	defer sub.Close()
	recv(t, sub) // nil

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Bind(ctx, id); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if v := recv(t, sub); v != true {
		t.Fatalf("bound emission = %v, want true", v)
	}

	if err := s.Unbind(ctx, id); err != nil {
		t.Fatalf("Unbind() error = %v", err)
	}

	// A property change after unbind produces no further emission, but the
	// registry still serves the last observed value.
	sys, _ := registry.System("sys-1")
	mod, _ := sys.Module("Mod", 1)
	mod.SetProperty("power", false)
	assertQuiet(t, sub, 50*time.Millisecond)

	if v, ok := s.Value(id); !ok || v != true {
		t.Errorf("Value() = %v, %v, want the last bound value true", v, ok)
	}
}

func TestMockExecReturnsMethodResult(t *testing.T) {
	registry := NewMockRegistry()
	mod := registry.AddSystem("sys-1").AddModule("Display")
	mod.SetProperty("brightness", 10.0)
	mod.SetMethod("set_brightness", func(m *MockModule, args []any) any {
		level := args[0]
		m.SetProperty("brightness", level)
		return level
	})
	s := mockSession(t, registry)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := s.Exec(ctx, Identity{System: "sys-1", Module: "Display", Index: 1, Name: "set_brightness"}, 80)
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if v != 80.0 {
		t.Errorf("Exec() = %v, want 80", v)
	}
	if got, _ := mod.Property("brightness"); got != 80.0 {
		t.Errorf("brightness = %v, want 80", got)
	}
}

func TestMockMethodReachesSiblingModules(t *testing.T) {
	registry := NewMockRegistry()
	sys := registry.AddSystem("sys-1")
	lights := sys.AddModule("Lighting")
	lights.SetProperty("power", true)
	scenes := sys.AddModule("Scenes")
	scenes.SetMethod("all_off", func(m *MockModule, _ []any) any {
		sibling, ok := m.System().Module("Lighting", 1)
		if !ok {
			return false
		}
		sibling.SetProperty("power", false)
		return true
	})
	s := mockSession(t, registry)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := s.Exec(ctx, Identity{System: "sys-1", Module: "Scenes", Index: 1, Name: "all_off"})
	if err != nil || v != true {
		t.Fatalf("Exec(all_off) = %v, %v", v, err)
	}
	if power, _ := lights.Property("power"); power != false {
		t.Errorf("sibling power = %v, want false", power)
	}
}

func TestMockModuleIndexing(t *testing.T) {
	registry := NewMockRegistry()
	sys := registry.AddSystem("sys-1")
	first := sys.AddModule("Camera")
	second := sys.AddModule("Camera")

	if first.Index() != 1 || second.Index() != 2 {
		t.Errorf("indexes = %d, %d, want 1 and 2", first.Index(), second.Index())
	}
	if first.ID() == second.ID() {
		t.Error("instances share an id")
	}
	if _, ok := sys.Module("Camera", 3); ok {
		t.Error("index 3 resolved but was never added")
	}
	if _, ok := sys.Module("Camera", 0); ok {
		t.Error("index 0 resolved; indexes are 1-based")
	}
}

func TestMockNotifyOrderingPreserved(t *testing.T) {
	registry := NewMockRegistry()
	mod := registry.AddSystem("sys-1").AddModule("Counter")
	mod.SetProperty("count", 0.0)
	s := mockSession(t, registry)
	id := Identity{System: "sys-1", Module: "Counter", Index: 1, Name: "count"}

	sub := s.Listen(id)
	defer sub.Close()
	recv(t, sub) // nil

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Bind(ctx, id); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if v := recv(t, sub); v != 0.0 {
		t.Fatalf("initial emission = %v, want 0", v)
	}

	for i := 1; i <= 5; i++ {
		mod.SetProperty("count", float64(i))
	}
	for i := 1; i <= 5; i++ {
		if v := recv(t, sub); v != float64(i) {
			t.Fatalf("emission %d = %v, out of order", i, v)
		}
	}
}
