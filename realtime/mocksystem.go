package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// MockMethod handles an exec invocation against a mock module instance.
// The instance is passed so a handler can mutate its own properties and
// reach sibling modules through m.System().
type MockMethod func(m *MockModule, args []any) any

// MockRegistry holds the in-memory systems the mock transport serves.
// Populate it before connecting a mock session.
//
// All methods are safe for concurrent use.
type MockRegistry struct {
	mu      sync.RWMutex
	systems map[string]*MockSystem
}

// NewMockRegistry creates an empty registry.
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{systems: make(map[string]*MockSystem)}
}

// AddSystem creates the system if absent and returns it.
func (r *MockRegistry) AddSystem(id string) *MockSystem {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sys, ok := r.systems[id]; ok {
		return sys
	}
	sys := &MockSystem{
		id:       id,
		registry: r,
		modules:  make(map[string][]*MockModule),
	}
	r.systems[id] = sys
	return sys
}

// System looks a system up by id.
func (r *MockRegistry) System(id string) (*MockSystem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sys, ok := r.systems[id]
	return sys, ok
}

// MockSystem is one simulated system hosting indexed module instances.
// Systems may host multiple instances of the same module type; indexes
// are 1-based in instantiation order.
type MockSystem struct {
	id       string
	registry *MockRegistry

	mu      sync.RWMutex
	modules map[string][]*MockModule
}

// ID returns the system id.
func (sys *MockSystem) ID() string {
	return sys.id
}

// Registry returns the owning registry.
func (sys *MockSystem) Registry() *MockRegistry {
	return sys.registry
}

// AddModule appends a new instance of the named module type and returns
// it. The instance receives the next free index.
func (sys *MockSystem) AddModule(name string) *MockModule {
	sys.mu.Lock()
	defer sys.mu.Unlock()

	m := &MockModule{
		id:      uuid.NewString(),
		name:    name,
		index:   len(sys.modules[name]) + 1,
		system:  sys,
		props:   make(map[string]*stream[any]),
		methods: make(map[string]MockMethod),
	}
	sys.modules[name] = append(sys.modules[name], m)
	return m
}

// Module looks an instance up by module name and 1-based index.
func (sys *MockSystem) Module(name string, index int) (*MockModule, bool) {
	sys.mu.RLock()
	defer sys.mu.RUnlock()
	instances := sys.modules[name]
	if index < 1 || index > len(instances) {
		return nil, false
	}
	return instances[index-1], true
}

// MockModule is one indexed module instance. Properties and methods live
// in explicitly separate maps, so a name can never be both.
type MockModule struct {
	id     string
	name   string
	index  int
	system *MockSystem

	mu      sync.RWMutex
	props   map[string]*stream[any]
	methods map[string]MockMethod
}

// ID returns the instance id.
func (m *MockModule) ID() string { return m.id }

// Name returns the module type name.
func (m *MockModule) Name() string { return m.name }

// Index returns the 1-based instance index.
func (m *MockModule) Index() int { return m.index }

// System returns the hosting system, enabling handlers to reach sibling
// modules.
func (m *MockModule) System() *MockSystem { return m.system }

// SetProperty sets a property value, creating the cell if absent. Bound
// watchers observe the change.
func (m *MockModule) SetProperty(name string, value any) {
	m.propCell(name).publish(value)
}

// Property reads a property's current value.
func (m *MockModule) Property(name string) (any, bool) {
	m.mu.RLock()
	cell, ok := m.props[name]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cell.latest()
}

// SetMethod registers an exec handler under the given name.
func (m *MockModule) SetMethod(name string, fn MockMethod) {
	m.mu.Lock()
	m.methods[name] = fn
	m.mu.Unlock()
}

// method looks an exec handler up.
func (m *MockModule) method(name string) (MockMethod, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn, ok := m.methods[name]
	return fn, ok
}

// watch subscribes to a property's change stream, lazily creating the
// cell. The current value, if any, replays immediately.
func (m *MockModule) watch(name string) *Subscription[any] {
	return m.propCell(name).subscribe()
}

// propCell returns the property's cell, creating it if absent.
func (m *MockModule) propCell(name string) *stream[any] {
	m.mu.RLock()
	cell, ok := m.props[name]
	m.mu.RUnlock()
	if ok {
		return cell
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cell, ok := m.props[name]; ok {
		return cell
	}
	cell = newStream[any]()
	m.props[name] = cell
	return cell
}
