package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// newMockFactory returns a TransportFactory serving the frame contract
// from an in-memory registry. Synthetic frames are routed back through the
// session's regular dispatcher, so registry updates and request
// resolution behave exactly as with live traffic.
func newMockFactory(registry *MockRegistry, timings Timings) TransportFactory {
	return func(_ context.Context, h Handlers) (Transport, error) {
		return &mockTransport{
			registry: registry,
			timings:  timings,
			handlers: h,
			subs:     make(map[string]*Subscription[any]),
			closed:   make(chan struct{}),
		}, nil
	}
}

// mockTransport substitutes for the live control socket. Commands are
// answered with synthetic frames after simulated network latency.
type mockTransport struct {
	registry *MockRegistry
	timings  Timings
	handlers Handlers

	mu     sync.Mutex
	subs   map[string]*Subscription[any] // live property subscriptions by binding key
	closed chan struct{}
	once   sync.Once
}

// Send accepts one outbound frame and schedules the synthetic response.
func (t *mockTransport) Send(data []byte) error {
	select {
	case <-t.closed:
		return errors.New("realtime: mock transport closed")
	default:
	}

	if string(data) == pingFrame {
		go t.emitLiteral(pongFrame)
		return nil
	}

	var frame commandFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("decoding mock command: %w", err)
	}

	switch frame.Cmd {
	case CommandBind:
		go t.handleBind(frame)
	case CommandUnbind:
		go t.handleUnbind(frame)
	default:
		// Every other verb is an invocation against the module instance.
		go t.handleCall(frame)
	}
	return nil
}

// Close disposes all property subscriptions and stops frame emission.
func (t *mockTransport) Close() error {
	t.once.Do(func() {
		close(t.closed)
		t.mu.Lock()
		for _, sub := range t.subs {
			sub.Close()
		}
		t.subs = make(map[string]*Subscription[any])
		t.mu.Unlock()
		if t.handlers.Closed != nil {
			go t.handlers.Closed()
		}
	})
	return nil
}

// handleBind subscribes to the addressed property's change stream. Each
// change is forwarded as a synthetic notify after randomized latency; the
// current value replays immediately on subscribe.
func (t *mockTransport) handleBind(frame commandFrame) {
	mod, code, msg := t.resolve(frame)
	if mod == nil {
		t.sleep(t.timings.MockCallDelay)
		t.emitError(frame.ID, code, msg)
		return
	}

	identity := frame.identity()
	key := identity.bindingKey()

	t.mu.Lock()
	if _, exists := t.subs[key]; !exists {
		sub := mod.watch(frame.Name)
		t.subs[key] = sub
		go t.notifyPump(identity, sub)
	}
	t.mu.Unlock()

	t.sleep(t.timings.MockCallDelay)
	t.emitSuccess(frame.ID, nil)
}

// handleUnbind disposes the property subscription for the binding key, if
// present. The pump goroutine goes inert immediately.
func (t *mockTransport) handleUnbind(frame commandFrame) {
	key := frame.identity().bindingKey()

	t.mu.Lock()
	sub := t.subs[key]
	delete(t.subs, key)
	t.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	t.sleep(t.timings.MockCallDelay)
	t.emitSuccess(frame.ID, nil)
}

// handleCall invokes the named method on the module instance and answers
// with its result.
func (t *mockTransport) handleCall(frame commandFrame) {
	mod, code, msg := t.resolve(frame)
	if mod == nil {
		t.sleep(t.timings.MockCallDelay)
		t.emitError(frame.ID, code, msg)
		return
	}

	fn, ok := mod.method(frame.Name)
	if !ok {
		t.sleep(t.timings.MockCallDelay)
		t.emitError(frame.ID, CodeUnknownCommand,
			fmt.Sprintf("module %s_%d has no method %q", frame.Mod, frame.Index, frame.Name))
		return
	}

	result := fn(mod, frame.Args)
	t.sleep(t.timings.MockCallDelay)
	t.emitSuccess(frame.ID, result)
}

// notifyPump forwards property changes as notify frames. Delivery is
// sequential, so per-binding ordering survives the randomized latency.
func (t *mockTransport) notifyPump(identity Identity, sub *Subscription[any]) {
	for {
		select {
		case <-t.closed:
			return
		case value := <-sub.C():
			if !t.sleep(t.latency()) {
				return
			}
			t.emitNotify(identity, value)
		}
	}
}

// resolve locates the addressed module instance, or reports which half of
// the address failed.
func (t *mockTransport) resolve(frame commandFrame) (*MockModule, ErrorCode, string) {
	sys, ok := t.registry.System(frame.Sys)
	if !ok {
		return nil, CodeSystemNotFound, fmt.Sprintf("system %q not found", frame.Sys)
	}
	mod, ok := sys.Module(frame.Mod, frame.Index)
	if !ok {
		return nil, CodeModuleNotFound, fmt.Sprintf("module %s_%d not found in %q", frame.Mod, frame.Index, frame.Sys)
	}
	return mod, 0, ""
}

// emitNotify delivers a synthetic notify frame. The value is JSON-encoded
// into a string, matching the live wire contract.
func (t *mockTransport) emitNotify(identity Identity, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return
	}
	t.deliver(map[string]any{
		"type":  frameNotify,
		"value": string(encoded),
		"meta":  identity,
	})
}

func (t *mockTransport) emitSuccess(id int64, value any) {
	t.deliver(map[string]any{
		"type":  frameSuccess,
		"id":    id,
		"value": value,
	})
}

func (t *mockTransport) emitError(id int64, code ErrorCode, msg string) {
	t.deliver(map[string]any{
		"type": frameError,
		"id":   id,
		"code": int(code),
		"msg":  msg,
	})
}

func (t *mockTransport) emitLiteral(literal string) {
	select {
	case <-t.closed:
	default:
		t.handlers.Message([]byte(literal))
	}
}

// deliver marshals and routes a synthetic frame through the dispatcher.
func (t *mockTransport) deliver(frame map[string]any) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case <-t.closed:
	default:
		t.handlers.Message(data)
	}
}

// latency returns a randomized delay inside the configured bounds.
func (t *mockTransport) latency() time.Duration {
	spread := t.timings.MockLatencyMax - t.timings.MockLatencyMin
	if spread <= 0 {
		return t.timings.MockLatencyMin
	}
	return t.timings.MockLatencyMin + rand.N(spread)
}

// sleep waits for d, returning false if the transport closed first.
func (t *mockTransport) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.closed:
		return false
	case <-timer.C:
		return true
	}
}
