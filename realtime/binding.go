package realtime

import "sync"

// binding is one registry entry: the last observed value of a status
// variable plus the multicast stream its listeners are attached to.
//
// The stream is seeded with nil so a listener attached before the first
// notify still receives an initial emission; observed stays false until a
// real value arrives so Value() can distinguish "never seen".
type binding struct {
	stream   *stream[any]
	value    any
	observed bool
}

func newBinding(logger Logger, label string) *binding {
	b := &binding{stream: newStream[any]().instrument(logger, label)}
	b.stream.seed(nil)
	return b
}

// bindingTable tracks every status variable the session has observed,
// keyed by binding identity. Entries are created lazily on first listen,
// bind or notify and are never removed except by clear().
//
// All methods are safe for concurrent use.
type bindingTable struct {
	mu      sync.RWMutex
	entries map[string]*binding
	logger  Logger
}

func newBindingTable(logger Logger) *bindingTable {
	return &bindingTable{
		entries: make(map[string]*binding),
		logger:  logger,
	}
}

// entry returns the binding for id, creating it if absent.
func (t *bindingTable) entry(id Identity) *binding {
	key := id.bindingKey()

	t.mu.RLock()
	b, ok := t.entries[key]
	t.mu.RUnlock()
	if ok {
		return b
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.entries[key]; ok {
		return b
	}
	b = newBinding(t.logger, key)
	t.entries[key] = b
	t.logger.Debug("binding created", "binding", key)
	return b
}

// listen attaches a new independent listener to the identity's stream,
// lazily creating the entry.
func (t *bindingTable) listen(id Identity) *Subscription[any] {
	return t.entry(id).stream.subscribe()
}

// value is a synchronous snapshot read. The second return is false if no
// notify has ever been observed for the identity.
func (t *bindingTable) value(id Identity) (any, bool) {
	t.mu.RLock()
	b, ok := t.entries[id.bindingKey()]
	t.mu.RUnlock()
	if !ok || !b.observed {
		return nil, false
	}
	return b.value, true
}

// notify records a new value for the identity and publishes it to all
// current and future listeners.
func (t *bindingTable) notify(id Identity, v any) {
	b := t.entry(id)

	t.mu.Lock()
	b.value = v
	b.observed = true
	t.mu.Unlock()

	b.stream.publish(v)
}

// clear atomically discards every entry. Subscriptions held by callers go
// inert; a fresh listen for a previously known identity starts from an
// unset value.
func (t *bindingTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*binding)
}
