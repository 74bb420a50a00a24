package realtime

import "sync"

// pending is one in-flight command and the shared outcome every duplicate
// caller waits on. A pending request has no built-in expiry: absent a
// success or error frame it stays unresolved and callers bail out through
// their own context.
type pending struct {
	id    int64
	key   string
	frame commandFrame

	done  chan struct{}
	value any
	err   error
	once  sync.Once
}

// resolve completes the request with a value. Safe to call at most once
// alongside reject; later calls are ignored.
func (p *pending) resolve(v any) {
	p.once.Do(func() {
		p.value = v
		close(p.done)
	})
}

// reject completes the request with an error.
func (p *pending) reject(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// requestTable owns the pending-request map and the session's monotonic
// request id counter. Identical concurrent commands (same dedup key) share
// one record, so exactly one frame reaches the wire.
//
// All methods are safe for concurrent use.
type requestTable struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]*pending
	byID   map[int64]*pending
	logger Logger
}

func newRequestTable(logger Logger) *requestTable {
	return &requestTable{
		byKey:  make(map[string]*pending),
		byID:   make(map[int64]*pending),
		logger: logger,
	}
}

// obtain returns the pending record for the command, creating it with a
// fresh id when no identical command is already in flight. The second
// return reports whether the record was created by this call, i.e. whether
// the caller is responsible for transmitting it.
func (t *requestTable) obtain(cmd Command, id Identity, args []any) (*pending, bool) {
	key := dedupKey(cmd, id)

	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.byKey[key]; ok {
		return p, false
	}

	t.nextID++
	p := &pending{
		id:  t.nextID,
		key: key,
		frame: commandFrame{
			ID:    t.nextID,
			Cmd:   cmd,
			Sys:   id.System,
			Mod:   id.Module,
			Index: id.Index,
			Name:  id.Name,
			Args:  args,
		},
		done: make(chan struct{}),
	}
	t.byKey[key] = p
	t.byID[p.id] = p
	return p, true
}

// remove drops the record from both indexes. It does not resolve it.
func (t *requestTable) remove(p *pending) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.byKey[p.key] == p {
		delete(t.byKey, p.key)
	}
	delete(t.byID, p.id)
}

// resolveID completes and removes the record matching a success frame.
// Unknown ids are a no-op (late responses after cleanup).
func (t *requestTable) resolveID(id int64, value any) bool {
	t.mu.Lock()
	p, ok := t.byID[id]
	if ok {
		if t.byKey[p.key] == p {
			delete(t.byKey, p.key)
		}
		delete(t.byID, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	p.resolve(value)
	return true
}

// rejectID completes and removes the record matching an error frame.
// Other in-flight requests are untouched.
func (t *requestTable) rejectID(id int64, err error) bool {
	t.mu.Lock()
	p, ok := t.byID[id]
	if ok {
		if t.byKey[p.key] == p {
			delete(t.byKey, p.key)
		}
		delete(t.byID, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	p.reject(err)
	return true
}

// clear atomically drops every pending record without resolving it.
func (t *requestTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKey = make(map[string]*pending)
	t.byID = make(map[int64]*pending)
}
