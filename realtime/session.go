package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Authority supplies the platform collaborators the realtime layer
// consumes: credentials, the mock switch, reachability, and the auth
// recovery hooks invoked on 401-class failures.
type Authority interface {
	// Token returns the current bearer token, or "" when none is held.
	Token() string
	// Mock reports whether the session should use the in-memory transport.
	Mock() bool
	// Online reports network reachability.
	Online() bool
	// InvalidateToken discards the current token.
	InvalidateToken()
	// RefreshAuthority re-acquires credentials after an auth failure.
	RefreshAuthority()
}

// Session is one logical connection to the control socket. It owns all
// realtime state — bindings, pending requests, connection status, timers —
// so independent sessions (and tests) never share state.
//
// All methods are safe for concurrent use from multiple goroutines.
type Session struct {
	id        string
	authority Authority
	logger    Logger
	endpoint  Endpoint
	timings   Timings
	factory   TransportFactory

	bindings     *bindingTable
	requests     *requestTable
	status       *stream[bool]
	debug        *stream[DebugEvent]
	mockRegistry *MockRegistry

	mu             sync.Mutex
	gen            int           // bumped on every teardown; stale callbacks check it
	loopSeq        int           // identifies the owning connect loop; bumped to retire it
	done           chan struct{} // closed by Cleanup, then replaced
	transport      Transport
	connecting     bool
	attempts       int
	keepAliveStop  chan struct{}
	health         *time.Timer
	reconnectTimer *time.Timer
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Defaults to a no-op logger.
func WithLogger(logger Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithEndpoint sets the control-socket endpoint for the live transport.
func WithEndpoint(e Endpoint) Option {
	return func(s *Session) { s.endpoint = e }
}

// WithTimings overrides the timing profile.
func WithTimings(t Timings) Option {
	return func(s *Session) { s.timings = t }
}

// WithTransportFactory injects a transport factory, bypassing the default
// mock/live selection. Intended for tests.
func WithTransportFactory(f TransportFactory) Option {
	return func(s *Session) { s.factory = f }
}

// WithMockRegistry sets the registry the mock transport serves.
func WithMockRegistry(r *MockRegistry) Option {
	return func(s *Session) { s.mockRegistry = r }
}

// New creates a session. The session is idle until Connect is called.
func New(authority Authority, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		authority: authority,
		logger:    noopLogger{},
		endpoint:  Endpoint{Host: "localhost:8080"},
		timings:   DefaultTimings(),
		status:    newStream[bool](),
		debug:     newStream[DebugEvent](),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.status.instrument(s.logger, "status")
	s.debug.instrument(s.logger, "debug")
	s.status.seed(false)
	s.bindings = newBindingTable(s.logger)
	s.requests = newRequestTable(s.logger)
	if s.mockRegistry == nil {
		s.mockRegistry = NewMockRegistry()
	}
	return s
}

// ID returns the session's unique id, used in log correlation.
func (s *Session) ID() string {
	return s.id
}

// Listen returns a subscription to the identity's value stream, lazily
// creating the binding entry. The latest value (nil before the first
// notify) is replayed immediately; listeners are independent of each other
// and of the live bind state.
func (s *Session) Listen(id Identity) *Subscription[any] {
	return s.bindings.listen(id)
}

// Value is a synchronous snapshot of the identity's current value. The
// second return is false if no notify has ever been observed.
func (s *Session) Value(id Identity) (any, bool) {
	return s.bindings.value(id)
}

// Bind subscribes the session to a status variable. Identical concurrent
// binds share one request frame and one outcome. ctx bounds only this
// caller's wait; the request itself has no timeout.
func (s *Session) Bind(ctx context.Context, id Identity) error {
	_, err := s.send(ctx, CommandBind, id, nil)
	return err
}

// Unbind cancels the live subscription for a status variable. The binding
// entry and its last value survive for Value reads and later rebinds.
func (s *Session) Unbind(ctx context.Context, id Identity) error {
	_, err := s.send(ctx, CommandUnbind, id, nil)
	return err
}

// Exec invokes a method on the addressed module instance and returns its
// result. Identical concurrent calls (same identity and verb) coalesce
// into one in-flight request.
func (s *Session) Exec(ctx context.Context, id Identity, args ...any) (any, error) {
	return s.send(ctx, CommandExec, id, args)
}

// Debug asks the platform to stream driver log lines for the addressed
// module onto the session's debug stream.
func (s *Session) Debug(ctx context.Context, id Identity) error {
	_, err := s.send(ctx, CommandDebug, id, nil)
	return err
}

// Ignore stops the driver log stream requested by Debug.
func (s *Session) Ignore(ctx context.Context, id Identity) error {
	_, err := s.send(ctx, CommandIgnore, id, nil)
	return err
}

// Status returns a subscription to the connection status stream. The
// current value is replayed immediately.
func (s *Session) Status() *Subscription[bool] {
	return s.status.subscribe()
}

// IsConnected reports the current connection status.
func (s *Session) IsConnected() bool {
	connected, _ := s.status.latest()
	return connected
}

// DebugEvents returns a subscription to the driver debug-event stream.
func (s *Session) DebugEvents() *Subscription[DebugEvent] {
	return s.debug.subscribe()
}

// Cleanup atomically tears the session down: clears bindings, listeners
// and pending requests, stops every timer, closes the transport and resets
// status to disconnected. The session is ready for a fresh Connect
// afterwards. Pending requests are abandoned unresolved; their callers
// return through their own contexts.
func (s *Session) Cleanup() {
	s.mu.Lock()
	s.gen++
	s.loopSeq++
	close(s.done)
	s.done = make(chan struct{})
	transport := s.transport
	s.transport = nil
	s.connecting = false
	s.attempts = 0
	if s.keepAliveStop != nil {
		close(s.keepAliveStop)
		s.keepAliveStop = nil
	}
	if s.health != nil {
		s.health.Stop()
		s.health = nil
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
	s.requests.clear()
	s.bindings.clear()
	s.setStatus(false)
	s.logger.Info("realtime session cleaned up", "session", s.id)
}

// send runs one command through the request multiplexer. If an identical
// command is already pending its outcome is shared; otherwise a new record
// is created and transmitted (after connecting, if necessary).
func (s *Session) send(ctx context.Context, cmd Command, id Identity, args []any) (any, error) {
	p, created := s.requests.obtain(cmd, id, args)
	if created {
		s.transmit(p)
	}

	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		// Abandoning the wait does not cancel the in-flight request.
		return nil, ctx.Err()
	}
}

// transmit puts a freshly created request on the wire, or defers it until
// a connection exists.
func (s *Session) transmit(p *pending) {
	s.mu.Lock()
	transport := s.transport
	gen := s.gen
	done := s.done
	s.mu.Unlock()

	if transport == nil {
		go s.resubmitWhenConnected(p, done)
		return
	}

	data, err := encodeCommand(p.frame)
	if err != nil {
		s.requests.remove(p)
		p.reject(err)
		return
	}
	if err := transport.Send(data); err != nil {
		s.logger.Warn("command send failed", "session", s.id, "id", p.id, "error", err)
		s.handleTransportError(gen, err)
		go s.resubmitWhenConnected(p, done)
	}
}

// resubmitWhenConnected waits for a connection, drops the stale record and
// reissues the command under a fresh id, forwarding the outcome to the
// original waiters. Creating the record before connecting keeps duplicate
// commands coalesced while the attempt is outstanding.
func (s *Session) resubmitWhenConnected(p *pending, done chan struct{}) {
	if err := s.connectWait(context.Background(), done); err != nil {
		// Session cleaned up; the request stays unresolved by design.
		return
	}

	s.requests.remove(p)
	fresh, created := s.requests.obtain(p.frame.Cmd, p.frame.identity(), p.frame.Args)
	if created {
		s.transmit(fresh)
	}

	select {
	case <-fresh.done:
		if fresh.err != nil {
			p.reject(fresh.err)
		} else {
			p.resolve(fresh.value)
		}
	case <-done:
		// Session cleaned up while the resubmission was in flight.
	}
}
