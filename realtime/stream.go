package realtime

import "sync"

// subscriptionBuffer is the per-listener channel depth. A listener that
// falls this far behind misses intermediate values; the latest value is
// always retained for replay.
const subscriptionBuffer = 64

// stream is a multicast value stream with replay-of-latest semantics: a
// listener attached after N publishes immediately receives the most recent
// of those N, then every subsequent publish in order.
type stream[T any] struct {
	mu      sync.Mutex
	current T
	seen    bool
	subs    map[int]chan T
	nextSub int
	logger  Logger
	label   string
}

func newStream[T any]() *stream[T] {
	return &stream[T]{subs: make(map[int]chan T), logger: noopLogger{}}
}

// instrument attaches a logger so values dropped on stalled listeners are
// diagnosable. Streams without one drop silently.
func (s *stream[T]) instrument(logger Logger, label string) *stream[T] {
	s.logger = logger
	s.label = label
	return s
}

// seed sets the replay value without treating it as a publish that
// listeners already attached should observe.
func (s *stream[T]) seed(v T) {
	s.mu.Lock()
	s.current = v
	s.seen = true
	s.mu.Unlock()
}

// publish delivers v to every listener and retains it for replay.
func (s *stream[T]) publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = v
	s.seen = true
	for _, ch := range s.subs {
		select {
		case ch <- v:
		default:
			// Listener buffer full; the latest value stays available for
			// replay and snapshot reads.
			s.logger.Warn("listener stalled, value dropped", "stream", s.label)
		}
	}
}

// latest returns the retained value and whether one has been set.
func (s *stream[T]) latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.seen
}

// subscribe attaches a new independent listener. The latest value, if any,
// is replayed into the listener's channel before this returns.
func (s *stream[T]) subscribe() *Subscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan T, subscriptionBuffer)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	if s.seen {
		ch <- s.current
	}
	return &Subscription[T]{stream: s, id: id, ch: ch}
}

// drop detaches a listener. Other listeners are unaffected.
func (s *stream[T]) drop(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// Subscription is one listener attached to a multicast stream. Close it
// when done; closing one subscription never affects the others.
type Subscription[T any] struct {
	stream *stream[T]
	id     int
	ch     chan T
	once   sync.Once
}

// C returns the channel values are delivered on. The channel is never
// closed by the stream; detach with Close instead.
func (sub *Subscription[T]) C() <-chan T {
	return sub.ch
}

// Close detaches the subscription from its stream.
func (sub *Subscription[T]) Close() {
	sub.once.Do(func() {
		sub.stream.drop(sub.id)
	})
}
