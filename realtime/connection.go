package realtime

import (
	"context"
	"errors"
	"time"
)

// Timings groups the timers that drive the connection state machine and
// the mock transport's simulated latency. Tests inject millisecond-scale
// profiles; production uses DefaultTimings.
type Timings struct {
	// KeepAlive is the interval between outbound "ping" literals.
	KeepAlive time.Duration
	// HealthWindow is the maximum silence after a ping before the
	// connection is declared unhealthy and torn down.
	HealthWindow time.Duration
	// BackoffBase scales the reconnect delay: base * min(cap, attempts).
	BackoffBase time.Duration
	// BackoffCap bounds the attempt multiplier.
	BackoffCap int
	// MockLatencyMin/Max bound the randomized notify latency of the mock
	// transport.
	MockLatencyMin time.Duration
	MockLatencyMax time.Duration
	// MockCallDelay is the fixed delay before mock success/error frames.
	MockCallDelay time.Duration
}

// DefaultTimings returns the production timing profile.
func DefaultTimings() Timings {
	return Timings{
		KeepAlive:      20 * time.Second,
		HealthWindow:   30 * time.Second,
		BackoffBase:    2 * time.Second,
		BackoffCap:     10,
		MockLatencyMin: 50 * time.Millisecond,
		MockLatencyMax: 150 * time.Millisecond,
		MockCallDelay:  25 * time.Millisecond,
	}
}

// Connect establishes the control-socket session, retrying with bounded
// backoff until it succeeds. Connection failures are never returned to the
// caller: Connect resolves once a session is eventually established, or
// when ctx is cancelled / the session is cleaned up.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	return s.connectWait(ctx, done)
}

// connectWait is Connect bound to a specific session generation, so
// internal retries cannot revive a session that Cleanup tore down.
func (s *Session) connectWait(ctx context.Context, done chan struct{}) error {
	select {
	case <-done:
		return ErrSessionClosed
	default:
	}

	s.mu.Lock()
	if done != s.done {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if cur, _ := s.status.latest(); cur {
		s.mu.Unlock()
		return nil
	}
	if !s.connecting {
		s.connecting = true
		s.loopSeq++
		go s.connectLoop(s.loopSeq, s.done)
	}
	s.mu.Unlock()

	sub := s.status.subscribe()
	defer sub.Close()
	for {
		select {
		case connected := <-sub.C():
			if connected {
				return nil
			}
		case <-done:
			return ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// connectLoop is the single active connect attempt sequence, identified by
// seq so a superseding loop (scheduled by reconnect) retires this one. It
// retries until a transport opens, preconditions allowing: a live
// connection needs a token and network reachability, the mock transport is
// exempt.
func (s *Session) connectLoop(seq int, done chan struct{}) {
	for {
		s.mu.Lock()
		if s.loopSeq != seq || s.done != done {
			s.mu.Unlock()
			return
		}
		gen := s.gen
		s.mu.Unlock()

		if !s.authority.Mock() && (s.authority.Token() == "" || !s.authority.Online()) {
			delay := s.nextBackoff()
			s.logger.Debug("connect preconditions unmet, retrying",
				"session", s.id, "delay", delay)
			if !sleepUnless(done, delay) {
				return
			}
			continue
		}

		transport, err := s.pickFactory()(context.Background(), s.transportHandlers(gen))
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				s.logger.Warn("control socket rejected credentials, refreshing authority", "session", s.id)
				s.authority.InvalidateToken()
				s.authority.RefreshAuthority()
			} else {
				s.logger.Warn("control socket connect failed", "session", s.id, "error", err)
			}
			delay := s.nextBackoff()
			if !sleepUnless(done, delay) {
				return
			}
			continue
		}

		s.mu.Lock()
		if s.loopSeq != seq || s.done != done {
			s.mu.Unlock()
			transport.Close()
			return
		}
		if s.gen != gen {
			// The transport died before it was installed: its Closed or
			// Error handler already tore this generation down. This loop
			// still owns the attempt, so back off and redial.
			s.mu.Unlock()
			transport.Close()
			if !sleepUnless(done, s.nextBackoff()) {
				return
			}
			continue
		}
		s.transport = transport
		s.attempts = 0
		s.connecting = false
		stop := make(chan struct{})
		s.keepAliveStop = stop
		s.mu.Unlock()

		s.logger.Info("control socket connected", "session", s.id, "mock", s.authority.Mock())
		s.setStatus(true)
		s.armHealthCheck(gen)
		go s.keepAlivePump(gen, stop, transport)
		return
	}
}

// reconnect tears the current transport down and schedules a fresh connect
// after the backoff delay.
func (s *Session) reconnect(gen int) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	done := s.done
	transport := s.transport
	s.transport = nil
	if s.keepAliveStop != nil {
		close(s.keepAliveStop)
		s.keepAliveStop = nil
	}
	if s.health != nil {
		s.health.Stop()
		s.health = nil
	}
	s.attempts++
	delay := s.backoff(s.attempts)
	s.connecting = true
	s.loopSeq++
	seq := s.loopSeq
	s.reconnectTimer = time.AfterFunc(delay, func() {
		select {
		case <-done:
		default:
			s.connectLoop(seq, done)
		}
	})
	s.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
	s.setStatus(false)
	s.logger.Info("reconnecting to control socket", "session", s.id, "delay", delay)
}

// transportHandlers wires transport callbacks to the session, guarded by
// the generation so a stale transport cannot disturb its successor.
func (s *Session) transportHandlers(gen int) Handlers {
	return Handlers{
		Message: func(data []byte) {
			if !s.isCurrent(gen) {
				return
			}
			s.dispatch(data)
		},
		Error: func(err error) {
			if !s.isCurrent(gen) {
				return
			}
			s.handleTransportError(gen, err)
		},
		Closed: func() {
			if !s.isCurrent(gen) {
				return
			}
			s.handleTransportClosed(gen)
		},
	}
}

// handleTransportError recovers from a failed transport. Errors here never
// surface to Bind/Exec callers; the status stream is the only signal.
func (s *Session) handleTransportError(gen int, err error) {
	s.clearHealthCheck()
	if errors.Is(err, ErrUnauthorized) {
		s.authority.InvalidateToken()
		s.authority.RefreshAuthority()
	}
	s.logger.Warn("control socket error", "session", s.id, "error", err)
	s.reconnect(gen)
}

// handleTransportClosed reacts to the remote ending the stream. Status
// flips to disconnected; no reconnect is triggered from this path alone.
func (s *Session) handleTransportClosed(gen int) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	transport := s.transport
	s.transport = nil
	if s.keepAliveStop != nil {
		close(s.keepAliveStop)
		s.keepAliveStop = nil
	}
	if s.health != nil {
		s.health.Stop()
		s.health = nil
	}
	s.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
	s.setStatus(false)
	s.logger.Info("control socket closed", "session", s.id)
}

// keepAlivePump sends the liveness literal on a fixed interval and arms
// the health check after every ping.
func (s *Session) keepAlivePump(gen int, stop chan struct{}, transport Transport) {
	ticker := time.NewTicker(s.timings.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := transport.Send([]byte(pingFrame)); err != nil {
				if s.isCurrent(gen) {
					s.logger.Warn("keep-alive send failed", "session", s.id, "error", err)
					s.handleTransportError(gen, err)
				}
				return
			}
			s.armHealthCheck(gen)
		}
	}
}

// armHealthCheck starts the bounded silence timer if one is not already
// running. Any inbound frame clears it; expiry forces a reconnect.
func (s *Session) armHealthCheck(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.health != nil {
		return
	}
	s.health = time.AfterFunc(s.timings.HealthWindow, func() {
		if !s.isCurrent(gen) {
			return
		}
		s.mu.Lock()
		s.health = nil
		s.mu.Unlock()
		s.logger.Warn("no traffic inside health window, connection unhealthy", "session", s.id)
		s.reconnect(gen)
	})
}

// clearHealthCheck cancels the pending health timer, if any.
func (s *Session) clearHealthCheck() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.health != nil {
		s.health.Stop()
		s.health = nil
	}
}

// nextBackoff bumps the consecutive-failure counter and returns the delay
// before the next attempt.
func (s *Session) nextBackoff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.backoff(s.attempts)
}

// backoff computes baseDelay * min(capAttempts, attempts).
func (s *Session) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > s.timings.BackoffCap {
		attempts = s.timings.BackoffCap
	}
	return s.timings.BackoffBase * time.Duration(attempts)
}

// pickFactory selects the transport for the next attempt: an injected
// factory wins, otherwise mock or live according to the authority.
func (s *Session) pickFactory() TransportFactory {
	if s.factory != nil {
		return s.factory
	}
	if s.authority.Mock() {
		return newMockFactory(s.mockRegistry, s.timings)
	}
	return newWebsocketFactory(s.endpoint, s.authority)
}

// setStatus publishes a status transition. The session is the sole writer.
func (s *Session) setStatus(connected bool) {
	if cur, ok := s.status.latest(); ok && cur == connected {
		return
	}
	s.status.publish(connected)
}

// isCurrent reports whether gen is still the live session generation.
func (s *Session) isCurrent(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// sleepUnless waits for d, returning false if done closes first.
func sleepUnless(done chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return false
	case <-timer.C:
		return true
	}
}
