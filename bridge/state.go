package bridge

import (
	"context"
	"log/slog"
	"sync"
)

// endpointState is the one piece of state shared between the stream and
// dispatch paths: the current POST target and the remote session id. The
// stream side is the only writer of the endpoint; the dispatch side is the
// only writer of the session id.
type endpointState struct {
	mu        sync.Mutex
	rpcURL    string
	pinned    bool
	sessionID string
	ready     chan struct{}
	isReady   bool
	logger    *slog.Logger
}

// newEndpointState builds the state, optionally pre-registered with a
// pinned POST endpoint. A pinned endpoint is configuration, not discovery:
// it is dispatchable from the start and survives reconnects.
func newEndpointState(pinnedURL string, logger *slog.Logger) *endpointState {
	s := &endpointState{
		ready:  make(chan struct{}),
		logger: logger,
	}
	if pinnedURL != "" {
		s.rpcURL = pinnedURL
		s.pinned = true
		s.isReady = true
		close(s.ready)
	}
	return s
}

// setRPCURL registers a discovered POST endpoint and releases any waiters.
func (s *endpointState) setRPCURL(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pinned {
		s.logger.Debug("ignoring announced endpoint, rpc url is pinned", "endpoint", u)
		return
	}

	if u != s.rpcURL {
		s.logger.Info("rpc endpoint registered", "endpoint", u)
	}
	s.rpcURL = u

	if !s.isReady {
		s.isReady = true
		close(s.ready)
	}
}

// invalidate forgets a discovered endpoint ahead of a reconnect; the stale
// target must not receive messages meant for the next connection. Waiters
// created after this call block until a fresh endpoint is announced.
func (s *endpointState) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pinned || !s.isReady {
		return
	}

	s.logger.Debug("rpc endpoint invalidated", "endpoint", s.rpcURL)
	s.rpcURL = ""
	s.isReady = false
	s.ready = make(chan struct{})
}

// setSessionID records a server-issued session identifier. The most
// recently observed value wins; the session is never cleared.
func (s *endpointState) setSessionID(id string) {
	if id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.sessionID {
		s.logger.Info("remote session established", "session_id", id)
	}
	s.sessionID = id
}

// session returns the current session id, or empty if none was issued yet.
func (s *endpointState) session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// snapshot returns the current POST target and session id. ok is false
// while no endpoint is registered.
func (s *endpointState) snapshot() (rpcURL, sessionID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rpcURL, s.sessionID, s.isReady
}

// readyCh returns the channel closed when an endpoint becomes available.
// Invalidation replaces the channel, so callers must re-check after a wake.
func (s *endpointState) readyCh() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// waitReady blocks until a POST endpoint is registered or ctx is done.
func (s *endpointState) waitReady(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.isReady {
			s.mu.Unlock()
			return nil
		}
		ch := s.ready
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
