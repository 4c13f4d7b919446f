package download

import (
	"sync"
)

// Session owns the registry of saved image paths and the stop token shared
// by the download loop and the cleanup routine.
//
// The stop token is set once and never cleared. Register checks it inside
// the same critical section that appends, so no path is accepted after a stop,
// and Drain snapshots and clears the registry atomically.
type Session struct {
	mu    sync.Mutex
	paths []string

	stopOnce sync.Once
	stop     chan struct{}
}

// NewSession creates a Session with the specified initial capacity.
func NewSession(capacity int) *Session {
	if capacity <= 0 {
		capacity = 8
	}
	return &Session{
		paths: make([]string, 0, capacity),
		stop:  make(chan struct{}),
	}
}

// Stop sets the stop token. Safe to call multiple times and from any goroutine.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		// Taking the lock orders the stop after any Register already in progress.
		s.mu.Lock()
		close(s.stop)
		s.mu.Unlock()
	})
}

// Stopped reports whether the stop token is set.
func (s *Session) Stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the stop token is set.
func (s *Session) Done() <-chan struct{} {
	return s.stop
}

// Register appends a fully written file path.
// Returns false without recording the path when a stop was already requested;
// the caller then owns the file and must remove it.
func (s *Session) Register(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Stopped() {
		return false
	}
	s.paths = append(s.paths, path)
	return true
}

// Drain sets the stop token, then returns the registered paths in insertion
// order and clears the registry in one critical section.
func (s *Session) Drain() []string {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.paths
	s.paths = make([]string, 0)
	return out
}

// Snapshot returns a copy of the registered paths.
func (s *Session) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}

// Size returns the number of registered paths.
func (s *Session) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}
