package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Session is one user's state plus its task supervisor.
type Session struct {
	ID string

	mu       sync.Mutex
	state    State
	tasks    *Tasks
	lastUsed atomic.Int64
}

func newSession(id string) *Session {
	s := &Session{ID: id, tasks: NewTasks()}
	s.touch()
	return s
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// LastUsed is when the session was last accessed.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// View runs fn with the state locked. fn must not keep the pointer.
func (s *Session) View(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// Update applies a synchronous change. Mode changes and sign-out also cancel
// whatever is in flight.
func (s *Session) Update(fn func(*State)) {
	s.mu.Lock()
	gen := s.state.Generation
	fn(&s.state)
	reset := s.state.Generation != gen
	s.mu.Unlock()

	if reset {
		s.tasks.CancelAll()
	}
}

// Begin starts a task of kind, superseding the previous one.
func (s *Session) Begin(ctx context.Context, kind Kind) (context.Context, Token) {
	ctx, tok, _ := s.BeginIf(ctx, kind, nil)
	return ctx, tok
}

// BeginIf runs guard and starts the task under the same lock, so the state
// guard saw is the state the task belongs to. A guard error starts nothing.
func (s *Session) BeginIf(ctx context.Context, kind Kind, guard func(*State) error) (context.Context, Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if guard != nil {
		if err := guard(&s.state); err != nil {
			return ctx, Token{}, err
		}
	}
	ctx, tok := s.tasks.Begin(ctx, kind)
	tok.Generation = s.state.Generation
	return ctx, tok, nil
}

// End releases a task token.
func (s *Session) End(tok Token) {
	s.tasks.End(tok)
}

// Commit applies fn only if tok is still current and the state has not been
// reset since the task began. Stale results are dropped and Commit returns
// false.
func (s *Session) Commit(tok Token, fn func(*State)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.Generation != s.state.Generation || !s.tasks.Current(tok) {
		return false
	}
	fn(&s.state)
	return true
}

func (s *Session) close() {
	s.tasks.CancelAll()
}
