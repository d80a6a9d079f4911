package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Kind names a class of long-running action. A session runs at most one task
// per kind.
type Kind int

const (
	TaskIngest Kind = iota
	TaskConnect
	TaskAsk
	TaskTranscribe
	TaskListModels
)

func (k Kind) String() string {
	switch k {
	case TaskIngest:
		return "ingest"
	case TaskConnect:
		return "connect"
	case TaskAsk:
		return "ask"
	case TaskTranscribe:
		return "transcribe"
	case TaskListModels:
		return "list-models"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token identifies one started task. Generation is the state generation the
// task started under; Session.Commit drops results once it has moved on.
type Token struct {
	Kind       Kind
	ID         uuid.UUID
	Generation uint64
}

type task struct {
	id     uuid.UUID
	cancel context.CancelFunc
}

// Tasks tracks the current task of each kind.
type Tasks struct {
	mu      sync.Mutex
	current map[Kind]task
}

func NewTasks() *Tasks {
	return &Tasks{current: make(map[Kind]task)}
}

// Begin starts a task of kind, cancelling the one it supersedes. The returned
// context is cancelled when the task is superseded, cancelled or ended.
func (t *Tasks) Begin(ctx context.Context, kind Kind) (context.Context, Token) {
	ctx, cancel := context.WithCancel(ctx)
	tok := Token{Kind: kind, ID: uuid.New()}

	t.mu.Lock()
	prev, ok := t.current[kind]
	t.current[kind] = task{id: tok.ID, cancel: cancel}
	t.mu.Unlock()

	if ok {
		prev.cancel()
	}
	return ctx, tok
}

// Current reports whether tok is still the latest task of its kind.
func (t *Tasks) Current(tok Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.current[tok.Kind]
	return ok && cur.id == tok.ID
}

// End releases tok. Ending a superseded token is a no-op.
func (t *Tasks) End(tok Token) {
	t.mu.Lock()
	cur, ok := t.current[tok.Kind]
	if ok && cur.id == tok.ID {
		delete(t.current, tok.Kind)
	}
	t.mu.Unlock()
	if ok && cur.id == tok.ID {
		cur.cancel()
	}
}

// CancelAll cancels every running task.
func (t *Tasks) CancelAll() {
	t.mu.Lock()
	running := t.current
	t.current = make(map[Kind]task)
	t.mu.Unlock()

	for _, r := range running {
		r.cancel()
	}
}
