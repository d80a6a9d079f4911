package repo

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/deltax-data-professor/server/internal/agent/model"
)

// MemoryHistoryRepository keeps history in process. Used when Redis is not
// configured and by the CLI.
type MemoryHistoryRepository struct {
	mu       sync.Mutex
	sessions map[string][]*schema.Message
}

func NewMemoryHistoryRepository() *MemoryHistoryRepository {
	return &MemoryHistoryRepository{sessions: map[string][]*schema.Message{}}
}

func (r *MemoryHistoryRepository) AddMessage(_ context.Context, sessionID string, message *schema.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = append(r.sessions[sessionID], message)
	return nil
}

func (r *MemoryHistoryRepository) LoadHistory(_ context.Context, sessionID string) (*model.History, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := make([]*schema.Message, len(r.sessions[sessionID]))
	copy(msgs, r.sessions[sessionID])
	return &model.History{SessionID: sessionID, Messages: msgs}, nil
}

func (r *MemoryHistoryRepository) ClearHistory(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *MemoryHistoryRepository) GetMessageCount(_ context.Context, sessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[sessionID]), nil
}

var _ model.HistoryRepository = (*MemoryHistoryRepository)(nil)
