package conversations

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/deltax-data-professor/server/internal/agent/model"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// HistoryManager reads and writes the question history of a session.
type HistoryManager struct {
	repo     model.HistoryRepository
	maxTurns int
}

func NewHistoryManager(repo model.HistoryRepository, config model.HistoryConfig) *HistoryManager {
	return &HistoryManager{repo: repo, maxTurns: config.MaxTurns}
}

// RecentQuestions returns up to maxTurns previous questions, oldest first.
// History is advisory, so a failing store yields no history instead of an error.
func (hm *HistoryManager) RecentQuestions(ctx context.Context, sessionID string) []string {
	if hm == nil || hm.repo == nil || sessionID == "" {
		return nil
	}
	history, err := hm.repo.LoadHistory(ctx, sessionID)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("history unavailable, continuing without it")
		return nil
	}
	return trimTail(history.Questions(), hm.maxTurns)
}

// SaveQuestion appends the user question.
func (hm *HistoryManager) SaveQuestion(ctx context.Context, sessionID, query string) error {
	if hm == nil || hm.repo == nil || sessionID == "" {
		return nil
	}
	return hm.repo.AddMessage(ctx, sessionID, schema.UserMessage(query))
}

// SaveAnswer appends a one-line summary of the result.
func (hm *HistoryManager) SaveAnswer(ctx context.Context, sessionID string, res *model.QueryResult) error {
	if hm == nil || hm.repo == nil || sessionID == "" || res == nil {
		return nil
	}
	return hm.repo.AddMessage(ctx, sessionID, schema.AssistantMessage(Summarize(res), nil))
}

// Clear drops the session history.
func (hm *HistoryManager) Clear(ctx context.Context, sessionID string) error {
	if hm == nil || hm.repo == nil {
		return nil
	}
	return hm.repo.ClearHistory(ctx, sessionID)
}

// Summarize renders a result as a single history line.
func Summarize(res *model.QueryResult) string {
	switch res.Type {
	case model.ResultNumber:
		return fmt.Sprintf("number: %g", res.Number)
	case model.ResultString:
		return "string: " + firstLine(res.Text)
	case model.ResultDataFrame:
		if res.Table == nil {
			return "dataframe: empty"
		}
		return fmt.Sprintf("dataframe: %d rows x %d columns", res.Table.NumRows(), len(res.Table.Columns))
	case model.ResultPlot:
		return "plot: " + res.ChartPath
	}
	return string(res.Type)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func trimTail[T any](items []T, maxTurns int) []T {
	if maxTurns <= 0 || len(items) <= maxTurns {
		out := make([]T, len(items))
		copy(out, items)
		return out
	}
	source := items[len(items)-maxTurns:]
	out := make([]T, len(source))
	copy(out, source)
	return out
}
