// Package agent answers natural-language questions over session datasets.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/deltax-data-professor/server/internal/agent/graph"
	"github.com/deltax-data-professor/server/internal/agent/graph/conversations"
	"github.com/deltax-data-professor/server/internal/agent/model"
	"github.com/deltax-data-professor/server/internal/agent/workspace"
	errx "github.com/deltax-data-professor/server/internal/core/error"
	"github.com/deltax-data-professor/server/internal/dataset"
	"github.com/deltax-data-professor/server/internal/llm"
	"github.com/deltax-data-professor/server/internal/provider"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// Agent runs one analysis graph per question.
type Agent struct {
	cfg     model.AgentConfig
	history *conversations.HistoryManager
}

// New creates an Agent. repo may be nil, in which case no history is kept.
func New(cfg model.AgentConfig, repo model.HistoryRepository) *Agent {
	return &Agent{
		cfg:     cfg,
		history: conversations.NewHistoryManager(repo, cfg.History),
	}
}

// History returns up to the configured number of recent questions of a session.
func (a *Agent) History(ctx context.Context, sessionID string) []string {
	return a.history.RecentQuestions(ctx, sessionID)
}

// Forget drops everything kept for a session outside its state: the question
// history and the chart directory.
func (a *Agent) Forget(ctx context.Context, sessionID string) error {
	var errs []error
	if err := a.history.Clear(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("clear history: %w", err))
	}
	if err := os.RemoveAll(filepath.Dir(workspace.ChartPath(a.cfg, sessionID))); err != nil {
		errs = append(errs, fmt.Errorf("remove charts: %w", err))
	}
	return errors.Join(errs...)
}

// Analyze loads datasets into a fresh workspace and asks the adapter's model
// to answer query against them.
func (a *Agent) Analyze(ctx context.Context, sessionID string, datasets []*dataset.Dataset, adapter *llm.Adapter, query string) (*model.QueryResult, error) {
	if len(datasets) == 0 {
		return nil, errx.Validation(errx.ErrNoDatasets)
	}
	if adapter == nil || adapter.Chat == nil {
		return nil, errx.Validation(errx.ErrNotSignedIn)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errx.Validation(fmt.Errorf("%w: question is empty", errx.ErrIncomplete))
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.TimeoutDuration())
	defer cancel()

	ws, err := workspace.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			logx.Warn().Err(cerr).Msg("Error closing workspace")
		}
	}()

	tables := make([]model.TableRef, 0, len(datasets))
	for _, ds := range datasets {
		if ds == nil {
			continue
		}
		name, err := ws.Load(ctx, ds)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", ds.Name, err)
		}
		tables = append(tables, model.TableRef{Name: name, Dataset: ds})
	}
	if len(tables) == 0 {
		return nil, errx.Validation(errx.ErrNoDatasets)
	}

	runner, err := graph.BuildAnalysisGraph(ctx, &graph.Config{
		SessionID: sessionID,
		Chat:      adapter.Chat,
		ModelName: adapter.Model,
		Tables:    tables,
		Workspace: ws,
		History:   a.history,
		Agent:     a.cfg,
	})
	if err != nil {
		return nil, err
	}

	logx.Info().
		Str("session_id", sessionID).
		Str("provider", adapter.Provider.String()).
		Int("tables", len(tables)).
		Msg("Analyzing question")

	res, err := runner.Invoke(ctx, model.AnalysisInput{SessionID: sessionID, Query: query})
	if err != nil {
		return nil, classify(adapter.Provider, err)
	}
	if res == nil {
		return nil, errx.NoResult(nil)
	}

	logx.Info().
		Str("session_id", sessionID).
		Str("type", string(res.Type)).
		Float64("cost_usd", res.CostUSD).
		Msg("Question answered")
	return res, nil
}

// classify keeps typed errors and maps provider failures to upstream errors.
func classify(p provider.Provider, err error) error {
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if kind := provider.Classify(err); kind != provider.KindUnknown {
		logx.Warn().Err(err).Str("provider", p.String()).Str("kind", kind.String()).Msg("Provider call failed")
		return errx.Upstream(errors.New(provider.UserMessage(p, err)))
	}
	logx.Error().Err(err).Msg("Analysis failed")
	return errx.NoResult(err)
}
