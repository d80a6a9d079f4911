package cli

import (
	"context"

	"github.com/deltax-data-professor/server/internal/agent"
	"github.com/deltax-data-professor/server/internal/agent/model"
	"github.com/deltax-data-professor/server/internal/agent/repo"
	"github.com/deltax-data-professor/server/internal/config"
	"github.com/deltax-data-professor/server/internal/ingest"
	"github.com/deltax-data-professor/server/internal/provider"
	"github.com/deltax-data-professor/server/internal/session"
	"github.com/deltax-data-professor/server/internal/transcribe"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// App holds the loaded configuration shared by every command.
type App struct {
	Config config.AppConfig
}

func (a *App) registry() *provider.Registry {
	return provider.NewRegistry(a.Config.Provider)
}

func (a *App) dispatcher() *session.Dispatcher {
	return session.NewDispatcher(ingest.New(a.Config.Ingest), a.Config.Connector)
}

func (a *App) transcriber() *transcribe.Transcriber {
	return transcribe.New(a.Config.Transcribe)
}

// historyRepo uses Redis when configured and falls back to memory.
// The returned func releases the client.
func (a *App) historyRepo(ctx context.Context) (model.HistoryRepository, func()) {
	if !a.Config.Redis.Enabled() {
		return repo.NewMemoryHistoryRepository(), func() {}
	}
	rdb, err := a.Config.Redis.New(ctx)
	if err != nil {
		logx.Warn().Err(err).Msg("Redis unavailable, keeping history in memory")
		return repo.NewMemoryHistoryRepository(), func() {}
	}
	logx.Info().Msg("Connected to Redis successfully")
	return repo.NewRedisHistoryRepository(rdb, a.Config.Agent.History.TTLDuration()), func() { _ = rdb.Close() }
}

func (a *App) agent(hist model.HistoryRepository) *agent.Agent {
	return agent.New(a.Config.Agent, hist)
}
