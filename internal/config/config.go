// Package config loads the process configuration from the environment.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/deltax-data-professor/server/internal/agent/model"
	"github.com/deltax-data-professor/server/internal/connector"
	"github.com/deltax-data-professor/server/internal/core"
	"github.com/deltax-data-professor/server/internal/ingest"
	"github.com/deltax-data-professor/server/internal/llm"
	"github.com/deltax-data-professor/server/internal/provider"
	"github.com/deltax-data-professor/server/internal/server"
	"github.com/deltax-data-professor/server/internal/session"
	"github.com/deltax-data-professor/server/internal/transcribe"
	logx "github.com/deltax-data-professor/server/pkg/logger"
	pkgredis "github.com/deltax-data-professor/server/pkg/redis"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis   pkgredis.Config
	HTTP    server.Config
	Session session.Config

	// Providers
	Provider   provider.Config
	LLM        llm.Config
	Transcribe transcribe.Config

	// Data sources
	Connector connector.Config
	Ingest    ingest.Config

	Agent model.AgentConfig
}

func (c AppConfig) Environment() core.Environment {
	return core.ParseEnvironment(c.Env)
}

// Load reads envFile when present, then the process environment.
// A missing file is only a warning.
func Load(envFile string) (AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logx.Warn().Err(err).Str("file", envFile).Msg("Could not load .env file")
		}
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to process environment config: %w", err)
	}
	return cfg, nil
}
