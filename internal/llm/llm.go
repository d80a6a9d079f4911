// Package llm builds the chat model a signed-in session talks to.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	errx "github.com/deltax-data-professor/server/internal/core/error"
	"github.com/deltax-data-professor/server/internal/credential"
	"github.com/deltax-data-professor/server/internal/provider"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

type Config struct {
	MaxTokens        int    `envconfig:"LLM_MAX_TOKENS" default:"2048"`
	Timeout          string `envconfig:"LLM_TIMEOUT" default:"90s"`
	OpenAIBaseURL    string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	GroqBaseURL      string `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1"`
	GeminiBaseURL    string `envconfig:"GEMINI_BASE_URL"`
	AnthropicBaseURL string `envconfig:"ANTHROPIC_BASE_URL"`
	BambooBaseURL    string `envconfig:"BAMBOO_BASE_URL" default:"https://api.pandabi.ai/api"`
}

// DefaultConfig mirrors the envconfig defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:     2048,
		Timeout:       "90s",
		OpenAIBaseURL: "https://api.openai.com/v1",
		GroqBaseURL:   "https://api.groq.com/openai/v1",
		BambooBaseURL: "https://api.pandabi.ai/api",
	}
}

func (c Config) timeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 90 * time.Second
	}
	return d
}

// Adapter is the provider-neutral handle the analysis agent is given.
type Adapter struct {
	Provider    provider.Provider
	Model       string
	Temperature float32
	APIKey      string
	Chat        model.ToolCallingChatModel
}

// New constructs the chat model for rec. Every provider forwards the record's
// model, temperature and API key.
func New(ctx context.Context, rec credential.Record, cfg Config) (*Adapter, error) {
	temp := rec.Temperature
	maxTokens := cfg.MaxTokens

	var (
		chat model.ToolCallingChatModel
		err  error
	)
	switch rec.Provider {
	case provider.PandasAI:
		chat = NewBambooChatModel(BambooConfig{
			APIKey:     rec.APIKey,
			BaseURL:    cfg.BambooBaseURL,
			HTTPClient: &http.Client{Timeout: cfg.timeout()},
		})
	case provider.OpenAI:
		chat, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      rec.APIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       rec.Model,
			Temperature: &temp,
			MaxTokens:   &maxTokens,
			Timeout:     cfg.timeout(),
		})
	case provider.Groq:
		chat, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      rec.APIKey,
			BaseURL:     cfg.GroqBaseURL,
			Model:       rec.Model,
			Temperature: &temp,
			MaxTokens:   &maxTokens,
			Timeout:     cfg.timeout(),
		})
	case provider.GoogleGemini:
		chat, err = newGemini(ctx, rec, cfg)
	case provider.Anthropic:
		ccfg := &claude.Config{
			APIKey:      rec.APIKey,
			Model:       rec.Model,
			MaxTokens:   maxTokens,
			Temperature: &temp,
		}
		if cfg.AnthropicBaseURL != "" {
			ccfg.BaseURL = &cfg.AnthropicBaseURL
		}
		chat, err = claude.NewChatModel(ctx, ccfg)
	}
	if chat == nil && err == nil {
		return nil, errx.Config(fmt.Errorf("%w: %s", errx.ErrUnknownProvider, rec.Provider))
	}
	if err != nil {
		logx.Error().Err(err).Str("provider", rec.Provider.String()).Msg("Error creating chat model")
		return nil, errx.Config(fmt.Errorf("error creating %s chat model: %w", rec.Provider, err))
	}

	logx.Info().Str("provider", rec.Provider.String()).Str("model", rec.Model).Msg("chat model ready")
	return &Adapter{
		Provider:    rec.Provider,
		Model:       rec.Model,
		Temperature: temp,
		APIKey:      rec.APIKey,
		Chat:        chat,
	}, nil
}

func newGemini(ctx context.Context, rec credential.Record, cfg Config) (model.ToolCallingChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  rec.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.GeminiBaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.GeminiBaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	temp := rec.Temperature
	maxTokens := cfg.MaxTokens
	return gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       rec.Model,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
}
