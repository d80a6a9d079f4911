package provider

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/deltax-data-professor/server/internal/core"
	errx "github.com/deltax-data-professor/server/internal/core/error"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// Config holds the provider endpoints. Empty values use the vendor defaults.
type Config struct {
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	GroqBaseURL   string `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1"`
	GeminiBaseURL string `envconfig:"GEMINI_BASE_URL"`
	ListTimeout   string `envconfig:"PROVIDER_LIST_TIMEOUT" default:"15s"`
}

// DefaultConfig mirrors the envconfig defaults.
func DefaultConfig() Config {
	return Config{
		OpenAIBaseURL: "https://api.openai.com/v1",
		GroqBaseURL:   "https://api.groq.com/openai/v1",
		ListTimeout:   "15s",
	}
}

func (c Config) listTimeout() time.Duration {
	d, err := time.ParseDuration(c.ListTimeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// ModelLister returns the models a provider offers for an API key.
type ModelLister interface {
	ListModels(ctx context.Context, apiKey string) ([]string, error)
}

type staticLister []string

func (s staticLister) ListModels(context.Context, string) ([]string, error) {
	return slices.Clone(s), nil
}

// openAICompatLister lists models from an OpenAI-compatible /models endpoint.
type openAICompatLister struct {
	baseURL    string
	keep       func(id string) bool
	httpClient *http.Client
}

func (l *openAICompatLister) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	cfg := goopenai.DefaultConfig(apiKey)
	if l.baseURL != "" {
		cfg.BaseURL = l.baseURL
	}
	if l.httpClient != nil {
		cfg.HTTPClient = l.httpClient
	}
	resp, err := goopenai.NewClientWithConfig(cfg).ListModels(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		if l.keep(m.ID) {
			ids = append(ids, m.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func isOpenAIChatModel(id string) bool {
	for _, kw := range []string{"gpt", "davinci", "turbo"} {
		if strings.Contains(id, kw) {
			return true
		}
	}
	return false
}

var groqSpeechModels = []string{"whisper-large-v3", "distil-whisper-large-v3-en"}

func isGroqChatModel(id string) bool {
	return !slices.Contains(groqSpeechModels, id)
}

type geminiLister struct {
	baseURL    string
	httpClient *http.Client
}

func (l *geminiLister) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: l.httpClient,
	}
	if l.baseURL != "" {
		cfg.HTTPOptions.BaseURL = l.baseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var names []string
	for m, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, err
		}
		names = append(names, m.Name)
	}
	return filterGeminiModels(names), nil
}

// filterGeminiModels keeps text Gemini models and strips the "models/" prefix.
func filterGeminiModels(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !strings.Contains(name, "gemini") || strings.Contains(name, "vision") {
			continue
		}
		out = append(out, strings.TrimPrefix(name, "models/"))
	}
	return out
}

// Registry maps every provider to its lister.
type Registry struct {
	listers map[Provider]ModelLister
	timeout time.Duration
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithLister overrides the lister used for p.
func WithLister(p Provider, l ModelLister) RegistryOption {
	return func(r *Registry) { r.listers[p] = l }
}

// WithHTTPClient sets the client used by the live listers.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(r *Registry) {
		for _, l := range r.listers {
			switch v := l.(type) {
			case *openAICompatLister:
				v.httpClient = c
			case *geminiLister:
				v.httpClient = c
			}
		}
	}
}

func NewRegistry(cfg Config, opts ...RegistryOption) *Registry {
	r := &Registry{listers: make(map[Provider]ModelLister, len(All)), timeout: cfg.listTimeout()}
	for _, p := range All {
		r.listers[p] = newLister(p, cfg)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newLister(p Provider, cfg Config) ModelLister {
	switch p {
	case PandasAI:
		return staticLister(pandasAIModels)
	case Anthropic:
		return staticLister(anthropicModels)
	case OpenAI:
		return &openAICompatLister{baseURL: cfg.OpenAIBaseURL, keep: isOpenAIChatModel}
	case Groq:
		return &openAICompatLister{baseURL: cfg.GroqBaseURL, keep: isGroqChatModel}
	case GoogleGemini:
		return &geminiLister{baseURL: cfg.GeminiBaseURL}
	}
	return nil
}

// Lister returns the lister bound to p.
func (r *Registry) Lister(p Provider) (ModelLister, error) {
	l, ok := r.listers[p]
	if !ok || l == nil {
		return nil, errx.Config(fmt.Errorf("%w: %s", errx.ErrUnknownProvider, p))
	}
	return l, nil
}

// ListModels never fails: provider errors become a single error notice and an
// empty list, so the caller can keep rendering with nothing selectable.
func (r *Registry) ListModels(ctx context.Context, p Provider, apiKey string) ([]string, []core.Notice) {
	l, err := r.Lister(p)
	if err != nil {
		return []string{}, []core.Notice{core.Errorf("%s", errx.Message(err))}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	models, err := l.ListModels(ctx, apiKey)
	if err != nil {
		logx.Warn().Err(err).Str("provider", p.String()).Str("kind", Classify(err).String()).Msg("model listing failed")
		return []string{}, []core.Notice{core.Errorf("%s", UserMessage(p, err))}
	}
	if models == nil {
		models = []string{}
	}
	return models, nil
}
