// Package server exposes the assistant as a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/deltax-data-professor/server/internal/agent"
	"github.com/deltax-data-professor/server/internal/core"
	errx "github.com/deltax-data-professor/server/internal/core/error"
	"github.com/deltax-data-professor/server/internal/credential"
	"github.com/deltax-data-professor/server/internal/llm"
	"github.com/deltax-data-professor/server/internal/provider"
	"github.com/deltax-data-professor/server/internal/session"
	"github.com/deltax-data-professor/server/internal/transcribe"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// DefaultSessionSecret is the development cookie key. Production refuses it.
const DefaultSessionSecret = "change-me-32-bytes-long-secret!!"

type Config struct {
	Addr            string   `envconfig:"HTTP_ADDR" default:":8080"`
	SessionSecret   string   `envconfig:"SESSION_SECRET" default:"change-me-32-bytes-long-secret!!"`
	SecureCookie    bool     `envconfig:"SESSION_SECURE_COOKIE" default:"false"`
	CORSOrigins     []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
	MaxUploadBytes  int64    `envconfig:"HTTP_MAX_UPLOAD_BYTES" default:"104857600"`
	ShutdownTimeout string   `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	RateLimit       RateLimitConfig

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool `envconfig:"HTTP_TRUST_PROXY" default:"false"`
}

// DefaultConfig mirrors the envconfig defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		SessionSecret:   DefaultSessionSecret,
		CORSOrigins:     []string{"http://localhost:3000"},
		MaxUploadBytes:  100 << 20,
		ShutdownTimeout: "10s",
		RateLimit:       RateLimitConfig{RequestsPerSecond: 5, Burst: 20},
	}
}

// Validate rejects settings that are unsafe for env.
func (c Config) Validate(env core.Environment) error {
	if len(c.SessionSecret) < 32 {
		return errx.Config(errors.New("SESSION_SECRET must be at least 32 bytes"))
	}
	if c.SessionSecret == DefaultSessionSecret {
		if env.IsProduction() {
			return errx.Config(errors.New("SESSION_SECRET must be set in production"))
		}
		logx.Warn().Msg("Using the development SESSION_SECRET")
	}
	if c.MaxUploadBytes <= 0 {
		return errx.Config(fmt.Errorf("HTTP_MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	return nil
}

func (c Config) shutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// AdapterFactory builds the LLM adapter for a frozen credential.
type AdapterFactory func(ctx context.Context, rec credential.Record, cfg llm.Config) (*llm.Adapter, error)

// Deps are the components the handlers call into.
type Deps struct {
	Providers   *provider.Registry
	Sessions    *session.Manager
	Sources     *session.Dispatcher
	Agent       *agent.Agent
	Transcriber *transcribe.Transcriber
	LLM         llm.Config
	NewAdapter  AdapterFactory
}

type Server struct {
	cfg      Config
	deps     Deps
	store    *sessions.CookieStore
	limiters *limiterSet
	handler  http.Handler
}

func New(cfg Config, deps Deps) *Server {
	if deps.NewAdapter == nil {
		deps.NewAdapter = llm.New
	}

	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = cfg.SecureCookie
	store.Options.SameSite = http.SameSiteLaxMode

	s := &Server{cfg: cfg, deps: deps, store: store, limiters: newLimiterSet(cfg.RateLimit)}
	s.handler = s.routes()
	return s
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewMux()
	r.Use(middleware.RequestID)
	if s.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(
		requestLogger,
		middleware.Recoverer,
		middleware.Compress(5),
		cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimiter(s.limiters), s.withSession)

		r.Get("/providers", s.handleProviders)
		r.Post("/providers/{provider}/models", s.handleListModels)
		r.Post("/credentials/check", s.handleCheckCredentials)
		r.Post("/signin", s.handleSignIn)
		r.Post("/signout", s.handleSignOut)

		r.Put("/source", s.handleSetSource)
		r.Post("/files/sheets", s.handleSheetNames)
		r.Post("/files", s.handleUpload)
		r.Post("/database", s.handleDatabase)
		r.Get("/datasets", s.handleDatasets)

		r.Put("/voice", s.handleVoice)
		r.Post("/transcribe", s.handleTranscribe)

		r.Post("/ask", s.handleAsk)
		r.Get("/chart", s.handleChart)
		r.Get("/history", s.handleHistory)
	})
	return r
}

// Serve runs the listener, the session sweeper and graceful shutdown until
// ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	logx.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		s.deps.Sessions.Run(egctx)
		return nil
	})

	eg.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-egctx.Done():
				return nil
			case now := <-ticker.C:
				s.limiters.prune(now, 10*time.Minute)
			}
		}
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.shutdownTimeout())
		defer cancel()

		logx.Debug().Msg("shutting down HTTP server...")
		s.deps.Sessions.CloseAll()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
