package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deltax-data-professor/server/internal/agent"
	"github.com/deltax-data-professor/server/internal/server"
	"github.com/deltax-data-professor/server/internal/session"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := app.Config
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if err := cfg.HTTP.Validate(cfg.Environment()); err != nil {
				return err
			}

			hist, closeHist := app.historyRepo(ctx)
			defer closeHist()

			ag := app.agent(hist)
			sessions := session.NewManager(cfg.Session)
			sessions.OnEvict = forgetSession(ctx, ag)

			srv := server.New(cfg.HTTP, server.Deps{
				Providers:   app.registry(),
				Sessions:    sessions,
				Sources:     app.dispatcher(),
				Agent:       ag,
				Transcriber: app.transcriber(),
				LLM:         cfg.LLM,
			})
			return srv.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

// forgetSession clears what an evicted session left behind in the history
// store and the chart directory.
func forgetSession(ctx context.Context, ag *agent.Agent) func(id string) {
	return func(id string) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := ag.Forget(ctx, id); err != nil {
			logx.Warn().Err(err).Str("session_id", id).Msg("Error clearing evicted session")
		}
	}
}
