package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deltax-data-professor/server/internal/core"
)

func newModelsCmd(app *App) *cobra.Command {
	var providerName, apiKey string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models a provider offers for an API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := resolveProvider(providerName)
			if err != nil {
				return err
			}
			key, err := resolveKey(p, apiKey)
			if err != nil {
				return err
			}

			models, notices := app.registry().ListModels(cmd.Context(), p, key)
			printNotices(cmd, notices)
			if core.CountLevel(notices, core.LevelError) > 0 {
				return fmt.Errorf("could not list %s models", p)
			}
			for _, m := range models {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&providerName, "provider", "", "provider name (PandasAI, OpenAI, Google Gemini, Groq, Anthropic)")
	cmd.Flags().StringVar(&apiKey, "key", "", "API key (defaults to the provider's key variable)")
	return cmd
}

func printNotices(cmd *cobra.Command, notices []core.Notice) {
	for _, n := range notices {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", n.Level, n.Message)
	}
}
