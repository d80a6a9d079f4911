package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deltax-data-professor/server/internal/core"
	"github.com/deltax-data-professor/server/internal/provider"
)

func newTranscribeCmd(app *App) *cobra.Command {
	var apiKey string
	cmd := &cobra.Command{
		Use:   "transcribe [audio file]",
		Short: "Transcribe a recorded question to English text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(apiKey)
			if key == "" {
				desc, _ := provider.Describe(provider.Groq)
				key = strings.TrimSpace(os.Getenv(desc.KeyLabel))
			}
			if key == "" {
				return errors.New("a Groq API key is required: pass --key or set GROQ_API_KEY")
			}

			audio, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text, notice := app.transcriber().Transcribe(cmd.Context(), audio, key)
			if notice != nil {
				printNotices(cmd, []core.Notice{*notice})
				if notice.Level == core.LevelError {
					return errors.New("transcription failed")
				}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiKey, "key", "", "Groq API key (defaults to GROQ_API_KEY)")
	return cmd
}
