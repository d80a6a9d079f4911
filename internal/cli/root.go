// Package cli is the deltax command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/deltax-data-professor/server/internal/config"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var envFile string
	app := &App{}

	root := &cobra.Command{
		Use:           "deltax",
		Short:         "DeltaX Data Professor: chat with your data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			logx.Init(logx.LoggerOpts{Environment: cfg.Environment(), Level: cfg.LogLevel, Output: cmd.ErrOrStderr()})
			app.Config = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")

	root.AddCommand(
		newServeCmd(app),
		newModelsCmd(app),
		newAskCmd(app),
		newTranscribeCmd(app),
	)
	return root
}
