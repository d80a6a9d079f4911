package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deltax-data-professor/server/internal/agent"
	"github.com/deltax-data-professor/server/internal/connector"
	"github.com/deltax-data-professor/server/internal/core"
	"github.com/deltax-data-professor/server/internal/credential"
	"github.com/deltax-data-professor/server/internal/dataset"
	"github.com/deltax-data-professor/server/internal/ingest"
	"github.com/deltax-data-professor/server/internal/llm"
)

type askOptions struct {
	provider string
	model    string
	key      string
	username string
	files    []string
	sheets   []string
	dialect  string
	dbFields string
}

func newAskCmd(app *App) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question about files or a database table",
		Example: `  deltax ask --provider OpenAI --model gpt-4o-mini --file sales.csv "total revenue by region"
  deltax ask --provider Groq --dialect SQLite --db '{"database":"shop.db","table":"orders"}' "orders per day"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, app, opts, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.provider, "provider", "", "provider name")
	f.StringVar(&opts.model, "model", "", "model id")
	f.StringVar(&opts.key, "key", "", "API key (defaults to the provider's key variable)")
	f.StringVar(&opts.username, "username", "", "name used in the greeting")
	f.StringSliceVar(&opts.files, "file", nil, "CSV, TSV, XLSX or XLS file (repeatable)")
	f.StringSliceVar(&opts.sheets, "sheet", nil, "spreadsheet sheets to read (default: all)")
	f.StringVar(&opts.dialect, "dialect", "", "database dialect instead of files")
	f.StringVar(&opts.dbFields, "db", "", "database connection fields as JSON")
	cmd.MarkFlagsMutuallyExclusive("file", "dialect")
	return cmd
}

func runAsk(cmd *cobra.Command, app *App, opts askOptions, question string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	sets, err := loadSources(cmd, app, opts)
	if err != nil {
		return err
	}

	p, err := resolveProvider(opts.provider)
	if err != nil {
		return err
	}
	key, err := resolveKey(p, opts.key)
	if err != nil {
		return err
	}
	modelName := opts.model
	if strings.TrimSpace(modelName) == "" {
		models, notices := app.registry().ListModels(ctx, p, key)
		printNotices(cmd, notices)
		if modelName, err = resolveModel("", models); err != nil {
			return err
		}
	}

	form := credential.Form{Username: username(opts.username), Provider: p.String(), APIKey: key, Model: modelName}
	rec, err := form.Submit()
	if err != nil {
		return err
	}
	adapter, err := llm.New(ctx, rec, app.Config.LLM)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), rec.Welcome())

	hist, closeHist := app.historyRepo(ctx)
	defer closeHist()

	res, err := app.agent(hist).Analyze(ctx, "cli", sets, adapter, question)
	if err != nil {
		return err
	}
	return agent.Render(out, res)
}

func loadSources(cmd *cobra.Command, app *App, opts askOptions) ([]*dataset.Dataset, error) {
	d := app.dispatcher()

	if opts.dialect != "" {
		var fields connector.Fields
		if opts.dbFields != "" {
			if err := json.Unmarshal([]byte(opts.dbFields), &fields); err != nil {
				return nil, fmt.Errorf("invalid --db: %w", err)
			}
		}
		ds, notice := d.Database(cmd.Context(), opts.dialect, fields)
		if notice != nil {
			return nil, errors.New(notice.Message)
		}
		return []*dataset.Dataset{ds}, nil
	}

	if len(opts.files) == 0 {
		return nil, errors.New("pass at least one --file or a --dialect")
	}
	uploads := make([]ingest.Upload, 0, len(opts.files))
	for _, path := range opts.files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, ingest.Upload{Name: path, Data: data})
	}
	res := d.Files(cmd.Context(), uploads, ingest.Options{Sheets: opts.sheets})
	printNotices(cmd, res.Notices)
	if len(res.Datasets) == 0 {
		return nil, fmt.Errorf("no datasets loaded (%d errors)", core.CountLevel(res.Notices, core.LevelError))
	}
	return res.Datasets, nil
}

func username(name string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "analyst"
}
