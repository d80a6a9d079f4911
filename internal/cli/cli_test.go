package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltax-data-professor/server/internal/agent"
	"github.com/deltax-data-professor/server/internal/agent/model"
	"github.com/deltax-data-professor/server/internal/agent/repo"
	"github.com/deltax-data-professor/server/internal/agent/workspace"
	"github.com/deltax-data-professor/server/internal/session"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestCommandTree(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "models", "ask", "transcribe"} {
		assert.Contains(t, names, want)
	}
}

func TestServeRefusesDevelopmentSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_SECRET", "")

	_, _, err := run(t, "serve", "--addr", "127.0.0.1:0")
	assert.ErrorContains(t, err, "SESSION_SECRET")
}

func TestModelsStatic(t *testing.T) {
	out, _, err := run(t, "models", "--provider", "PandasAI", "--key", "x")
	require.NoError(t, err)
	assert.Equal(t, "BambooLLM\n", out)
}

func TestModelsUnknownProvider(t *testing.T) {
	_, _, err := run(t, "models", "--provider", "Nope", "--key", "x")
	assert.Error(t, err)
}

func TestAsk(t *testing.T) {
	dir := t.TempDir()
	csv := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(csv, []byte("region,qty\nnorth,3\n"), 0o600))

	tests := []struct {
		name string
		args []string
	}{
		{"no source", []string{"ask", "--provider", "OpenAI", "--key", "k", "--model", "m", "what?"}},
		{"unknown provider", []string{"ask", "--provider", "Nope", "--key", "k", "--file", csv, "what?"}},
		{"missing file", []string{"ask", "--provider", "OpenAI", "--file", filepath.Join(dir, "none.csv"), "what?"}},
		{"bad db fields", []string{"ask", "--dialect", "SQLite", "--db", "{", "what?"}},
		{"no question", []string{"ask", "--file", csv}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestEvictedSessionsAreForgotten(t *testing.T) {
	ctx := context.Background()
	cfg := model.DefaultAgentConfig()
	cfg.ChartDir = t.TempDir()
	hist := repo.NewMemoryHistoryRepository()
	ag := agent.New(cfg, hist)

	sessions := session.NewManager(session.Config{TTL: "1m", SweepInterval: "1m"})
	sessions.OnEvict = forgetSession(ctx, ag)
	idle := sessions.Create()
	active := sessions.Create()

	for _, id := range []string{idle.ID, active.ID} {
		require.NoError(t, hist.AddMessage(ctx, id, schema.UserMessage("total sales?")))
		chart := workspace.ChartPath(cfg, id)
		require.NoError(t, os.MkdirAll(filepath.Dir(chart), 0o755))
		require.NoError(t, os.WriteFile(chart, []byte("png"), 0o600))
	}

	time.Sleep(10 * time.Millisecond)
	_, ok := sessions.Get(active.ID)
	require.True(t, ok)
	// Cut off exactly at the active session's last use.
	require.Equal(t, 1, sessions.Sweep(active.LastUsed().Add(time.Minute)))

	assert.Empty(t, ag.History(ctx, idle.ID))
	assert.NoDirExists(t, filepath.Dir(workspace.ChartPath(cfg, idle.ID)))

	assert.Equal(t, []string{"total sales?"}, ag.History(ctx, active.ID))
	assert.FileExists(t, workspace.ChartPath(cfg, active.ID))
}

func TestTranscribe(t *testing.T) {
	groq := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gsk", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"average order value"}`))
	}))
	t.Cleanup(groq.Close)
	t.Setenv("GROQ_BASE_URL", groq.URL)

	audio := filepath.Join(t.TempDir(), "q.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF....WAVE"), 0o600))

	out, _, err := run(t, "transcribe", "--key", "gsk", audio)
	require.NoError(t, err)
	assert.Equal(t, "average order value\n", out)
}

func TestTranscribeErrors(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")

	_, _, err := run(t, "transcribe", "q.wav")
	assert.ErrorContains(t, err, "Groq API key")

	_, _, err = run(t, "transcribe", "--key", "gsk", filepath.Join(t.TempDir(), "none.wav"))
	assert.Error(t, err)
}
