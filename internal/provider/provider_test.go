package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltax-data-professor/server/internal/core"
	errx "github.com/deltax-data-professor/server/internal/core/error"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		want Provider
	}{
		{"PandasAI", PandasAI},
		{"OpenAI", OpenAI},
		{"Google Gemini", GoogleGemini},
		{"groq", Groq},
		{"Anthropic", Anthropic},
		{"Antropic", Anthropic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Parse("Mistral")
	assert.ErrorIs(t, err, errx.ErrUnknownProvider)
}

func TestDescribeCoversAllProviders(t *testing.T) {
	for _, p := range All {
		d, err := Describe(p)
		require.NoError(t, err, p.String())
		assert.NotEmpty(t, d.KeyLabel)
		assert.Contains(t, d.HelpURL, "https://")
	}

	d, err := Describe(Groq)
	require.NoError(t, err)
	assert.Equal(t, "GROQ_API_KEY", d.KeyLabel)
	assert.Equal(t, "https://console.groq.com/keys", d.HelpURL)

	_, err = Describe(Provider(42))
	assert.ErrorIs(t, err, errx.ErrUnknownProvider)
}

func TestProviderJSON(t *testing.T) {
	b, err := json.Marshal(Descriptors()[2])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"name":"Google Gemini"`)

	var p Provider
	require.NoError(t, json.Unmarshal([]byte(`"Groq"`), &p))
	assert.Equal(t, Groq, p)
}

func TestStaticListersIgnoreKey(t *testing.T) {
	r := NewRegistry(DefaultConfig())

	models, notices := r.ListModels(context.Background(), PandasAI, "")
	assert.Equal(t, []string{"BambooLLM"}, models)
	assert.Empty(t, notices)

	models, notices = r.ListModels(context.Background(), Anthropic, "bogus")
	assert.Len(t, models, 4)
	assert.Empty(t, notices)
}

func modelsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIListerFilters(t *testing.T) {
	srv := modelsServer(t, http.StatusOK, `{"object":"list","data":[
		{"id":"gpt-4o"},{"id":"whisper-1"},{"id":"text-davinci-003"},{"id":"dall-e-3"},{"id":"gpt-3.5-turbo"}]}`)

	cfg := DefaultConfig()
	cfg.OpenAIBaseURL = srv.URL
	models, notices := NewRegistry(cfg).ListModels(context.Background(), OpenAI, "sk-test")

	assert.Empty(t, notices)
	assert.Equal(t, []string{"gpt-3.5-turbo", "gpt-4o", "text-davinci-003"}, models)
}

func TestGroqListerDropsSpeechModels(t *testing.T) {
	srv := modelsServer(t, http.StatusOK, `{"object":"list","data":[
		{"id":"llama3-8b-8192"},{"id":"whisper-large-v3"},{"id":"distil-whisper-large-v3-en"},{"id":"gemma2-9b-it"}]}`)

	cfg := DefaultConfig()
	cfg.GroqBaseURL = srv.URL
	models, notices := NewRegistry(cfg).ListModels(context.Background(), Groq, "gsk-test")

	assert.Empty(t, notices)
	assert.Equal(t, []string{"gemma2-9b-it", "llama3-8b-8192"}, models)
}

func TestListModelsReportsAuthError(t *testing.T) {
	srv := modelsServer(t, http.StatusUnauthorized,
		`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)

	cfg := DefaultConfig()
	cfg.OpenAIBaseURL = srv.URL
	models, notices := NewRegistry(cfg).ListModels(context.Background(), OpenAI, "bad")

	assert.NotNil(t, models)
	assert.Empty(t, models)
	require.Len(t, notices, 1)
	assert.Equal(t, core.LevelError, notices[0].Level)
	assert.Contains(t, notices[0].Message, "authentication error")
	assert.Contains(t, notices[0].Message, "Incorrect API key provided")
}

func TestListModelsReportsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := DefaultConfig()
	cfg.GroqBaseURL = url
	models, notices := NewRegistry(cfg).ListModels(context.Background(), Groq, "k")

	assert.Empty(t, models)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Message, "connection error")
}

type failingLister struct{ err error }

func (f failingLister) ListModels(context.Context, string) ([]string, error) { return nil, f.err }

func TestListModelsGenericError(t *testing.T) {
	r := NewRegistry(DefaultConfig(), WithLister(GoogleGemini, failingLister{errors.New("boom")}))

	models, notices := r.ListModels(context.Background(), GoogleGemini, "k")
	assert.Empty(t, models)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Message, "unexpected error")
}

func TestFilterGeminiModels(t *testing.T) {
	got := filterGeminiModels([]string{
		"models/gemini-1.5-pro",
		"models/gemini-pro-vision",
		"models/text-embedding-004",
		"models/gemini-1.5-flash",
	})
	assert.Equal(t, []string{"gemini-1.5-pro", "gemini-1.5-flash"}, got)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindUnknown, Classify(errors.New("x")))
	assert.Equal(t, KindRateLimit, kindForStatus(http.StatusTooManyRequests, KindAPI))
	assert.Equal(t, KindStatus, kindForStatus(http.StatusInternalServerError, KindAPI))
	assert.Equal(t, KindAPI, kindForStatus(0, KindAPI))
}
