package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltax-data-professor/server/internal/core"
)

func newTestTranscriber(url string) *Transcriber {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	return New(cfg)
}

func TestTranscribeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/translations", r.URL.Path)
		assert.Equal(t, "Bearer gsk", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, Model, r.FormValue("model"))
		assert.Equal(t, "json", r.FormValue("response_format"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, FileName, hdr.Filename)
		b, _ := io.ReadAll(f)
		assert.Equal(t, "RIFFdata", string(b))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"total sales by region"}`))
	}))
	defer srv.Close()

	text, notice := newTestTranscriber(srv.URL).Transcribe(context.Background(), []byte("RIFFdata"), "gsk")
	assert.Nil(t, notice)
	assert.Equal(t, "total sales by region", text)
}

func TestTranscribeEmptyAudio(t *testing.T) {
	text, notice := New(DefaultConfig()).Transcribe(context.Background(), nil, "gsk")
	require.NotNil(t, notice)
	assert.Equal(t, core.LevelWarning, notice.Level)
	assert.Empty(t, text)
}

func TestTranscribeFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		prefix string
	}{
		{"authentication", http.StatusUnauthorized, "AuthenticationError: "},
		{"status", http.StatusInternalServerError, "APIStatusError: "},
		{"rate limit", http.StatusTooManyRequests, "APIStatusError: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"invalid_request_error"}}`))
			}))
			defer srv.Close()

			text, notice := newTestTranscriber(srv.URL).Transcribe(context.Background(), []byte("audio"), "gsk")
			require.NotNil(t, notice)
			assert.Empty(t, text)
			assert.Equal(t, core.LevelError, notice.Level)
			assert.Equal(t, tt.prefix+"boom", notice.Message)
		})
	}
}

func TestTranscribeConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, notice := newTestTranscriber(url).Transcribe(context.Background(), []byte("audio"), "gsk")
	require.NotNil(t, notice)
	assert.Contains(t, notice.Message, "APIConnectionError: ")
}

func TestMessageKinds(t *testing.T) {
	assert.Equal(t, "APIError: quota", Message(&goopenai.APIError{Message: "quota"}))
	assert.Equal(t, "An error occurred: io: read/write on closed pipe", Message(io.ErrClosedPipe))
}
