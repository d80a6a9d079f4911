// Package transcribe turns recorded speech into question text with Groq's
// hosted whisper model.
package transcribe

import (
	"bytes"
	"context"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/deltax-data-professor/server/internal/core"
	"github.com/deltax-data-professor/server/internal/provider"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

const (
	Model    = "whisper-large-v3"
	FileName = "recorded_audio.wav"
)

type Config struct {
	BaseURL  string `envconfig:"GROQ_BASE_URL" default:"https://api.groq.com/openai/v1"`
	Timeout  string `envconfig:"TRANSCRIBE_TIMEOUT" default:"60s"`
	MaxBytes int64  `envconfig:"TRANSCRIBE_MAX_BYTES" default:"26214400"`
}

// DefaultConfig mirrors the envconfig defaults.
func DefaultConfig() Config {
	return Config{BaseURL: "https://api.groq.com/openai/v1", Timeout: "60s", MaxBytes: 25 << 20}
}

type Transcriber struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Transcriber {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = time.Minute
	}
	return &Transcriber{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
}

// Transcribe sends the audio once. Failures come back as a Notice, never as
// an error, and the returned text is empty.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, apiKey string) (string, *core.Notice) {
	if len(audio) == 0 {
		n := core.Warning("No audio recorded. Please try again.")
		return "", &n
	}
	if t.cfg.MaxBytes > 0 && int64(len(audio)) > t.cfg.MaxBytes {
		n := core.Errorf("Audio is too large (%d bytes, limit %d).", len(audio), t.cfg.MaxBytes)
		return "", &n
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	clientCfg.BaseURL = t.cfg.BaseURL
	clientCfg.HTTPClient = t.httpClient
	client := goopenai.NewClientWithConfig(clientCfg)

	resp, err := client.CreateTranslation(ctx, goopenai.AudioRequest{
		Model:       Model,
		FilePath:    FileName,
		Reader:      bytes.NewReader(audio),
		Format:      goopenai.AudioResponseFormatJSON,
		Temperature: 0,
	})
	if err != nil {
		logx.Warn().Err(err).Msg("transcription failed")
		n := core.Errorf("%s", Message(err))
		return "", &n
	}
	return resp.Text, nil
}

// Message renders a transcription failure by kind.
func Message(err error) string {
	switch provider.Classify(err) {
	case provider.KindAuthentication:
		return "AuthenticationError: " + provider.Detail(err)
	case provider.KindConnection, provider.KindTimeout:
		return "APIConnectionError: " + provider.Detail(err)
	case provider.KindStatus, provider.KindRateLimit:
		return "APIStatusError: " + provider.Detail(err)
	case provider.KindAPI:
		return "APIError: " + provider.Detail(err)
	case provider.KindUnknown:
	}
	return "An error occurred: " + err.Error()
}
