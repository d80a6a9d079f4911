package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// BambooModel is the only model served by the PandasAI API.
const BambooModel = "BambooLLM"

type BambooConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// BambooChatModel adapts the PandasAI BambooLLM chat endpoint to eino.
// The endpoint has no tool calling, so bound tools are accepted and ignored.
type BambooChatModel struct {
	cfg   BambooConfig
	tools []*schema.ToolInfo
}

var _ model.ToolCallingChatModel = (*BambooChatModel)(nil)

func NewBambooChatModel(cfg BambooConfig) *BambooChatModel {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &BambooChatModel{cfg: cfg}
}

type bambooMemory struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type bambooRequest struct {
	Prompt string         `json:"prompt"`
	Memory []bambooMemory `json:"memory,omitempty"`
}

type bambooResponse struct {
	Data  string `json:"data"`
	Error string `json:"error,omitempty"`
}

// BambooError is a non-2xx reply from the PandasAI API.
type BambooError struct {
	StatusCode int
	Message    string
}

func (e *BambooError) Error() string {
	return fmt.Sprintf("bamboo: status %d: %s", e.StatusCode, e.Message)
}

func (e *BambooError) HTTPStatus() int {
	return e.StatusCode
}

func (m *BambooChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	body, err := json.Marshal(buildBambooRequest(input))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/llm/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var out bambooResponse
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &out) == nil && out.Error != "" {
			msg = out.Error
		}
		return nil, &BambooError{StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("bamboo: decode response: %w", err)
	}

	logx.Debug().Int("bytes", len(raw)).Msg("bamboo response received")
	return schema.AssistantMessage(out.Data, nil), nil
}

func (m *BambooChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *BambooChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	cp := *m
	cp.tools = tools
	return &cp, nil
}

// buildBambooRequest sends the system prompt and last user turn as the prompt
// and everything in between as memory.
func buildBambooRequest(input []*schema.Message) bambooRequest {
	var (
		system []string
		turns  []bambooMemory
	)
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.User:
			turns = append(turns, bambooMemory{Role: "user", Message: msg.Content})
		case schema.Assistant:
			turns = append(turns, bambooMemory{Role: "assistant", Message: msg.Content})
		case schema.Tool:
			turns = append(turns, bambooMemory{Role: "user", Message: "Tool result:\n" + msg.Content})
		}
	}

	var last string
	if n := len(turns); n > 0 && turns[n-1].Role == "user" {
		last = turns[n-1].Message
		turns = turns[:n-1]
	}

	prompt := strings.Join(append(system, last), "\n\n")
	return bambooRequest{Prompt: strings.TrimSpace(prompt), Memory: turns}
}
