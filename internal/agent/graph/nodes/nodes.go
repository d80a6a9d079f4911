package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/deltax-data-professor/server/internal/agent/graph/conversations"
	"github.com/deltax-data-professor/server/internal/agent/graph/parsers"
	"github.com/deltax-data-professor/server/internal/agent/graph/prompts"
	"github.com/deltax-data-professor/server/internal/agent/model"
	"github.com/deltax-data-professor/server/internal/agent/workspace"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// NewInputConverterPreHandler resets the per-question counters.
func NewInputConverterPreHandler() func(context.Context, model.AnalysisInput, *model.AppState) (model.AnalysisInput, error) {
	return func(ctx context.Context, in model.AnalysisInput, s *model.AppState) (model.AnalysisInput, error) {
		s.SessionID = in.SessionID
		s.Query = in.Query
		s.History = nil
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		s.Answer = nil
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewInputConverterNode renders the system prompt for the loaded tables plus
// recent questions, then records the new question.
func NewInputConverterNode(hm *conversations.HistoryManager, promptIn prompts.AnalysisPromptInput) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.AnalysisInput) ([]*schema.Message, error) {
		pin := promptIn
		pin.History = hm.RecentQuestions(ctx, input.SessionID)

		messages, err := prompts.RenderAnalysisMessages(ctx, pin, input.Query)
		if err != nil {
			return nil, fmt.Errorf("render analysis prompt: %w", err)
		}

		if err := hm.SaveQuestion(ctx, input.SessionID, input.Query); err != nil {
			logx.Warn().Err(err).Str("session_id", input.SessionID).Msg("Error saving question to history")
		}
		return messages, nil
	})
}

// NewChatModelPreHandler accumulates the conversation in state and appends a
// wrap-up notice once the tool budget is spent.
func NewChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.AppState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.AppState) ([]*schema.Message, error) {
		// some providers drop tool_call_id on tool results
		for _, msg := range in {
			if msg == nil || msg.Role != schema.Tool || strings.TrimSpace(msg.ToolCallID) != "" {
				continue
			}
			for i := len(state.History) - 1; i >= 0; i-- {
				prev := state.History[i]
				if prev == nil || prev.Role != schema.Assistant || len(prev.ToolCalls) == 0 {
					continue
				}
				if id := prev.ToolCalls[0].ID; strings.TrimSpace(id) != "" {
					msg.ToolCallID = id
				}
				break
			}
		}

		state.History = append(state.History, in...)

		if checkAndMarkToolLimit(state, maxToolCalls) {
			maxToolCalls = normalizeMaxToolCalls(maxToolCalls)
			state.History = append(state.History, schema.SystemMessage(fmt.Sprintf(
				"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
					"Do not call any more tools. Reply now with the JSON answer using what you already know.",
				maxToolCalls,
			)))
		}

		logx.Debug().Str("session_id", state.SessionID).Int("messages", len(state.History)).Msg("AI thinking...")
		return state.History, nil
	}
}

// NewChatModelPostHandler computes usage cost and normalises tool call ids.
func NewChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.AppState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("chat model returned no message")
		}
		if model.CostEnabled() && out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			usage := out.ResponseMeta.Usage
			inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
			if out.Extra == nil {
				out.Extra = map[string]any{}
			}
			out.Extra["usage_cost"] = map[string]any{
				"currency":          "USD",
				"model":             modelName,
				"prompt_tokens":     usage.PromptTokens,
				"completion_tokens": usage.CompletionTokens,
				"total_tokens":      usage.TotalTokens,
				"input_cost":        inC,
				"output_cost":       outC,
				"total_cost":        totalC,
			}
			logx.Debug().
				Str("session_id", state.SessionID).
				Str("node", NodeChatModel).
				Str("model", modelName).
				Int("prompt_tokens", usage.PromptTokens).
				Int("completion_tokens", usage.CompletionTokens).
				Int("total_tokens", usage.TotalTokens).
				Float64("total_cost_usd", totalC).
				Msg("LLM usage")

			state.TotalCostUSD += totalC
			out.Extra["usage_cost_total_usd"] = state.TotalCostUSD
		}

		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		state.History = append(state.History, out)
		return out, nil
	}
}

// NewToolExecutorCondition routes tool calls to the executor until the budget
// is spent; everything else goes to the answer parser.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("Tool limit reached - routing to parser")
			return NodeAnswerParser, nil
		}
		if len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
			return NodeToolExecutor, nil
		}
		return NodeAnswerParser, nil
	}
}

// NewToolExecutorPreHandler counts tool rounds against the budget.
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.AppState) (*schema.Message, error) {
		exceeded := incrementToolCallAndCheck(state, maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("session_id", state.SessionID).
			Msg("Tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", normalizeMaxToolCalls(maxToolCalls)).
				Str("session_id", state.SessionID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}
		return in, nil
	}
}

// NewAnswerParserNode turns the final model reply into an Answer.
func NewAnswerParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.Answer, error) {
		ans, err := parsers.ParseAnswer(resp.Content)
		if err != nil {
			logx.Warn().Err(err).Msg("Error parsing model answer")
			return model.Answer{}, err
		}
		return *ans, nil
	})
}

// NewAnswerParserPostHandler keeps the parsed answer in state.
func NewAnswerParserPostHandler() func(context.Context, model.Answer, *model.AppState) (model.Answer, error) {
	return func(ctx context.Context, out model.Answer, state *model.AppState) (model.Answer, error) {
		state.Answer = &out
		logx.Debug().
			Str("session_id", state.SessionID).
			Str("type", string(out.Type)).
			Bool("has_sql", out.SQL != "").
			Msg("Answer parsed")
		return out, nil
	}
}

// NewExecutorNode runs the answer in the workspace and records the outcome.
func NewExecutorNode(ws *workspace.Workspace, opts workspace.ExecOptions, hm *conversations.HistoryManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, ans model.Answer) (*model.QueryResult, error) {
		res, err := ws.Execute(ctx, ans, opts)
		if err != nil {
			return nil, err
		}

		var sessionID string
		_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			res.CostUSD = state.TotalCostUSD
			sessionID = state.SessionID
			return nil
		})

		if err := hm.SaveAnswer(ctx, sessionID, res); err != nil {
			logx.Warn().Err(err).Str("session_id", sessionID).Msg("Error saving answer to history")
		}
		return res, nil
	})
}
