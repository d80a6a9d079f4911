package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/compose"
	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/deltax-data-professor/server/internal/agent/graph/conversations"
	"github.com/deltax-data-professor/server/internal/agent/graph/nodes"
	"github.com/deltax-data-professor/server/internal/agent/graph/observers"
	"github.com/deltax-data-professor/server/internal/agent/graph/prompts"
	"github.com/deltax-data-professor/server/internal/agent/graph/tools"
	"github.com/deltax-data-professor/server/internal/agent/model"
	"github.com/deltax-data-professor/server/internal/agent/workspace"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

// Runner executes the compiled graph for one question.
type Runner interface {
	Invoke(ctx context.Context, in model.AnalysisInput) (*model.QueryResult, error)
}

// Config holds everything needed to build the analysis graph for one question.
type Config struct {
	SessionID string
	Chat      einomodel.ToolCallingChatModel
	ModelName string
	Tables    []model.TableRef
	Workspace *workspace.Workspace
	History   *conversations.HistoryManager
	Agent     model.AgentConfig
}

// GraphBuilder handles the construction of the analysis graph
type GraphBuilder struct {
	config *Config
	chat   einomodel.ToolCallingChatModel
	graph  *compose.Graph[model.AnalysisInput, *model.QueryResult]
}

type graphRunner struct {
	runnable compose.Runnable[model.AnalysisInput, *model.QueryResult]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.AnalysisInput) (*model.QueryResult, error) {
	return r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
}

// BuildAnalysisGraph binds the table tools to the chat model and compiles the graph.
func BuildAnalysisGraph(ctx context.Context, cfg *Config) (Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if cfg.Chat == nil {
		return nil, fmt.Errorf("chat model is nil")
	}
	if cfg.Workspace == nil {
		return nil, fmt.Errorf("workspace is nil")
	}
	if len(cfg.Tables) == 0 {
		return nil, fmt.Errorf("no tables loaded")
	}

	builder := &GraphBuilder{
		config: cfg,
		graph: compose.NewGraph[model.AnalysisInput, *model.QueryResult](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}
	builder.addNodes()
	builder.addEdges()
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	runnable, err := builder.compile(ctx)
	if err != nil {
		return nil, err
	}
	return &graphRunner{runnable: runnable}, nil
}

// setupTools binds the table tools to the chat model and registers the tools node
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	tableTools := tools.GetAnalysisTools(b.config.Tables)
	toolInfos, err := tools.GetToolInfos(ctx, tableTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}

	b.chat, err = nodes.BindTools(ctx, b.config.Chat, toolInfos)
	if err != nil {
		return err
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               tableTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			return sanitizeArguments(name, arguments), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(b.config.Agent.ToolMaxCalls)),
	)
	return nil
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() {
	cfg := b.config

	b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(cfg.History, prompts.AnalysisPromptInput{
			Tables:     cfg.Tables,
			SampleRows: cfg.Agent.SampleRows,
			MaxRows:    cfg.Agent.MaxResultRows,
		}),
		compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
	)

	b.graph.AddChatModelNode(nodes.NodeChatModel, b.chat,
		compose.WithStatePreHandler(nodes.NewChatModelPreHandler(cfg.Agent.ToolMaxCalls)),
		compose.WithStatePostHandler(nodes.NewChatModelPostHandler(cfg.ModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeAnswerParser,
		nodes.NewAnswerParserNode(),
		compose.WithStatePostHandler(nodes.NewAnswerParserPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeExecutor,
		nodes.NewExecutorNode(cfg.Workspace, workspace.ExecOptions{
			MaxRows:   cfg.Agent.MaxResultRows,
			ChartPath: workspace.ChartPath(cfg.Agent, cfg.SessionID),
		}, cfg.History),
	)
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeChatModel},
		{nodes.NodeToolExecutor, nodes.NodeChatModel},
		{nodes.NodeAnswerParser, nodes.NodeExecutor},
		{nodes.NodeExecutor, compose.END},
	}
	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			nodes.NodeAnswerParser: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.AnalysisInput, *model.QueryResult], error) {
	// Limit total run steps to avoid infinite loops in branching or tool retries
	maxSteps := 10 + b.config.Agent.ToolMaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// sanitizeArguments trims the table name and clamps limit. It never fails;
// arguments that are not a JSON object pass through unchanged.
func sanitizeArguments(name, arguments string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(arguments), &m); err != nil || m == nil {
		return arguments
	}

	if v, ok := m["table"]; ok {
		switch vv := v.(type) {
		case string:
			m["table"] = strings.Trim(strings.TrimSpace(vv), "\"`")
		default:
			m["table"] = strings.TrimSpace(fmt.Sprint(v))
		}
	}

	if name == tools.ToolSampleRows {
		if v, ok := m["limit"]; ok {
			switch vv := v.(type) {
			case float64:
				m["limit"] = clampInt(int(vv), 1, tools.MaxSampleRows)
			case string:
				if n, err := strconv.Atoi(strings.TrimSpace(vv)); err == nil {
					m["limit"] = clampInt(n, 1, tools.MaxSampleRows)
				} else {
					delete(m, "limit")
				}
			default:
				delete(m, "limit")
			}
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return arguments
	}
	return string(b)
}

// clampInt returns v limited to [min, max].
func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
