package model

import (
	"github.com/cloudwego/eino/schema"

	"github.com/deltax-data-professor/server/internal/dataset"
)

// AppState stores per-invocation state for the analysis graph.
// Concurrency model:
//   - Registered as graph local state via compose.WithGenLocalState.
//   - Read and written only inside state handlers or compose.ProcessState,
//     which eino serialises, so no extra locking is needed.
type AppState struct {
	SessionID            string
	Query                string
	History              []*schema.Message // mutated only inside state handlers
	ToolCallCount        int
	ToolCallLimitReached bool
	ToolCallIDSeq        int // synthesised tool_call_id sequence for providers that omit ids

	// Answer is set by the parser post-handler and read by the executor.
	Answer *Answer

	// Accumulated LLM cost (USD) for this question.
	TotalCostUSD float64
}

// AnalysisInput is the graph input for one question.
type AnalysisInput struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// TableRef names a dataset as it is registered in the analysis workspace.
type TableRef struct {
	Name    string
	Dataset *dataset.Dataset
}
