package model

import "time"

// ================ Config ================

// AgentConfig controls the analysis graph.
type AgentConfig struct {
	ToolMaxCalls  int    `envconfig:"AGENT_TOOL_MAX_CALLS" default:"6"`
	SampleRows    int    `envconfig:"AGENT_SAMPLE_ROWS" default:"5"`
	MaxResultRows int    `envconfig:"AGENT_MAX_RESULT_ROWS" default:"1000"`
	ChartDir      string `envconfig:"AGENT_CHART_DIR" default:"exports/charts"`
	ChartFile     string `envconfig:"AGENT_CHART_FILE" default:"temp_chart.png"`
	Timeout       string `envconfig:"AGENT_TIMEOUT" default:"2m"`
	History       HistoryConfig
}

// HistoryConfig controls how many previous questions are fed back to the model.
type HistoryConfig struct {
	TTL      string `envconfig:"HISTORY_TTL" default:"24h"`
	MaxTurns int    `envconfig:"HISTORY_MAX_TURNS" default:"5"`
}

// TimeoutDuration parses Timeout, falling back to two minutes.
func (c AgentConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// TTLDuration parses TTL. Zero disables expiry.
func (c HistoryConfig) TTLDuration() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// DefaultAgentConfig mirrors the envconfig defaults for callers that do not load the environment.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		ToolMaxCalls:  6,
		SampleRows:    5,
		MaxResultRows: 1000,
		ChartDir:      "exports/charts",
		ChartFile:     "temp_chart.png",
		Timeout:       "2m",
		History:       HistoryConfig{TTL: "24h", MaxTurns: 5},
	}
}
