package logx

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/deltax-data-professor/server/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(LoggerOpts{Environment: core.Production, Output: &buf})
	t.Cleanup(func() { Init() })

	Debug().Msg("hidden")
	Info().Str("session_id", "abc").Msg("visible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "abc", entry["session_id"])
}

func TestInitLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	Init(LoggerOpts{Environment: core.Production, Level: "error", Output: &buf})
	t.Cleanup(func() { Init() })

	Info().Msg("dropped")
	assert.Empty(t, buf.String())
}
