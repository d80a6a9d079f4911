package conversations

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltax-data-professor/server/internal/agent/model"
	"github.com/deltax-data-professor/server/internal/agent/repo"
	"github.com/deltax-data-professor/server/internal/dataset"
)

type failingRepo struct{ model.HistoryRepository }

func (failingRepo) LoadHistory(context.Context, string) (*model.History, error) {
	return nil, errors.New("redis down")
}

func TestRecentQuestionsKeepsTail(t *testing.T) {
	ctx := context.Background()
	hm := NewHistoryManager(repo.NewMemoryHistoryRepository(), model.HistoryConfig{MaxTurns: 2})

	for _, q := range []string{"q1", "q2", "q3"} {
		require.NoError(t, hm.SaveQuestion(ctx, "s", q))
		require.NoError(t, hm.SaveAnswer(ctx, "s", &model.QueryResult{Type: model.ResultNumber, Number: 1}))
	}
	assert.Equal(t, []string{"q2", "q3"}, hm.RecentQuestions(ctx, "s"))
	assert.Empty(t, hm.RecentQuestions(ctx, "other"))

	require.NoError(t, hm.Clear(ctx, "s"))
	assert.Empty(t, hm.RecentQuestions(ctx, "s"))
}

func TestRecentQuestionsToleratesStoreFailure(t *testing.T) {
	hm := NewHistoryManager(failingRepo{}, model.HistoryConfig{MaxTurns: 5})
	assert.Nil(t, hm.RecentQuestions(context.Background(), "s"))
}

func TestNilManagerIsNoop(t *testing.T) {
	var hm *HistoryManager
	assert.NoError(t, hm.SaveQuestion(context.Background(), "s", "q"))
	assert.Nil(t, hm.RecentQuestions(context.Background(), "s"))
}

func TestSummarize(t *testing.T) {
	ds := dataset.New("r", []string{"a", "b"}, [][]any{{int64(1), "x"}})
	assert.Equal(t, "number: 42.5", Summarize(&model.QueryResult{Type: model.ResultNumber, Number: 42.5}))
	assert.Equal(t, "string: first", Summarize(&model.QueryResult{Type: model.ResultString, Text: "first\nsecond"}))
	assert.Equal(t, "dataframe: 1 rows x 2 columns", Summarize(&model.QueryResult{Type: model.ResultDataFrame, Table: ds}))
	assert.Equal(t, "plot: exports/charts/temp_chart.png", Summarize(&model.QueryResult{Type: model.ResultPlot, ChartPath: "exports/charts/temp_chart.png"}))
}
