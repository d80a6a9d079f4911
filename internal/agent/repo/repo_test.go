package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltax-data-professor/server/internal/agent/model"
	errx "github.com/deltax-data-professor/server/internal/core/error"
)

func newRedisRepo(t *testing.T, ttl time.Duration) (*RedisHistoryRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisHistoryRepository(rdb, ttl), mr
}

func exerciseRepository(t *testing.T, r model.HistoryRepository) {
	ctx := context.Background()

	h, err := r.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, h.Messages)

	require.NoError(t, r.AddMessage(ctx, "s1", schema.UserMessage("total sales?")))
	require.NoError(t, r.AddMessage(ctx, "s1", schema.AssistantMessage("number: 42", nil)))
	require.NoError(t, r.AddMessage(ctx, "s2", schema.UserMessage("other session")))

	h, err = r.LoadHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, h.Messages, 2)
	assert.Equal(t, "s1", h.SessionID)
	assert.Equal(t, []string{"total sales?"}, h.Questions())

	n, err := r.GetMessageCount(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, r.ClearHistory(ctx, "s1"))
	n, err = r.GetMessageCount(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = r.GetMessageCount(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedisHistoryRepository(t *testing.T) {
	r, _ := newRedisRepo(t, 0)
	exerciseRepository(t, r)
}

func TestMemoryHistoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryHistoryRepository())
}

func TestRedisHistoryTTL(t *testing.T) {
	r, mr := newRedisRepo(t, time.Hour)
	require.NoError(t, r.AddMessage(context.Background(), "s1", schema.UserMessage("q")))
	assert.Equal(t, time.Hour, mr.TTL("session:s1:history"))
}

func TestRedisHistoryCorruptEntry(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedisRepo(t, 0)
	require.NoError(t, r.AddMessage(ctx, "mixed", schema.UserMessage("first")))
	_, err := mr.Push("session:mixed:history", "{not json")
	require.NoError(t, err)
	require.NoError(t, r.AddMessage(ctx, "mixed", schema.UserMessage("second")))

	h, err := r.LoadHistory(ctx, "mixed")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, h.Questions())

	_, err = mr.Lpush("session:bad:history", "{not json")
	require.NoError(t, err)
	h, err = r.LoadHistory(ctx, "bad")
	require.NoError(t, err)
	assert.Empty(t, h.Messages)
}

func TestRedisHistoryUnavailable(t *testing.T) {
	r, mr := newRedisRepo(t, 0)
	mr.Close()

	err := r.AddMessage(context.Background(), "s1", schema.UserMessage("q"))
	require.Error(t, err)
	assert.Equal(t, errx.RedisErrorMessage, errx.Message(err))
}
