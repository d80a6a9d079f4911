package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/deltax-data-professor/server/internal/agent/model"
	errx "github.com/deltax-data-professor/server/internal/core/error"
	logx "github.com/deltax-data-professor/server/pkg/logger"
)

type RedisHistoryRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisHistoryRepository(rdb redis.Cmdable, ttl time.Duration) *RedisHistoryRepository {
	return &RedisHistoryRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisHistoryRepository) historyKey(sessionID string) string {
	return fmt.Sprintf("session:%s:history", sessionID)
}

func (r *RedisHistoryRepository) AddMessage(ctx context.Context, sessionID string, message *schema.Message) error {
	b, err := json.Marshal(message)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to marshal message")
		return fmt.Errorf("marshal message: %w", err)
	}
	key := r.historyKey(sessionID)

	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push message to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on history key")
		}
	}
	return nil
}

func (r *RedisHistoryRepository) LoadHistory(ctx context.Context, sessionID string) (*model.History, error) {
	key := r.historyKey(sessionID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &model.History{SessionID: sessionID, Messages: []*schema.Message{}}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load history from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]*schema.Message, 0, len(rows))
	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			// One bad entry must not hide the rest of the history.
			logx.Warn().Err(err).Str("session_id", sessionID).Int("index", i).Msg("skipping corrupt history entry")
			continue
		}
		msgs = append(msgs, &m)
	}
	return &model.History{SessionID: sessionID, Messages: msgs}, nil
}

func (r *RedisHistoryRepository) ClearHistory(ctx context.Context, sessionID string) error {
	key := r.historyKey(sessionID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete history from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisHistoryRepository) GetMessageCount(ctx context.Context, sessionID string) (int, error) {
	key := r.historyKey(sessionID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get message count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.HistoryRepository = (*RedisHistoryRepository)(nil)
