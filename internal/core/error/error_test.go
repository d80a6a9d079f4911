package errx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestWrapRedis(t *testing.T) {
	assert.NoError(t, WrapRedis(nil))

	err := WrapRedis(redis.Nil)
	assert.Equal(t, http.StatusNotFound, Status(err))
	assert.ErrorIs(t, err, redis.Nil)

	err = WrapRedis(errors.New("dial tcp: refused"))
	assert.Equal(t, http.StatusBadGateway, Status(err))
	assert.Equal(t, RedisErrorMessage, Message(err))
}

func TestConfigKeepsSentinel(t *testing.T) {
	err := Config(fmt.Errorf("%w: %q", ErrUnknownProvider, "Mistral"))

	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.Equal(t, http.StatusBadRequest, Status(err))
	assert.Contains(t, Message(err), "Mistral")

	var appErr *AppError
	assert.True(t, errors.As(err, &appErr))
}

func TestStatusDefaults(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, Status(errors.New("boom")))
	assert.Equal(t, SystemErrorMessage, Message(errors.New("boom")))
	assert.Equal(t, NoResultMessage, Message(NoResult(nil)))
	assert.ErrorIs(t, NoResult(nil), ErrNoResult)
}
