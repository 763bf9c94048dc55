package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Ключи используются как контракт между инстансами: фиксируем формат.
func TestRedisKeys(t *testing.T) {
	assert.Equal(t, "reqflow:feed:unread_counts", RedisKeyUnreadCounts)
	assert.Equal(t, "reqflow:workflow:transitions", RedisChanTransitions)
	assert.Equal(t, "reqflow:feed:signal", RedisChanFeedSignal)
	assert.Equal(t, "reqflow:lock:warmup:feed", GetWarmupLockKey("feed"))
}
