package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "reqflow"
)

// Ключи состояния (кэш счетчиков непрочитанного)
const (
	RedisKeyUnreadCounts = RedisNamespace + ":feed:unread_counts" // HASH recipient -> count
)

// Каналы Pub/Sub (события)
const (
	// RedisChanTransitions — трансляция закоммиченных переходов (best-effort,
	// дашборды могут проснуться раньше очередного опроса)
	RedisChanTransitions = RedisNamespace + ":workflow:transitions"

	// RedisChanFeedSignal — сигнал "у получателя появилось уведомление".
	// Формат payload: "recipient:delta"
	RedisChanFeedSignal = RedisNamespace + ":feed:signal"
)

// GetWarmupLockKey Генератор ключей warm-up блокировок по имени ресурса
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
