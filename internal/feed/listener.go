package feed

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/reqflow/internal/infra"
)

// UnreadCache — L1 (RAM) кэш счетчиков непрочитанного по получателям.
// Hot Path дашборда (бейдж уведомлений) читает только память
type UnreadCache struct {
	mu     sync.RWMutex
	counts map[string]int64
}

func NewUnreadCache() *UnreadCache {
	return &UnreadCache{counts: make(map[string]int64)}
}

func (c *UnreadCache) Get(recipient string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[recipient]
}

func (c *UnreadCache) Add(recipient string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.counts[recipient] + delta
	if next < 0 {
		next = 0 // Сигналы могут приехать не по порядку, в минус не уходим
	}
	c.counts[recipient] = next
}

// Replace целиком заменяет содержимое (холодная загрузка из БД)
func (c *UnreadCache) Replace(counts map[string]int64) {
	fresh := make(map[string]int64, len(counts))
	for k, v := range counts {
		fresh[k] = v
	}
	c.mu.Lock()
	c.counts = fresh
	c.mu.Unlock()
}

func (c *UnreadCache) Snapshot() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// ListenSignalsResilient — "живучая" подписка на сигналы ленты.
// Обрабатывает переподключения, логирование и разбор сигналов "recipient:delta"
func ListenSignalsResilient(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	onReconnect func() error, // Callback для синхронизации при переподключении
	onSignal func(recipient string, delta int64),
) {
	channel := infra.RedisChanFeedSignal

	for {
		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Вызываем синхронизацию при каждом успешном коннекте
		if err := onReconnect(); err != nil {
			logger.Error("sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				// Разбор формата "recipient:delta"
				idx := strings.LastIndex(msg.Payload, ":")
				if idx <= 0 {
					logger.Error("invalid signal format", zap.String("payload", msg.Payload))
					continue
				}

				recipient := msg.Payload[:idx]
				delta, err := strconv.ParseInt(msg.Payload[idx+1:], 10, 64)
				if err != nil {
					logger.Error("invalid signal delta", zap.String("payload", msg.Payload))
					continue
				}

				onSignal(recipient, delta)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}

// WarmupUnread — прогрев L1 (RAM) и L2 (Redis) кэшей счетчиков при старте.
// Источник правды — БД; Redis наполняется только одним инстансом (SetNX-лок)
func WarmupUnread(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	counts map[string]int64,
	cache *UnreadCache,
) error {
	// 1. Обновляем локальный кэш (L1)
	cache.Replace(counts)

	if rdb == nil {
		return nil
	}

	// 2. Распределенная блокировка, чтобы только один инстанс обновлял Redis
	ok, err := rdb.SetNX(ctx, infra.GetWarmupLockKey("feed"), "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой уже греет кэш
	}

	// 3. Проверка наполненности Redis
	size, err := rdb.HLen(ctx, infra.RedisKeyUnreadCounts).Result()
	if err != nil {
		size = 0
		logger.Warn("could not check unread hash size, proceeding with warm-up", zap.Error(err))
	}

	// 4. Если Redis пуст, а данные в БД есть — заливаем
	if size == 0 && len(counts) > 0 {
		logger.Info("unread counter cache is empty, performing warm-up from DB...",
			zap.Int("recipients", len(counts)))

		pipe := rdb.Pipeline()
		for recipient, count := range counts {
			pipe.HSet(ctx, infra.RedisKeyUnreadCounts, recipient, count)
		}
		_, err = pipe.Exec(ctx)
		return err
	}

	return nil
}
