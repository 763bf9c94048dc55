package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/reqflow/internal/domain"
	"github.com/xela07ax/reqflow/internal/infra"
)

// NotificationRepository описывает требования ленты к хранилищу
type NotificationRepository interface {
	// Insert сохраняет либо возвращает уже существующую строку по dedup-ключу
	Insert(ctx context.Context, n *domain.Notification) (*domain.Notification, bool, error)
	ListFor(ctx context.Context, recipient string, onlyUnread bool, limit int) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, id, recipient string) (bool, error)
	CountUnread(ctx context.Context) (map[string]int64, error)
}

// Feed — per-recipient лента уведомлений для опрашивающих потребителей.
// Push-гарантий нет: каденция опроса — политика клиента, не ядра
type Feed struct {
	repo      NotificationRepository
	rdb       *redis.Client // Сигналы и L2-счетчики, может быть nil
	logger    *zap.Logger
	listLimit int
}

func NewFeed(repo NotificationRepository, rdb *redis.Client, logger *zap.Logger, listLimit int) *Feed {
	if listLimit <= 0 {
		listLimit = 100
	}
	return &Feed{
		repo:      repo,
		rdb:       rdb,
		logger:    logger.Named("feed"),
		listLimit: listLimit,
	}
}

// Push добавляет уведомление. Повтор того же логического события
// (ретрай диспетчера) возвращает уже сохраненную строку без дубля
func (f *Feed) Push(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	stored, inserted, err := f.repo.Insert(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("feed: push failed: %w", err)
	}

	if inserted {
		f.signal(ctx, stored.RecipientRole, 1)
		f.logger.Debug("notification stored",
			zap.String("recipient", stored.RecipientRole),
			zap.String("kind", string(stored.Kind)),
			zap.String("request_id", stored.RelatedRequestID))
	}
	return stored, nil
}

// ListFor возвращает уведомления получателя, новые сверху.
// Пусто — это пустой слайс, не ошибка
func (f *Feed) ListFor(ctx context.Context, recipient string, onlyUnread bool) ([]*domain.Notification, error) {
	items, err := f.repo.ListFor(ctx, recipient, onlyUnread, f.listLimit)
	if err != nil {
		f.logger.Error("failed to list notifications",
			zap.String("recipient", recipient), zap.Error(err))
		return nil, fmt.Errorf("feed: list failed: %w", err)
	}
	if items == nil {
		return []*domain.Notification{}, nil
	}
	return items, nil
}

// MarkRead монотонно переводит isRead в true.
// Повтор и неизвестный ID — no-op, чтобы гонка двух вкладок не падала наружу
func (f *Feed) MarkRead(ctx context.Context, id, recipient string) error {
	changed, err := f.repo.MarkRead(ctx, id, recipient)
	if err != nil {
		return fmt.Errorf("feed: mark read failed: %w", err)
	}
	if changed {
		f.signal(ctx, recipient, -1)
	}
	return nil
}

// signal обновляет L2-счетчик и будит слушателей. Строго best-effort:
// недоступный Redis не делает Push/MarkRead ошибочными
func (f *Feed) signal(ctx context.Context, recipient string, delta int64) {
	if f.rdb == nil {
		return
	}

	if err := f.rdb.HIncrBy(ctx, infra.RedisKeyUnreadCounts, recipient, delta).Err(); err != nil {
		f.logger.Warn("unread counter update failed",
			zap.String("recipient", recipient), zap.Error(err))
	}

	payload := fmt.Sprintf("%s:%d", recipient, delta)
	if err := f.rdb.Publish(ctx, infra.RedisChanFeedSignal, payload).Err(); err != nil {
		f.logger.Warn("feed signal delivery failed",
			zap.String("recipient", recipient), zap.Error(err))
	}
}
