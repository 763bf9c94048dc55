package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xela07ax/reqflow/internal/domain"
)

// NotificationRepo — in-memory лента уведомлений с дедупликацией по ключу.
// Конкурентные Push с одинаковым ключом схлопываются в одну строку
type NotificationRepo struct {
	mu     sync.RWMutex
	byKey  map[string]*domain.Notification
	byID   map[string]*domain.Notification
	stored []*domain.Notification // Порядок вставки
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{
		byKey: make(map[string]*domain.Notification),
		byID:  make(map[string]*domain.Notification),
	}
}

// Insert сохраняет уведомление либо возвращает уже существующее по dedup-ключу.
// inserted=false означает повтор логического события
func (r *NotificationRepo) Insert(_ context.Context, n *domain.Notification) (*domain.Notification, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := n.DedupKey()
	if existing, ok := r.byKey[key]; ok {
		return cloneNotification(existing), false, nil
	}

	cp := cloneNotification(n)
	r.byKey[key] = cp
	r.byID[cp.ID] = cp
	r.stored = append(r.stored, cp)
	return cloneNotification(cp), true, nil
}

// ListFor возвращает уведомления получателя, новые сверху
func (r *NotificationRepo) ListFor(_ context.Context, recipient string, onlyUnread bool, limit int) ([]*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*domain.Notification, 0)
	for _, n := range r.stored {
		if n.RecipientRole != recipient {
			continue
		}
		if onlyUnread && n.IsRead {
			continue
		}
		results = append(results, cloneNotification(n))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// MarkRead переводит isRead в true. Повтор и неизвестный ID — no-op:
// гонка двух вкладок по одному уведомлению не должна падать наружу.
// Возвращает, изменилось ли что-то (для сигналов/счетчиков)
func (r *NotificationRepo) MarkRead(_ context.Context, id, recipient string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.byID[id]
	if !ok || n.RecipientRole != recipient || n.IsRead {
		return false, nil
	}
	n.IsRead = true
	return true, nil
}

// CountUnread — счетчики непрочитанного по всем получателям (для warm-up кэша)
func (r *NotificationRepo) CountUnread(_ context.Context) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64)
	for _, n := range r.stored {
		if !n.IsRead {
			counts[n.RecipientRole]++
		}
	}
	return counts, nil
}

func cloneNotification(n *domain.Notification) *domain.Notification {
	cp := *n
	return &cp
}
