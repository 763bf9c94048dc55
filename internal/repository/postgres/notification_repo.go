package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/reqflow/internal/domain"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

const notificationColumns = `id, recipient, related_request_id, kind, to_state, message, created_at, is_read`

// Insert сохраняет уведомление идемпотентно: уникальный индекс по dedup_key
// схлопывает конкурентные и повторные записи одного логического события.
// Возвращает сохраненную (возможно, уже существовавшую) строку
func (r *NotificationRepo) Insert(ctx context.Context, n *domain.Notification) (*domain.Notification, bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, dedup_key, recipient, related_request_id, kind, to_state, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dedup_key) DO NOTHING`,
		n.ID, n.DedupKey(), n.RecipientRole, n.RelatedRequestID, n.Kind, n.ToState, n.Message, n.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: failed to insert notification: %w", err)
	}
	inserted := tag.RowsAffected() == 1

	// Перечитываем по ключу: при проигрыше гонки отдаем строку победителя
	row := r.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE dedup_key = $1`, n.DedupKey())
	stored, err := scanNotification(row)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: failed to fetch stored notification: %w", err)
	}
	return stored, inserted, nil
}

func (r *NotificationRepo) ListFor(ctx context.Context, recipient string, onlyUnread bool, limit int) ([]*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient = $1`
	if onlyUnread {
		query += ` AND is_read = FALSE`
	}
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC, id LIMIT $2`

	rows, err := r.pool.Query(ctx, query, recipient, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query notifications: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan notification: %w", err)
		}
		results = append(results, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// MarkRead монотонен: условие is_read = FALSE не дает прочитанному
// откатиться, а повтор/чужой ID просто не затрагивает строк
func (r *NotificationRepo) MarkRead(ctx context.Context, id, recipient string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND recipient = $2 AND is_read = FALSE`, id, recipient)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to mark notification read: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountUnread — счетчики для прогрева кэша бейджей при старте
func (r *NotificationRepo) CountUnread(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT recipient, COUNT(*) FROM notifications
		WHERE is_read = FALSE GROUP BY recipient`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to count unread: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var recipient string
		var count int64
		if err := rows.Scan(&recipient, &count); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan unread count: %w", err)
		}
		counts[recipient] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return counts, nil
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID,
		&n.RecipientRole,
		&n.RelatedRequestID,
		&n.Kind,
		&n.ToState,
		&n.Message,
		&n.CreatedAt,
		&n.IsRead,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
