package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xela07ax/reqflow/internal/domain"
	"github.com/xela07ax/reqflow/internal/workflow"
)

type RequestRepo struct {
	pool *pgxpool.Pool
}

func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

// Ping проверяет доступность базы при старте
func (r *RequestRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const requestColumns = `id, subject, submitted_by, assigned_reviewer_role, state, priority,
	payload, deadline, rescheduled_deadline, created_at, updated_at`

func (r *RequestRepo) Create(ctx context.Context, req *domain.Request) error {
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode payload: %w", err)
	}

	query := `INSERT INTO requests (id, subject, submitted_by, assigned_reviewer_role, state, priority,
	          payload, deadline, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = r.pool.Exec(ctx, query,
		req.ID, req.Subject, req.SubmittedBy, req.AssignedReviewerRole,
		req.State, req.Priority, payload, req.Deadline, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create request: %w", err)
	}
	return nil
}

// Get возвращает заявку вместе с полной историей ревью (в порядке коммитов)
func (r *RequestRepo) Get(ctx context.Context, id string) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to fetch request: %w", err)
	}

	history, err := r.loadHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	req.ReviewHistory = history
	return req, nil
}

func (r *RequestRepo) List(ctx context.Context, f domain.RequestFilter) ([]*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests`

	// Динамический WHERE по заполненным полям фильтра
	var conds []string
	var args []interface{}
	appendCond := func(field string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s = $%d", field, len(args)))
	}
	if f.State != "" {
		appendCond("state", f.State)
	}
	if f.ReviewerRole != "" {
		appendCond("assigned_reviewer_role", f.ReviewerRole)
	}
	if f.Priority != "" {
		appendCond("priority", f.Priority)
	}
	if f.SubmittedBy != "" {
		appendCond("submitted_by", f.SubmittedBy)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query requests: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan request: %w", err)
		}
		results = append(results, req)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	// Историю для списков не тянем: проекциям достаточно текущего среза,
	// полная история приходит через Get
	return results, nil
}

// CommitTransition атомарно применяет переход и дописывает строку аудита.
// Условие WHERE state = $from защищает от Double Decision: из двух гонящихся
// решений UPDATE пройдет ровно у одного, второй получит Conflict
func (r *RequestRepo) CommitTransition(ctx context.Context, id string, from domain.RequestState, patch workflow.TransitionPatch) (*domain.Request, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE requests
		SET state = $1,
		    assigned_reviewer_role = COALESCE(NULLIF($2, ''), assigned_reviewer_role),
		    rescheduled_deadline = COALESCE($3, rescheduled_deadline),
		    updated_at = NOW()
		WHERE id = $4 AND state = $5`

	tag, err := tx.Exec(ctx, query,
		patch.To, patch.AssignedReviewerRole, patch.RescheduledDeadline, id, from)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to update request state: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Строк не найдено: либо ID неверный, либо (что чаще)
		// состояние уже сменило другое решение
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("postgres: failed to check request existence: %w", err)
		}
		if !exists {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrConflict
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO review_history (request_id, reviewer_role, from_state, to_state, comment, ts)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, patch.Entry.ReviewerRole, patch.Entry.FromState, patch.Entry.ToState,
		patch.Entry.Comment, patch.Entry.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to append review history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: failed to commit transition: %w", err)
	}

	return r.Get(ctx, id)
}

// DashboardStats — агрегаты по заявкам одним проходом (FILTER вместо N запросов)
func (r *RequestRepo) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	stats := &domain.DashboardStats{
		ByState:    make(map[domain.RequestState]int64),
		ByPriority: make(map[domain.Priority]int64),
	}

	rows, err := r.pool.Query(ctx,
		`SELECT state, priority, COUNT(*) FROM requests GROUP BY state, priority`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state domain.RequestState
		var priority domain.Priority
		var count int64
		if err := rows.Scan(&state, &priority, &count); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan stats: %w", err)
		}
		stats.TotalRequests += count
		stats.ByState[state] += count
		stats.ByPriority[priority] += count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return stats, nil
}

func (r *RequestRepo) loadHistory(ctx context.Context, id string) ([]domain.ReviewEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT reviewer_role, from_state, to_state, comment, ts
		FROM review_history WHERE request_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query review history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.ReviewEntry, 0)
	for rows.Next() {
		var e domain.ReviewEntry
		if err := rows.Scan(&e.ReviewerRole, &e.FromState, &e.ToState, &e.Comment, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan review entry: %w", err)
		}
		history = append(history, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return history, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*domain.Request, error) {
	var req domain.Request
	var payload []byte

	err := row.Scan(
		&req.ID,
		&req.Subject,
		&req.SubmittedBy,
		&req.AssignedReviewerRole,
		&req.State,
		&req.Priority,
		&payload,
		&req.Deadline,
		&req.RescheduledDeadline,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	req.ReviewHistory = []domain.ReviewEntry{}
	return &req, nil
}
