package memory

/*
In-memory реализация хранилища заявок. Семантика Compare-and-Commit
идентична Postgres-реализации: при гонке двух решений по одному ID
выигрывает ровно одно, второе получает ErrConflict.
Используется в тестах и локальной разработке без базы.
*/

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/reqflow/internal/domain"
	"github.com/xela07ax/reqflow/internal/workflow"
)

type RequestRepo struct {
	mu       sync.RWMutex
	requests map[string]*domain.Request
}

func NewRequestRepo() *RequestRepo {
	return &RequestRepo{
		requests: make(map[string]*domain.Request),
	}
}

func (r *RequestRepo) Create(_ context.Context, req *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = req.Clone()
	return nil
}

// Get отдает глубокую копию: мутации у вызывающего не трогают хранилище
func (r *RequestRepo) Get(_ context.Context, id string) (*domain.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return req.Clone(), nil
}

func (r *RequestRepo) List(_ context.Context, f domain.RequestFilter) ([]*domain.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*domain.Request, 0)
	for _, req := range r.requests {
		if f.State != "" && req.State != f.State {
			continue
		}
		if f.ReviewerRole != "" && req.AssignedReviewerRole != f.ReviewerRole {
			continue
		}
		if f.Priority != "" && req.Priority != f.Priority {
			continue
		}
		if f.SubmittedBy != "" && req.SubmittedBy != f.SubmittedBy {
			continue
		}
		results = append(results, req.Clone())
	}

	// Стабильный порядок: новые сверху, при равенстве — по ID
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if f.Limit > 0 && len(results) > f.Limit {
		results = results[:f.Limit]
	}
	return results, nil
}

// DashboardStats — те же агрегаты, что отдает Postgres-реализация
func (r *RequestRepo) DashboardStats(_ context.Context) (*domain.DashboardStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &domain.DashboardStats{
		ByState:    make(map[domain.RequestState]int64),
		ByPriority: make(map[domain.Priority]int64),
	}
	for _, req := range r.requests {
		stats.TotalRequests++
		stats.ByState[req.State]++
		stats.ByPriority[req.Priority]++
	}
	return stats, nil
}

// CommitTransition — CAS на текущем состоянии под общим мьютексом.
// Проверка и запись атомарны, поэтому двух победителей быть не может
func (r *RequestRepo) CommitTransition(_ context.Context, id string, from domain.RequestState, patch workflow.TransitionPatch) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if req.State != from {
		// Кто-то успел раньше: состояние уже не то, что видел вызывающий
		return nil, domain.ErrConflict
	}

	req.State = patch.To
	req.ReviewHistory = append(req.ReviewHistory, patch.Entry)
	if patch.AssignedReviewerRole != "" {
		req.AssignedReviewerRole = patch.AssignedReviewerRole
	}
	if patch.RescheduledDeadline != nil {
		d := *patch.RescheduledDeadline
		req.RescheduledDeadline = &d
	}
	req.UpdatedAt = time.Now().UTC()

	return req.Clone(), nil
}
