package gateway

/*
Workflow Gateway — тонкий stateless фасад над Store, Dispatcher и Feed.
Внешние коллабораторы (UI подачи, UI ревьюера, поллеры бейджей) разговаривают
только с ним и видят одну таксономию ошибок, какой бы внутренний слой ни упал.
Фасад никогда не ретраит запись за вызывающего: неоднозначность ретрая — риск
двойного решения, поэтому Conflict отдаем наружу как есть.
*/

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/reqflow/internal/domain"
	"github.com/xela07ax/reqflow/internal/feed"
	"github.com/xela07ax/reqflow/internal/infra"
	"github.com/xela07ax/reqflow/internal/workflow"
)

// StatsProvider — агрегаты по заявкам для read-only проекций
type StatsProvider interface {
	DashboardStats(ctx context.Context) (*domain.DashboardStats, error)
}

type Gateway struct {
	store   *workflow.Store
	feed    *feed.Feed
	unread  *feed.UnreadCache
	stats   StatsProvider
	metrics *infra.Metrics
	logger  *zap.Logger
}

func New(store *workflow.Store, fd *feed.Feed, unread *feed.UnreadCache, stats StatsProvider, metrics *infra.Metrics, logger *zap.Logger) *Gateway {
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Gateway{
		store:   store,
		feed:    fd,
		unread:  unread,
		stats:   stats,
		metrics: metrics,
		logger:  logger.Named("gateway"),
	}
}

func (g *Gateway) SubmitRequest(ctx context.Context, in workflow.SubmitInput) (*domain.Request, error) {
	req, err := g.store.Submit(ctx, in)
	if err != nil {
		g.countError(ctx, err)
		return nil, err
	}
	g.metrics.TransitionsTotal.WithLabelValues(string(domain.DecisionSubmit), string(req.State)).Inc()
	return req, nil
}

func (g *Gateway) ReviewDecision(ctx context.Context, in workflow.DecideInput) (*domain.Request, error) {
	req, err := g.store.Decide(ctx, in)
	if err != nil {
		g.countError(ctx, err)
		return nil, err
	}
	g.metrics.TransitionsTotal.WithLabelValues(in.Decision, string(req.State)).Inc()
	return req, nil
}

func (g *Gateway) ForwardRequest(ctx context.Context, id, fromRole, toRole string) (*domain.Request, error) {
	req, err := g.store.Forward(ctx, id, fromRole, toRole)
	if err != nil {
		g.countError(ctx, err)
		return nil, err
	}
	g.metrics.TransitionsTotal.WithLabelValues(string(domain.DecisionForward), string(req.State)).Inc()
	return req, nil
}

func (g *Gateway) GetRequest(ctx context.Context, id string) (*domain.Request, error) {
	req, err := g.store.Get(ctx, id)
	if err != nil {
		g.countError(ctx, err)
		return nil, err
	}
	return req, nil
}

func (g *Gateway) ListRequests(ctx context.Context, f domain.RequestFilter) ([]*domain.Request, error) {
	return g.store.List(ctx, f)
}

func (g *Gateway) GetNotifications(ctx context.Context, recipient string, unreadOnly bool) ([]*domain.Notification, error) {
	return g.feed.ListFor(ctx, recipient, unreadOnly)
}

func (g *Gateway) AcknowledgeNotification(ctx context.Context, id, recipient string) error {
	return g.feed.MarkRead(ctx, id, recipient)
}

// DashboardStats объединяет агрегаты Store и кэш непрочитанного из ленты
func (g *Gateway) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	stats, err := g.stats.DashboardStats(ctx)
	if err != nil {
		g.logger.Error("failed to collect dashboard stats", zap.Error(err))
		return nil, err
	}
	if g.unread != nil {
		stats.UnreadNotifications = g.unread.Snapshot()
	}
	return stats, nil
}

// countError считает отказ в метриках и привязывает его к trace-id запроса
func (g *Gateway) countError(ctx context.Context, err error) {
	kind := ErrorType(err)
	g.metrics.ErrorTotal.WithLabelValues(kind).Inc()
	g.logger.Debug("operation rejected",
		zap.String("trace_id", TraceID(ctx)),
		zap.String("type", kind),
		zap.Error(err))
}

// ErrorType — метка для метрик и логов
func ErrorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrUnauthorizedRole):
		return "unauthorized_role"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrDispatchFailed):
		return "dispatch_failed"
	default:
		return "internal"
	}
}

// HTTPStatus мапит таксономию ядра в коды ответов Gateway
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthorizedRole):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
