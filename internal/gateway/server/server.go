package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/reqflow/internal/gateway"
	"github.com/xela07ax/reqflow/internal/gateway/handler"
	"github.com/xela07ax/reqflow/internal/infra"
)

type WorkflowServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	metrics *infra.Metrics

	// Обработчики бизнес-доменов
	workflowHandler     *handler.WorkflowHandler     // /v1/requests, /v1/dashboard
	notificationHandler *handler.NotificationHandler // /v1/notifications
}

// NewWorkflowServer инициализирует HTTP-слой Gateway со всеми зависимостями
func NewWorkflowServer(
	cfg *infra.Config,
	logger *zap.Logger,
	metrics *infra.Metrics,
	workflowH *handler.WorkflowHandler,
	notificationH *handler.NotificationHandler,
) *WorkflowServer {
	s := &WorkflowServer{
		router:              chi.NewRouter(),
		logger:              logger.Named("workflow-api"),
		cfg:                 cfg,
		metrics:             metrics,
		workflowHandler:     workflowH,
		notificationHandler: notificationH,
	}

	s.routes()
	return s
}

func (s *WorkflowServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(gateway.TracingMiddleware)
	r.Use(gateway.MetricsMiddleware(s.metrics))

	// Healthcheck для мониторинга
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	writeLimit := gateway.WriteLimitMiddleware(s.cfg.Server.WriteRPS, s.cfg.Server.WriteBurst)

	// Заявки: жизненный цикл и проекции
	r.Route("/v1/requests", func(r chi.Router) {
		r.Get("/", s.workflowHandler.List)
		r.With(writeLimit).Post("/", s.workflowHandler.Submit)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.workflowHandler.Get)
			r.With(writeLimit).Post("/decide", s.workflowHandler.Decide)
			r.With(writeLimit).Post("/forward", s.workflowHandler.Forward)
		})
	})

	// Лента уведомлений (поллинг + ack)
	r.Route("/v1/notifications", func(r chi.Router) {
		r.Get("/", s.notificationHandler.List)
		r.Post("/{id}/ack", s.notificationHandler.Ack)
	})

	// Агрегаты для дашбордов
	r.Get("/v1/dashboard/stats", s.workflowHandler.Stats)
}

// ServeHTTP позволяет использовать WorkflowServer как стандартный http.Handler
func (s *WorkflowServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
