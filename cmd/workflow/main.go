package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/reqflow/internal/dispatch"
	"github.com/xela07ax/reqflow/internal/feed"
	"github.com/xela07ax/reqflow/internal/gateway"
	"github.com/xela07ax/reqflow/internal/gateway/handler"
	"github.com/xela07ax/reqflow/internal/gateway/server"
	"github.com/xela07ax/reqflow/internal/infra"
	"github.com/xela07ax/reqflow/internal/repository/postgres"
	"github.com/xela07ax/reqflow/internal/workflow"
)

func main() {
	// 1. Инфраструктура и ресурсы
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to init postgres pool", zap.Error(err))
	}
	defer pool.Close()

	requestRepo := postgres.NewRequestRepo(pool)
	notificationRepo := postgres.NewNotificationRepo(pool)

	// Проверяем соединение с таймаутом
	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	if err := requestRepo.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	// 2. Метрики
	reg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(reg)

	// Экспортируем метрики для Prometheus
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Fatal(http.ListenAndServe(cfg.Metrics.Addr, mux))
	}()

	// 3. Лента уведомлений + кэш счетчиков непрочитанного
	notificationFeed := feed.NewFeed(notificationRepo, rdb, logger, cfg.Feed.ListLimit)
	unreadCache := feed.NewUnreadCache()

	warmup := func() error {
		counts, err := notificationRepo.CountUnread(appCtx)
		if err != nil {
			return err
		}
		return feed.WarmupUnread(appCtx, rdb, logger, counts, unreadCache)
	}
	if err := warmup(); err != nil {
		// Кэш бейджей не критичен для старта: догреется на переподключении
		logger.Warn("unread cache warm-up failed", zap.Error(err))
	}
	go feed.ListenSignalsResilient(appCtx, rdb, logger, warmup, unreadCache.Add)

	// 4. Диспетчер уведомлений (Retries + Circuit Breaker вокруг записи в ленту)
	pusher := dispatch.NewReliablePusher(notificationFeed, dispatch.ReliabilityConfig{
		Attempts:      cfg.Dispatch.RetryAttempts,
		CBMaxRequests: cfg.Dispatch.CBMaxRequests,
		CBInterval:    cfg.Dispatch.CBInterval,
		CBTimeout:     cfg.Dispatch.CBTimeout,
	})
	dispatcher := dispatch.NewDispatcher(pusher, cfg.Dispatch.QueueSize, metrics, logger)
	dispatcher.Start(appCtx)

	// 5. Ядро (Store + Gateway)
	store := workflow.NewStore(requestRepo, dispatcher, rdb, logger)
	gw := gateway.New(store, notificationFeed, unreadCache, requestRepo, metrics, logger)

	workflowSrv := server.NewWorkflowServer(
		cfg,
		logger,
		metrics,
		handler.NewWorkflowHandler(gw),
		handler.NewNotificationHandler(gw),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      workflowSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 6. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("workflow engine started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("workflow engine stopping...")

	// Даем 5 секунд на завершение запросов, потом глушим диспетчер:
	// сначала перестаем принимать решения, затем дописываем уведомления
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	dispatcher.Stop()
	logger.Info("workflow engine exited properly")
}
