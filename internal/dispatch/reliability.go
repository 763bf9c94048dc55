package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"

	"github.com/xela07ax/reqflow/internal/domain"
)

// NotificationSink — то, куда диспетчер физически пишет уведомления (Feed)
type NotificationSink interface {
	Push(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
}

// ReliabilityConfig — настройки ретраев и предохранителя
type ReliabilityConfig struct {
	Attempts      uint
	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
}

// ReliablePusher оборачивает запись в Feed в Retries + Circuit Breaker.
// Дедупликация на стороне Feed делает повторную доставку безопасной,
// поэтому ретраим смело: получатель все равно увидит одну строку
type ReliablePusher struct {
	next NotificationSink
	cb   *gobreaker.CircuitBreaker
	cfg  ReliabilityConfig
}

func NewReliablePusher(next NotificationSink, cfg ReliabilityConfig) *ReliablePusher {
	if cfg.Attempts == 0 {
		cfg.Attempts = 5
	}
	if cfg.CBMaxRequests == 0 {
		cfg.CBMaxRequests = 3
	}
	if cfg.CBInterval == 0 {
		cfg.CBInterval = 5 * time.Second
	}
	if cfg.CBTimeout == 0 {
		cfg.CBTimeout = 30 * time.Second
	}

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "feed-writer",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
	})

	return &ReliablePusher{
		next: next,
		cb:   cb,
		cfg:  cfg,
	}
}

func (w *ReliablePusher) Push(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	var stored *domain.Notification

	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.cfg.Attempts),
			// Умный расчет задержки
			retry.DelayType(func(attempt uint, err error, config retry.DelayContext) time.Duration {
				// Если хранилище вернуло TransientError с подсказкой — уважаем ее
				var tErr *TransientError
				if errors.As(err, &tErr) && tErr.RetryAfter > 0 {
					return tErr.RetryAfter
				}

				// В остальных случаях — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(attempt, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			var pushErr error
			stored, pushErr = w.next.Push(tCtx, n)
			return pushErr
		})

		return stored, retryErr
	})

	if err != nil {
		return nil, err
	}

	return cbResult.(*domain.Notification), nil
}
