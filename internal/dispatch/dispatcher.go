package dispatch

/*
Файл dispatcher.go реализует диспетчер уведомлений — независимый воркер,
потребляющий закоммиченные переходы Request Store.

Ключевые особенности архитектуры:
- Non-blocking Handoff: Store кладет событие в буферизованный канал и
  возвращается к вызывающему; медленная доставка не тормозит Decide.
- FIFO per Request: единственный воркер вычитывает очередь в порядке
  коммитов, поэтому события одной заявки никогда не обгоняют друг друга.
- At-least-once: отказ записи в Feed ретраится (ReliablePusher: бэкофф +
  Circuit Breaker), затем воркер уходит в внешний цикл ожидания — событие
  не выбрасывается, пока процесс жив. Дедупликация в Feed гарантирует,
  что повторная доставка не породит вторую строку.
- Drain Pattern & Graceful Shutdown: закрытие входного канала — единственный
  сигнал завершения; воркер сначала вычитывает остатки, потом выходит.
  Продюсер держит gate.RLock на время отправки, Stop берет gate.Lock перед
  close(ch): зависший в backpressure продюсер дописывает свое событие,
  отправка в закрытый канал исключена.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/reqflow/internal/domain"
	"github.com/xela07ax/reqflow/internal/infra"
)

type Dispatcher struct {
	ch      chan domain.TransitionEvent
	pusher  NotificationSink
	logger  *zap.Logger
	metrics *infra.Metrics
	wg      sync.WaitGroup

	// Атомарный флаг (0 - открыт, 1 - закрыт): защита от Committed после Stop
	isClosed int32

	// Committed входит под RLock, Stop закрывает канал под Lock:
	// blocking-отправка и close(ch) не пересекаются
	gate sync.RWMutex

	// Контекст доставки; выставляется в Start
	runCtx context.Context
}

func NewDispatcher(pusher NotificationSink, queueSize int, metrics *infra.Metrics, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 10000
	}
	if metrics == nil {
		metrics = infra.NewMetrics(nil)
	}
	return &Dispatcher{
		ch:      make(chan domain.TransitionEvent, queueSize),
		pusher:  pusher,
		logger:  logger.Named("dispatcher"),
		metrics: metrics,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.runCtx = ctx
	d.wg.Add(1)
	go d.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер все допишет.
func (d *Dispatcher) Stop() {
	// 1. Сначала ставим флаг: новые Committed отвергаются, а deliver
	// перестает ретраить и продолжает вычитывать очередь
	atomic.StoreInt32(&d.isClosed, 1)

	// 2. Lock дожидается продюсеров, зависших в backpressure-отправке:
	// воркер освобождает им место в очереди, их события не теряются
	d.gate.Lock()

	// 3. Закрываем (Drain Pattern). Завершение горутины происходит исключительно через закрытие входного канала.
	d.logger.Info("stopping dispatcher: closing channel and draining queue...")
	close(d.ch)
	d.gate.Unlock()

	d.wg.Wait()
	d.logger.Info("dispatcher stopped gracefully")
}

// Committed принимает закоммиченный переход от Store.
// Событие потерять нельзя: при переполненной очереди блокируемся (backpressure),
// а не сбрасываем нагрузку
func (d *Dispatcher) Committed(ev domain.TransitionEvent) {
	d.gate.RLock()
	defer d.gate.RUnlock()

	if atomic.LoadInt32(&d.isClosed) == 1 {
		// После Stop новых коммитов быть не должно: HTTP-сервер гасится раньше
		d.logger.Error("transition event arrived after shutdown",
			zap.String("request_id", ev.RequestID))
		return
	}

	select {
	case d.ch <- ev:
	default:
		d.logger.Warn("dispatch queue is full, applying backpressure",
			zap.String("request_id", ev.RequestID))
		d.ch <- ev
	}
	d.metrics.DispatchQueueFill.Set(float64(len(d.ch)))
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for ev := range d.ch {
		d.metrics.DispatchQueueFill.Set(float64(len(d.ch)))
		d.deliver(ev)
	}

	// КАНАЛ ЗАКРЫТ в методе Stop() — остатки уже вычитаны выше
	d.logger.Info("dispatch worker finished")
}

// deliver раскладывает событие по таблице маршрутизации и пишет в Feed.
// Не возвращается, пока все адресаты не получили строку (или процесс не гаснет)
func (d *Dispatcher) deliver(ev domain.TransitionEvent) {
	for _, target := range Route(ev) {
		n := &domain.Notification{
			ID:               uuid.New().String(),
			RecipientRole:    target.Recipient,
			RelatedRequestID: ev.RequestID,
			Kind:             target.Kind,
			ToState:          ev.ToState,
			Message:          target.Message,
			CreatedAt:        ev.CommittedAt,
		}

		pushOnce := func() error {
			// При живом процессе — рабочий контекст, на шатдауне —
			// Background с таймаутом, чтобы дописать остатки очереди
			ctx := d.runCtx
			if d.stopping() {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
			}
			_, err := d.pusher.Push(ctx, n)
			return err
		}

		for {
			err := pushOnce()
			if err == nil {
				d.metrics.NotificationsTotal.WithLabelValues(string(target.Kind)).Inc()
				break
			}

			d.metrics.DispatchRetries.Inc()
			d.logger.Error("notification delivery failed, will retry",
				zap.String("request_id", ev.RequestID),
				zap.String("recipient", target.Recipient),
				zap.String("kind", string(target.Kind)),
				zap.Error(err))

			// На шатдауне даем последней попытке шанс и выходим:
			// дальше удерживать процесс ради доставки нельзя
			if d.stopping() {
				d.logger.Error("notification undelivered at shutdown",
					zap.String("dedup_key", n.DedupKey()))
				return
			}
			time.Sleep(5 * time.Second)
		}
	}
}

func (d *Dispatcher) stopping() bool {
	if atomic.LoadInt32(&d.isClosed) == 1 {
		return true
	}
	if d.runCtx == nil {
		return false
	}
	select {
	case <-d.runCtx.Done():
		return true
	default:
		return false
	}
}
