package workflow

/*
Файл store.go реализует Request Store — единственный источник правды о заявках.

Ключевые гарантии:
- Легальность переходов проверяется по таблице конечного автомата (domain.NextState);
  все, чего нет в таблице — InvalidTransition, заявка не меняется.
- Конкурентные решения по одной заявке сериализуются через Compare-and-Commit
  на текущем состоянии: проигравший получает Conflict, а не тихую перезапись.
- Каждый закоммиченный переход ровно один раз добавляет запись в append-only
  историю ревью и ровно один раз уходит в TransitionSink для диспетчера.
*/

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

// TransitionPatch — атомарное изменение заявки при закоммиченном переходе
type TransitionPatch struct {
	To    domain.RequestState
	Entry domain.ReviewEntry

	// Непустое значение — смена ответственной роли (forward)
	AssignedReviewerRole string

	// Перенос пишет сюда; исходный Deadline никогда не переписывается
	RescheduledDeadline *time.Time
}

// RequestRepository описывает требования Store к хранилищу заявок
type RequestRepository interface {
	Create(ctx context.Context, req *domain.Request) error
	Get(ctx context.Context, id string) (*domain.Request, error)
	List(ctx context.Context, f domain.RequestFilter) ([]*domain.Request, error)

	// CommitTransition применяет patch строго при условии state == from.
	// Если состояние уже ушло — ErrConflict, если заявки нет — ErrNotFound
	CommitTransition(ctx context.Context, id string, from domain.RequestState, patch TransitionPatch) (*domain.Request, error)
}

// TransitionSink принимает закоммиченные переходы (очередь диспетчера)
type TransitionSink interface {
	Committed(ev domain.TransitionEvent)
}

type Store struct {
	repo   RequestRepository
	sink   TransitionSink
	rdb    *redis.Client // Best-effort сигналы для дашбордов, может быть nil
	logger *zap.Logger
}

func NewStore(repo RequestRepository, sink TransitionSink, rdb *redis.Client, logger *zap.Logger) *Store {
	return &Store{
		repo:   repo,
		sink:   sink,
		rdb:    rdb,
		logger: logger.Named("request-store"),
	}
}

// SubmitInput — входные данные от UI подачи заявки
type SubmitInput struct {
	Subject      string
	SubmittedBy  string
	ReviewerRole string
	Priority     string
	Payload      map[string]interface{}
	Deadline     *time.Time
}

// Submit создает заявку в состоянии submitted.
// История ревью начинается пустой: записи появляются только на решениях
func (s *Store) Submit(ctx context.Context, in SubmitInput) (*domain.Request, error) {
	if len(in.Payload) == 0 {
		return nil, fmt.Errorf("payload is required: %w", domain.ErrInvalidPayload)
	}
	if in.SubmittedBy == "" || in.ReviewerRole == "" {
		return nil, fmt.Errorf("submitted_by and reviewer_role are required: %w", domain.ErrInvalidPayload)
	}

	// Closed Enum на границе: неизвестный приоритет отклоняем, а не принимаем как строку
	priority, err := domain.ParsePriority(in.Priority)
	if err != nil {
		return nil, fmt.Errorf("unknown priority %q: %w", in.Priority, err)
	}

	now := time.Now().UTC()
	req := &domain.Request{
		ID:                   uuid.New().String(),
		Subject:              in.Subject,
		SubmittedBy:          in.SubmittedBy,
		AssignedReviewerRole: in.ReviewerRole,
		State:                domain.StateSubmitted,
		Priority:             priority,
		Payload:              in.Payload,
		ReviewHistory:        []domain.ReviewEntry{},
		Deadline:             in.Deadline,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Create(ctx, req); err != nil {
		s.logger.Error("failed to persist submitted request",
			zap.String("submitted_by", in.SubmittedBy),
			zap.Error(err))
		return nil, fmt.Errorf("store: submit failed: %w", err)
	}

	s.emit(ctx, domain.TransitionEvent{
		RequestID:    req.ID,
		SubmittedBy:  req.SubmittedBy,
		ReviewerRole: in.SubmittedBy, // Переход совершил сам автор
		AssignedRole: req.AssignedReviewerRole,
		ToState:      domain.StateSubmitted,
		Decision:     domain.DecisionSubmit,
		CommittedAt:  now,
	})

	s.logger.Info("request submitted",
		zap.String("request_id", req.ID),
		zap.String("reviewer_role", req.AssignedReviewerRole),
		zap.String("priority", string(priority)))

	return req, nil
}

// DecideInput — решение ревьюера по заявке
type DecideInput struct {
	RequestID    string
	ReviewerRole string
	Decision     string
	Comment      string
	NewDeadline  *time.Time // Только для reschedule
}

// Decide валидирует решение против таблицы переходов и атомарно коммитит его.
// Ровно одна из двух гонящихся команд выигрывает, вторая получает Conflict
func (s *Store) Decide(ctx context.Context, in DecideInput) (*domain.Request, error) {
	decision, err := domain.ParseDecision(in.Decision)
	if err != nil {
		return nil, fmt.Errorf("unknown decision %q: %w", in.Decision, err)
	}
	if decision == domain.DecisionForward {
		// Передача заявки идет через Forward: там явные fromRole/toRole
		return nil, fmt.Errorf("forward requires an explicit target role: %w", domain.ErrInvalidPayload)
	}
	if in.ReviewerRole == "" {
		return nil, fmt.Errorf("reviewer_role is required: %w", domain.ErrInvalidPayload)
	}

	req, err := s.repo.Get(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}

	// Явная проверка роли вместо доверия контексту дашборда
	if req.AssignedReviewerRole != in.ReviewerRole {
		return nil, fmt.Errorf("request is assigned to %q: %w",
			req.AssignedReviewerRole, domain.ErrUnauthorizedRole)
	}

	now := time.Now().UTC()
	patch := TransitionPatch{
		Entry: domain.ReviewEntry{
			ReviewerRole: in.ReviewerRole,
			FromState:    req.State,
			Comment:      in.Comment,
			Timestamp:    now,
		},
	}

	// Guard-условия таблицы переходов
	switch decision {
	case domain.DecisionReject:
		if in.Comment == "" {
			return nil, fmt.Errorf("reject requires a comment: %w", domain.ErrInvalidTransition)
		}
	case domain.DecisionReschedule:
		if in.NewDeadline == nil {
			return nil, fmt.Errorf("reschedule requires a new deadline: %w", domain.ErrInvalidTransition)
		}
		if !in.NewDeadline.After(req.EffectiveDeadline(now)) {
			return nil, fmt.Errorf("new deadline must be strictly after the current one: %w",
				domain.ErrInvalidTransition)
		}
		d := in.NewDeadline.UTC()
		patch.RescheduledDeadline = &d
	}

	to, err := domain.NextState(req.State, decision)
	if err != nil {
		return nil, fmt.Errorf("%s is not allowed in state %s: %w", decision, req.State, err)
	}
	patch.To = to
	patch.Entry.ToState = to

	updated, err := s.repo.CommitTransition(ctx, req.ID, req.State, patch)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, domain.TransitionEvent{
		RequestID:    updated.ID,
		SubmittedBy:  updated.SubmittedBy,
		ReviewerRole: in.ReviewerRole,
		AssignedRole: updated.AssignedReviewerRole,
		FromState:    req.State,
		ToState:      to,
		Decision:     decision,
		Comment:      in.Comment,
		CommittedAt:  now,
	})

	s.logger.Info("review decision committed",
		zap.String("request_id", updated.ID),
		zap.String("reviewer_role", in.ReviewerRole),
		zap.String("decision", string(decision)),
		zap.String("to_state", string(to)))

	return updated, nil
}

// Forward передает одобренную заявку под ответственность другой роли.
// Повтор с тем же target после успеха идемпотентен: возвращаем заявку как есть
func (s *Store) Forward(ctx context.Context, id, fromRole, toRole string) (*domain.Request, error) {
	if fromRole == "" || toRole == "" {
		return nil, fmt.Errorf("from_role and to_role are required: %w", domain.ErrInvalidPayload)
	}

	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Ретрай уже состоявшегося форварда — не ошибка: возвращаем как есть
	if req.State == domain.StateForwarded && req.AssignedReviewerRole == toRole {
		if n := len(req.ReviewHistory); n > 0 && req.ReviewHistory[n-1].ReviewerRole == fromRole {
			return req, nil
		}
	}

	if req.AssignedReviewerRole != fromRole {
		return nil, fmt.Errorf("request is assigned to %q: %w",
			req.AssignedReviewerRole, domain.ErrUnauthorizedRole)
	}
	if toRole == req.AssignedReviewerRole {
		return nil, fmt.Errorf("target role must differ from the current one: %w",
			domain.ErrInvalidTransition)
	}

	to, err := domain.NextState(req.State, domain.DecisionForward)
	if err != nil {
		return nil, fmt.Errorf("forward is not allowed in state %s: %w", req.State, err)
	}

	now := time.Now().UTC()
	patch := TransitionPatch{
		To:                   to,
		AssignedReviewerRole: toRole,
		Entry: domain.ReviewEntry{
			ReviewerRole: fromRole,
			FromState:    req.State,
			ToState:      to,
			Comment:      fmt.Sprintf("forwarded to %s", toRole),
			Timestamp:    now,
		},
	}

	updated, err := s.repo.CommitTransition(ctx, req.ID, req.State, patch)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, domain.TransitionEvent{
		RequestID:    updated.ID,
		SubmittedBy:  updated.SubmittedBy,
		ReviewerRole: fromRole,
		AssignedRole: toRole,
		FromState:    req.State,
		ToState:      to,
		Decision:     domain.DecisionForward,
		CommittedAt:  now,
	})

	s.logger.Info("request forwarded",
		zap.String("request_id", updated.ID),
		zap.String("from_role", fromRole),
		zap.String("to_role", toRole))

	return updated, nil
}

// Get — read-only, без побочных эффектов
func (s *Store) Get(ctx context.Context, id string) (*domain.Request, error) {
	return s.repo.Get(ctx, id)
}

// List возвращает выборку по фильтру. "Ничего не нашлось" — пустой слайс, не ошибка
func (s *Store) List(ctx context.Context, f domain.RequestFilter) ([]*domain.Request, error) {
	reqs, err := s.repo.List(ctx, f)
	if err != nil {
		s.logger.Error("failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("store: could not fetch requests: %w", err)
	}

	// Гарантируем, что фронтенд получит пустой массив [], а не null
	if reqs == nil {
		return []*domain.Request{}, nil
	}
	return reqs, nil
}

// emit отдает закоммиченный переход диспетчеру и, best-effort, в Redis.
// Недоступный Redis решение не откатывает — дашборды дождутся очередного опроса
func (s *Store) emit(ctx context.Context, ev domain.TransitionEvent) {
	s.sink.Committed(ev)

	if s.rdb == nil {
		return
	}
	payload := fmt.Sprintf("%s:%s", ev.RequestID, ev.ToState)
	if err := s.rdb.Publish(ctx, infra.RedisChanTransitions, payload).Err(); err != nil {
		s.logger.Warn("transition signal delivery failed",
			zap.String("request_id", ev.RequestID),
			zap.Error(err))
	}
}
