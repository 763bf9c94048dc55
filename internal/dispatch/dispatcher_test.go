package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/reqflow/internal/dispatch"
	"github.com/xela07ax/reqflow/internal/domain"
	"github.com/xela07ax/reqflow/internal/feed"
	"github.com/xela07ax/reqflow/internal/repository/memory"
)

func event(decision domain.Decision, to domain.RequestState) domain.TransitionEvent {
	return domain.TransitionEvent{
		RequestID:    "req-1",
		SubmittedBy:  "customer-1",
		ReviewerRole: "marketing",
		AssignedRole: "marketing",
		ToState:      to,
		Decision:     decision,
		CommittedAt:  time.Now().UTC(),
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name       string
		ev         domain.TransitionEvent
		recipients []string
		kind       domain.NotificationKind
	}{
		{
			name:       "submit notifies the assigned role",
			ev:         event(domain.DecisionSubmit, domain.StateSubmitted),
			recipients: []string{"marketing"},
			kind:       domain.KindNewRequest,
		},
		{
			name:       "begin-review notifies the author",
			ev:         event(domain.DecisionBeginReview, domain.StatePending),
			recipients: []string{"customer-1"},
			kind:       domain.KindReviewStarted,
		},
		{
			name:       "approve notifies the author",
			ev:         event(domain.DecisionApprove, domain.StateApproved),
			recipients: []string{"customer-1"},
			kind:       domain.KindDecisionMade,
		},
		{
			name:       "reject notifies the author",
			ev:         event(domain.DecisionReject, domain.StateRejected),
			recipients: []string{"customer-1"},
			kind:       domain.KindDecisionMade,
		},
		{
			name:       "forward notifies the new role and the author",
			ev:         event(domain.DecisionForward, domain.StateForwarded),
			recipients: []string{"marketing", "customer-1"},
			kind:       domain.KindForwarded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets := dispatch.Route(tt.ev)
			require.Len(t, targets, len(tt.recipients))
			for i, target := range targets {
				assert.Equal(t, tt.recipients[i], target.Recipient)
				assert.Equal(t, tt.kind, target.Kind)
				assert.NotEmpty(t, target.Message)
			}
		})
	}
}

func TestRoute_DecisionCommentInMessage(t *testing.T) {
	ev := event(domain.DecisionReject, domain.StateRejected)
	ev.Comment = "missing budget"
	targets := dispatch.Route(ev)
	require.Len(t, targets, 1)
	assert.Contains(t, targets[0].Message, "missing budget")
}

func TestDispatcher_DeliversToFeed(t *testing.T) {
	repo := memory.NewNotificationRepo()
	sink := feed.NewFeed(repo, nil, zap.NewNop(), 100)
	d := dispatch.NewDispatcher(sink, 16, nil, zap.NewNop())
	d.Start(context.Background())

	d.Committed(event(domain.DecisionSubmit, domain.StateSubmitted))
	d.Stop() // Drains the queue before returning

	items, err := sink.ListFor(context.Background(), "marketing", false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.KindNewRequest, items[0].Kind)
	assert.Equal(t, "req-1", items[0].RelatedRequestID)
	assert.False(t, items[0].IsRead)
}

// Replaying the same logical transition must not produce a second row.
func TestDispatcher_DedupOnReplay(t *testing.T) {
	repo := memory.NewNotificationRepo()
	sink := feed.NewFeed(repo, nil, zap.NewNop(), 100)
	d := dispatch.NewDispatcher(sink, 16, nil, zap.NewNop())
	d.Start(context.Background())

	ev := event(domain.DecisionApprove, domain.StateApproved)
	d.Committed(ev)
	d.Committed(ev)
	d.Stop()

	items, err := sink.ListFor(context.Background(), "customer-1", false)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// orderedSink records delivered notifications in arrival order.
type orderedSink struct {
	mu    sync.Mutex
	seen  []domain.NotificationKind
	fails int // first N pushes fail
}

func (s *orderedSink) Push(_ context.Context, n *domain.Notification) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return nil, errors.New("feed unavailable")
	}
	s.seen = append(s.seen, n.Kind)
	return n, nil
}

func (s *orderedSink) kinds() []domain.NotificationKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.NotificationKind(nil), s.seen...)
}

// A single worker drains the queue in commit order, so one request's
// events never overtake each other.
func TestDispatcher_FIFOPerRequest(t *testing.T) {
	sink := &orderedSink{}
	d := dispatch.NewDispatcher(sink, 16, nil, zap.NewNop())
	d.Start(context.Background())

	d.Committed(event(domain.DecisionSubmit, domain.StateSubmitted))
	d.Committed(event(domain.DecisionBeginReview, domain.StatePending))
	d.Committed(event(domain.DecisionApprove, domain.StateApproved))
	d.Stop()

	assert.Equal(t, []domain.NotificationKind{
		domain.KindNewRequest,
		domain.KindReviewStarted,
		domain.KindDecisionMade,
	}, sink.kinds())
}

// gatedSink блокирует доставку до закрытия release: позволяет детерминированно
// заполнить очередь и подвесить продюсера в backpressure-отправке
type gatedSink struct {
	mu      sync.Mutex
	entered int
	seen    []domain.NotificationKind
	release chan struct{}
}

func (s *gatedSink) Push(_ context.Context, n *domain.Notification) (*domain.Notification, error) {
	s.mu.Lock()
	s.entered++
	s.mu.Unlock()

	<-s.release

	s.mu.Lock()
	s.seen = append(s.seen, n.Kind)
	s.mu.Unlock()
	return n, nil
}

func (s *gatedSink) enteredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entered
}

func (s *gatedSink) kinds() []domain.NotificationKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.NotificationKind(nil), s.seen...)
}

// Stop при заполненной очереди: продюсер, зависший в backpressure-отправке,
// не должен ни паниковать на закрытом канале, ни терять свое событие.
func TestDispatcher_StopWithBlockedProducer(t *testing.T) {
	sink := &gatedSink{release: make(chan struct{})}
	d := dispatch.NewDispatcher(sink, 1, nil, zap.NewNop())
	d.Start(context.Background())

	// Первое событие забирает воркер и виснет в Push
	d.Committed(event(domain.DecisionSubmit, domain.StateSubmitted))
	require.Eventually(t, func() bool { return sink.enteredCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	// Второе занимает единственный слот очереди
	d.Committed(event(domain.DecisionBeginReview, domain.StatePending))

	// Третий продюсер блокируется в отправке при полной очереди
	produced := make(chan struct{})
	go func() {
		defer close(produced)
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Committed panicked during Stop: %v", r)
			}
		}()
		d.Committed(event(domain.DecisionApprove, domain.StateApproved))
	}()
	time.Sleep(100 * time.Millisecond) // Продюсер гарантированно в отправке

	// Доставку отпускаем уже после начала Stop
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(sink.release)
	}()
	d.Stop()
	<-produced

	assert.Equal(t, []domain.NotificationKind{
		domain.KindNewRequest,
		domain.KindReviewStarted,
		domain.KindDecisionMade,
	}, sink.kinds(), "drain delivers every committed event in order")
}

func TestDispatcher_CommittedAfterStopIsDropped(t *testing.T) {
	sink := &orderedSink{}
	d := dispatch.NewDispatcher(sink, 16, nil, zap.NewNop())
	d.Start(context.Background())
	d.Stop()

	// Must not panic on the closed channel
	d.Committed(event(domain.DecisionSubmit, domain.StateSubmitted))
	assert.Empty(t, sink.kinds())
}

// flakySink fails a fixed number of times, honoring TransientError hints.
type flakySink struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (s *flakySink) Push(_ context.Context, n *domain.Notification) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fails {
		return nil, &dispatch.TransientError{
			RetryAfter: time.Millisecond,
			Cause:      errors.New("feed overloaded"),
		}
	}
	return n, nil
}

func (s *flakySink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestReliablePusher_RetriesTransientFailures(t *testing.T) {
	sink := &flakySink{fails: 2}
	pusher := dispatch.NewReliablePusher(sink, dispatch.ReliabilityConfig{Attempts: 5})

	n := &domain.Notification{
		ID:               "n-1",
		RecipientRole:    "marketing",
		RelatedRequestID: "req-1",
		Kind:             domain.KindNewRequest,
		ToState:          domain.StateSubmitted,
	}

	stored, err := pusher.Push(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, "n-1", stored.ID)
	assert.Equal(t, 3, sink.callCount(), "two transient failures then success")
}

func TestReliablePusher_TransientErrorUnwrapsToDispatchFailed(t *testing.T) {
	err := &dispatch.TransientError{Cause: errors.New("socket reset")}
	assert.ErrorIs(t, err, domain.ErrDispatchFailed)
	assert.Contains(t, err.Error(), "socket reset")
}

func TestReliablePusher_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	sink := &flakySink{fails: 1 << 30}
	pusher := dispatch.NewReliablePusher(sink, dispatch.ReliabilityConfig{
		Attempts:  1,
		CBTimeout: time.Minute,
	})

	n := &domain.Notification{ID: "n-1", RecipientRole: "marketing", Kind: domain.KindNewRequest}

	// Breaker trips after more than five consecutive failed pushes
	for i := 0; i < 6; i++ {
		_, err := pusher.Push(context.Background(), n)
		require.Error(t, err)
	}

	before := sink.callCount()
	_, err := pusher.Push(context.Background(), n)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, before, sink.callCount(), "open breaker short-circuits without touching the feed")
}
