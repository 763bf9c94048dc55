package domain

import (
	"fmt"
	"time"
)

// NotificationKind классифицирует событие для получателя
type NotificationKind string

const (
	KindNewRequest    NotificationKind = "new-request"
	KindReviewStarted NotificationKind = "review-started"
	KindDecisionMade  NotificationKind = "decision-made"
	KindForwarded     NotificationKind = "forwarded"
)

// Notification — долговечная запись о событии workflow для конкретного получателя.
// Ссылается на заявку только по ID: изменения заявки задним числом
// в исторические уведомления не просачиваются
type Notification struct {
	ID string `json:"id"`

	// Роль (marketing/admin) либо идентификатор актора (автор заявки)
	RecipientRole string `json:"recipient_role"`

	RelatedRequestID string           `json:"related_request_id"`
	Kind             NotificationKind `json:"kind"`
	ToState          RequestState     `json:"to_state"` // Состояние заявки на момент события
	Message          string           `json:"message"`
	CreatedAt        time.Time        `json:"created_at"`

	// Мутируется ровно один раз: false -> true. Обратно — никогда
	IsRead bool `json:"is_read"`
}

// DedupKey — ключ идемпотентности логического события: (request, kind, to_state)
// плюс получатель, так как одно событие веером уходит нескольким ролям.
// Повторная доставка (retry диспетчера, replay очереди) схлопывается в одну строку
func (n *Notification) DedupKey() string {
	return NotificationDedupKey(n.RelatedRequestID, n.Kind, n.ToState, n.RecipientRole)
}

func NotificationDedupKey(requestID string, kind NotificationKind, toState RequestState, recipient string) string {
	return fmt.Sprintf("%s:%s:%s:%s", requestID, kind, toState, recipient)
}

// TransitionEvent — закоммиченный переход, публикуемый Store для диспетчера.
// Спекулятивные/отклоненные попытки сюда не попадают
type TransitionEvent struct {
	RequestID    string       `json:"request_id"`
	SubmittedBy  string       `json:"submitted_by"`
	ReviewerRole string       `json:"reviewer_role"` // Кто совершил переход
	AssignedRole string       `json:"assigned_role"` // Кто отвечает за заявку после перехода
	FromState    RequestState `json:"from_state"`
	ToState      RequestState `json:"to_state"`
	Decision     Decision     `json:"decision"`
	Comment      string       `json:"comment,omitempty"`
	CommittedAt  time.Time    `json:"committed_at"`
}
