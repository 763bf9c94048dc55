package dispatch

import (
	"fmt"

	"github.com/xela07ax/reqflow/internal/domain"
)

// Target — адресат и вид уведомления для одного закоммиченного перехода
type Target struct {
	Recipient string
	Kind      domain.NotificationKind
	Message   string
}

// Route — статическая таблица маршрутизации: переход -> (получатель, вид).
// Автор заявки узнает о каждом движении; роли — только о том, что требует их действий
func Route(ev domain.TransitionEvent) []Target {
	switch ev.Decision {
	case domain.DecisionSubmit:
		return []Target{{
			Recipient: ev.AssignedRole,
			Kind:      domain.KindNewRequest,
			Message:   fmt.Sprintf("new request %s awaits review", ev.RequestID),
		}}

	case domain.DecisionBeginReview:
		return []Target{{
			Recipient: ev.SubmittedBy,
			Kind:      domain.KindReviewStarted,
			Message:   fmt.Sprintf("request %s is under review by %s", ev.RequestID, ev.ReviewerRole),
		}}

	case domain.DecisionApprove, domain.DecisionReject, domain.DecisionReschedule:
		msg := fmt.Sprintf("request %s: %s by %s", ev.RequestID, ev.ToState, ev.ReviewerRole)
		if ev.Comment != "" {
			msg = fmt.Sprintf("%s (%s)", msg, ev.Comment)
		}
		return []Target{{
			Recipient: ev.SubmittedBy,
			Kind:      domain.KindDecisionMade,
			Message:   msg,
		}}

	case domain.DecisionForward:
		return []Target{
			{
				Recipient: ev.AssignedRole, // Новая ответственная роль
				Kind:      domain.KindForwarded,
				Message:   fmt.Sprintf("request %s forwarded to you by %s", ev.RequestID, ev.ReviewerRole),
			},
			{
				Recipient: ev.SubmittedBy,
				Kind:      domain.KindForwarded,
				Message:   fmt.Sprintf("request %s forwarded to %s", ev.RequestID, ev.AssignedRole),
			},
		}
	}

	// Неизвестное событие никому не адресуем
	return nil
}
