package domain

import (
	"time"
)

// Статусы State Machine заявки
type RequestState string

const (
	StateSubmitted   RequestState = "submitted"   // Принята, ждет начала ревью
	StatePending     RequestState = "pending"     // В работе у ревьюера
	StateApproved    RequestState = "approved"    // Одобрена (можно форвардить)
	StateRejected    RequestState = "rejected"    // Отклонена (терминальный)
	StateRescheduled RequestState = "rescheduled" // Перенесен дедлайн, ждет повторного ревью
	StateForwarded   RequestState = "forwarded"   // Передана другой роли (терминальный для ядра)
)

// Decision — события конечного автомата (то, что присылает ревьюер)
type Decision string

const (
	// DecisionSubmit — псевдособытие создания заявки ((none) -> submitted).
	// Через ParseDecision не проходит: снаружи его прислать нельзя
	DecisionSubmit Decision = "submit"

	DecisionBeginReview Decision = "begin-review"
	DecisionApprove     Decision = "approve"
	DecisionReject      Decision = "reject"
	DecisionReschedule  Decision = "reschedule"
	DecisionForward     Decision = "forward"
)

// Таблица переходов. Все, чего здесь нет — InvalidTransition.
// Единственный источник правды для легальности перехода
var transitions = map[RequestState]map[Decision]RequestState{
	StateSubmitted: {
		// begin-review — явный захват заявки в работу, но решение можно
		// принять и сразу: свежеподанная заявка ревьюабельна без церемоний
		DecisionBeginReview: StatePending,
		DecisionApprove:     StateApproved,
		DecisionReject:      StateRejected,
		DecisionReschedule:  StateRescheduled,
	},
	StatePending: {
		DecisionApprove:    StateApproved,
		DecisionReject:     StateRejected,
		DecisionReschedule: StateRescheduled,
	},
	StateRescheduled: {
		DecisionBeginReview: StatePending, // Повторный вход в ревью (идемпотентная пересдача)
	},
	StateApproved: {
		DecisionForward: StateForwarded,
	},
}

// NextState проверяет правила конечного автомата.
// Возвращает ErrInvalidTransition для любой пары вне таблицы.
func NextState(from RequestState, event Decision) (RequestState, error) {
	if row, ok := transitions[from]; ok {
		if to, ok := row[event]; ok {
			return to, nil
		}
	}
	return "", ErrInvalidTransition
}

// ParseDecision валидирует событие на входной границе (Closed Enum).
// Неизвестные строки отклоняем как InvalidPayload, а не принимаем "как есть"
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionBeginReview, DecisionApprove, DecisionReject, DecisionReschedule, DecisionForward:
		return Decision(s), nil
	}
	return "", ErrInvalidPayload
}

// Priority — приоритет заявки. Ординальный, на легальность переходов не влияет
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRank = map[Priority]int{
	PriorityLow:    0,
	PriorityMedium: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

// ParsePriority валидирует приоритет на границе Store.
// Пустая строка трактуется как medium (дефолт для форм без поля приоритета)
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	if _, ok := priorityRank[p]; !ok {
		return "", ErrInvalidPayload
	}
	return p, nil
}

// Rank возвращает порядковый вес для сортировки (low < medium < high < urgent)
func (p Priority) Rank() int {
	return priorityRank[p]
}

// ReviewEntry — одна запись аудита. Историю никогда не мутируем и не обрезаем
type ReviewEntry struct {
	ReviewerRole string       `json:"reviewer_role"`
	FromState    RequestState `json:"from_state"`
	ToState      RequestState `json:"to_state"`
	Comment      string       `json:"comment,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

type Request struct {
	ID                   string       `json:"id"`
	Subject              string       `json:"subject"` // content/campaign/social/... (открытый набор)
	SubmittedBy          string       `json:"submitted_by"`
	AssignedReviewerRole string       `json:"assigned_reviewer_role"` // Кто сейчас отвечает за решение
	State                RequestState `json:"state"`
	Priority             Priority     `json:"priority"`

	// Полезная нагрузка непрозрачна для ядра: не валидируем и не интерпретируем
	Payload map[string]interface{} `json:"payload"`

	// Append-only аудит. Инвариант: len == число закоммиченных переходов,
	// последний ToState == текущий State
	ReviewHistory []ReviewEntry `json:"review_history"`

	Deadline            *time.Time `json:"deadline,omitempty"`
	RescheduledDeadline *time.Time `json:"rescheduled_deadline,omitempty"` // Перенос пишет сюда, Deadline не трогаем

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal сообщает, что из состояния нет исходящих переходов
func (s RequestState) Terminal() bool {
	return len(transitions[s]) == 0
}

// EffectiveDeadline — база для проверки "новый дедлайн строго позже текущего"
func (r *Request) EffectiveDeadline(now time.Time) time.Time {
	if r.RescheduledDeadline != nil {
		return *r.RescheduledDeadline
	}
	if r.Deadline != nil {
		return *r.Deadline
	}
	return now
}

// Clone возвращает глубокую копию для безопасной выдачи из In-memory хранилища
func (r *Request) Clone() *Request {
	cp := *r
	cp.ReviewHistory = append([]ReviewEntry(nil), r.ReviewHistory...)
	if r.Payload != nil {
		cp.Payload = make(map[string]interface{}, len(r.Payload))
		for k, v := range r.Payload {
			cp.Payload[k] = v
		}
	}
	if r.Deadline != nil {
		d := *r.Deadline
		cp.Deadline = &d
	}
	if r.RescheduledDeadline != nil {
		d := *r.RescheduledDeadline
		cp.RescheduledDeadline = &d
	}
	return &cp
}

// RequestFilter — параметры выборки для List (read-only, без побочных эффектов)
type RequestFilter struct {
	State        RequestState
	ReviewerRole string
	Priority     Priority
	SubmittedBy  string
	Limit        int
}
