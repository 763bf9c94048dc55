package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/reqflow/internal/domain"
)

type NotificationService interface {
	GetNotifications(ctx context.Context, recipient string, unreadOnly bool) ([]*domain.Notification, error)
	AcknowledgeNotification(ctx context.Context, id, recipient string) error
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(s NotificationService) *NotificationHandler {
	return &NotificationHandler{service: s}
}

// List — GET /v1/notifications?role=...&unread_only=true
// Роль получателя — явный параметр, а не магия "какой дашборд рендерит"
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	recipient := r.URL.Query().Get("role")
	if recipient == "" {
		writeError(w, http.StatusBadRequest, "role query param is required")
		return
	}
	unreadOnly := r.URL.Query().Get("unread_only") == "true"

	list, err := h.service.GetNotifications(r.Context(), recipient, unreadOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// Ack — POST /v1/notifications/{id}/ack?role=...
// Повторный ack и ack чужого/несуществующего ID — no-op, не ошибка:
// две вкладки, прочитавшие одно уведомление, не должны видеть сбой
func (h *NotificationHandler) Ack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	recipient := r.URL.Query().Get("role")
	if recipient == "" {
		writeError(w, http.StatusBadRequest, "role query param is required")
		return
	}

	if err := h.service.AcknowledgeNotification(r.Context(), id, recipient); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{}`))
}
