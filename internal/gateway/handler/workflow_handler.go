package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/reqflow/internal/domain"
	"github.com/xela07ax/reqflow/internal/gateway"
	"github.com/xela07ax/reqflow/internal/workflow"
)

// WorkflowService Описываем, что нам нужно от фасада
type WorkflowService interface {
	SubmitRequest(ctx context.Context, in workflow.SubmitInput) (*domain.Request, error)
	ReviewDecision(ctx context.Context, in workflow.DecideInput) (*domain.Request, error)
	ForwardRequest(ctx context.Context, id, fromRole, toRole string) (*domain.Request, error)
	GetRequest(ctx context.Context, id string) (*domain.Request, error)
	ListRequests(ctx context.Context, f domain.RequestFilter) ([]*domain.Request, error)
	DashboardStats(ctx context.Context) (*domain.DashboardStats, error)
}

type WorkflowHandler struct {
	service WorkflowService
}

func NewWorkflowHandler(s WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{service: s}
}

type SubmitRequestBody struct {
	Subject      string                 `json:"subject"`
	SubmittedBy  string                 `json:"submitted_by"`
	ReviewerRole string                 `json:"reviewer_role"`
	Priority     string                 `json:"priority"`
	Payload      map[string]interface{} `json:"payload"`
	Deadline     *time.Time             `json:"deadline,omitempty"`
}

func (h *WorkflowHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.service.SubmitRequest(r.Context(), workflow.SubmitInput{
		Subject:      body.Subject,
		SubmittedBy:  body.SubmittedBy,
		ReviewerRole: body.ReviewerRole,
		Priority:     body.Priority,
		Payload:      body.Payload,
		Deadline:     body.Deadline,
	})
	if err != nil {
		writeError(w, gateway.HTTPStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": req.ID})
}

type DecideRequestBody struct {
	ReviewerRole string     `json:"reviewer_role"`
	Decision     string     `json:"decision"`
	Comment      string     `json:"comment"`
	NewDeadline  *time.Time `json:"new_deadline,omitempty"`
}

func (h *WorkflowHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body DecideRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.service.ReviewDecision(r.Context(), workflow.DecideInput{
		RequestID:    id,
		ReviewerRole: body.ReviewerRole,
		Decision:     body.Decision,
		Comment:      body.Comment,
		NewDeadline:  body.NewDeadline,
	})
	if err != nil {
		writeError(w, gateway.HTTPStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

type ForwardRequestBody struct {
	FromRole string `json:"from_role"`
	ToRole   string `json:"to_role"`
}

func (h *WorkflowHandler) Forward(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body ForwardRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.service.ForwardRequest(r.Context(), id, body.FromRole, body.ToRole)
	if err != nil {
		writeError(w, gateway.HTTPStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		writeError(w, gateway.HTTPStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(req)
}

func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	list, err := h.service.ListRequests(r.Context(), domain.RequestFilter{
		State:        domain.RequestState(q.Get("state")),
		ReviewerRole: q.Get("role"),
		Priority:     domain.Priority(q.Get("priority")),
		SubmittedBy:  q.Get("submitted_by"),
		Limit:        limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *WorkflowHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
