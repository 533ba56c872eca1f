package task

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskman/taskman/internal/auth"
	"github.com/taskman/taskman/internal/httpx"
	"github.com/taskman/taskman/internal/logging"
)

// Handler exposes the task REST surface. Mutations commit locally first and
// then publish; a failed publish is logged but never rolls back or fails the
// entity write.
type Handler struct {
	store    Store
	producer *Producer
	logger   *logging.Logger
}

// NewHandler builds the task HTTP handler.
func NewHandler(store Store, producer *Producer) *Handler {
	return &Handler{store: store, producer: producer, logger: logging.New("taskd-http")}
}

// Routes mounts the task endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/tasks", h.create)
	r.Get("/tasks/{id}", h.get)
	r.Put("/tasks/{id}", h.update)
	r.Post("/tasks/{id}/assign", h.assign)
	r.Post("/tasks/{id}/complete", h.complete)
	r.Delete("/tasks/{id}", h.delete)
	r.Get("/tasks/{id}/notification-recipients", h.notificationRecipients)
}

type taskBody struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ProjectID   string     `json:"project_id"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	Assignees   []string   `json:"assignees"`
}

type taskResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ProjectID   string     `json:"project_id"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedBy   string     `json:"created_by"`
	Assignees   []string   `json:"assignees"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toResponse(t *Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		ProjectID:   t.ProjectID,
		Status:      string(t.Status),
		Priority:    t.Priority,
		DueDate:     t.DueDate,
		CreatedBy:   t.CreatedBy,
		Assignees:   t.Assignees,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body taskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Title == "" || body.ProjectID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "title and project_id are required")
		return
	}

	actor := auth.UserID(r.Context())
	t := &Task{
		Title:       body.Title,
		Description: body.Description,
		ProjectID:   body.ProjectID,
		Status:      StatusTodo,
		Priority:    defaultPriority(body.Priority),
		DueDate:     body.DueDate,
		CreatedBy:   actor,
		Assignees:   body.Assignees,
	}
	if err := h.store.Create(r.Context(), t); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "create failed")
		return
	}

	if err := h.producer.Created(r.Context(), t, actor); err != nil {
		// Entity write stands; the notification leg failed on its own.
		h.logger.WithContext(r.Context()).WithSubject(t.ID).WithError(err).Error("task created event not published")
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(t))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var body taskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Title != "" {
		t.Title = body.Title
	}
	if body.Description != "" {
		t.Description = body.Description
	}
	if body.Priority != "" {
		t.Priority = body.Priority
	}
	if body.DueDate != nil {
		t.DueDate = body.DueDate
	}
	if err := h.store.Update(r.Context(), t); err != nil {
		writeStoreError(w, err)
		return
	}

	actor := auth.UserID(r.Context())
	if err := h.producer.Updated(r.Context(), t, actor); err != nil {
		h.logger.WithContext(r.Context()).WithSubject(t.ID).WithError(err).Error("task updated event not published")
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	id := chi.URLParam(r, "id")
	t, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := h.store.Assign(r.Context(), id, body.UserID); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "assign failed")
		return
	}
	t.Assignees = append(t.Assignees, body.UserID)

	actor := auth.UserID(r.Context())
	if err := h.producer.Assigned(r.Context(), t, body.UserID, actor); err != nil {
		h.logger.WithContext(r.Context()).WithSubject(t.ID).WithError(err).Error("task assigned event not published")
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if t.Status == StatusDone {
		httpx.WriteJSON(w, http.StatusOK, toResponse(t))
		return
	}

	t.Status = StatusDone
	if err := h.store.Update(r.Context(), t); err != nil {
		writeStoreError(w, err)
		return
	}

	actor := auth.UserID(r.Context())
	if err := h.producer.Completed(r.Context(), t, actor); err != nil {
		h.logger.WithContext(r.Context()).WithSubject(t.ID).WithError(err).Error("task completed event not published")
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := h.store.Delete(r.Context(), t.ID); err != nil {
		writeStoreError(w, err)
		return
	}

	actor := auth.UserID(r.Context())
	if err := h.producer.Deleted(r.Context(), t, actor); err != nil {
		h.logger.WithContext(r.Context()).WithSubject(t.ID).WithError(err).Error("task deleted event not published")
	}
	w.WriteHeader(http.StatusNoContent)
}

// notificationRecipients serves the comment service's recipient resolution:
// assignees plus project admins.
func (h *Handler) notificationRecipients(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	admins, err := h.producer.projects.Admins(r.Context(), t.ProjectID)
	if err != nil {
		httpx.WriteError(w, http.StatusBadGateway, "admin lookup failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"assignee_ids":      t.Assignees,
		"project_admin_ids": admins,
	})
}

func defaultPriority(p string) string {
	if p == "" {
		return "MEDIUM"
	}
	return p
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "task not found")
		return
	}
	httpx.WriteError(w, http.StatusInternalServerError, "storage error")
}
