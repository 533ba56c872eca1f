package project

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taskman/taskman/internal/auth"
	"github.com/taskman/taskman/internal/event"
	"github.com/taskman/taskman/internal/httpx"
	"github.com/taskman/taskman/internal/logging"
)

// Handler exposes the project REST surface, including the membership
// endpoints the other services call for recipient resolution.
type Handler struct {
	store    Store
	producer *Producer
	logger   *logging.Logger
}

// NewHandler builds the project HTTP handler.
func NewHandler(store Store, producer *Producer) *Handler {
	return &Handler{store: store, producer: producer, logger: logging.New("projectd-http")}
}

// Routes mounts the project endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/projects", h.create)
	r.Get("/projects/{id}", h.get)
	r.Put("/projects/{id}", h.update)
	r.Delete("/projects/{id}", h.delete)
	r.Get("/projects/{id}/members", h.members)
	r.Get("/projects/{id}/admins", h.admins)
	r.Post("/projects/{id}/members", h.addMember)
}

type projectBody struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	EndDate     *time.Time `json:"end_date"`
}

type projectResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	TotalTasks     int        `json:"total_tasks"`
	CompletedTasks int        `json:"completed_tasks"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toResponse(p *Project) projectResponse {
	return projectResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Status:         string(p.Status),
		EndDate:        p.EndDate,
		TotalTasks:     p.TotalTasks,
		CompletedTasks: p.CompletedTasks,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body projectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	actor := auth.UserID(r.Context())
	p := &Project{Name: body.Name, Description: body.Description, EndDate: body.EndDate}
	if err := h.store.Create(r.Context(), p); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "create failed")
		return
	}
	// The creator is the first admin.
	if actor != "" && actor != auth.SystemSubject {
		if err := h.store.AddMember(r.Context(), p.ID, actor, RoleAdmin); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "membership failed")
			return
		}
	}

	if err := h.producer.Created(r.Context(), p, actor); err != nil {
		h.logger.WithContext(r.Context()).WithSubject(p.ID).WithError(err).Error("project created event not published")
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var body projectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid body")
		return
	}

	// A rename or description change is administrative; only deadline churn
	// is of interest to the whole membership.
	kind := event.UpdateGeneral
	if body.Name != "" && body.Name != p.Name {
		p.Name = body.Name
		kind = event.UpdateAdministrative
	}
	if body.Description != "" && body.Description != p.Description {
		p.Description = body.Description
		kind = event.UpdateAdministrative
	}
	if body.EndDate != nil {
		p.EndDate = body.EndDate
	}

	if err := h.store.Update(r.Context(), p); err != nil {
		writeStoreError(w, err)
		return
	}

	actor := auth.UserID(r.Context())
	if err := h.producer.Updated(r.Context(), p, kind, actor); err != nil {
		h.logger.WithContext(r.Context()).WithSubject(p.ID).WithError(err).Error("project updated event not published")
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	actor := auth.UserID(r.Context())
	// Resolve recipients before the row disappears.
	if err := h.producer.Deleted(r.Context(), p, actor); err != nil {
		h.logger.WithContext(r.Context()).WithSubject(p.ID).WithError(err).Error("project deleted event not published")
	}
	if err := h.store.Delete(r.Context(), p.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) members(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.Members(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "membership lookup failed")
		return
	}

	out := make([]map[string]string, 0, len(members))
	for _, m := range members {
		out = append(out, map[string]string{"user_id": m.UserID, "role": string(m.Role)})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"members": out})
}

func (h *Handler) admins(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.Members(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "membership lookup failed")
		return
	}
	admins := AdminIDs(members)
	if admins == nil {
		admins = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"admins": admins})
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	role := RoleMember
	if body.Role == string(RoleAdmin) {
		role = RoleAdmin
	}

	id := chi.URLParam(r, "id")
	p, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := h.store.AddMember(r.Context(), id, body.UserID, role); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "membership failed")
		return
	}

	actor := auth.UserID(r.Context())
	if err := h.producer.MemberAdded(r.Context(), p, body.UserID, actor); err != nil {
		h.logger.WithContext(r.Context()).WithSubject(p.ID).WithError(err).Error("member added event not published")
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "project not found")
		return
	}
	httpx.WriteError(w, http.StatusInternalServerError, "storage error")
}
