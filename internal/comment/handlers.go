package comment

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

// Handler exposes the comment REST surface.
type Handler struct {
	store    Store
	producer *Producer
	logger   *logging.Logger
}

// NewHandler builds the comment HTTP handler.
func NewHandler(store Store, producer *Producer) *Handler {
	return &Handler{store: store, producer: producer, logger: logging.New("commentd-http")}
}

// Routes mounts the comment endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/comments", h.create)
	r.Get("/comments", h.list)
	r.Get("/comments/{id}", h.get)
	r.Put("/comments/{id}", h.update)
	r.Delete("/comments/{id}", h.delete)
	r.Post("/comments/{id}/replies", h.reply)
}

type commentResponse struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"author_id"`
	EntityID   string    `json:"entity_id"`
	EntityType string    `json:"entity_type"`
	ParentID   string    `json:"parent_id,omitempty"`
	Edited     bool      `json:"edited"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toResponse(c *Comment) commentResponse {
	return commentResponse{
		ID:         c.ID,
		Content:    c.Content,
		AuthorID:   c.AuthorID,
		EntityID:   c.EntityID,
		EntityType: string(c.EntityType),
		ParentID:   c.ParentID,
		Edited:     c.Edited,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content    string `json:"content"`
		EntityID   string `json:"entity_id"`
		EntityType string `json:"entity_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" || body.EntityID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "content and entity_id are required")
		return
	}
	entityType := EntityType(body.EntityType)
	if entityType != EntityTask && entityType != EntityProject {
		httpx.WriteError(w, http.StatusBadRequest, "entity_type must be TASK or PROJECT")
		return
	}

	c := &Comment{
		Content:    body.Content,
		AuthorID:   auth.UserID(r.Context()),
		EntityID:   body.EntityID,
		EntityType: entityType,
	}
	if err := h.store.Create(r.Context(), c); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "create failed")
		return
	}

	if err := h.producer.Created(r.Context(), c); err != nil {
		h.logger.WithContext(r.Context()).WithSubject(c.ID).WithError(err).Error("comment created event not published")
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(c))
}

func (h *Handler) reply(w http.ResponseWriter, r *http.Request) {
	parent, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
		httpx.WriteError(w, http.StatusBadRequest, "content is required")
		return
	}

	c := &Comment{
		Content:    body.Content,
		AuthorID:   auth.UserID(r.Context()),
		EntityID:   parent.EntityID,
		EntityType: parent.EntityType,
		ParentID:   parent.ID,
	}
	if err := h.store.Create(r.Context(), c); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "create failed")
		return
	}

	if err := h.producer.Created(r.Context(), c); err != nil {
		h.logger.WithContext(r.Context()).WithSubject(c.ID).WithError(err).Error("comment replied event not published")
	}
	httpx.WriteJSON(w, http.StatusCreated, toResponse(c))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	entityType := EntityType(r.URL.Query().Get("entity_type"))
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" || (entityType != EntityTask && entityType != EntityProject) {
		httpx.WriteError(w, http.StatusBadRequest, "entity_type and entity_id are required")
		return
	}

	comments, err := h.store.ListByEntity(r.Context(), entityType, entityID)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "storage error")
		return
	}
	out := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		out = append(out, toResponse(c))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"comments": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(c))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if c.AuthorID != auth.UserID(r.Context()) {
		httpx.WriteError(w, http.StatusForbidden, "only the author can edit a comment")
		return
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Content == "" {
		httpx.WriteError(w, http.StatusBadRequest, "content is required")
		return
	}

	c.Content = body.Content
	if err := h.store.Update(r.Context(), c); err != nil {
		writeStoreError(w, err)
		return
	}

	if err := h.producer.Updated(r.Context(), c); err != nil {
		h.logger.WithContext(r.Context()).WithSubject(c.ID).WithError(err).Error("comment updated event not published")
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(c))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	actor := auth.UserID(r.Context())
	if c.AuthorID != actor {
		httpx.WriteError(w, http.StatusForbidden, "only the author can delete a comment")
		return
	}

	if err := h.store.Delete(r.Context(), c.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := h.producer.Deleted(r.Context(), c, actor); err != nil {
		h.logger.WithContext(r.Context()).WithSubject(c.ID).WithError(err).Error("comment deleted event not published")
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "comment not found")
		return
	}
	httpx.WriteError(w, http.StatusInternalServerError, "storage error")
}
