package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskman/taskman/internal/auth"
	"github.com/taskman/taskman/internal/httpx"
	"github.com/taskman/taskman/internal/logging"
)

// Handler exposes the notification REST surface plus the SSE stream. All
// list and mutation endpoints are scoped to the authenticated user.
type Handler struct {
	svc      *Service
	store    Store
	registry *Registry
	logger   *logging.Logger
}

// NewHandler builds the notification HTTP handler.
func NewHandler(svc *Service, store Store, registry *Registry) *Handler {
	return &Handler{
		svc:      svc,
		store:    store,
		registry: registry,
		logger:   logging.New("notifyd-http"),
	}
}

// Routes mounts the notification endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/notifications", h.create)
	r.Get("/notifications", h.listPaged)
	r.Get("/notifications/all", h.listAll)
	r.Get("/notifications/unread", h.listUnread)
	r.Get("/notifications/unread/count", h.unreadCount)
	r.Get("/notifications/type/{type}", h.listByType)
	r.Get("/notifications/stream", h.stream)
	r.Delete("/notifications/stream", h.closeStream)
	r.Patch("/notifications/read-all", h.markAllRead)
	r.Delete("/notifications", h.deleteAll)
	r.Delete("/notifications/entity/{entityType}/{entityID}", h.deleteByEntity)
	r.Get("/notifications/{id}", h.get)
	r.Patch("/notifications/{id}/read", h.markRead)
	r.Delete("/notifications/{id}", h.delete)
}

// create exists for fleet-internal callers; event consumers use the service
// directly.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type        string `json:"type"`
		Content     string `json:"content"`
		RecipientID string `json:"recipient_id"`
		EntityID    string `json:"entity_id"`
		EntityType  string `json:"entity_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RecipientID == "" || body.Type == "" {
		httpx.WriteError(w, http.StatusBadRequest, "type and recipient_id are required")
		return
	}

	n, err := h.svc.Create(r.Context(), CreateInput{
		Type:        Type(body.Type),
		Content:     body.Content,
		RecipientID: body.RecipientID,
		EntityID:    body.EntityID,
		EntityType:  body.EntityType,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "create failed")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, n)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if n.RecipientID != auth.UserID(r.Context()) {
		httpx.WriteError(w, http.StatusNotFound, "notification not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, n)
}

func (h *Handler) listPaged(w http.ResponseWriter, r *http.Request) {
	page, err := h.store.ListByRecipient(r.Context(), auth.UserID(r.Context()), httpx.ParsePage(r))
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "storage error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListAllByRecipient(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "storage error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (h *Handler) listUnread(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListUnread(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "storage error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountUnread(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "storage error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"unread_count": count})
}

func (h *Handler) listByType(w http.ResponseWriter, r *http.Request) {
	typ := Type(chi.URLParam(r, "type"))
	page, err := h.store.ListByType(r.Context(), auth.UserID(r.Context()), typ, httpx.ParsePage(r))
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "storage error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, n)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.MarkAllRead(r.Context(), auth.UserID(r.Context())); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "storage error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteAll(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.DeleteByRecipient(r.Context(), auth.UserID(r.Context())); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "storage error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteByEntity(w http.ResponseWriter, r *http.Request) {
	_, err := h.store.DeleteByEntity(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityID"))
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "storage error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stream is the SSE live-delivery endpoint. One event block per pushed
// notification, flushed immediately. The connection ends when the client
// goes away, the registry replaces this subscriber, or DELETE unsubscribes.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	userID := auth.UserID(r.Context())

	ch, done := h.registry.Subscribe(userID)
	defer h.registry.Release(userID, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case n, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(n)
			if err != nil {
				h.logger.Plain().WithNotification(n.ID).WithError(err).Error("encode stream notification")
				continue
			}
			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) closeStream(w http.ResponseWriter, r *http.Request) {
	h.registry.Unsubscribe(auth.UserID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "notification not found")
		return
	}
	httpx.WriteError(w, http.StatusInternalServerError, "storage error")
}
