package notification

import (
	"sync"

	"github.com/taskman/taskman/internal/logging"
	"github.com/taskman/taskman/internal/metrics"
)

// subscriber is one live SSE connection. Pushes go through ch; done closes
// when the registry removes the subscriber so the handler can unwind.
type subscriber struct {
	ch   chan *Notification
	done chan struct{}
}

// Registry tracks at most one live delivery channel per user. Subscribing
// again replaces and closes the previous channel; push failure, explicit
// unsubscribe and client disconnect all converge on remove.
type Registry struct {
	mu     sync.Mutex
	subs   map[string]*subscriber
	logger *logging.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		subs:   make(map[string]*subscriber),
		logger: logging.New("notifyd-stream"),
	}
}

// Subscribe registers a live channel for userID, closing any prior one.
// The returned channels belong to the registry; the caller only reads.
func (r *Registry) Subscribe(userID string) (<-chan *Notification, <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.subs[userID]; ok {
		close(prev.done)
		metrics.LiveStreams.Dec()
	}
	sub := &subscriber{
		ch:   make(chan *Notification, 16),
		done: make(chan struct{}),
	}
	r.subs[userID] = sub
	metrics.LiveStreams.Inc()
	r.logger.Plain().WithRecipient(userID).Info("live stream subscribed")
	return sub.ch, sub.done
}

// Unsubscribe removes userID's channel if present.
func (r *Registry) Unsubscribe(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(userID)
}

// Release removes userID's channel only if ch is still the registered one.
// A handler unwinding after being replaced must not tear down its successor.
func (r *Registry) Release(userID string, ch <-chan *Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.subs[userID]; ok && sub.ch == ch {
		r.remove(userID)
	}
}

// Has reports whether userID currently holds a live channel. Advisory only;
// the channel can vanish between Has and Push.
func (r *Registry) Has(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[userID]
	return ok
}

// Push delivers n to userID's live channel. A full or missing channel is a
// failed push; failure closes and deregisters the channel, the client is
// expected to reconnect and pull.
func (r *Registry) Push(userID string, n *Notification) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[userID]
	if !ok {
		return false
	}
	select {
	case sub.ch <- n:
		metrics.RecordPush("ok")
		return true
	default:
		r.logger.Plain().WithRecipient(userID).Warn("live push failed, dropping stream")
		r.remove(userID)
		metrics.RecordPush("dropped")
		return false
	}
}

// remove must run with mu held.
func (r *Registry) remove(userID string) {
	if sub, ok := r.subs[userID]; ok {
		close(sub.done)
		delete(r.subs, userID)
		metrics.LiveStreams.Dec()
	}
}
