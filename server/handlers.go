// Package server exposes the HTTP API: health and readiness probes, queue
// submission, ingest status, metrics, and the YouTube OAuth flow. Every
// request gets a correlation id and a tracing span; admin endpoints sit behind
// auth and rate limiting.
package server

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/onnwee/clip-tender/backend/queue"
	"github.com/onnwee/clip-tender/backend/youtubeapi"
)

// Maximum number of pending OAuth states kept in memory.
const maxOAuthStates = 10000

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db         *sql.DB
	queue      queue.Sender
	youtube    *youtubeapi.Service
	ctx        context.Context
	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a Handlers instance. queue and youtube may be nil; the
// endpoints that need them then answer 503.
func NewHandlers(ctx context.Context, db *sql.DB, q queue.Sender, yt *youtubeapi.Service) *Handlers {
	return &Handlers{
		db:         db,
		queue:      q,
		youtube:    yt,
		ctx:        ctx,
		stateStore: make(map[string]time.Time),
	}
}

// cleanExpiredStates removes expired OAuth states. Callers hold stateMu.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState registers a new OAuth state, bounding the store so a flood of
// /auth/*/start requests cannot exhaust memory.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}
	if len(h.stateStore) >= maxOAuthStates {
		// Refusing the state makes this one OAuth flow fail, which beats
		// unbounded growth.
		return
	}
	h.stateStore[state] = expiry
}

// takeOAuthState validates and consumes a state value.
func (h *Handlers) takeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	if !ok || time.Now().After(exp) {
		return false
	}
	delete(h.stateStore, state)
	return true
}
