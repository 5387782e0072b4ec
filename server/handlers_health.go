package server

import (
	"encoding/json"
	"net/http"

	"github.com/onnwee/clip-tender/backend/db"
)

// HandleHealthz responds to liveness probes by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probes. Readiness additionally requires
// the queue publisher to be wired; a worker with no outbound queue can consume
// but must not accept external submissions.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	if h.queue == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":       "not_ready",
			"failed_check": "queue",
			"error":        "queue publisher not configured",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus reports entity counts and the fetch backlog.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	type counter struct {
		name string
		fn   func() (int, error)
	}
	counters := []counter{
		{"creators", func() (int, error) { return db.CountCreators(ctx, h.db, "") }},
		{"streams", func() (int, error) { return db.CountStreams(ctx, h.db) }},
		{"clips", func() (int, error) { return db.CountClips(ctx, h.db) }},
		{"discord_servers", func() (int, error) { return db.CountDiscordServers(ctx, h.db) }},
		{"creators_never_fetched", func() (int, error) { return db.CountNeverFetchedCreators(ctx, h.db) }},
	}

	out := map[string]any{}
	for _, c := range counters {
		n, err := c.fn()
		if err != nil {
			http.Error(w, "status query failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		out[c.name] = n
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
