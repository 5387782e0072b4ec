package server

import (
	"encoding/json"
	"net/http"

	"github.com/onnwee/clip-tender/backend/queue"
	"github.com/onnwee/clip-tender/backend/telemetry"
)

// HandleAdminFetchTrigger enqueues a clip fetch pass immediately instead of
// waiting for the next scheduler tick. Body fields map onto the fetch payload;
// an empty body uses the defaults.
func (h *Handlers) HandleAdminFetchTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.queue == nil {
		http.Error(w, "queue publisher not configured", http.StatusServiceUnavailable)
		return
	}
	p := queue.FetchClipsPayload{BatchSize: 30}
	if r.Body != nil {
		// Ignore EOF from an empty body; anything else is a client error.
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil && err.Error() != "EOF" {
			http.Error(w, "decode body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 30
	}
	msg, err := queue.New(queue.KindFetchClipsByCreator, p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.queue.SendBatch(r.Context(), []queue.Message{msg}); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("enqueue triggered fetch pass", "error", err)
		http.Error(w, "enqueue failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "enqueued", "batch_size": p.BatchSize})
}
