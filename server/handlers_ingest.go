package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/onnwee/clip-tender/backend/queue"
	"github.com/onnwee/clip-tender/backend/telemetry"
)

// maxIngestBody bounds a single submission. The queue publisher splits large
// batches on its own; this limit only protects the HTTP layer.
const maxIngestBody = 8 << 20

// HandleIngest accepts a JSON array of wire messages (or a single object) and
// enqueues them for processing. Messages of unknown kind are rejected up front
// so producers learn about typos immediately instead of silently losing work.
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.queue == nil {
		http.Error(w, "queue publisher not configured", http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody+1))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(body) > maxIngestBody {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	msgs, err := queue.DecodeBatch(body)
	if err != nil {
		http.Error(w, "decode messages: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(msgs) == 0 {
		http.Error(w, "empty batch", http.StatusBadRequest)
		return
	}
	for i, m := range msgs {
		if !m.Kind.Valid() {
			http.Error(w, "unknown kind at index "+strconv.Itoa(i)+": "+string(m.Kind), http.StatusBadRequest)
			return
		}
	}
	if err := h.queue.SendBatch(r.Context(), msgs); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("enqueue submitted batch", "error", err)
		http.Error(w, "enqueue failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]int{"enqueued": len(msgs)})
}
