package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HandleYouTubeOAuthStart initiates the YouTube OAuth flow. The resulting
// token lets the clip fetcher read the Data API when no API key is configured.
func (h *Handlers) HandleYouTubeOAuthStart(w http.ResponseWriter, r *http.Request) {
	if h.youtube == nil {
		http.Error(w, "youtube oauth not configured", http.StatusBadRequest)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, time.Now().Add(10*time.Minute))
	http.Redirect(w, r, h.youtube.AuthCodeURL(st), http.StatusFound)
}

// HandleYouTubeOAuthCallback exchanges the auth code and persists the token.
func (h *Handlers) HandleYouTubeOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.youtube == nil {
		http.Error(w, "youtube oauth not configured", http.StatusBadRequest)
		return
	}
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	if !h.takeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	tok, err := h.youtube.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(map[string]any{
		"status":                "ok",
		"expiry":                tok.Expiry,
		"access_token_present":  tok.AccessToken != "",
		"refresh_token_present": tok.RefreshToken != "",
	})
	if err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
