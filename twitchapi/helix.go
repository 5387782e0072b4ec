// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for user id resolution and listing channel clips, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.twitch.tv/helix"

// HelixClient provides the methods needed for clip discovery.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
	BaseURL        string // override for tests; defaults to the public Helix endpoint
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return defaultBaseURL
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return "", err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, hc.base()+"/users", nil)
	q := req.URL.Query()
	q.Set("login", login)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// ClipMeta is one clip as reported by the Helix clips endpoint.
type ClipMeta struct {
	ID              string
	BroadcasterID   string
	Title           string
	ViewCount       int64
	ThumbnailURL    string
	DurationSeconds int
	CreatedAt       time.Time
}

// ListClips lists the most recent clips for a broadcaster.
func (hc *HelixClient) ListClips(ctx context.Context, broadcasterID string, first int) ([]ClipMeta, string, error) {
	if broadcasterID == "" {
		return nil, "", fmt.Errorf("broadcasterID empty")
	}
	if first <= 0 {
		first = 20
	}
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return nil, "", err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, hc.base()+"/clips", nil)
	q := req.URL.Query()
	q.Set("broadcaster_id", broadcasterID)
	q.Set("first", fmt.Sprintf("%d", first))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("helix clips request failed: %s", resp.Status)
	}
	var body struct {
		Data []struct {
			ID            string  `json:"id"`
			BroadcasterID string  `json:"broadcaster_id"`
			Title         string  `json:"title"`
			ViewCount     int64   `json:"view_count"`
			CreatedAt     string  `json:"created_at"`
			ThumbnailURL  string  `json:"thumbnail_url"`
			Duration      float64 `json:"duration"`
		} `json:"data"`
		Pagination struct {
			Cursor string `json:"cursor"`
		} `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, "", err
	}
	out := make([]ClipMeta, 0, len(body.Data))
	for _, c := range body.Data {
		created, _ := time.Parse(time.RFC3339, c.CreatedAt)
		out = append(out, ClipMeta{
			ID:              c.ID,
			BroadcasterID:   c.BroadcasterID,
			Title:           c.Title,
			ViewCount:       c.ViewCount,
			ThumbnailURL:    c.ThumbnailURL,
			DurationSeconds: int(c.Duration),
			CreatedAt:       created,
		})
	}
	return out, body.Pagination.Cursor, nil
}
