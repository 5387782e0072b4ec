package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// MockHelixServer mocks the Twitch Helix API plus the id.twitch.tv token
// endpoint. Register handlers by path; unregistered paths return 404.
type MockHelixServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockHelixServer starts a mock Twitch API server, closed on test cleanup.
func NewMockHelixServer(t *testing.T) *MockHelixServer {
	t.Helper()
	m := &MockHelixServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// RewriteClient returns an http.Client that redirects every request to the
// mock server regardless of host, so hard-coded endpoints like id.twitch.tv
// land here too.
func (m *MockHelixServer) RewriteClient(t *testing.T) *http.Client {
	t.Helper()
	target, err := url.Parse(m.URL)
	if err != nil {
		t.Fatalf("parse mock server url: %v", err)
	}
	return &http.Client{Transport: rewriteTransport{host: target.Host}}
}

type rewriteTransport struct{ host string }

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = rt.host
	return http.DefaultTransport.RoundTrip(req)
}

// MockOAuthTokenResponse serves the app access token endpoint.
func (m *MockHelixServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockUsersResponse serves the /users login resolution endpoint.
func (m *MockHelixServer) MockUsersResponse(userID, login string) {
	m.Handlers["/users"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": []map[string]string{
				{"id": userID, "login": login},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockClipsResponse serves the /clips endpoint.
func (m *MockHelixServer) MockClipsResponse(clips []map[string]interface{}, cursor string) {
	m.Handlers["/clips"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": clips,
			"pagination": map[string]string{
				"cursor": cursor,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockYouTubeServer mocks the YouTube Data API v3 search and videos endpoints,
// for services built with an endpoint override.
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockYouTubeServer starts a mock YouTube API server, closed on test cleanup.
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockSearchResponse serves video search results as id/snippet items.
func (m *MockYouTubeServer) MockSearchResponse(videoIDs []string) {
	m.Handlers["/youtube/v3/search"] = func(w http.ResponseWriter, r *http.Request) {
		items := make([]map[string]interface{}, 0, len(videoIDs))
		for _, id := range videoIDs {
			items = append(items, map[string]interface{}{
				"id":      map[string]string{"videoId": id},
				"snippet": map[string]string{"publishedAt": "2026-01-02T03:04:05Z"},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": items}) //nolint:errcheck // test mock response
	}
}

// MockVideosResponse serves video details keyed by the raw items given.
func (m *MockYouTubeServer) MockVideosResponse(items []map[string]interface{}) {
	m.Handlers["/youtube/v3/videos"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": items}) //nolint:errcheck // test mock response
	}
}
