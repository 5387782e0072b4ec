// Package translate defines the opaque translation collaborator: the ingestion
// core only needs "these texts, in that language" with success or failure per
// call. The HTTP implementation posts to whatever service TRANSLATE_URL names.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Translator translates a slice of texts into the target language, returning
// translations in input order.
type Translator interface {
	Translate(ctx context.Context, texts []string, targetLang string) ([]string, error)
}

// HTTPTranslator calls an external translation endpoint with a JSON body.
type HTTPTranslator struct {
	URL        string
	Key        string
	HTTPClient *http.Client
}

func (t *HTTPTranslator) http() *http.Client {
	if t.HTTPClient != nil {
		return t.HTTPClient
	}
	return http.DefaultClient
}

// Translate posts texts and returns the service's translations. The response
// must contain exactly one translation per input text.
func (t *HTTPTranslator) Translate(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	if t.URL == "" {
		return nil, fmt.Errorf("translation service not configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(map[string]any{
		"targetLang": targetLang,
		"texts":      texts,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.Key != "" {
		req.Header.Set("Authorization", "Bearer "+t.Key)
	}
	resp, err := t.http().Do(req)
	if err != nil {
		return nil, fmt.Errorf("translate request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("translate request failed: %s", resp.Status)
	}
	var body struct {
		Translations []string `json:"translations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("translate response: %w", err)
	}
	if len(body.Translations) != len(texts) {
		return nil, fmt.Errorf("translate response count mismatch: sent %d, got %d", len(texts), len(body.Translations))
	}
	return body.Translations, nil
}
