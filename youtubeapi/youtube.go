// Package youtubeapi wraps the YouTube Data API for clip discovery: listing a
// channel's recent uploads and batch-fetching video details. Reads authenticate
// with an API key when configured; otherwise an OAuth token persisted via the
// provided TokenStore is used so the refresher job can keep it fresh.
package youtubeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/clip-tender/backend/config"
)

const provider = "youtube"

// MaxIDsPerDetailsCall is the platform limit on ids per videos.list request.
const MaxIDsPerDetailsCall = 50

// Quota unit costs per the YouTube Data API pricing table.
const (
	QuotaCostSearch = 100
	QuotaCostVideos = 1
)

type TokenStore interface {
	UpsertOAuthToken(ctx context.Context, provider string, accessToken string, refreshToken string, expiry time.Time, raw string) error
	GetOAuthToken(ctx context.Context, provider string) (accessToken string, refreshToken string, expiry time.Time, raw string, err error)
}

type Service struct {
	cfg      *config.Config
	db       TokenStore
	oauth    *oauth2.Config
	endpoint string // override for tests
}

func New(cfg *config.Config, ts TokenStore) *Service {
	scopes := []string{"https://www.googleapis.com/auth/youtube.readonly"}
	if cfg.YTScopes != "" {
		// allow comma or space separated
		s := strings.ReplaceAll(cfg.YTScopes, ",", " ")
		fields := strings.Fields(s)
		if len(fields) > 0 {
			scopes = fields
		}
	}
	oauth := &oauth2.Config{
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.YTRedirectURI,
		Scopes:       scopes,
	}
	return &Service{cfg: cfg, db: ts, oauth: oauth}
}

// WithEndpoint points API calls at a custom base URL (tests).
func (s *Service) WithEndpoint(url string) *Service {
	s.endpoint = url
	return s
}

func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	rawBytes, _ := json.Marshal(tok)
	_ = s.db.UpsertOAuthToken(ctx, provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, string(rawBytes))
	return tok, nil
}

func (s *Service) refreshIfNeeded(ctx context.Context) (*oauth2.Token, error) {
	access, refresh, expiry, raw, err := s.db.GetOAuthToken(ctx, provider)
	if err != nil {
		return nil, err
	}
	if access == "" {
		return nil, errors.New("no youtube token stored")
	}
	var tok oauth2.Token
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &tok)
	}
	if tok.AccessToken == "" {
		tok.AccessToken = access
	}
	tok.RefreshToken = refresh
	tok.Expiry = expiry
	if time.Until(tok.Expiry) > 2*time.Minute {
		return &tok, nil
	}
	ts := s.oauth.TokenSource(ctx, &tok)
	newTok, err := ts.Token()
	if err != nil {
		return &tok, err
	}
	rawBytes, _ := json.Marshal(newTok)
	_ = s.db.UpsertOAuthToken(ctx, provider, newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, string(rawBytes))
	return newTok, nil
}

// Client builds a YouTube Data API client, preferring the API key for reads.
func (s *Service) Client(ctx context.Context) (*yt.Service, error) {
	var opts []option.ClientOption
	if s.cfg.YTAPIKey != "" {
		opts = append(opts, option.WithAPIKey(s.cfg.YTAPIKey))
	} else {
		tok, err := s.refreshIfNeeded(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithHTTPClient(s.oauth.Client(ctx, tok)))
	}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	return yt.NewService(ctx, opts...)
}

// ClipStub is a video id discovered via search, before details are fetched.
type ClipStub struct {
	RawID       string
	PublishedAt time.Time
}

// Clip is a fully detailed video suitable for a storage upsert.
type Clip struct {
	RawID           string
	RawChannelID    string
	Title           string
	Description     string
	ViewCount       int64
	ThumbnailURL    string
	DurationSeconds int
	PublishedAt     time.Time
}

// SearchClipsForChannel lists a channel's most recent videos, newest first.
func SearchClipsForChannel(ctx context.Context, svc *yt.Service, channelID string, maxResults int64) ([]ClipStub, error) {
	if svc == nil {
		return nil, fmt.Errorf("nil youtube service")
	}
	if channelID == "" {
		return nil, fmt.Errorf("channelID empty")
	}
	if maxResults <= 0 {
		maxResults = 25
	}
	call := svc.Search.List([]string{"id", "snippet"}).
		ChannelId(channelID).
		Order("date").
		Type("video").
		MaxResults(maxResults).
		Context(ctx)
	res, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("youtube search: %w", err)
	}
	out := make([]ClipStub, 0, len(res.Items))
	for _, item := range res.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		published := time.Time{}
		if item.Snippet != nil {
			published, _ = time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		}
		out = append(out, ClipStub{RawID: item.Id.VideoId, PublishedAt: published})
	}
	return out, nil
}

// GetClipDetails fetches snippet/statistics/contentDetails for the given video
// ids, splitting into sub-batches of MaxIDsPerDetailsCall.
func GetClipDetails(ctx context.Context, svc *yt.Service, ids []string) ([]Clip, error) {
	if svc == nil {
		return nil, fmt.Errorf("nil youtube service")
	}
	var out []Clip
	for start := 0; start < len(ids); start += MaxIDsPerDetailsCall {
		chunk := ids[start:min(start+MaxIDsPerDetailsCall, len(ids))]
		call := svc.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
			Id(chunk...).
			Context(ctx)
		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("youtube videos.list: %w", err)
		}
		for _, v := range res.Items {
			c := Clip{RawID: v.Id}
			if v.Snippet != nil {
				c.RawChannelID = v.Snippet.ChannelId
				c.Title = v.Snippet.Title
				c.Description = v.Snippet.Description
				c.PublishedAt, _ = time.Parse(time.RFC3339, v.Snippet.PublishedAt)
				if v.Snippet.Thumbnails != nil && v.Snippet.Thumbnails.High != nil {
					c.ThumbnailURL = v.Snippet.Thumbnails.High.Url
				}
			}
			if v.Statistics != nil {
				c.ViewCount = int64(v.Statistics.ViewCount)
			}
			if v.ContentDetails != nil {
				c.DurationSeconds = parseISODuration(v.ContentDetails.Duration)
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// parseISODuration parses ISO-8601 durations like "PT1H2M3S" as used by the
// contentDetails.duration field.
func parseISODuration(s string) int {
	var total int
	cur := ""
	for _, r := range s {
		if r >= '0' && r <= '9' {
			cur += string(r)
			continue
		}
		if cur == "" {
			continue
		}
		n := 0
		for _, d := range cur {
			n = n*10 + int(d-'0')
		}
		switch r {
		case 'H':
			total += n * 3600
		case 'M':
			total += n * 60
		case 'S':
			total += n
		}
		cur = ""
	}
	return total
}
