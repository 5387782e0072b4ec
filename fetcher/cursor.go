// Package fetcher walks creators oldest-fetch-first and pulls their recent
// clips from the platform APIs. Selection ordering and the per-creator fetch
// markers make repeated passes drain the backlog round-robin instead of
// hammering the same channels.
package fetcher

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onnwee/clip-tender/backend/db"
	"github.com/onnwee/clip-tender/backend/quota"
	"github.com/onnwee/clip-tender/backend/telemetry"
	"github.com/onnwee/clip-tender/backend/twitchapi"
	"github.com/onnwee/clip-tender/backend/youtubeapi"
	yt "google.golang.org/api/youtube/v3"
)

// Result is the outcome of one fetch pass.
type Result struct {
	// Clips are all clips discovered this pass, across platforms, ready for a
	// storage upsert.
	Clips []db.Clip
	// ProcessedCreatorIDs lists creators whose fetch succeeded this pass,
	// including creators whose channels returned zero clips. Creators whose
	// platform call failed are excluded so they are retried next pass.
	ProcessedCreatorIDs []string
	// HasMore reports whether another pass should be scheduled immediately:
	// true when selection filled the requested batch size.
	HasMore bool
}

// Cursor selects the next batch of creators to fetch and pulls their clips.
type Cursor struct {
	DB      *sql.DB
	YouTube *youtubeapi.Service
	Twitch  *twitchapi.HelixClient
	// Quota is the shared daily YouTube unit ledger. Nil disables budget checks.
	Quota *quota.Ledger
	// SearchMax caps recent clips requested per channel. Zero means 25.
	SearchMax int64
}

func (c *Cursor) searchMax() int64 {
	if c.SearchMax > 0 {
		return c.SearchMax
	}
	return 25
}

// FetchNextBatch runs one cursor pass: select up to batchSize creators ordered
// by last_fetched_at ASC NULLS FIRST, fetch each one's recent clips, and report
// which creators completed. maxQuota caps YouTube units spent this pass; zero
// means no per-pass cap. A creator whose platform call fails is logged and
// skipped without failing the pass; a failure of the shared details call fails
// the whole pass so it can be redelivered.
func (c *Cursor) FetchNextBatch(ctx context.Context, batchSize int, memberType string, maxQuota int) (*Result, error) {
	if batchSize <= 0 {
		batchSize = 30
	}
	candidates, err := db.ListCreatorsByLastFetch(ctx, c.DB, batchSize, memberType)
	if err != nil {
		return nil, fmt.Errorf("list fetch candidates: %w", err)
	}
	telemetry.IncFetchCycle()

	res := &Result{HasMore: len(candidates) == batchSize}
	if len(candidates) == 0 {
		return res, nil
	}

	log := telemetry.LoggerWithCorr(ctx)

	var (
		ytSvc      *yt.Service
		ytDown     bool
		ytIDs      []string
		spent      int
		budgetStop bool
		seen       = map[string]bool{}
	)
	processed := func(id string) {
		if !seen[id] {
			seen[id] = true
			res.ProcessedCreatorIDs = append(res.ProcessedCreatorIDs, id)
		}
	}

	for _, cand := range candidates {
		if budgetStop {
			break
		}
		switch cand.Platform {
		case "youtube":
			if ytDown {
				continue
			}
			if maxQuota > 0 && spent+youtubeapi.QuotaCostSearch > maxQuota {
				log.Info("clip fetch pass stopping early: per-pass quota budget reached",
					"spent", spent, "max_quota", maxQuota)
				budgetStop = true
				res.HasMore = true
				continue
			}
			if c.dailyExceeded(ctx) {
				log.Warn("daily youtube quota exhausted, stopping fetch pass")
				budgetStop = true
				res.HasMore = true
				continue
			}
			if ytSvc == nil {
				svc, err := c.YouTube.Client(ctx)
				if err != nil {
					log.Error("youtube client unavailable, skipping youtube creators this pass", "error", err)
					ytDown = true
					continue
				}
				ytSvc = svc
			}
			spent += youtubeapi.QuotaCostSearch
			c.spend(ctx, youtubeapi.QuotaCostSearch)
			stubs, err := youtubeapi.SearchClipsForChannel(ctx, ytSvc, cand.ChannelRawID, c.searchMax())
			if err != nil {
				log.Error("youtube clip search failed", "creator_id", cand.CreatorID,
					"channel", cand.ChannelRawID, "error", err)
				continue
			}
			for _, s := range stubs {
				ytIDs = append(ytIDs, s.RawID)
			}
			processed(cand.CreatorID)
		case "twitch":
			metas, _, err := c.Twitch.ListClips(ctx, cand.ChannelRawID, int(c.searchMax()))
			if err != nil {
				log.Error("twitch clip list failed", "creator_id", cand.CreatorID,
					"channel", cand.ChannelRawID, "error", err)
				continue
			}
			for _, m := range metas {
				created := m.CreatedAt
				res.Clips = append(res.Clips, db.Clip{
					RawID:           m.ID,
					RawChannelID:    m.BroadcasterID,
					Title:           m.Title,
					ViewCount:       m.ViewCount,
					ThumbnailURL:    m.ThumbnailURL,
					DurationSeconds: m.DurationSeconds,
					PublishedAt:     &created,
				})
			}
			processed(cand.CreatorID)
		default:
			// Nothing to fetch for an unknown platform; advance the marker so
			// the row stops occupying the front of the cursor.
			log.Warn("channel has unknown platform", "creator_id", cand.CreatorID, "platform", cand.Platform)
			processed(cand.CreatorID)
		}
	}

	if len(ytIDs) > 0 && ytSvc != nil {
		calls := (len(ytIDs) + youtubeapi.MaxIDsPerDetailsCall - 1) / youtubeapi.MaxIDsPerDetailsCall
		spent += calls * youtubeapi.QuotaCostVideos
		c.spend(ctx, calls*youtubeapi.QuotaCostVideos)
		details, err := youtubeapi.GetClipDetails(ctx, ytSvc, ytIDs)
		if err != nil {
			// The details fetch is shared across every youtube creator in the
			// pass, so its failure fails the pass: the caller discards the
			// result, no markers advance, and redelivery retries the slice.
			return nil, fmt.Errorf("youtube clip details: %w", err)
		}
		for _, v := range details {
			published := v.PublishedAt
			res.Clips = append(res.Clips, db.Clip{
				RawID:           v.RawID,
				RawChannelID:    v.RawChannelID,
				Title:           v.Title,
				Description:     v.Description,
				ViewCount:       v.ViewCount,
				ThumbnailURL:    v.ThumbnailURL,
				DurationSeconds: v.DurationSeconds,
				PublishedAt:     &published,
			})
		}
	}

	telemetry.AddClipsFetched(len(res.Clips))
	telemetry.AddCreatorsFetched(len(res.ProcessedCreatorIDs))
	log.Info("clip fetch pass complete",
		"creators_selected", len(candidates),
		"creators_processed", len(res.ProcessedCreatorIDs),
		"clips", len(res.Clips),
		"quota_spent", spent,
		"has_more", res.HasMore)
	return res, nil
}

func (c *Cursor) spend(ctx context.Context, units int) {
	if c.Quota == nil {
		return
	}
	used, err := c.Quota.Spend(ctx, units)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("quota ledger spend failed", "error", err)
		return
	}
	telemetry.SetQuotaUsed(used)
}

func (c *Cursor) dailyExceeded(ctx context.Context) bool {
	if c.Quota == nil {
		return false
	}
	over, err := c.Quota.Exceeded(ctx)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("quota ledger read failed", "error", err)
		return false
	}
	return over
}
