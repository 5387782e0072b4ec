package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Clip is a short-form video. RawID is the platform-native id and the upsert
// conflict key; the internal serial id is assigned once and preserved.
type Clip struct {
	RawID           string
	RawChannelID    string
	Title           string
	Description     string
	ViewCount       int64
	ThumbnailURL    string
	DurationSeconds int
	PublishedAt     *time.Time
}

// ClipTranslation is a localized title/description for a clip.
type ClipTranslation struct {
	ClipRawID    string
	LanguageCode string
	Title        string
	Description  string
}

// BatchUpsertClips inserts or updates canonical clip rows keyed by raw_id.
func BatchUpsertClips(ctx context.Context, dbx *sql.DB, clips []Clip) error {
	if len(clips) == 0 {
		return nil
	}
	tx, err := dbx.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert clips: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, c := range clips {
		if _, err := tx.ExecContext(ctx, `INSERT INTO clips (raw_id, raw_channel_id, title, description, view_count, thumbnail_url, duration_seconds, published_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
			ON CONFLICT (raw_id) DO UPDATE SET
				raw_channel_id=EXCLUDED.raw_channel_id,
				title=EXCLUDED.title,
				description=EXCLUDED.description,
				view_count=EXCLUDED.view_count,
				thumbnail_url=EXCLUDED.thumbnail_url,
				duration_seconds=EXCLUDED.duration_seconds,
				published_at=EXCLUDED.published_at,
				updated_at=NOW()`,
			c.RawID, c.RawChannelID, c.Title, c.Description, c.ViewCount, c.ThumbnailURL, c.DurationSeconds, c.PublishedAt); err != nil {
			return fmt.Errorf("upsert clip %s: %w", c.RawID, err)
		}
	}
	return tx.Commit()
}

// BatchUpsertClipTranslations writes localized clip fields only.
func BatchUpsertClipTranslations(ctx context.Context, dbx *sql.DB, trs []ClipTranslation) error {
	if len(trs) == 0 {
		return nil
	}
	tx, err := dbx.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert clip translations: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, tr := range trs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO clip_translations (clip_raw_id, language_code, title, description, updated_at)
			VALUES ($1,$2,$3,$4,NOW())
			ON CONFLICT (clip_raw_id, language_code) DO UPDATE SET
				title=EXCLUDED.title,
				description=EXCLUDED.description,
				updated_at=NOW()`,
			tr.ClipRawID, tr.LanguageCode, tr.Title, tr.Description); err != nil {
			return fmt.Errorf("upsert clip translation %s/%s: %w", tr.ClipRawID, tr.LanguageCode, err)
		}
	}
	return tx.Commit()
}

// CountClips returns the total number of clip rows.
func CountClips(ctx context.Context, dbx *sql.DB) (int, error) {
	var n int
	err := dbx.QueryRowContext(ctx, `SELECT COUNT(1) FROM clips`).Scan(&n)
	return n, err
}
