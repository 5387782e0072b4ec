package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Stream is a live or archived broadcast. RawID is the platform-native id and the
// upsert conflict key; the internal serial id is assigned once and preserved.
type Stream struct {
	RawID        string
	RawChannelID string
	Title        string
	Description  string
	Status       string
	ViewCount    int64
	ThumbnailURL string
	StartedAt    *time.Time
	EndedAt      *time.Time
}

// StreamTranslation is a localized title/description for a stream. Translated
// variants never touch the canonical streams row.
type StreamTranslation struct {
	StreamRawID  string
	LanguageCode string
	Title        string
	Description  string
}

// BatchUpsertStreams inserts or updates canonical stream rows keyed by raw_id.
func BatchUpsertStreams(ctx context.Context, dbx *sql.DB, streams []Stream) error {
	if len(streams) == 0 {
		return nil
	}
	tx, err := dbx.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert streams: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, s := range streams {
		if _, err := tx.ExecContext(ctx, `INSERT INTO streams (raw_id, raw_channel_id, title, description, status, view_count, thumbnail_url, started_at, ended_at, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW())
			ON CONFLICT (raw_id) DO UPDATE SET
				raw_channel_id=EXCLUDED.raw_channel_id,
				title=EXCLUDED.title,
				description=EXCLUDED.description,
				status=EXCLUDED.status,
				view_count=EXCLUDED.view_count,
				thumbnail_url=EXCLUDED.thumbnail_url,
				started_at=EXCLUDED.started_at,
				ended_at=EXCLUDED.ended_at,
				updated_at=NOW()`,
			s.RawID, s.RawChannelID, s.Title, s.Description, s.Status, s.ViewCount, s.ThumbnailURL, s.StartedAt, s.EndedAt); err != nil {
			return fmt.Errorf("upsert stream %s: %w", s.RawID, err)
		}
	}
	return tx.Commit()
}

// BatchUpsertStreamTranslations writes localized stream fields only.
func BatchUpsertStreamTranslations(ctx context.Context, dbx *sql.DB, trs []StreamTranslation) error {
	if len(trs) == 0 {
		return nil
	}
	tx, err := dbx.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert stream translations: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, tr := range trs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO stream_translations (stream_raw_id, language_code, title, description, updated_at)
			VALUES ($1,$2,$3,$4,NOW())
			ON CONFLICT (stream_raw_id, language_code) DO UPDATE SET
				title=EXCLUDED.title,
				description=EXCLUDED.description,
				updated_at=NOW()`,
			tr.StreamRawID, tr.LanguageCode, tr.Title, tr.Description); err != nil {
			return fmt.Errorf("upsert stream translation %s/%s: %w", tr.StreamRawID, tr.LanguageCode, err)
		}
	}
	return tx.Commit()
}

// CountStreams returns the total number of stream rows.
func CountStreams(ctx context.Context, dbx *sql.DB) (int, error) {
	var n int
	err := dbx.QueryRowContext(ctx, `SELECT COUNT(1) FROM streams`).Scan(&n)
	return n, err
}
