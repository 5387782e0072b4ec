package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Creator is a content creator tracked by the aggregator. Channels carry the
// platform-native channel ids that clips and streams reference.
type Creator struct {
	ID           string
	MemberType   string
	Name         string
	Description  string
	ThumbnailURL string
	Channels     []Channel
}

// Channel links a creator to a platform-native channel id.
type Channel struct {
	ID        string
	CreatorID string
	Platform  string // youtube | twitch
	RawID     string
	Title     string
}

// CreatorTranslation is a localized name/description for a creator.
type CreatorTranslation struct {
	CreatorID    string
	LanguageCode string
	Name         string
	Description  string
}

// FetchCandidate is a creator selected for a clip fetch pass, joined with its
// channel and fetch bookkeeping.
type FetchCandidate struct {
	CreatorID     string
	MemberType    string
	Platform      string
	ChannelRawID  string
	LastFetchedAt *time.Time
	FetchCount    int
}

// BatchUpsertCreators inserts or updates creators and their channels keyed by creator id.
// The whole batch commits in one transaction so redelivery cannot observe partial writes.
func BatchUpsertCreators(ctx context.Context, dbx *sql.DB, creators []Creator) error {
	if len(creators) == 0 {
		return nil
	}
	tx, err := dbx.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert creators: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, c := range creators {
		if _, err := tx.ExecContext(ctx, `INSERT INTO creators (id, member_type, name, description, thumbnail_url, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
			ON CONFLICT (id) DO UPDATE SET
				member_type=EXCLUDED.member_type,
				name=EXCLUDED.name,
				description=EXCLUDED.description,
				thumbnail_url=EXCLUDED.thumbnail_url,
				updated_at=NOW()`,
			c.ID, c.MemberType, c.Name, c.Description, c.ThumbnailURL); err != nil {
			return fmt.Errorf("upsert creator %s: %w", c.ID, err)
		}
		for _, ch := range c.Channels {
			if _, err := tx.ExecContext(ctx, `INSERT INTO channels (id, creator_id, platform, raw_id, title, created_at)
				VALUES ($1,$2,$3,$4,$5,NOW())
				ON CONFLICT (raw_id) DO UPDATE SET
					creator_id=EXCLUDED.creator_id,
					platform=EXCLUDED.platform,
					title=EXCLUDED.title`,
				ch.ID, c.ID, ch.Platform, ch.RawID, ch.Title); err != nil {
				return fmt.Errorf("upsert channel %s: %w", ch.RawID, err)
			}
		}
	}
	return tx.Commit()
}

// BatchUpsertCreatorTranslations writes localized creator fields without touching
// the canonical creators row.
func BatchUpsertCreatorTranslations(ctx context.Context, dbx *sql.DB, trs []CreatorTranslation) error {
	if len(trs) == 0 {
		return nil
	}
	tx, err := dbx.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert creator translations: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, tr := range trs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO creator_translations (creator_id, language_code, name, description, updated_at)
			VALUES ($1,$2,$3,$4,NOW())
			ON CONFLICT (creator_id, language_code) DO UPDATE SET
				name=EXCLUDED.name,
				description=EXCLUDED.description,
				updated_at=NOW()`,
			tr.CreatorID, tr.LanguageCode, tr.Name, tr.Description); err != nil {
			return fmt.Errorf("upsert creator translation %s/%s: %w", tr.CreatorID, tr.LanguageCode, err)
		}
	}
	return tx.Commit()
}

// ListCreatorsByLastFetch selects up to limit creators ordered oldest-fetch-first,
// never-fetched creators sorting before everything else. The secondary ordering on
// updated_at and id keeps pagination deterministic across repeated calls.
func ListCreatorsByLastFetch(ctx context.Context, dbx *sql.DB, limit int, memberType string) ([]FetchCandidate, error) {
	q := `SELECT c.id, c.member_type, ch.platform, ch.raw_id, fs.last_fetched_at, COALESCE(fs.fetch_count, 0)
		FROM creators c
		JOIN channels ch ON ch.creator_id = c.id
		LEFT JOIN creator_fetch_status fs ON fs.creator_id = c.id
		WHERE ($2 = '' OR c.member_type = $2)
		ORDER BY fs.last_fetched_at ASC NULLS FIRST, c.updated_at ASC, c.id ASC
		LIMIT $1`
	rows, err := dbx.QueryContext(ctx, q, limit, memberType)
	if err != nil {
		return nil, fmt.Errorf("list creators by last fetch: %w", err)
	}
	defer rows.Close()
	var out []FetchCandidate
	for rows.Next() {
		var fc FetchCandidate
		var last sql.NullTime
		if err := rows.Scan(&fc.CreatorID, &fc.MemberType, &fc.Platform, &fc.ChannelRawID, &last, &fc.FetchCount); err != nil {
			return nil, err
		}
		if last.Valid {
			t := last.Time
			fc.LastFetchedAt = &t
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

// UpdateLastFetched advances the fetch marker for the given creators: last_fetched_at
// moves to now and fetch_count increments. First fetch and later fetches share the
// same upsert path.
func UpdateLastFetched(ctx context.Context, dbx *sql.DB, creatorIDs []string) error {
	if len(creatorIDs) == 0 {
		return nil
	}
	tx, err := dbx.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update last fetched: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, id := range creatorIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO creator_fetch_status (creator_id, last_fetched_at, fetch_count)
			VALUES ($1, NOW(), 1)
			ON CONFLICT (creator_id) DO UPDATE SET
				last_fetched_at=NOW(),
				fetch_count=creator_fetch_status.fetch_count+1`,
			id); err != nil {
			return fmt.Errorf("update fetch marker %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// CountCreators returns the number of creators matching the optional member type filter.
func CountCreators(ctx context.Context, dbx *sql.DB, memberType string) (int, error) {
	var n int
	err := dbx.QueryRowContext(ctx, `SELECT COUNT(1) FROM creators WHERE ($1 = '' OR member_type = $1)`, memberType).Scan(&n)
	return n, err
}

// CountNeverFetchedCreators returns how many creators have no fetch marker yet.
func CountNeverFetchedCreators(ctx context.Context, dbx *sql.DB) (int, error) {
	var n int
	err := dbx.QueryRowContext(ctx, `SELECT COUNT(1) FROM creators c
		LEFT JOIN creator_fetch_status fs ON fs.creator_id = c.id
		WHERE fs.creator_id IS NULL`).Scan(&n)
	return n, err
}
