package db

import (
	"context"
	"database/sql"
	"fmt"
)

// DiscordServer is a guild subscribed to announcements, with its preferred
// language and announcement channel.
type DiscordServer struct {
	ID                string
	Name              string
	LanguageCode      string
	AnnounceChannelID string
}

// BatchUpsertDiscordServers inserts or updates guild rows keyed by guild id.
func BatchUpsertDiscordServers(ctx context.Context, dbx *sql.DB, servers []DiscordServer) error {
	if len(servers) == 0 {
		return nil
	}
	tx, err := dbx.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert discord servers: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, s := range servers {
		lang := s.LanguageCode
		if lang == "" {
			lang = "default"
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO discord_servers (id, name, language_code, announce_channel_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,NOW(),NOW())
			ON CONFLICT (id) DO UPDATE SET
				name=EXCLUDED.name,
				language_code=EXCLUDED.language_code,
				announce_channel_id=EXCLUDED.announce_channel_id,
				updated_at=NOW()`,
			s.ID, s.Name, lang, s.AnnounceChannelID); err != nil {
			return fmt.Errorf("upsert discord server %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

// CountDiscordServers returns the total number of subscribed guilds.
func CountDiscordServers(ctx context.Context, dbx *sql.DB) (int, error) {
	var n int
	err := dbx.QueryRowContext(ctx, `SELECT COUNT(1) FROM discord_servers`).Scan(&n)
	return n, err
}
