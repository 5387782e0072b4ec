package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/onnwee/clip-tender/backend/db"
)

// SetupTestDB opens a test database connection and runs migrations.
// It skips the test if the TEST_PG_DSN environment variable is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(context.Background(), database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// TruncateAll clears every ingest table so tests start from a known-empty state.
func TruncateAll(t *testing.T, database *sql.DB) {
	t.Helper()
	_, err := database.Exec(`TRUNCATE creators, creator_translations, channels,
		streams, stream_translations, clips, clip_translations,
		creator_fetch_status, discord_servers CASCADE`)
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
