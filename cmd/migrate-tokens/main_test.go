package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/onnwee/clip-tender/backend/crypto"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	ctx := context.Background()
	_, err = database.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS oauth_tokens (
			provider TEXT PRIMARY KEY,
			access_token TEXT,
			refresh_token TEXT,
			expires_at TIMESTAMPTZ,
			scope TEXT,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			encryption_version INTEGER DEFAULT 0,
			encryption_key_id TEXT
		)
	`)
	if err != nil {
		database.Close()
		t.Fatalf("failed to create oauth_tokens table: %v", err)
	}

	t.Cleanup(func() {
		_, _ = database.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE provider LIKE 'test-%'`)
		database.Close()
	})

	return database
}

func testEncryptor(t *testing.T) *crypto.AESEncryptor {
	t.Helper()
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	enc, err := crypto.NewAESEncryptor(key)
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	return enc
}

func seedPlaintextToken(t *testing.T, database *sql.DB, provider, access, refresh string) {
	t.Helper()
	_, err := database.ExecContext(context.Background(), `
		INSERT INTO oauth_tokens(provider, access_token, refresh_token, expires_at, scope, encryption_version)
		VALUES ($1, $2, $3, $4, 'scope-a', 0)
		ON CONFLICT (provider) DO UPDATE SET
		    access_token=EXCLUDED.access_token,
		    refresh_token=EXCLUDED.refresh_token,
		    encryption_version=0,
		    encryption_key_id=NULL
	`, provider, access, refresh, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("seed token: %v", err)
	}
}

func TestMigrateTokensDryRunLeavesRowsUntouched(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	enc := testEncryptor(t)

	seedPlaintextToken(t, database, "test-dry", "plain-access", "plain-refresh")

	if err := migrateTokens(ctx, database, enc, true, "test-dry"); err != nil {
		t.Fatalf("dry-run migrate: %v", err)
	}

	var access string
	var version int
	if err := database.QueryRowContext(ctx,
		`SELECT access_token, COALESCE(encryption_version, 0) FROM oauth_tokens WHERE provider = 'test-dry'`,
	).Scan(&access, &version); err != nil {
		t.Fatalf("query token: %v", err)
	}
	if access != "plain-access" || version != 0 {
		t.Fatalf("dry-run modified row: access=%q version=%d", access, version)
	}
}

func TestMigrateTokensEncryptsPlaintext(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	enc := testEncryptor(t)

	seedPlaintextToken(t, database, "test-migrate", "plain-access", "plain-refresh")

	if err := migrateTokens(ctx, database, enc, false, "test-migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var access, refresh string
	var version int
	var keyID sql.NullString
	if err := database.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, COALESCE(encryption_version, 0), encryption_key_id
		FROM oauth_tokens WHERE provider = 'test-migrate'
	`).Scan(&access, &refresh, &version, &keyID); err != nil {
		t.Fatalf("query token: %v", err)
	}
	if version != 1 {
		t.Fatalf("encryption_version = %d, want 1", version)
	}
	if !keyID.Valid || keyID.String != "default" {
		t.Fatalf("encryption_key_id = %v, want default", keyID)
	}
	if access == "plain-access" {
		t.Fatal("access token still plaintext")
	}

	got, err := crypto.DecryptString(enc, access)
	if err != nil {
		t.Fatalf("decrypt access: %v", err)
	}
	if got != "plain-access" {
		t.Fatalf("decrypted access = %q, want plain-access", got)
	}
	got, err = crypto.DecryptString(enc, refresh)
	if err != nil {
		t.Fatalf("decrypt refresh: %v", err)
	}
	if got != "plain-refresh" {
		t.Fatalf("decrypted refresh = %q, want plain-refresh", got)
	}
}

func TestMigrateTokensSkipsAlreadyEncrypted(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	enc := testEncryptor(t)

	seedPlaintextToken(t, database, "test-skip", "plain-access", "plain-refresh")
	if err := migrateTokens(ctx, database, enc, false, "test-skip"); err != nil {
		t.Fatalf("first migrate: %v", err)
	}

	var firstAccess string
	if err := database.QueryRowContext(ctx,
		`SELECT access_token FROM oauth_tokens WHERE provider = 'test-skip'`,
	).Scan(&firstAccess); err != nil {
		t.Fatalf("query token: %v", err)
	}

	// Second run finds nothing at version 0 and must not double-encrypt.
	if err := migrateTokens(ctx, database, enc, false, "test-skip"); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var secondAccess string
	if err := database.QueryRowContext(ctx,
		`SELECT access_token FROM oauth_tokens WHERE provider = 'test-skip'`,
	).Scan(&secondAccess); err != nil {
		t.Fatalf("query token: %v", err)
	}
	if firstAccess != secondAccess {
		t.Fatal("second migration modified an already-encrypted token")
	}
}

func TestMigrateTokensProviderFilter(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	enc := testEncryptor(t)

	seedPlaintextToken(t, database, "test-filter-a", "access-a", "refresh-a")
	seedPlaintextToken(t, database, "test-filter-b", "access-b", "refresh-b")

	if err := migrateTokens(ctx, database, enc, false, "test-filter-a"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var versionA, versionB int
	if err := database.QueryRowContext(ctx,
		`SELECT COALESCE(encryption_version, 0) FROM oauth_tokens WHERE provider = 'test-filter-a'`,
	).Scan(&versionA); err != nil {
		t.Fatalf("query a: %v", err)
	}
	if err := database.QueryRowContext(ctx,
		`SELECT COALESCE(encryption_version, 0) FROM oauth_tokens WHERE provider = 'test-filter-b'`,
	).Scan(&versionB); err != nil {
		t.Fatalf("query b: %v", err)
	}
	if versionA != 1 {
		t.Fatalf("filtered provider not migrated: version=%d", versionA)
	}
	if versionB != 0 {
		t.Fatalf("unfiltered provider was migrated: version=%d", versionB)
	}
}
