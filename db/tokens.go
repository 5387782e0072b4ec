package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/onnwee/clip-tender/backend/crypto"
)

var (
	// encryptor is the global encryptor instance for OAuth token encryption
	encryptor     crypto.Encryptor
	encryptorOnce sync.Once
	encryptorErr  error
)

// initEncryptor initializes the global encryptor from ENCRYPTION_KEY.
// If ENCRYPTION_KEY is not set, encryption is disabled (encryption_version = 0).
func initEncryptor() {
	encryptorOnce.Do(func() {
		key := os.Getenv("ENCRYPTION_KEY")
		if key == "" {
			slog.Warn("ENCRYPTION_KEY not set, OAuth tokens will be stored in plaintext (not recommended for production)", slog.String("component", "db_encryption"))
			return
		}
		enc, err := crypto.NewAESEncryptor(key)
		if err != nil {
			encryptorErr = fmt.Errorf("failed to initialize encryption: %w", err)
			slog.Error("encryption initialization failed", slog.Any("error", encryptorErr), slog.String("component", "db_encryption"))
			return
		}
		encryptor = enc
		slog.Info("OAuth token encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"))
	})
}

func getEncryptor() (crypto.Encryptor, error) {
	initEncryptor()
	if encryptorErr != nil {
		return nil, encryptorErr
	}
	return encryptor, nil
}

// UpsertOAuthToken stores or updates an OAuth token for a provider (e.g., youtube).
// If encryption is enabled (ENCRYPTION_KEY set), tokens are encrypted before storage.
func UpsertOAuthToken(ctx context.Context, dbx *sql.DB, provider, access, refresh string, expiry time.Time, scope string) error {
	enc, err := getEncryptor()
	if err != nil {
		return fmt.Errorf("get encryptor: %w", err)
	}

	encVersion := 0
	encKeyID := ""
	accessToStore := access
	refreshToStore := refresh

	if enc != nil {
		encVersion = 1
		encKeyID = "default"
		if access != "" {
			encAccess, err := crypto.EncryptString(enc, access)
			if err != nil {
				return fmt.Errorf("encrypt access token: %w", err)
			}
			accessToStore = encAccess
		}
		if refresh != "" {
			encRefresh, err := crypto.EncryptString(enc, refresh)
			if err != nil {
				return fmt.Errorf("encrypt refresh token: %w", err)
			}
			refreshToStore = encRefresh
		}
	}

	q := `INSERT INTO oauth_tokens(provider, access_token, refresh_token, expires_at, scope, encryption_version, encryption_key_id, updated_at)
		  VALUES($1,$2,$3,$4,$5,$6,$7,NOW())
		  ON CONFLICT(provider) DO UPDATE SET
		    access_token=EXCLUDED.access_token,
		    refresh_token=EXCLUDED.refresh_token,
		    expires_at=EXCLUDED.expires_at,
		    scope=EXCLUDED.scope,
		    encryption_version=EXCLUDED.encryption_version,
		    encryption_key_id=EXCLUDED.encryption_key_id,
		    updated_at=NOW()`
	_, err = dbx.ExecContext(ctx, q, provider, accessToStore, refreshToStore, expiry, scope, encVersion, encKeyID)
	return err
}

// GetOAuthToken retrieves a stored token row; returns zero values if not found.
// Automatically decrypts tokens if encryption_version=1 and encryption is configured.
func GetOAuthToken(ctx context.Context, dbx *sql.DB, provider string) (access, refresh string, expiry time.Time, scope string, err error) {
	var encVersion int
	var encKeyID sql.NullString

	row := dbx.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at, scope, COALESCE(encryption_version, 0), encryption_key_id
		 FROM oauth_tokens WHERE provider = $1`, provider)

	err = row.Scan(&access, &refresh, &expiry, &scope, &encVersion, &encKeyID)
	if err == sql.ErrNoRows {
		return "", "", time.Time{}, "", nil
	}
	if err != nil {
		return "", "", time.Time{}, "", err
	}

	if encVersion == 1 {
		enc, encErr := getEncryptor()
		if encErr != nil {
			return "", "", time.Time{}, "", fmt.Errorf("get encryptor for decryption: %w", encErr)
		}
		if enc == nil {
			return "", "", time.Time{}, "", fmt.Errorf("token is encrypted but ENCRYPTION_KEY not configured")
		}
		if access != "" {
			decAccess, decErr := crypto.DecryptString(enc, access)
			if decErr != nil {
				return "", "", time.Time{}, "", fmt.Errorf("decrypt access token: %w", decErr)
			}
			access = decAccess
		}
		if refresh != "" {
			decRefresh, decErr := crypto.DecryptString(enc, refresh)
			if decErr != nil {
				return "", "", time.Time{}, "", fmt.Errorf("decrypt refresh token: %w", decErr)
			}
			refresh = decRefresh
		}
	}

	return access, refresh, expiry, scope, nil
}

// TokenStoreAdapter implements youtubeapi.TokenStore and reuses the table structure here.
type TokenStoreAdapter struct{ DB *sql.DB }

func (t *TokenStoreAdapter) UpsertOAuthToken(ctx context.Context, provider string, accessToken string, refreshToken string, expiry time.Time, raw string) error {
	return UpsertOAuthToken(ctx, t.DB, provider, accessToken, refreshToken, expiry, "")
}

func (t *TokenStoreAdapter) GetOAuthToken(ctx context.Context, provider string) (accessToken string, refreshToken string, expiry time.Time, raw string, err error) {
	access, refresh, exp, scope, err := GetOAuthToken(ctx, t.DB, provider)
	return access, refresh, exp, scope, err
}
