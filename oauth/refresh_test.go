package oauth

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/clip-tender/backend/db"
	"github.com/onnwee/clip-tender/backend/testutil"
)

func TestRefresherRefreshesExpiringToken(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Token expiring inside the refresh window.
	err := db.UpsertOAuthToken(ctx, database, "youtube", "old-access", "refresh-1",
		time.Now().Add(1*time.Minute), "scope-a")
	if err != nil {
		t.Fatalf("seed token: %v", err)
	}

	var calls atomic.Int32
	fn := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		calls.Add(1)
		if refreshToken != "refresh-1" {
			t.Errorf("refresh token = %q, want refresh-1", refreshToken)
		}
		return "new-access", "refresh-2", time.Now().Add(1 * time.Hour), "", nil
	}

	// Short interval so a refresh attempt lands within the test deadline.
	StartRefresher(ctx, database, "youtube", 50*time.Millisecond, 10*time.Minute, fn)

	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if calls.Load() == 0 {
		t.Fatal("refresh function never called")
	}

	// Eventually the new token must be persisted.
	deadline = time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		access, refresh, _, scope, err := db.GetOAuthToken(ctx, database, "youtube")
		if err != nil {
			t.Fatalf("read token: %v", err)
		}
		if access == "new-access" {
			if refresh != "refresh-2" {
				t.Fatalf("refresh token = %q, want rotated value", refresh)
			}
			// Empty scope from the provider keeps the previous one.
			if scope != "scope-a" {
				t.Fatalf("scope = %q, want the preserved value", scope)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("refreshed token never persisted")
}

func TestRefresherSkipsFreshToken(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := db.UpsertOAuthToken(ctx, database, "youtube", "access", "refresh",
		time.Now().Add(24*time.Hour), "")
	if err != nil {
		t.Fatalf("seed token: %v", err)
	}

	var calls atomic.Int32
	fn := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		calls.Add(1)
		return "x", "y", time.Now(), "", nil
	}
	StartRefresher(ctx, database, "youtube", 30*time.Millisecond, 10*time.Minute, fn)

	time.Sleep(500 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("refresh called %d times for a token outside the window", calls.Load())
	}
}
