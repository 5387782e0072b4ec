package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/clip-tender/backend/db"
	"github.com/onnwee/clip-tender/backend/testutil"
)

func TestBatchUpsertStreamsIdempotent(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.TruncateAll(t, database)
	ctx := context.Background()

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	streams := []db.Stream{{
		RawID:        "s1",
		RawChannelID: "ch1",
		Title:        "going live",
		Status:       "live",
		ViewCount:    10,
		StartedAt:    &started,
	}}
	if err := db.BatchUpsertStreams(ctx, database, streams); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	streams[0].Status = "ended"
	streams[0].ViewCount = 250
	if err := db.BatchUpsertStreams(ctx, database, streams); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	n, err := db.CountStreams(ctx, database)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("streams = %d, want 1", n)
	}
	var status string
	var views int64
	if err := database.QueryRow(`SELECT status, view_count FROM streams WHERE raw_id = 's1'`).Scan(&status, &views); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if status != "ended" || views != 250 {
		t.Fatalf("status=%s views=%d, want updated values", status, views)
	}
}

func TestBatchUpsertStreamTranslations(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.TruncateAll(t, database)
	ctx := context.Background()

	if err := db.BatchUpsertStreams(ctx, database, []db.Stream{{RawID: "s1", RawChannelID: "ch1", Title: "original"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	trs := []db.StreamTranslation{{StreamRawID: "s1", LanguageCode: "de", Title: "übersetzt"}}
	if err := db.BatchUpsertStreamTranslations(ctx, database, trs); err != nil {
		t.Fatalf("upsert translations: %v", err)
	}
	// Overwrite the same language row.
	trs[0].Title = "neu übersetzt"
	if err := db.BatchUpsertStreamTranslations(ctx, database, trs); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var title string
	err := database.QueryRow(`SELECT title FROM stream_translations WHERE stream_raw_id = 's1' AND language_code = 'de'`).Scan(&title)
	if err != nil {
		t.Fatalf("read translation: %v", err)
	}
	if title != "neu übersetzt" {
		t.Fatalf("title = %q", title)
	}
	var canonical string
	if err := database.QueryRow(`SELECT title FROM streams WHERE raw_id = 's1'`).Scan(&canonical); err != nil {
		t.Fatalf("read canonical: %v", err)
	}
	if canonical != "original" {
		t.Fatalf("canonical title = %q, must be untouched", canonical)
	}
}

func TestBatchUpsertClipsIdempotent(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.TruncateAll(t, database)
	ctx := context.Background()

	published := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	clips := []db.Clip{{
		RawID:           "clip1",
		RawChannelID:    "ch1",
		Title:           "wow",
		ViewCount:       5,
		DurationSeconds: 27,
		PublishedAt:     &published,
	}}
	if err := db.BatchUpsertClips(ctx, database, clips); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	clips[0].ViewCount = 5000
	if err := db.BatchUpsertClips(ctx, database, clips); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	n, err := db.CountClips(ctx, database)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("clips = %d, want 1", n)
	}
	var views int64
	if err := database.QueryRow(`SELECT view_count FROM clips WHERE raw_id = 'clip1'`).Scan(&views); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if views != 5000 {
		t.Fatalf("view_count = %d, want the updated value", views)
	}
}

func TestBatchUpsertDiscordServersDefaultsLanguage(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.TruncateAll(t, database)
	ctx := context.Background()

	servers := []db.DiscordServer{{ID: "g1", Name: "Guild One"}}
	if err := db.BatchUpsertDiscordServers(ctx, database, servers); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	var lang string
	if err := database.QueryRow(`SELECT language_code FROM discord_servers WHERE id = 'g1'`).Scan(&lang); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if lang != "default" {
		t.Fatalf("language_code = %q, want \"default\" when unset", lang)
	}
}
