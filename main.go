// Command backend is the main entrypoint for the clip-tender API and background workers.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Connects to NATS JetStream and starts the ingest consumer.
//   - Starts background jobs: the periodic clip fetch scheduler and the
//     YouTube OAuth token refresher.
//   - Exposes an HTTP server with /ingest, /healthz, /readyz, /status, /metrics,
//     OAuth endpoints, and admin triggers.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/joho/godotenv"
	"github.com/onnwee/clip-tender/backend/config"
	"github.com/onnwee/clip-tender/backend/db"
	"github.com/onnwee/clip-tender/backend/discordapi"
	"github.com/onnwee/clip-tender/backend/fetcher"
	"github.com/onnwee/clip-tender/backend/ingest"
	"github.com/onnwee/clip-tender/backend/oauth"
	"github.com/onnwee/clip-tender/backend/queue"
	"github.com/onnwee/clip-tender/backend/quota"
	"github.com/onnwee/clip-tender/backend/server"
	"github.com/onnwee/clip-tender/backend/telemetry"
	"github.com/onnwee/clip-tender/backend/translate"
	"github.com/onnwee/clip-tender/backend/twitchapi"
	"github.com/onnwee/clip-tender/backend/youtubeapi"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load("backend/.env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("clip-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Run database migrations using dual-system approach:
	// 1. Primary: versioned migrations (golang-migrate) from db/migrations/
	// 2. Fallback: embedded SQL (db.Migrate) for backward compatibility
	//
	// New deployments use versioned migrations with proper version tracking.
	// Old deployments without schema_migrations table fall back to embedded SQL.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to legacy embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		// Fallback to embedded SQL migration for backward compatibility with pre-migration deployments
		migrationCtx := context.Background()
		if err := db.Migrate(migrationCtx, database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("legacy embedded SQL migration completed successfully (consider migrating to versioned migrations)",
			slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed successfully",
			slog.String("component", "db_migrate"))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Queue: NATS JetStream connection, stream provisioning, and the batch publisher.
	nc, js, err := queue.Connect(cfg.NatsURL)
	if err != nil {
		slog.Error("failed to connect to nats", slog.Any("err", err), slog.String("url", cfg.NatsURL))
		os.Exit(1)
	}
	defer nc.Close()
	if err := queue.EnsureStream(js, cfg.IngestStream, cfg.IngestSubject); err != nil {
		slog.Error("failed to ensure ingest stream", slog.Any("err", err))
		os.Exit(1)
	}
	pub := queue.NewPublisher(js, cfg.IngestSubject, cfg.MaxPayloadBytes)

	// Redis-backed daily YouTube quota ledger.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("failed to close redis", slog.Any("err", err))
		}
	}()
	ledger := quota.New(rdb, cfg.FetchQuotaDaily)

	// Platform clients. Missing credentials disable the corresponding feature
	// rather than failing startup.
	helix := &twitchapi.HelixClient{
		AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
		ClientID:       cfg.TwitchClientID,
	}
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		// Best-effort warm-up of the app access token so the first fetch pass doesn't pay for it.
		ctx2, cancel := context.WithTimeout(ctx, 8*time.Second)
		if tok, err := helix.AppTokenSource.Get(ctx2); err != nil {
			slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		} else if len(tok) > 6 {
			masked := "***" + tok[len(tok)-6:]
			slog.Info("twitch app token acquired", slog.String("tail", masked))
		}
		cancel()
	}

	ytSvc := youtubeapi.New(cfg, &db.TokenStoreAdapter{DB: database})

	var discord ingest.DiscordSender
	if err := cfg.ValidateDiscordReady(); err == nil {
		dc, derr := discordapi.New(cfg.DiscordBotToken)
		if derr != nil {
			slog.Error("discord client init failed", slog.Any("err", derr))
			os.Exit(1)
		}
		discord = dc
	} else {
		slog.Info("discord sends disabled (missing DISCORD_BOT_TOKEN)")
	}

	var translator translate.Translator
	if cfg.TranslateURL != "" {
		translator = &translate.HTTPTranslator{URL: cfg.TranslateURL, Key: cfg.TranslateKey}
	} else {
		slog.Info("translation disabled (missing TRANSLATE_URL)")
	}

	cursor := &fetcher.Cursor{
		DB:      database,
		YouTube: ytSvc,
		Twitch:  helix,
		Quota:   ledger,
	}

	// Ingest consumer: routes queued message batches to the per-kind handlers.
	router := ingest.NewRouter(database, pub, translator, discord, cursor)
	consumer, err := queue.NewConsumer(js, cfg.IngestSubject, cfg.IngestDurable, cfg.DeliveryBatch, router.Route)
	if err != nil {
		slog.Error("failed to create ingest consumer", slog.Any("err", err))
		os.Exit(1)
	}
	go consumer.Start(ctx)

	// Periodic clip fetch scheduler (enqueues fetch-clips-by-creator messages).
	fetcher.StartClipFetchJob(ctx, database, pub, cfg)

	// Centralized YouTube OAuth token refresher
	oauth.StartRefresher(ctx, database, "youtube", 10*time.Minute, 20*time.Minute, func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		if cfg.YTClientID == "" {
			return "", "", time.Time{}, "", context.Canceled
		}
		oc := &oauth2.Config{ClientID: cfg.YTClientID, ClientSecret: cfg.YTClientSecret, Endpoint: google.Endpoint, RedirectURL: cfg.YTRedirectURI}
		newTok, err := oc.TokenSource(rctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			return "", "", time.Time{}, "", err
		}
		return newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, "", nil
	})

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (ingest/health/status/metrics/oauth/admin); blocks until shutdown signal
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	if err := server.Start(ctx, server.Deps{DB: database, Queue: pub, YouTube: ytSvc}, addr); err != nil {
		slog.Error("http server exited with error", slog.Any("err", err))
	}
	slog.Info("shutting down")
}
