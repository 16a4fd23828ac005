// Command guild-recorder records the activity of one Discord guild into Postgres.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Opens a gateway session and records every accepted notification as one
//     row in the events table, optionally fanning it out over NATS.
//   - Exposes a minimal HTTP server with /healthz, /readyz, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/guild-recorder/config"
	"github.com/onnwee/guild-recorder/db"
	"github.com/onnwee/guild-recorder/events"
	"github.com/onnwee/guild-recorder/gateway"
	"github.com/onnwee/guild-recorder/normalize"
	"github.com/onnwee/guild-recorder/recorder"
	"github.com/onnwee/guild-recorder/server"
	"github.com/onnwee/guild-recorder/store"
	"github.com/onnwee/guild-recorder/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

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

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateGateway(); err != nil {
		slog.Error("gateway config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdown, err := telemetry.InitTracing("guild-recorder", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	database, err := db.Connect(cfg)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first; the embedded schema covers binaries shipped
	// without the migrations directory.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, falling back to embedded schema",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("embedded schema applied", slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed successfully", slog.String("component", "db_migrate"))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go db.StartPoolMetrics(ctx, database, 15*time.Second)

	var pub events.Publisher = &events.NoopPublisher{}
	if cfg.NATSURL != "" {
		np, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			slog.Error("failed to connect to nats", slog.Any("err", err), slog.String("url", cfg.NATSURL))
			os.Exit(1)
		}
		pub = np
		slog.Info("event fan-out enabled", slog.String("url", cfg.NATSURL))
	}
	defer func() {
		if err := pub.Close(); err != nil {
			slog.Error("failed to close publisher", slog.Any("err", err))
		}
	}()

	session, err := gateway.NewSession(cfg.DiscordToken, cfg.PresenceIntent)
	if err != nil {
		slog.Error("failed to create gateway session", slog.Any("err", err))
		os.Exit(1)
	}
	norm := normalize.New(cfg.GuildID, gateway.Channels(session.State))
	rec := recorder.New(norm, store.New(database), pub)

	gwDone := make(chan struct{})
	go func() {
		defer close(gwDone)
		if err := gateway.Run(ctx, session, rec); err != nil {
			slog.Error("gateway exited with error", slog.Any("err", err))
			stop()
		}
	}()

	go func() {
		if err := server.Start(ctx, database, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("recording guild", slog.Int64("guild", cfg.GuildID), slog.Bool("presence", cfg.PresenceIntent))

	<-ctx.Done()
	slog.Info("shutting down")
	// Handlers still writing need the database and publisher open.
	<-gwDone
}
