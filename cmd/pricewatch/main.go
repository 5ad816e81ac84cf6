// Command pricewatch serves the pricing-page monitor: subscription and run
// API, MCP endpoint, Prometheus metrics and an optional cron schedule.
//
//	pricewatch -config pricewatch.yaml
//	pricewatch -run-once            # one run, report on stdout, exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pricewatch/dbopen"
	"github.com/hazyhaar/pricewatch/monitor"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("pricewatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", env("PRICEWATCH_CONFIG", ""), "YAML config file")
	port := flag.String("port", env("PORT", "8080"), "HTTP listen port")
	dbPath := flag.String("db", env("DB_PATH", "data/pricewatch.db"), "SQLite database path")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "debug, info, warn or error")
	runOnce := flag.Bool("run-once", false, "execute one run, print the report and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	cfg := &monitor.Config{}
	if *configPath != "" {
		loaded, err := monitor.LoadConfigFile(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := applyEnv(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := setupTracing(ctx, "pricewatch", version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("pricewatch: tracing shutdown", "error", err)
		}
	}()

	db, err := dbopen.Open(*dbPath, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := dbopen.Checkpoint(context.Background(), db); err != nil {
			logger.Warn("pricewatch: wal checkpoint", "error", err)
		}
		db.Close()
	}()

	svc, err := monitor.New(db, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if *runOnce {
		return runOnceAndPrint(ctx, svc)
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "pricewatch", Version: version}, nil)
	svc.RegisterMCP(mcpSrv)

	svc.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           svc.Handler(mcpSrv),
		ReadHeaderTimeout: 10 * time.Second,
		// Runs can take minutes over many targets.
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("pricewatch: server starting", "port", *port, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("pricewatch: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("pricewatch: shutdown", "error", err)
	}
	logger.Info("pricewatch: server stopped")
	return nil
}

func runOnceAndPrint(ctx context.Context, svc *monitor.Service) error {
	report, err := svc.RunNow(monitor.WithTrigger(ctx, monitor.TriggerCLI))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// applyEnv overlays environment variables on cfg. Variables win over the
// config file.
func applyEnv(cfg *monitor.Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("CHANGE_POLICY", &cfg.ChangePolicy)
	str("RUN_SCHEDULE", &cfg.Schedule)
	str("ARCHIVE_DIR", &cfg.ArchiveDir)
	str("RENDER_MODE", &cfg.Render.Mode)
	str("CHROME_REMOTE_URL", &cfg.Render.RemoteURL)
	str("CHROME_BIN", &cfg.Render.ChromeBin)
	str("SENDGRID_API_KEY", &cfg.Notify.SendGridAPIKey)
	str("FROM_EMAIL", &cfg.Notify.From)
	str("WEBHOOK_URL", &cfg.Notify.WebhookURL)
	str("NATS_URL", &cfg.Events.URL)

	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("NAV_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NAV_TIMEOUT: %w", err)
		}
		cfg.Render.NavTimeout = d
	}
	if v := os.Getenv("NATS_JETSTREAM"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("NATS_JETSTREAM: %w", err)
		}
		cfg.Events.JetStream = b
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
