package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pogotraders/matchbot/matchbot"
	"github.com/pogotraders/matchbot/matchbot/database"
	"github.com/pogotraders/matchbot/matchbot/database/repositories"
	"github.com/pogotraders/matchbot/matchbot/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

// logNotifier stands in for the chat collaborator: the real front-end tears
// the conversation channel down when a trade closes, here we just record it.
type logNotifier struct{}

func (logNotifier) SpaceReleased(_ context.Context, report *repositories.CloseReport) {
	slog.Info("Conversation space released",
		slog.String("type", "trade"),
		slog.Int64("trade_id", report.Trade.ID),
		slog.Bool("completed", report.Completed))
}

func main() {
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := matchbot.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))
	slog.Info("Starting matchbot trading coordinator",
		slog.String("version", version),
		slog.String("commit", commit))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbStartTime := time.Now()
	db, err := database.New(ctx, database.DBConfig(cfg.DB))
	if err != nil {
		slog.Error("Database connection failed",
			slog.Any("error", err),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Schema initialization failed", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Database ready",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	coordinator := matchbot.New(*cfg, db, logNotifier{})
	if err := coordinator.Start(ctx); err != nil {
		slog.Error("Failed to start coordinator", slog.Any("error", err))
		os.Exit(-1)
	}
	defer coordinator.Shutdown()

	// Catch up on anything that expired while we were down.
	if err := coordinator.Sweeper.Sweep(ctx); err != nil {
		slog.Warn("Startup expiry sweep failed", slog.Any("error", err))
	}

	slog.Info("Matchbot is now running",
		slog.Duration("trade_retention", cfg.Trading.Retention()))

	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-s
	slog.Info("Shutting down matchbot...")
}
