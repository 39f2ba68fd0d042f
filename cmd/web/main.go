package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/AdamBeresnev/bot-arena/internal/config"
	"github.com/AdamBeresnev/bot-arena/internal/db"
	"github.com/AdamBeresnev/bot-arena/internal/game"
	"github.com/AdamBeresnev/bot-arena/internal/service"
	"github.com/AdamBeresnev/bot-arena/internal/store"
	"github.com/AdamBeresnev/bot-arena/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "bot-arena", cfg.OtelEndpoint)
	if err != nil {
		log.Fatal("Failed to set up tracing: ", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("Failed to flush traces", "error", err)
		}
	}()

	database := db.InitDB(cfg.DatabasePath)
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	registry := game.DefaultRegistry()
	tournamentStore := store.NewTournamentStore(database)
	botStore := store.NewBotStore(database)
	opts := []service.Option{service.WithMaxMoves(cfg.MaxMoves)}

	app := &application{
		bots:        service.NewBotService(botStore, opts...),
		tournaments: service.NewTournamentService(database, tournamentStore, botStore, registry, opts...),
		matches:     service.NewMatchService(database, tournamentStore, registry, opts...),
	}
	app.scheduler = service.NewScheduler(app.tournaments, app.matches, cfg.MatchWorkers, cfg.PollInterval)
	app.baseCtx = ctx

	if err := resumeTournaments(ctx, app); err != nil {
		slog.Error("Failed to resume tournaments", "error", err)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	app.scheduler.Shutdown()
}

// resumeTournaments relaunches scheduler loops for tournaments that were in
// progress when the server last stopped.
func resumeTournaments(ctx context.Context, app *application) error {
	filter := service.ListFilter{Status: bracket.TournamentInProgress, Limit: 100}
	for {
		page, err := app.tournaments.List(ctx, filter)
		if err != nil {
			return err
		}
		for _, t := range page.Tournaments {
			if app.scheduler.Launch(ctx, t.ID) {
				slog.Info("Resumed tournament", "tournament_id", t.ID)
			}
		}
		filter.Offset += len(page.Tournaments)
		if len(page.Tournaments) == 0 || filter.Offset >= page.Total {
			return nil
		}
	}
}
