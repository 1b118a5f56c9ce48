package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rfadeyev/auction-house/internal/auction"
	"github.com/rfadeyev/auction-house/internal/clock"
	"github.com/rfadeyev/auction-house/internal/config"
	"github.com/rfadeyev/auction-house/internal/health"
	"github.com/rfadeyev/auction-house/internal/httpapi"
	"github.com/rfadeyev/auction-house/internal/leader"
	"github.com/rfadeyev/auction-house/internal/moderation"
	"github.com/rfadeyev/auction-house/internal/notify"
	"github.com/rfadeyev/auction-house/internal/projection"
	"github.com/rfadeyev/auction-house/internal/settle"
	"github.com/rfadeyev/auction-house/internal/store"
	"github.com/rfadeyev/auction-house/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/rfadeyev/auction-house/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	notifier := notify.Log{Logger: logger}
	thresholds := auction.Thresholds{
		EndingSoon: cfg.Auction.EndingSoonWithin,
		Hot:        cfg.Auction.HotWithin,
	}

	auctionMgr := auction.NewManager(repos.Listings, repos.Bids, repos.Events, notifier,
		logger, tp.TracerProvider, clk, thresholds, cfg.Auction.BidAttempts)
	modMgr := moderation.NewManager(repos.Listings, repos.Events, notifier,
		logger, tp.TracerProvider, clk)
	projections := projection.NewService(repos.Listings, repos.Bids, logger, tp.TracerProvider, clk)
	sweeper := settle.New(repos.Listings, repos.Events, notifier,
		logger, tp.TracerProvider, clk, cfg.Auction.SettleInterval)

	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	api := httpapi.NewHandler(auctionMgr, modMgr, projections, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())
	mux.Handle("/api/", api.Router())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
		}
	}()
	healthHandler.SetReady(true)

	// The settlement sweep mutates shared state, so exactly one replica
	// runs it. The API itself serves on every replica.
	if cfg.LeaderElection.Enabled {
		go func() {
			leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, func(leadCtx context.Context) {
				logger.InfoContext(leadCtx, "acquired settlement leadership")
				sweeper.Run(leadCtx)
			}, func() {
				logger.Info("lost settlement leadership")
			})
			if leaderErr != nil {
				logger.ErrorContext(ctx, "leader election failed", slog.Any("error", leaderErr))
			}
		}()
	} else {
		go sweeper.Run(ctx)
	}

	logger.InfoContext(ctx, "auctiond is running", slog.String("version", version))

	<-ctx.Done()
	logger.Info("shutting down...")
	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
