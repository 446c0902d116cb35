package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KotFed0t/crypto_portfolio_tracker/config"
	"github.com/KotFed0t/crypto_portfolio_tracker/data"
	"github.com/KotFed0t/crypto_portfolio_tracker/data/cache"
	"github.com/KotFed0t/crypto_portfolio_tracker/data/localstore"
	"github.com/KotFed0t/crypto_portfolio_tracker/data/repository/postgres"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/connectivity"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/eventbus"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/externalApi"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/externalApi/cloudStorageApi/googleDriveApi"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/externalApi/coingeckoApi"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/model"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/reportGenerator/xlsxGenerator"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/retry"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/scheduler"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/service/portfolioService"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/service/reportService"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/settings"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgClient := data.NewPostgresClient(cfg)
	defer pgClient.Close()

	pgRepo := postgres.NewPostgres(cfg, pgClient)

	coingecko := coingeckoApi.New(cfg)

	monitor := connectivity.NewMonitor(coingecko)

	priceCache := cache.NewMemoryCache(coingecko, cfg.Cache.QuotesTTL, time.Now)

	bus := eventbus.New()

	policy := retry.Policy{MaxRetries: cfg.Retry.MaxRetries, BaseDelay: cfg.Retry.BaseDelay}

	settingsSrv := settings.New(pgRepo, localstore.NewFileStore(cfg.Settings.FallbackFile), policy, monitor.IsOffline)

	portfolioSrv := portfolioService.New(cfg, pgRepo, priceCache, settingsSrv, bus, monitor.IsOffline, time.Now)
	defer portfolioSrv.Close()

	unsubscribe := bus.Subscribe(eventbus.TopicPortfolioRefreshed, func(payload any) {
		if event, ok := payload.(model.PortfolioRefreshedEvent); ok {
			slog.Info("portfolio refreshed", slog.String("totalValue", event.Summary.TotalValue.String()))
		}
	})
	defer unsubscribe()

	var storage reportService.CloudStorage
	driveApi, err := googleDriveApi.New(ctx, cfg)
	switch {
	case err == nil:
		storage = driveApi
	case errors.Is(err, externalApi.ErrMissingCredentials):
		slog.Info("google drive upload disabled: no credentials configured")
	default:
		slog.Error("google drive init failed", slog.String("err", err.Error()))
	}

	reportSrv := reportService.New(portfolioSrv, xlsxGenerator.New(), storage, time.Now)

	if err := portfolioSrv.LoadPortfolioData(ctx); err != nil {
		slog.Error("initial load failed", slog.String("err", err.Error()))
	}

	sched := scheduler.New()
	sched.NewIntervalJob("refresh prices", portfolioSrv.RefreshPricesJob, cfg.Jobs.PriceRefreshInterval, false)
	sched.NewIntervalJob("connectivity probe", func(ctx context.Context) error {
		if monitor.Probe(ctx) {
			portfolioSrv.RefreshPrices(ctx)
		}
		return nil
	}, cfg.Jobs.ConnectivityProbeInterval, true)
	if storage != nil {
		sched.NewIntervalJob("drive cleanup", driveApi.CleanupJob, cfg.Jobs.DriveCleanupInterval, false)
		sched.NewIntervalJob("export report", func(ctx context.Context) error {
			_, filename, link, err := reportSrv.Export(ctx)
			if err != nil {
				return err
			}
			slog.Info("report exported", slog.String("filename", filename), slog.String("link", link))
			return nil
		}, cfg.Jobs.ReportExportInterval, false)
	}
	sched.Start()
	defer sched.Stop()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
