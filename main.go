package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/korjavin/defiportfolio/portfolio"
)

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		// no logger yet, fall back to a development one for the message
		l, _ := zap.NewDevelopment()
		l.Sugar().Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := portfolio.NewMetrics(promRegistry)

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		sugar.Infow("Serving metrics", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorw("Metrics server stopped", "error", err)
		}
	}()

	// Protocol adapters
	dialCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	registry, closeReaders, err := buildRegistry(dialCtx, cfg, sugar)
	cancel()
	if err != nil {
		sugar.Fatalf("Failed to initialize adapters: %v", err)
	}
	defer closeReaders()

	aggregator := portfolio.NewAggregator(registry, metrics, sugar)

	// Initialize bot with increased timeout
	bot, err := gotgbot.NewBot(cfg.TelegramToken, &gotgbot.BotOpts{
		RequestOpts: &gotgbot.RequestOpts{
			Timeout: 60 * time.Second,
		},
	})
	if err != nil {
		sugar.Fatalf("Failed to create bot: %v", err)
	}

	// Create dispatcher
	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *gotgbot.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			sugar.Errorw("Error in handler", "error", err)
			return ext.DispatcherActionNoop
		},
	})

	// Create updater
	updater := ext.NewUpdater(dispatcher, &ext.UpdaterOpts{})

	// Setup handlers
	handlers := NewBotHandlers(registry, aggregator, cfg, sugar)
	handlers.RegisterHandlers(dispatcher)

	pruneCtx, stopPruning := context.WithCancel(context.Background())
	defer stopPruning()
	go handlers.PruneSessions(pruneCtx, 10*time.Minute)

	// Start bot
	sugar.Infow("Bot started successfully", "liveReads", cfg.LiveReads, "multicall", cfg.UseMulticall, "chains", registry.Chains())
	err = updater.StartPolling(bot, &ext.PollingOpts{
		DropPendingUpdates: true,
	})
	if err != nil {
		sugar.Fatalf("Failed to start polling: %v", err)
	}

	// Keep the bot running
	updater.Idle()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsServer.Shutdown(shutdownCtx)
}
