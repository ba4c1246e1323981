package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"perpsignal/config"
	"perpsignal/internal/arbitrator"
	"perpsignal/internal/datastore"
	"perpsignal/internal/logger"
	"perpsignal/internal/metrics"
	"perpsignal/internal/notification"
	"perpsignal/internal/risk"
	"perpsignal/internal/signalservice"
	"perpsignal/internal/sourcemanager"
	"perpsignal/internal/strategy"
	"perpsignal/pkg/binancefeed"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("signalservice", slog.LevelInfo)
	log.Println("[signalservice] starting...")

	cfg := config.Load()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetSymbols(cfg.Symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ds := datastore.New(cfg.Symbols, int64(cfg.StaleSeconds), cfg.KlineStaleMs)
	feed := binancefeed.NewREST("", "")

	var cache *sourcemanager.WarmCache
	if cfg.RedisAddr != "" {
		cache = sourcemanager.NewWarmCache(cfg.RedisAddr, cfg.RedisPassword, prom)
		health.SetCacheConnected(cache.Connected())
		log.Println("[signalservice] warm cache ready")
	}

	mgr := sourcemanager.New(cfg, ds, prom, health, feed, cache)
	go mgr.Run(ctx)

	engine := strategy.NewEngine()
	engine.Register(strategy.NewFakeBreakoutReversal(cfg))
	engine.Register(strategy.NewFundingOISkew(cfg))
	engine.Register(strategy.NewLiquidationFollow(cfg))
	engine.Register(strategy.NewVolBreakout(cfg))
	log.Printf("[signalservice] registered %d strategies", len(engine.Strategies()))

	arb := arbitrator.New(cfg)

	ledger, err := risk.NewPnLLedger(cfg.PnLCSVPath, prom)
	if err != nil {
		log.Fatalf("[signalservice] pnl ledger init failed: %v", err)
	}

	riskStore := risk.NewFileStore(cfg.RiskStatePath)
	riskEngine, err := risk.NewEngine(cfg, riskStore, ledger, prom)
	if err != nil {
		log.Fatalf("[signalservice] risk engine init failed: %v", err)
	}

	journal, err := risk.NewJournal(cfg.SQLitePath, prom)
	if err != nil {
		log.Fatalf("[signalservice] journal init failed: %v", err)
	}
	defer journal.Close()
	health.SetJournalOK(true)

	notifier := &notification.CardAdapter{Notifier: buildNotifier(cfg)}

	svc := signalservice.New(cfg, ds, mgr, engine, arb, riskEngine, journal, notifier, prom, health)
	go svc.Run(ctx)

	log.Printf("[signalservice] running, poll_seconds=%d symbols=%v", cfg.PollSeconds, cfg.Symbols)

	<-sigCh
	log.Println("[signalservice] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if cache != nil {
		cache.Close()
	}

	log.Println("[signalservice] shutdown complete.")
}

// buildNotifier picks the configured delivery backend, preferring
// Telegram, then a generic webhook, falling back to logging so the
// service always has a working Notifier without external config.
func buildNotifier(cfg *config.Config) notification.Notifier {
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		return notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	}
	if cfg.WebhookURL != "" {
		return notification.NewWebhookNotifier(cfg.WebhookURL)
	}
	return notification.NewLogNotifier()
}
