// Package signalservice orchestrates one tick of the signal pipeline:
// snapshot DataStore, build SignalContext, run strategies, arbitrate,
// risk-gate, and dispatch, per symbol, every poll interval.
package signalservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"perpsignal/config"
	"perpsignal/internal/arbitrator"
	"perpsignal/internal/datastore"
	"perpsignal/internal/logger"
	"perpsignal/internal/metrics"
	"perpsignal/internal/model"
	"perpsignal/internal/risk"
	"perpsignal/internal/sourcemanager"
	"perpsignal/internal/strategy"
)

// Service runs the periodic tick loop across all configured symbols.
type Service struct {
	cfg           *config.Config
	ds            *datastore.DataStore
	sourceManager *sourcemanager.Manager
	engine        *strategy.Engine
	arbitrator    *arbitrator.Arbitrator
	risk          *risk.Engine
	journal       *risk.Journal
	notifier      model.Notifier
	metrics       *metrics.Metrics
	health        *metrics.HealthStatus
}

func New(
	cfg *config.Config,
	ds *datastore.DataStore,
	sourceManager *sourcemanager.Manager,
	engine *strategy.Engine,
	arb *arbitrator.Arbitrator,
	riskEngine *risk.Engine,
	journal *risk.Journal,
	notifier model.Notifier,
	m *metrics.Metrics,
	health *metrics.HealthStatus,
) *Service {
	return &Service{
		cfg:           cfg,
		ds:            ds,
		sourceManager: sourceManager,
		engine:        engine,
		arbitrator:    arb,
		risk:          riskEngine,
		journal:       journal,
		notifier:      notifier,
		metrics:       m,
		health:        health,
	}
}

// Run blocks, ticking every PollSeconds until ctx is cancelled. The
// current tick always finishes before Run returns, per spec's
// graceful-cancellation requirement.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.PollSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	now := time.Now()
	nowMs := now.UnixMilli()
	staleCount := 0

	for _, symbol := range s.ds.Symbols() {
		traceID := logger.GenerateTraceID(symbol, now)
		symCtx := logger.WithTraceID(ctx, traceID)
		if err := s.tickSymbol(symCtx, symbol, nowMs); err != nil {
			slog.Error("tick failed", append(logger.LogWithTrace(symCtx), "symbol", symbol, "phase", "tick", "err", err)...)
		}
		if sctx, ok := s.ds.Snapshot(symbol, nowMs); ok && !sctx.PriceFresh {
			staleCount++
		}
	}

	if s.metrics != nil {
		s.metrics.TickToSignalLatency.Observe(time.Since(now).Seconds())
		s.metrics.DataStoreStaleSymbols.Set(float64(staleCount))
	}
	if s.health != nil {
		s.health.SetLastTickTime(now)
	}
}

// tickSymbol runs the full pipeline for one symbol: build context,
// evaluate strategies, arbitrate, risk-gate, dispatch.
func (s *Service) tickSymbol(ctx context.Context, symbol string, nowMs int64) error {
	if s.sourceManager != nil {
		s.sourceManager.Refresh(symbol, time.UnixMilli(nowMs))
	}

	sctx, ok := s.ds.Snapshot(symbol, nowMs)
	if !ok {
		return nil
	}
	sctx.ClockState = model.ClockState(s.clockState())

	if !sctx.PriceFresh {
		return nil
	}

	candidates := s.engine.Generate(sctx)
	if s.metrics != nil {
		for _, strat := range s.engine.Strategies() {
			s.metrics.StrategiesEvaluatedTotal.WithLabelValues(strat.Name()).Inc()
		}
		for _, c := range candidates {
			s.metrics.CardsProposedTotal.WithLabelValues(c.Strategy).Inc()
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	winner, ok := s.arbitrator.ChooseBest(symbol, candidates, nowMs)
	if !ok {
		if s.metrics != nil && len(candidates) > 1 {
			s.metrics.CardsCollapsedTotal.Add(float64(len(candidates) - 1))
		}
		return nil
	}
	if s.metrics != nil {
		s.metrics.CardsWinnerTotal.WithLabelValues(winner.Strategy).Inc()
		if collapsed := len(candidates) - 1; collapsed > 0 {
			s.metrics.CardsCollapsedTotal.Add(float64(collapsed))
		}
	}

	if reason := s.risk.Evaluate(symbol, nowMs); reason != risk.BlockNone {
		slog.Info("card blocked", append(logger.LogWithTrace(ctx), "symbol", symbol, "phase", "risk", "reason", string(reason))...)
		return nil
	}

	if err := s.risk.RecordTrigger(symbol, nowMs); err != nil {
		return fmt.Errorf("record trigger: %w", err)
	}
	s.arbitrator.RecordDispatch(symbol, nowMs)

	if s.journal != nil {
		if err := s.journal.RecordDispatch(*winner, nowMs); err != nil {
			slog.Error("journal write failed", append(logger.LogWithTrace(ctx), "symbol", symbol, "phase", "journal", "err", err)...)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.SendCard(ctx, *winner, "", nil); err != nil {
			slog.Error("notify failed", append(logger.LogWithTrace(ctx), "symbol", symbol, "phase", "notify", "err", err)...)
		}
	}
	if s.metrics != nil {
		s.metrics.CardsDispatchedTotal.Inc()
	}
	if s.health != nil {
		s.health.SetLastCardAt(time.Now())
	}

	return nil
}

func (s *Service) clockState() string {
	if s.health == nil {
		return string(model.ClockNormal)
	}
	return s.health.ClockStateValue()
}
