package main

import (
	"context"
	"fmt"
	"time"

	"niftyscalp/internal/logger"
	"niftyscalp/internal/metrics"
	"niftyscalp/internal/provider"
)

// Run subscribes the market set, resolves the initial ATM pair, warms up the
// level engine, and then drives the evaluation and rotation schedules until
// the context ends or a stop is signalled.
func (b *Bot) Run(ctx context.Context) error {
	b.log.WithFields(logger.Fields{
		"mode":       b.cfg.Environment.Mode,
		"underlying": b.cfg.Underlying.Name,
	}).Info("Engine starting")

	// Both feed implementations record subscriptions before the connection
	// exists and replay them once it is up, so the order here is safe.
	if err := b.feed.Subscribe([]string{b.underlyingKey}, "1"); err != nil {
		return fmt.Errorf("subscribing underlying: %w", err)
	}
	if err := b.rotateATM(ctx); err != nil {
		return fmt.Errorf("resolving initial ATM pair: %w", err)
	}
	if err := b.warmUp(ctx); err != nil {
		b.log.WithError(err).Warn("Warm-up incomplete, levels will build from live data")
	}
	if err := b.feed.Start(ctx); err != nil {
		return fmt.Errorf("starting feed: %w", err)
	}

	cycle := time.NewTicker(b.cfg.GetCycleInterval())
	defer cycle.Stop()
	rotation := time.NewTicker(b.cfg.GetRotationInterval())
	defer rotation.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.stop:
			return nil
		case <-cycle.C:
			b.runCycle(ctx)
		case <-rotation.C:
			if err := b.rotateATM(ctx); err != nil {
				b.log.WithError(err).Error("ATM rotation failed")
			}
		}
	}
}

// runCycle is one evaluation pass: the confluence check first, then the exit
// ladder for whatever position is open.
func (b *Bot) runCycle(ctx context.Context) {
	metrics.CyclesTotal.Inc()
	if err := b.engine.Evaluate(ctx); err != nil {
		metrics.CycleErrorsTotal.Inc()
		b.log.WithError(err).Error("Evaluation cycle failed")
	}
	b.risk.ManageRisk(time.Now())
}

// handleFeedMessage routes incoming frames into the stream router. It runs
// on the feed's read goroutine.
func (b *Bot) handleFeedMessage(msg *provider.Message) {
	switch msg.Type {
	case provider.MessageLiveFeed:
		for key, entry := range msg.Feeds {
			b.router.OnTick(key, entry.LastPrice, entry.Qty, entry.TsMillis)
			if role, ok := b.router.RoleFor(key); ok {
				metrics.TicksTotal.WithLabelValues(string(role)).Inc()
			} else {
				metrics.TicksDroppedTotal.Inc()
			}
		}
	case provider.MessageChartUpdate:
		b.router.OnCandles(msg.InstrumentKey, msg.Candles)
	}
}
