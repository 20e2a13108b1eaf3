package main

import (
	"context"
	"errors"
	"fmt"

	"niftyscalp/internal/logger"
	"niftyscalp/internal/metrics"
	"niftyscalp/internal/models"
	"niftyscalp/internal/stream"
	"niftyscalp/internal/util"
)

// rotateATM recomputes the at-the-money strike from the current spot,
// resolves both contracts, and swaps the subscribed pair when either leg
// changed. The first call maps the initial pair.
func (b *Bot) rotateATM(ctx context.Context) error {
	spot := b.router.Spot()
	if spot <= 0 {
		// No tick yet; fall back to the analytics quote.
		quoted, err := b.analytics.GetSpotPrice(ctx, b.cfg.Underlying.Name)
		if err != nil {
			return fmt.Errorf("fetching spot: %w", err)
		}
		spot = quoted
	}
	if spot <= 0 {
		return errors.New("no usable spot price for rotation")
	}

	step := b.cfg.Underlying.StrikeStep
	if step <= 0 {
		step = util.StrikeStep(b.cfg.Underlying.Name)
	}
	strike := util.ATMStrike(spot, step)

	call, err := b.analytics.ResolveOptionInstrument(ctx, b.cfg.Underlying.Name, strike, models.SideCall)
	if err != nil {
		return fmt.Errorf("resolving call leg: %w", err)
	}
	put, err := b.analytics.ResolveOptionInstrument(ctx, b.cfg.Underlying.Name, strike, models.SidePut)
	if err != nil {
		return fmt.Errorf("resolving put leg: %w", err)
	}

	curCall, _ := b.router.KeyFor(models.RoleATMCall)
	curPut, _ := b.router.KeyFor(models.RoleATMPut)
	if call.InstrumentKey == curCall && put.InstrumentKey == curPut {
		return nil
	}

	for _, key := range []string{curCall, curPut} {
		if key == "" {
			continue
		}
		if err := b.feed.Unsubscribe(key); err != nil {
			b.log.WithError(err).WithFields(logger.Fields{"instrument": key}).Warn("Unsubscribe of old leg failed")
		}
	}

	b.router.SwapPair(
		stream.Leg{Key: call.InstrumentKey, Symbol: call.Symbol},
		stream.Leg{Key: put.InstrumentKey, Symbol: put.Symbol},
	)

	if err := b.feed.Subscribe([]string{call.InstrumentKey, put.InstrumentKey}, "1"); err != nil {
		return fmt.Errorf("subscribing legs: %w", err)
	}

	metrics.RotationsTotal.Inc()
	b.log.WithFields(logger.Fields{
		"strike": strike,
		"call":   call.Symbol,
		"put":    put.Symbol,
		"spot":   spot,
	}).Info("ATM pair switched")
	return nil
}
