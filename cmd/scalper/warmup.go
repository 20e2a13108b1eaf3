package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"niftyscalp/internal/logger"
	"niftyscalp/internal/models"
)

// warmUp seeds the candle buffers and the level engine with history for the
// underlying and both option legs. The fetches run concurrently; a failure
// on any leg abandons the whole warm-up and the engine starts cold.
func (b *Bot) warmUp(ctx context.Context) error {
	count := b.cfg.Schedule.WarmupCandles

	keys := []string{b.underlyingKey}
	if callKey, ok := b.router.KeyFor(models.RoleATMCall); ok {
		keys = append(keys, callKey)
	}
	if putKey, ok := b.router.KeyFor(models.RoleATMPut); ok {
		keys = append(keys, putKey)
	}

	series := make([][]models.Candle, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			candles, err := b.analytics.GetHistoricalCandles(gctx, key, count)
			if err != nil {
				return fmt.Errorf("history for %s: %w", key, err)
			}
			series[i] = candles
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, key := range keys {
		b.router.OnCandles(key, series[i])
	}
	b.levels.SeedVolumeProfile(series[0])

	b.log.WithFields(logger.Fields{
		"instruments": len(keys),
		"candles":     count,
	}).Info("Warm-up complete")
	return nil
}
