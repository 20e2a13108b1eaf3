package mock

import (
	"context"
	"fmt"

	"niftyscalp/internal/models"
	"niftyscalp/internal/provider"
)

// Analytics serves the options-analytics surface from a shared Market
// simulator. Spot, chain, and levels all derive from the same walk, so a
// cycle reading them sees an internally consistent market.
type Analytics struct {
	market *Market
}

var _ provider.OptionsAnalytics = (*Analytics)(nil)

// NewAnalytics wraps a simulator as an analytics client.
func NewAnalytics(market *Market) *Analytics {
	if market == nil {
		panic("mock: market is required")
	}
	return &Analytics{market: market}
}

// GetSpotPrice returns the simulated index level.
func (a *Analytics) GetSpotPrice(ctx context.Context, underlying string) (float64, error) {
	return a.market.Spot(), nil
}

// GetChainWithGreeks returns a synthetic chain around the current ATM strike.
func (a *Analytics) GetChainWithGreeks(ctx context.Context, underlying string) (*models.ChainSnapshot, error) {
	return a.market.Chain(), nil
}

// GetSupportResistance returns strike levels bracketing the current spot.
func (a *Analytics) GetSupportResistance(ctx context.Context, underlying string) (*models.SupportResistance, error) {
	return a.market.SupportResistance(), nil
}

// ResolveOptionInstrument mints a deterministic contract for the strike and
// side. Resolving the same strike twice yields the same key.
func (a *Analytics) ResolveOptionInstrument(ctx context.Context, underlying string, strike float64, side models.OptionSide) (*provider.OptionInstrument, error) {
	if strike <= 0 {
		return nil, fmt.Errorf("mock: invalid strike %.2f", strike)
	}
	key, symbol := a.market.Resolve(strike, side)
	return &provider.OptionInstrument{
		InstrumentKey: key,
		Symbol:        symbol,
		Strike:        strike,
	}, nil
}

// GetHistoricalCandles synthesizes a warm-up series ending near the
// instrument's current simulated price. Unknown instruments are an error,
// matching the live API contract.
func (a *Analytics) GetHistoricalCandles(ctx context.Context, instrumentKey string, count int) ([]models.Candle, error) {
	if count <= 0 {
		return nil, fmt.Errorf("mock: invalid candle count %d", count)
	}
	if instrumentKey == a.market.UnderlyingKey() {
		return a.market.History(a.market.Spot(), count), nil
	}
	premium, ok := a.market.Premium(instrumentKey)
	if !ok {
		return nil, fmt.Errorf("mock: unknown instrument %q", instrumentKey)
	}
	return a.market.History(premium, count), nil
}
