// Package strategy implements the confluence signal engine: each cycle it
// fuses underlying zone proximity, option-chain sentiment, and ATM leg price
// action into at most one simulated entry.
package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"niftyscalp/internal/levels"
	"niftyscalp/internal/metrics"
	"niftyscalp/internal/models"
	"niftyscalp/internal/provider"
	"niftyscalp/internal/stream"
)

// strikeTolerance is the relative proximity treated as "at" a support or
// resistance strike.
const strikeTolerance = 0.0005

// RiskExecutor is the slice of the risk manager the signal engine drives:
// the open-position gate and the entry itself.
type RiskExecutor interface {
	HasOpenPosition() bool
	ExecuteBuy(instrumentKey, symbol string, side models.OptionSide, entryPrice, stopAnchor, underlyingSpot float64) (*models.Position, error)
}

// Confluence evaluates the entry conditions once per cycle while no position
// is open. Evaluate runs on the orchestrator's cycle goroutine only; the
// previous chain snapshot is carried between cycles for the OI spurt.
type Confluence struct {
	underlying string
	router     *stream.Router
	levels     *levels.Engine
	analytics  provider.OptionsAnalytics
	risk       RiskExecutor
	sink       Sink
	prevChain  []models.ChainRow
}

// NewConfluence wires the signal engine. underlying is the analytics-side
// identifier of the index (not its streaming key).
func NewConfluence(underlying string, router *stream.Router, lvl *levels.Engine, analytics provider.OptionsAnalytics, risk RiskExecutor, sink Sink) *Confluence {
	return &Confluence{
		underlying: underlying,
		router:     router,
		levels:     lvl,
		analytics:  analytics,
		risk:       risk,
		sink:       sink,
	}
}

// Evaluate runs one confluence cycle. Provider failures come back as errors
// for the orchestrator to surface; missing-data conditions end the cycle
// quietly with no signal.
func (c *Confluence) Evaluate(ctx context.Context) error {
	if c.risk.HasOpenPosition() {
		return nil
	}

	sr, err := c.analytics.GetSupportResistance(ctx, c.underlying)
	if err != nil {
		return fmt.Errorf("support/resistance fetch: %w", err)
	}
	chainSnap, err := c.analytics.GetChainWithGreeks(ctx, c.underlying)
	if err != nil {
		return fmt.Errorf("chain fetch: %w", err)
	}

	spot := c.router.Spot()
	if spot == 0 {
		spot = chainSnap.SpotPrice
	}
	if len(chainSnap.Chain) == 0 {
		return nil
	}

	pcr := c.levels.CalculatePCR(chainSnap.Chain, spot)

	var callSpurt, putSpurt int64
	if len(c.prevChain) > 0 {
		callSpurt, putSpurt = levels.OISpurt(chainSnap.Chain, c.prevChain)
	}
	c.prevChain = chainSnap.Chain

	if len(c.levels.PCRHistory()) < 2 {
		return nil
	}
	pcrRising := c.levels.PCRRising()

	// One-tick momentum; zero until the ring holds two entries.
	priceDelta, _ := c.router.TickDelta()

	netSpurt := putSpurt - callSpurt
	oiStatus := levels.BuildupStatus(priceDelta, netSpurt)
	bullishOi := (pcrRising && putSpurt > callSpurt) ||
		oiStatus == levels.BuildupLong || oiStatus == levels.BuildupShortCovering
	bearishOi := (!pcrRising && callSpurt > putSpurt) ||
		oiStatus == levels.BuildupShort || oiStatus == levels.BuildupUnwinding

	callKey, callMapped := c.router.KeyFor(models.RoleATMCall)
	putKey, putMapped := c.router.KeyFor(models.RoleATMPut)
	if !callMapped || !putMapped {
		return nil
	}
	callLevels, haveCallLevels := c.levels.OptionLevels(callKey)
	putLevels, havePutLevels := c.levels.OptionLevels(putKey)
	callTick, haveCallTick := c.router.LastTick(callKey)
	putTick, havePutTick := c.router.LastTick(putKey)
	if !haveCallLevels || !havePutLevels || !haveCallTick || !havePutTick {
		return nil
	}

	callVWAP := c.router.VWAP(models.RoleATMCall)
	putVWAP := c.router.VWAP(models.RoleATMPut)

	inZone, zoneLevel := c.levels.IsInSignalZone(spot)
	supports := strikesOf(sr.Support)
	resistances := strikesOf(sr.Resistance)

	atSupport := (inZone && spot <= zoneLevel*1.0005) || nearAnyStrike(spot, supports)
	breakingResistance := (inZone && spot >= zoneLevel*0.9995) || nearAnyStrike(spot, resistances)

	callBreakout := callTick.Price > max(callLevels.RecentSwingHigh, callVWAP, callLevels.PrevWindowHigh, callLevels.ORBHigh)
	putBreakdown := putTick.Price < min(putLevels.RecentSwingLow, putLevels.PrevWindowLow, putLevels.ORBLow)
	putBreakout := putTick.Price > max(putLevels.RecentSwingHigh, putVWAP, putLevels.PrevWindowHigh, putLevels.ORBHigh)
	callBreakdown := callTick.Price < min(callLevels.RecentSwingLow, callLevels.PrevWindowLow, callLevels.ORBLow)

	sentiment := SentimentNeutral
	switch {
	case bullishOi:
		sentiment = SentimentBullish
	case bearishOi:
		sentiment = SentimentBearish
	}

	underlyingLevel := 0.0
	switch {
	case inZone:
		underlyingLevel = zoneLevel
	case len(supports) > 0:
		underlyingLevel = supports[0]
	}

	// The OI, breakout, and inverse flags track the favored side.
	oiFlag := putSpurt > callSpurt
	optionBreakout := callBreakout
	inverseDown := putBreakdown
	if !bullishOi {
		oiFlag = callSpurt > putSpurt
		optionBreakout = putBreakout
		inverseDown = callBreakdown
	}

	now := time.Now()
	c.publishSnapshot(CycleSnapshot{
		Time:            now,
		PCR:             round2(pcr),
		OIPower:         levels.NetSpurtPower(netSpurt),
		OISentiment:     sentiment,
		OIStatus:        oiStatus,
		UnderlyingLevel: underlyingLevel,
		VWAP:            VWAPPair{Call: round2(callVWAP), Put: round2(putVWAP)},
		OILevels:        OILevels{Support: topStrikes(supports), Resistance: topStrikes(resistances)},
		Confluence: ConfluenceFlags{
			Level:          atSupport || breakingResistance,
			PCRRising:      pcrRising,
			OIImbalance:    oiFlag,
			OptionBreakout: optionBreakout,
			InverseDown:    inverseDown,
		},
	})

	signalLevel := spot
	if inZone {
		signalLevel = zoneLevel
	}

	// The favored side claims the cycle even when its breakout pair fails:
	// a bullish-leaning cycle never falls through to the bearish branch.
	switch {
	case (atSupport || breakingResistance) && bullishOi:
		if callBreakout && putBreakdown {
			return c.emit(now, models.SideCall, callKey, callTick.Price, callLevels.RecentSwingLow, signalLevel, spot, sentiment)
		}
	case (atSupport || breakingResistance) && bearishOi:
		if putBreakout && callBreakdown {
			return c.emit(now, models.SidePut, putKey, putTick.Price, putLevels.RecentSwingLow, signalLevel, spot, sentiment)
		}
	}
	return nil
}

// emit publishes the signal event and hands the entry to the risk manager.
func (c *Confluence) emit(now time.Time, side models.OptionSide, instrumentKey string, lastPrice, stopAnchor, signalLevel, spot float64, sentiment string) error {
	signal := SignalCallBuy
	inverse := InversePutBreakdown
	if side == models.SidePut {
		signal = SignalPutBuy
		inverse = InverseCallBreakdown
	}

	c.publishSignal(SignalEvent{
		Time:            now.Format("15:04:05"),
		Signal:          signal,
		UnderlyingLevel: round2(signalLevel),
		OIConfirmation:  sentiment,
		InverseStatus:   inverse,
	})
	metrics.SignalsTotal.WithLabelValues(string(side)).Inc()

	symbol := c.router.SymbolFor(instrumentKey)
	if _, err := c.risk.ExecuteBuy(instrumentKey, symbol, side, lastPrice, stopAnchor, spot); err != nil {
		return fmt.Errorf("execute buy: %w", err)
	}
	return nil
}

func (c *Confluence) publishSnapshot(snap CycleSnapshot) {
	if c.sink != nil {
		c.sink.PublishSnapshot(snap)
	}
}

func (c *Confluence) publishSignal(event SignalEvent) {
	if c.sink != nil {
		c.sink.PublishSignal(event)
	}
}

func strikesOf(rows []models.StrikeLevel) []float64 {
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Strike)
	}
	return out
}

func nearAnyStrike(spot float64, strikes []float64) bool {
	for _, s := range strikes {
		if s <= 0 {
			continue
		}
		if math.Abs(spot-s)/s < strikeTolerance {
			return true
		}
	}
	return false
}

func topStrikes(strikes []float64) []float64 {
	if len(strikes) > 2 {
		return strikes[:2]
	}
	return strikes
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
