// Package levels derives the price levels the confluence check trades
// against: swing highs/lows and high-volume nodes on the underlying, and
// opening-range, previous-window, and recent-swing levels per option leg.
package levels

import (
	"math"
	"sort"
	"sync"

	"niftyscalp/internal/models"
)

const (
	// swingRadius is the neighborhood half-width for swing detection.
	swingRadius = 5
	// minSwingSeries is the minimum candle count for swing detection.
	minSwingSeries = 20
	// hvnCount is how many high-volume nodes are kept.
	hvnCount = 5
	// orbCandles is the opening-range window in one-minute bars.
	orbCandles = 15
	// recentSwingCandles is the lookback for the per-option recent swing.
	recentSwingCandles = 5
	// zoneTolerance is the relative distance that counts as "at" a level.
	zoneTolerance = 0.0005
)

// Engine owns the derived level state. It is safe for concurrent use: the
// stream router rebuilds levels from its delivery goroutine while the signal
// cycle reads them.
type Engine struct {
	mu           sync.RWMutex
	swingHighs   []float64
	swingLows    []float64
	hvnLevels    []float64
	optionLevels map[string]models.OptionLevels
	pcrHistory   []float64
}

// NewEngine returns an empty level engine.
func NewEngine() *Engine {
	return &Engine{
		optionLevels: make(map[string]models.OptionLevels),
	}
}

// RebuildUnderlyingLevels recomputes the swing level set from a one-minute
// candle series. Series shorter than 20 bars leave the previous set intact.
func (e *Engine) RebuildUnderlyingLevels(candles []models.Candle) {
	if len(candles) < minSwingSeries {
		return
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
	}

	var swingHighs, swingLows []float64
	for _, i := range SwingHighIndexes(highs, swingRadius) {
		swingHighs = append(swingHighs, highs[i])
	}
	for _, i := range SwingLowIndexes(lows, swingRadius) {
		swingLows = append(swingLows, lows[i])
	}

	e.mu.Lock()
	e.swingHighs = dedupeSorted(swingHighs)
	e.swingLows = dedupeSorted(swingLows)
	e.mu.Unlock()
}

// SwingHighIndexes returns the indexes that are local maxima of the series
// over a symmetric neighborhood of the given radius. Equal values within the
// window resolve to the earliest index.
func SwingHighIndexes(series []float64, radius int) []int {
	if len(series) < minSwingSeries {
		return nil
	}

	var out []int
	for i := range series {
		lo := i - radius
		if lo < 0 {
			lo = 0
		}
		hi := i + radius
		if hi > len(series)-1 {
			hi = len(series) - 1
		}

		isSwing := true
		for j := lo; j <= hi; j++ {
			if j == i {
				continue
			}
			if series[j] > series[i] || (series[j] == series[i] && j < i) {
				isSwing = false
				break
			}
		}
		if isSwing {
			out = append(out, i)
		}
	}
	return out
}

// SwingLowIndexes is the local-minimum mirror of SwingHighIndexes.
func SwingLowIndexes(series []float64, radius int) []int {
	neg := make([]float64, len(series))
	for i, v := range series {
		neg[i] = -v
	}
	return SwingHighIndexes(neg, radius)
}

// RebuildVolumeProfile recomputes the high-volume nodes from the tick ring.
func (e *Engine) RebuildVolumeProfile(ticks []models.Tick) {
	if len(ticks) == 0 {
		return
	}
	byPrice := make(map[float64]int64, len(ticks))
	for _, t := range ticks {
		byPrice[t.Price] += t.Size
	}
	e.setHVN(topVolumeNodes(byPrice))
}

// SeedVolumeProfile builds the cold-start node set from historical candles,
// keyed by closing price.
func (e *Engine) SeedVolumeProfile(candles []models.Candle) {
	if len(candles) == 0 {
		return
	}
	byPrice := make(map[float64]int64, len(candles))
	for _, c := range candles {
		byPrice[c.Close] += c.Volume
	}
	e.setHVN(topVolumeNodes(byPrice))
}

func (e *Engine) setHVN(nodes []float64) {
	e.mu.Lock()
	e.hvnLevels = nodes
	e.mu.Unlock()
}

// topVolumeNodes returns the top prices by aggregated size, descending.
// Ties break toward the lower price so the result is deterministic.
func topVolumeNodes(byPrice map[float64]int64) []float64 {
	type node struct {
		price float64
		size  int64
	}
	nodes := make([]node, 0, len(byPrice))
	for p, s := range byPrice {
		nodes = append(nodes, node{price: p, size: s})
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].size != nodes[j].size {
			return nodes[i].size > nodes[j].size
		}
		return nodes[i].price < nodes[j].price
	})

	n := hvnCount
	if len(nodes) < n {
		n = len(nodes)
	}
	out := make([]float64, 0, n)
	for _, nd := range nodes[:n] {
		out = append(out, nd.price)
	}
	return out
}

// RebuildOptionLevels recomputes the reference levels for one option
// instrument from its one-minute candle buffer.
func (e *Engine) RebuildOptionLevels(instrumentKey string, candles []models.Candle) {
	if len(candles) == 0 {
		return
	}

	orb := candles
	if len(orb) > orbCandles {
		orb = orb[:orbCandles]
	}

	prevWindow := candles
	if len(candles) > orbCandles+1 {
		prevWindow = candles[len(candles)-orbCandles-1 : len(candles)-1]
	}

	recent := candles
	if len(recent) > recentSwingCandles {
		recent = recent[len(recent)-recentSwingCandles:]
	}

	lv := models.OptionLevels{
		ORBHigh:         maxHigh(orb),
		ORBLow:          minLow(orb),
		PrevWindowHigh:  maxHigh(prevWindow),
		PrevWindowLow:   minLow(prevWindow),
		RecentSwingHigh: maxHigh(recent),
		RecentSwingLow:  minLow(recent),
	}

	e.mu.Lock()
	e.optionLevels[instrumentKey] = lv
	e.mu.Unlock()
}

// OptionLevels returns the reference levels for an option instrument.
func (e *Engine) OptionLevels(instrumentKey string) (models.OptionLevels, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lv, ok := e.optionLevels[instrumentKey]
	return lv, ok
}

// IsInSignalZone reports whether price sits within the zone tolerance of any
// underlying swing level or high-volume node, returning the first match.
func (e *Engine) IsInSignalZone(price float64) (bool, float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, set := range [][]float64{e.mergedSwingsLocked(), e.hvnLevels} {
		for _, level := range set {
			if level == 0 {
				continue
			}
			if math.Abs(price-level)/level < zoneTolerance {
				return true, level
			}
		}
	}
	return false, 0
}

// UnderlyingLevels returns the merged, ascending swing level set.
func (e *Engine) UnderlyingLevels() []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mergedSwingsLocked()
}

// HVNLevels returns the current high-volume nodes, strongest first.
func (e *Engine) HVNLevels() []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]float64, len(e.hvnLevels))
	copy(out, e.hvnLevels)
	return out
}

// MajorLevels returns the underlying level set as typed records for the
// observability surface.
func (e *Engine) MajorLevels() []models.Level {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.Level, 0, len(e.swingHighs)+len(e.swingLows)+len(e.hvnLevels))
	for _, p := range e.swingHighs {
		out = append(out, models.Level{Price: p, Kind: models.LevelSwingHigh, Role: models.RoleUnderlying})
	}
	for _, p := range e.swingLows {
		out = append(out, models.Level{Price: p, Kind: models.LevelSwingLow, Role: models.RoleUnderlying})
	}
	for _, p := range e.hvnLevels {
		out = append(out, models.Level{Price: p, Kind: models.LevelHVN, Role: models.RoleUnderlying})
	}
	return out
}

func (e *Engine) mergedSwingsLocked() []float64 {
	merged := make([]float64, 0, len(e.swingHighs)+len(e.swingLows))
	merged = append(merged, e.swingHighs...)
	merged = append(merged, e.swingLows...)
	return dedupeSorted(merged)
}

func dedupeSorted(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func maxHigh(candles []models.Candle) float64 {
	m := math.Inf(-1)
	for _, c := range candles {
		if c.High > m {
			m = c.High
		}
	}
	return m
}

func minLow(candles []models.Candle) float64 {
	m := math.Inf(1)
	for _, c := range candles {
		if c.Low < m {
			m = c.Low
		}
	}
	return m
}
