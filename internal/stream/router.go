// Package stream routes inbound market data to per-role state: the
// underlying tick ring, running VWAPs, candle buffers, and the instrument
// to role mapping that the ATM rotation rewrites.
package stream

import (
	"sync"
	"time"

	"niftyscalp/internal/models"
)

const (
	// tickRingCapacity bounds the underlying tick history.
	tickRingCapacity = 500
	// volumeProfileEvery is the underlying tick cadence for profile rebuilds.
	volumeProfileEvery = 100
)

// LevelSink receives level-rebuild triggers as data arrives. Implementations
// must not call back into the router.
type LevelSink interface {
	RebuildUnderlyingLevels(candles []models.Candle)
	RebuildOptionLevels(instrumentKey string, candles []models.Candle)
	RebuildVolumeProfile(ticks []models.Tick)
}

type vwapAccumulator struct {
	sumPriceQty float64
	sumQty      float64
}

// Leg identifies one ATM option instrument: the streaming key it trades
// under and the human-readable contract symbol.
type Leg struct {
	Key    string
	Symbol string
}

// Router classifies ticks and candle batches by instrument role and keeps
// the shared per-role market state. Safe for concurrent use; level rebuilds
// are invoked outside the router lock.
type Router struct {
	mu          sync.RWMutex
	roleByKey   map[string]models.InstrumentRole
	keyByRole   map[models.InstrumentRole]string
	symbolByKey map[string]string
	ring        *tickRing
	spot        float64
	tickCount   int64
	vwap        map[models.InstrumentRole]*vwapAccumulator
	lastTick    map[string]models.Tick
	candles     map[models.InstrumentRole][]models.Candle
	levels      LevelSink
}

// NewRouter builds a router anchored on the underlying instrument. The ATM
// legs are mapped later via SwapPair.
func NewRouter(underlyingKey string, levels LevelSink) *Router {
	r := &Router{
		roleByKey:   make(map[string]models.InstrumentRole),
		keyByRole:   make(map[models.InstrumentRole]string),
		symbolByKey: make(map[string]string),
		ring:        newTickRing(tickRingCapacity),
		vwap:        make(map[models.InstrumentRole]*vwapAccumulator),
		lastTick:    make(map[string]models.Tick),
		candles:     make(map[models.InstrumentRole][]models.Candle),
		levels:      levels,
	}
	r.roleByKey[underlyingKey] = models.RoleUnderlying
	r.keyByRole[models.RoleUnderlying] = underlyingKey
	return r
}

// OnTick records a live trade for a mapped instrument. Unknown instruments
// are dropped. Every 100th underlying tick triggers a volume-profile rebuild
// over the current ring contents.
func (r *Router) OnTick(instrumentKey string, price float64, size int64, tsMillis int64) {
	tick := models.Tick{
		Timestamp: time.UnixMilli(tsMillis),
		Price:     price,
		Size:      size,
	}

	r.mu.Lock()
	role, ok := r.roleByKey[instrumentKey]
	if !ok {
		r.mu.Unlock()
		return
	}

	r.lastTick[instrumentKey] = tick

	if size > 0 {
		acc := r.vwap[role]
		if acc == nil {
			acc = &vwapAccumulator{}
			r.vwap[role] = acc
		}
		acc.sumPriceQty += price * float64(size)
		acc.sumQty += float64(size)
	}

	var profileTicks []models.Tick
	if role == models.RoleUnderlying {
		r.ring.push(tick)
		r.spot = price
		r.tickCount++
		if r.tickCount%volumeProfileEvery == 0 {
			profileTicks = r.ring.snapshot()
		}
	}
	r.mu.Unlock()

	if profileTicks != nil && r.levels != nil {
		r.levels.RebuildVolumeProfile(profileTicks)
	}
}

// OnCandles replaces the role's candle buffer with the supplied series and
// triggers the matching level rebuild. Duplicate timestamps keep the last
// occurrence.
func (r *Router) OnCandles(instrumentKey string, candles []models.Candle) {
	if len(candles) == 0 {
		return
	}
	candles = dedupeByTimestamp(candles)

	r.mu.Lock()
	role, ok := r.roleByKey[instrumentKey]
	if !ok {
		r.mu.Unlock()
		return
	}
	buf := make([]models.Candle, len(candles))
	copy(buf, candles)
	r.candles[role] = buf
	r.mu.Unlock()

	if r.levels == nil {
		return
	}
	if role == models.RoleUnderlying {
		r.levels.RebuildUnderlyingLevels(buf)
		return
	}
	r.levels.RebuildOptionLevels(instrumentKey, buf)
}

// Spot returns the last underlying trade price, 0 before the first tick.
func (r *Router) Spot() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.spot
}

// LastTick returns the most recent tick seen for an instrument.
func (r *Router) LastTick(instrumentKey string) (models.Tick, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.lastTick[instrumentKey]
	return t, ok
}

// VWAP returns the process-lifetime volume-weighted average price for a
// role, 0 until that role has traded size.
func (r *Router) VWAP(role models.InstrumentRole) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc := r.vwap[role]
	if acc == nil || acc.sumQty == 0 {
		return 0
	}
	return acc.sumPriceQty / acc.sumQty
}

// TickDelta returns the price change between the last two underlying ticks.
func (r *Router) TickDelta() (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prev, last, ok := r.ring.lastTwo()
	if !ok {
		return 0, false
	}
	return last.Price - prev.Price, true
}

// RingSnapshot returns a copy of the underlying tick ring, oldest first.
func (r *Router) RingSnapshot() []models.Tick {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ring.snapshot()
}

// RingLen returns the current underlying tick ring occupancy.
func (r *Router) RingLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ring.len()
}

// Candles returns a copy of the role's current candle buffer.
func (r *Router) Candles(role models.InstrumentRole) []models.Candle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	buf := r.candles[role]
	out := make([]models.Candle, len(buf))
	copy(out, buf)
	return out
}

// KeyFor returns the instrument currently mapped to a role.
func (r *Router) KeyFor(role models.InstrumentRole) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keyByRole[role]
	return k, ok
}

// RoleFor returns the role an instrument is currently mapped to.
func (r *Router) RoleFor(instrumentKey string) (models.InstrumentRole, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roleByKey[instrumentKey]
	return role, ok
}

// SymbolFor returns the contract symbol recorded for an instrument key,
// falling back to the key itself when none was registered.
func (r *Router) SymbolFor(instrumentKey string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sym, ok := r.symbolByKey[instrumentKey]; ok && sym != "" {
		return sym
	}
	return instrumentKey
}

// SwapPair atomically remaps the ATM call/put roles to new instruments and
// returns the keys they replaced. Ticks arriving during the swap route by
// either the old or the new mapping, never a mix.
func (r *Router) SwapPair(call, put Leg) (oldCall, oldPut string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldCall = r.keyByRole[models.RoleATMCall]
	oldPut = r.keyByRole[models.RoleATMPut]
	if oldCall != "" {
		delete(r.roleByKey, oldCall)
		delete(r.symbolByKey, oldCall)
	}
	if oldPut != "" {
		delete(r.roleByKey, oldPut)
		delete(r.symbolByKey, oldPut)
	}

	r.roleByKey[call.Key] = models.RoleATMCall
	r.roleByKey[put.Key] = models.RoleATMPut
	r.keyByRole[models.RoleATMCall] = call.Key
	r.keyByRole[models.RoleATMPut] = put.Key
	r.symbolByKey[call.Key] = call.Symbol
	r.symbolByKey[put.Key] = put.Symbol
	return oldCall, oldPut
}

// UnderlyingTickCount returns how many underlying ticks have been routed.
func (r *Router) UnderlyingTickCount() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tickCount
}

func dedupeByTimestamp(candles []models.Candle) []models.Candle {
	out := make([]models.Candle, 0, len(candles))
	seen := make(map[int64]int, len(candles))
	for _, c := range candles {
		ts := c.Timestamp.UnixMilli()
		if i, ok := seen[ts]; ok {
			out[i] = c
			continue
		}
		seen[ts] = len(out)
		out = append(out, c)
	}
	return out
}
