package stream

import (
	"math"
	"sync"
	"testing"
	"time"

	"niftyscalp/internal/models"
)

const (
	testUnderlying = "NSE_INDEX|Nifty 50"
	testCall       = "NSE_FO|40001"
	testPut        = "NSE_FO|40002"
)

type recordingSink struct {
	mu              sync.Mutex
	profileCalls    [][]models.Tick
	underlyingCalls [][]models.Candle
	optionCalls     map[string][][]models.Candle
}

func newRecordingSink() *recordingSink {
	return &recordingSink{optionCalls: make(map[string][][]models.Candle)}
}

func (s *recordingSink) RebuildUnderlyingLevels(candles []models.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.underlyingCalls = append(s.underlyingCalls, candles)
}

func (s *recordingSink) RebuildOptionLevels(instrumentKey string, candles []models.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optionCalls[instrumentKey] = append(s.optionCalls[instrumentKey], candles)
}

func (s *recordingSink) RebuildVolumeProfile(ticks []models.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileCalls = append(s.profileCalls, ticks)
}

func newTestRouter(sink LevelSink) *Router {
	r := NewRouter(testUnderlying, sink)
	r.SwapPair(Leg{Key: testCall, Symbol: "NIFTY 24500 CE"}, Leg{Key: testPut, Symbol: "NIFTY 24500 PE"})
	return r
}

func TestRouter_RingCapAndFIFO(t *testing.T) {
	r := newTestRouter(nil)
	for i := 0; i < 520; i++ {
		r.OnTick(testUnderlying, float64(i), 1, int64(i))
	}

	if got := r.RingLen(); got != tickRingCapacity {
		t.Fatalf("RingLen() = %d, want %d", got, tickRingCapacity)
	}
	snap := r.RingSnapshot()
	if snap[0].Price != 20 || snap[len(snap)-1].Price != 519 {
		t.Errorf("ring spans prices [%v, %v], want [20, 519]", snap[0].Price, snap[len(snap)-1].Price)
	}
}

func TestRouter_VWAPPerRole(t *testing.T) {
	r := newTestRouter(nil)

	// Interleave roles; each role's accumulator is independent.
	r.OnTick(testUnderlying, 24500, 100, 1)
	r.OnTick(testCall, 150, 10, 2)
	r.OnTick(testUnderlying, 24510, 300, 3)
	r.OnTick(testPut, 130, 20, 4)
	r.OnTick(testCall, 160, 30, 5)
	// Zero-size ticks update price state only.
	r.OnTick(testCall, 999, 0, 6)

	wantUnderlying := (24500.0*100 + 24510.0*300) / 400.0
	wantCall := (150.0*10 + 160.0*30) / 40.0
	if got := r.VWAP(models.RoleUnderlying); math.Abs(got-wantUnderlying) > 1e-9 {
		t.Errorf("underlying VWAP = %v, want %v", got, wantUnderlying)
	}
	if got := r.VWAP(models.RoleATMCall); math.Abs(got-wantCall) > 1e-9 {
		t.Errorf("call VWAP = %v, want %v", got, wantCall)
	}
	if got := r.VWAP(models.RoleATMPut); got != 130 {
		t.Errorf("put VWAP = %v, want 130", got)
	}

	last, ok := r.LastTick(testCall)
	if !ok || last.Price != 999 {
		t.Errorf("LastTick(call) = (%v, %v), want price 999", last.Price, ok)
	}
}

func TestRouter_SpotAndTickDelta(t *testing.T) {
	r := newTestRouter(nil)

	if _, ok := r.TickDelta(); ok {
		t.Error("TickDelta() before two ticks reported ok")
	}

	r.OnTick(testUnderlying, 24500, 10, 1)
	r.OnTick(testUnderlying, 24507.5, 10, 2)

	if got := r.Spot(); got != 24507.5 {
		t.Errorf("Spot() = %v, want 24507.5", got)
	}
	delta, ok := r.TickDelta()
	if !ok || math.Abs(delta-7.5) > 1e-9 {
		t.Errorf("TickDelta() = (%v, %v), want (7.5, true)", delta, ok)
	}
}

func TestRouter_UnknownInstrumentDropped(t *testing.T) {
	r := newTestRouter(nil)
	r.OnTick("NSE_FO|99999", 100, 10, 1)

	if got := r.RingLen(); got != 0 {
		t.Errorf("unknown tick reached the ring: len %d", got)
	}
	if _, ok := r.LastTick("NSE_FO|99999"); ok {
		t.Error("unknown tick recorded as last tick")
	}
}

func TestRouter_VolumeProfileCadence(t *testing.T) {
	sink := newRecordingSink()
	r := newTestRouter(sink)

	for i := 0; i < 250; i++ {
		r.OnTick(testUnderlying, 24500+float64(i%5), 10, int64(i))
		// Option ticks never advance the underlying cadence.
		r.OnTick(testCall, 150, 5, int64(i))
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.profileCalls) != 2 {
		t.Fatalf("profile rebuilds = %d, want 2", len(sink.profileCalls))
	}
	if len(sink.profileCalls[0]) != 100 || len(sink.profileCalls[1]) != 200 {
		t.Errorf("profile snapshot sizes = (%d, %d), want (100, 200)",
			len(sink.profileCalls[0]), len(sink.profileCalls[1]))
	}
}

func TestRouter_OnCandlesRouting(t *testing.T) {
	sink := newRecordingSink()
	r := newTestRouter(sink)

	base := time.Date(2025, 1, 15, 9, 15, 0, 0, time.UTC)
	series := []models.Candle{
		{Timestamp: base, Close: 24500, Volume: 10},
		{Timestamp: base.Add(time.Minute), Close: 24510, Volume: 20},
	}

	r.OnCandles(testUnderlying, series)
	r.OnCandles(testCall, series)
	r.OnCandles("NSE_FO|99999", series)
	r.OnCandles(testPut, nil)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.underlyingCalls) != 1 || len(sink.underlyingCalls[0]) != 2 {
		t.Errorf("underlying rebuilds = %v, want one call with 2 candles", len(sink.underlyingCalls))
	}
	if calls := sink.optionCalls[testCall]; len(calls) != 1 {
		t.Errorf("option rebuilds for call leg = %d, want 1", len(calls))
	}
	if len(sink.optionCalls["NSE_FO|99999"]) != 0 {
		t.Error("unmapped instrument triggered an option rebuild")
	}
	if len(sink.optionCalls[testPut]) != 0 {
		t.Error("empty batch triggered a rebuild")
	}

	if got := r.Candles(models.RoleUnderlying); len(got) != 2 {
		t.Errorf("Candles(underlying) = %d entries, want 2", len(got))
	}
}

func TestRouter_OnCandlesDedupesTimestamps(t *testing.T) {
	r := newTestRouter(nil)
	base := time.Date(2025, 1, 15, 9, 15, 0, 0, time.UTC)

	r.OnCandles(testUnderlying, []models.Candle{
		{Timestamp: base, Close: 24500},
		{Timestamp: base.Add(time.Minute), Close: 24505},
		// Re-delivered bar for the same minute supersedes the first.
		{Timestamp: base.Add(time.Minute), Close: 24510},
	})

	got := r.Candles(models.RoleUnderlying)
	if len(got) != 2 {
		t.Fatalf("Candles() = %d entries, want 2", len(got))
	}
	if got[1].Close != 24510 {
		t.Errorf("duplicate bar kept close %v, want the later 24510", got[1].Close)
	}
}

func TestRouter_SwapPair(t *testing.T) {
	r := NewRouter(testUnderlying, nil)

	oldCall, oldPut := r.SwapPair(Leg{Key: testCall, Symbol: "NIFTY 24500 CE"}, Leg{Key: testPut, Symbol: "NIFTY 24500 PE"})
	if oldCall != "" || oldPut != "" {
		t.Errorf("first SwapPair returned (%q, %q), want empty pair", oldCall, oldPut)
	}
	if got := r.SymbolFor(testCall); got != "NIFTY 24500 CE" {
		t.Errorf("SymbolFor(call) = %q, want NIFTY 24500 CE", got)
	}

	r.OnTick(testCall, 100, 10, 1)
	if got := r.VWAP(models.RoleATMCall); got != 100 {
		t.Fatalf("call VWAP before rotation = %v, want 100", got)
	}

	oldCall, oldPut = r.SwapPair(Leg{Key: "NSE_FO|40003", Symbol: "NIFTY 24550 CE"}, Leg{Key: "NSE_FO|40004", Symbol: "NIFTY 24550 PE"})
	if oldCall != testCall || oldPut != testPut {
		t.Errorf("SwapPair returned (%q, %q), want (%q, %q)", oldCall, oldPut, testCall, testPut)
	}
	if got := r.SymbolFor(testCall); got != testCall {
		t.Errorf("SymbolFor after rotation = %q, want fallback to the key", got)
	}

	// Old key no longer routes.
	r.OnTick(testCall, 500, 10, 2)
	if _, ok := r.RoleFor(testCall); ok {
		t.Error("rotated-out instrument still mapped")
	}

	// The accumulator survives rotation: the role's VWAP spans both legs.
	r.OnTick("NSE_FO|40003", 200, 10, 3)
	if got := r.VWAP(models.RoleATMCall); got != 150 {
		t.Errorf("call VWAP after rotation = %v, want 150", got)
	}

	key, ok := r.KeyFor(models.RoleATMCall)
	if !ok || key != "NSE_FO|40003" {
		t.Errorf("KeyFor(call) = (%q, %v), want NSE_FO|40003", key, ok)
	}
}

func TestRouter_ConcurrentTicksAndRotation(t *testing.T) {
	r := newTestRouter(newRecordingSink())

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			r.OnTick(testUnderlying, 24500+float64(i%10), 1, int64(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			call, _ := r.KeyFor(models.RoleATMCall)
			r.OnTick(call, 150, 1, int64(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			r.SwapPair(Leg{Key: testCall}, Leg{Key: testPut})
		}
	}()
	wg.Wait()

	if got := r.RingLen(); got != tickRingCapacity {
		t.Errorf("RingLen() = %d, want %d", got, tickRingCapacity)
	}
	if got := r.UnderlyingTickCount(); got != 2000 {
		t.Errorf("UnderlyingTickCount() = %d, want 2000", got)
	}
}
