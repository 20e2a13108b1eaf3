// Package risk sizes simulated entries and runs the per-cycle exit ladder
// for the single open position: target, stop, breakeven trail, and theta
// protection for stalled premium.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"niftyscalp/internal/config"
	"niftyscalp/internal/ledger"
	"niftyscalp/internal/logger"
	"niftyscalp/internal/metrics"
	"niftyscalp/internal/models"
)

// fallbackRiskRatio sizes the per-unit risk when entry and stop coincide.
const fallbackRiskRatio = 0.10

// ErrPositionOpen is returned by ExecuteBuy while a position is live.
var ErrPositionOpen = errors.New("risk: a position is already open")

// TickSource provides the latest prices the exit ladder runs against. The
// stream router satisfies it.
type TickSource interface {
	// LastTick returns the most recent trade for an instrument key.
	LastTick(instrumentKey string) (models.Tick, bool)
	// Spot returns the last underlying price, 0 before the first tick.
	Spot() float64
}

// Manager owns the single position slot. ExecuteBuy fills it, ManageRisk
// walks the exit ladder each cycle, and a close clears it back to empty.
type Manager struct {
	mu       sync.Mutex
	cfg      *config.Config
	ledger   ledger.Interface
	ticks    TickSource
	logger   *logger.Entry
	position *models.Position
}

// NewManager creates a risk manager bound to a ledger and tick source.
func NewManager(cfg *config.Config, ld ledger.Interface, ticks TickSource, log *logger.Entry) *Manager {
	if cfg == nil {
		panic("risk.NewManager: cfg must not be nil")
	}
	if ld == nil {
		panic("risk.NewManager: ledger must not be nil")
	}
	if ticks == nil {
		panic("risk.NewManager: tick source must not be nil")
	}
	if log == nil {
		log = logger.New().WithComponent("risk")
	}

	return &Manager{
		cfg:    cfg,
		ledger: ld,
		ticks:  ticks,
		logger: log,
	}
}

// HasOpenPosition reports whether the position slot is occupied.
func (m *Manager) HasOpenPosition() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position != nil
}

// Position returns a snapshot copy of the open position, or nil when the
// slot is empty. Callers get their own copy so the cycle goroutine can keep
// mutating prices underneath.
func (m *Manager) Position() *models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.position == nil {
		return nil
	}
	snapshot := *m.position
	return &snapshot
}

// ExecuteBuy sizes and opens a simulated long-option position. The stop is
// the tighter of the supplied anchor (the leg's recent swing low) and the
// hard stop ratio below entry; quantity is the trade budget divided by the
// per-unit risk.
func (m *Manager) ExecuteBuy(
	instrumentKey, symbol string,
	side models.OptionSide,
	entry, stopAnchor, underlyingSpot float64,
) (*models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.position != nil {
		return nil, ErrPositionOpen
	}
	if entry <= 0 {
		return nil, fmt.Errorf("risk: entry price must be positive, got %.2f", entry)
	}

	limit := entry + m.cfg.Risk.LimitOffset
	hardStop := entry * m.cfg.Risk.HardStopRatio
	finalStop := max(stopAnchor, hardStop)

	riskPerUnit := math.Abs(entry - finalStop)
	if riskPerUnit == 0 {
		riskPerUnit = entry * fallbackRiskRatio
	}

	qty := max(int(m.cfg.Risk.BudgetPerTrade/riskPerUnit), 1)
	target := entry + m.cfg.Risk.RewardMultiple*riskPerUnit

	p := models.NewPosition(uuid.NewString(), instrumentKey, symbol, side)
	p.EntryPrice = entry
	p.LimitPrice = limit
	p.StopLoss = finalStop
	p.Target = target
	p.LastPrice = entry
	p.MaxPriceSeen = entry
	p.UnderlyingEntry = underlyingSpot
	p.Quantity = qty

	if err := p.TransitionState(models.StateOpen, models.ConditionSignalConfirmed); err != nil {
		return nil, err
	}

	m.position = p
	metrics.OpenPositions.Set(1)

	m.logger.WithFields(logger.Fields{
		"position_id": p.ID,
		"symbol":      p.Symbol,
		"side":        p.Side,
		"entry":       p.EntryPrice,
		"limit":       p.LimitPrice,
		"stop":        p.StopLoss,
		"target":      p.Target,
		"quantity":    p.Quantity,
		"underlying":  p.UnderlyingEntry,
	}).Info("Simulated entry filled")

	return p, nil
}

// ManageRisk walks the exit ladder for the open position at the supplied
// instant. Without a fresh tick for the position's instrument the cycle is
// skipped. Target and stop are checked first, then the one-time breakeven
// trail, then theta protection for premium that stalls while the underlying
// keeps moving the right way.
func (m *Manager) ManageRisk(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.position
	if p == nil {
		return
	}

	tick, ok := m.ticks.LastTick(p.InstrumentKey)
	if !ok {
		return
	}

	last := tick.Price
	p.LastPrice = last
	if last > p.MaxPriceSeen {
		p.MaxPriceSeen = last
	}

	switch {
	case last >= p.Target:
		m.closeLocked(p, models.ReasonTargetHit, last)
	case last <= p.StopLoss:
		m.closeLocked(p, models.ReasonStopHit, last)
	case !p.BreakevenMoved && p.GainRatio() >= m.cfg.Risk.BreakevenTrigger:
		p.StopLoss = p.EntryPrice
		p.BreakevenMoved = true
		m.logger.WithFields(logger.Fields{
			"position_id": p.ID,
			"symbol":      p.Symbol,
			"last":        last,
			"stop":        p.StopLoss,
		}).Info("Trailing stop moved to breakeven")
	}

	if p.IsOpen() && p.Elapsed(now) > m.cfg.GetThetaHold() {
		spot := m.ticks.Spot()
		favorable := (p.Side == models.SideCall && spot > p.UnderlyingEntry) ||
			(p.Side == models.SidePut && spot < p.UnderlyingEntry)
		if favorable && p.GainRatio() < m.cfg.Risk.ThetaMinGain {
			m.closeLocked(p, models.ReasonTheta, p.LastPrice)
		}
	}
}

// CloseForShutdown flattens the open position at its last seen price so the
// ledger keeps the row across restarts. No-op when the slot is empty.
func (m *Manager) CloseForShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.position
	if p == nil {
		return
	}
	m.closeLocked(p, models.ReasonShutdown, p.LastPrice)
}

// closeLocked finalizes the position, appends the ledger record, and frees
// the slot. Caller holds m.mu.
func (m *Manager) closeLocked(p *models.Position, reason string, exitPrice float64) {
	if err := p.TransitionState(models.StateClosed, reason); err != nil {
		m.logger.WithError(err).WithFields(logger.Fields{
			"position_id": p.ID,
			"reason":      reason,
		}).Error("Position close transition failed")
		return
	}

	p.ExitPrice = exitPrice
	p.PnL = (exitPrice - p.EntryPrice) * float64(p.Quantity)

	if err := m.ledger.Append(ledger.FromPosition(p)); err != nil {
		m.logger.WithError(err).WithFields(logger.Fields{
			"position_id": p.ID,
		}).Error("Trade ledger append failed")
	}

	m.position = nil
	metrics.PositionClosesTotal.WithLabelValues(reason).Inc()
	metrics.OpenPositions.Set(0)

	m.logger.WithFields(logger.Fields{
		"position_id": p.ID,
		"symbol":      p.Symbol,
		"side":        p.Side,
		"reason":      reason,
		"entry":       p.EntryPrice,
		"exit":        p.ExitPrice,
		"quantity":    p.Quantity,
		"pnl":         p.PnL,
	}).Info("Position closed")
}
