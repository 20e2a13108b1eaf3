// Package ledger persists closed trades to an append-only CSV file and
// derives summary statistics from the recorded history.
package ledger

import (
	"time"

	"niftyscalp/internal/models"
)

// Record is one closed trade as written to the ledger.
type Record struct {
	Symbol     string            `json:"symbol"`
	Side       models.OptionSide `json:"side"`
	EntryPrice float64           `json:"entry_price"`
	LimitPrice float64           `json:"limit_price"`
	StopLoss   float64           `json:"sl"`
	Target     float64           `json:"tp"`
	Quantity   int               `json:"quantity"`
	EntryTime  time.Time         `json:"entry_time"`
	ExitPrice  float64           `json:"exit_price"`
	ExitTime   time.Time         `json:"exit_time"`
	Status     string            `json:"status"`
	PnL        float64           `json:"pnl"`
}

// FromPosition maps a closed position onto a ledger record.
func FromPosition(p *models.Position) Record {
	return Record{
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		LimitPrice: p.LimitPrice,
		StopLoss:   p.StopLoss,
		Target:     p.Target,
		Quantity:   p.Quantity,
		EntryTime:  p.EntryTime,
		ExitPrice:  p.ExitPrice,
		ExitTime:   p.ExitTime,
		Status:     "CLOSED",
		PnL:        p.PnL,
	}
}

// Interface is the contract for trade persistence.
//
// Implementations must be safe for concurrent use - the risk manager appends
// from the cycle goroutine while the dashboard reads history.
type Interface interface {
	Append(rec Record) error
	ReadAll() ([]Record, error)
	Statistics() (*Statistics, error)
}

// New creates the default CSV-backed ledger at the given path.
func New(path string) (Interface, error) {
	return NewCSVLedger(path)
}

// Ensure the implementations satisfy Interface.
var (
	_ Interface = (*CSVLedger)(nil)
	_ Interface = (*MockLedger)(nil)
)
