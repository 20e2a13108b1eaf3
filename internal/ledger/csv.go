package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"niftyscalp/internal/models"
)

const timeLayout = "2006-01-02 15:04:05"

var header = []string{
	"symbol", "side", "entry_price", "limit_price", "sl", "tp",
	"quantity", "entry_time", "exit_price", "exit_time", "status", "pnl",
}

// CSVLedger appends closed trades to a CSV file, one row per trade. The
// header row is written when the file is first created. Rows are never
// rewritten or deleted.
type CSVLedger struct {
	mu   sync.Mutex
	path string
}

// NewCSVLedger opens or creates the ledger file, writing the header on
// creation.
func NewCSVLedger(path string) (*CSVLedger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	l := &CSVLedger{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := l.writeHeader(); err != nil {
			return nil, fmt.Errorf("initializing ledger: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("checking ledger file: %w", err)
	}
	return l, nil
}

func (l *CSVLedger) writeHeader() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Append writes one closed trade to the end of the ledger.
func (l *CSVLedger) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(rec.row()); err != nil {
		return fmt.Errorf("writing ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing ledger row: %w", err)
	}
	return nil
}

// ReadAll parses every recorded trade, oldest first.
func (l *CSVLedger) ReadAll() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows[0]) != len(header) {
		return nil, fmt.Errorf("ledger header has %d columns, want %d", len(rows[0]), len(header))
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("ledger row %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Statistics computes summary statistics over the full recorded history.
func (l *CSVLedger) Statistics() (*Statistics, error) {
	records, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	return ComputeStatistics(records), nil
}

func (r Record) row() []string {
	return []string{
		r.Symbol,
		string(r.Side),
		formatPrice(r.EntryPrice),
		formatPrice(r.LimitPrice),
		formatPrice(r.StopLoss),
		formatPrice(r.Target),
		strconv.Itoa(r.Quantity),
		r.EntryTime.Format(timeLayout),
		formatPrice(r.ExitPrice),
		r.ExitTime.Format(timeLayout),
		r.Status,
		formatPrice(r.PnL),
	}
}

func parseRow(row []string) (Record, error) {
	if len(row) != len(header) {
		return Record{}, fmt.Errorf("has %d columns, want %d", len(row), len(header))
	}

	var rec Record
	var err error
	rec.Symbol = row[0]
	rec.Side = models.OptionSide(row[1])
	if rec.EntryPrice, err = strconv.ParseFloat(row[2], 64); err != nil {
		return Record{}, fmt.Errorf("entry_price: %w", err)
	}
	if rec.LimitPrice, err = strconv.ParseFloat(row[3], 64); err != nil {
		return Record{}, fmt.Errorf("limit_price: %w", err)
	}
	if rec.StopLoss, err = strconv.ParseFloat(row[4], 64); err != nil {
		return Record{}, fmt.Errorf("sl: %w", err)
	}
	if rec.Target, err = strconv.ParseFloat(row[5], 64); err != nil {
		return Record{}, fmt.Errorf("tp: %w", err)
	}
	if rec.Quantity, err = strconv.Atoi(row[6]); err != nil {
		return Record{}, fmt.Errorf("quantity: %w", err)
	}
	if rec.EntryTime, err = time.ParseInLocation(timeLayout, row[7], time.Local); err != nil {
		return Record{}, fmt.Errorf("entry_time: %w", err)
	}
	if rec.ExitPrice, err = strconv.ParseFloat(row[8], 64); err != nil {
		return Record{}, fmt.Errorf("exit_price: %w", err)
	}
	if rec.ExitTime, err = time.ParseInLocation(timeLayout, row[9], time.Local); err != nil {
		return Record{}, fmt.Errorf("exit_time: %w", err)
	}
	rec.Status = row[10]
	if rec.PnL, err = strconv.ParseFloat(row[11], 64); err != nil {
		return Record{}, fmt.Errorf("pnl: %w", err)
	}
	return rec, nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
