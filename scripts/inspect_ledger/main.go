// inspect_ledger - prints the recorded trades and summary statistics from the
// engine's CSV trade ledger. Useful for a quick end-of-day review without
// starting the dashboard.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"niftyscalp/internal/config"
	"niftyscalp/internal/ledger"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		ledgerPath = flag.String("ledger", "", "Ledger file (overrides the configured path)")
		jsonOutput = flag.Bool("json", false, "Output results as JSON")
		tail       = flag.Int("n", 10, "How many recent trades to print")
	)
	flag.Parse()

	path := *ledgerPath
	if path == "" {
		// Forcing mock mode skips the live-credential checks; only the
		// ledger path is needed here.
		cfg, err := config.Load(*configPath, func(c *config.Config) {
			c.Environment.Mode = "mock"
		})
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		path = cfg.Ledger.Path
	}
	if _, err := os.Stat(path); err != nil {
		log.Fatalf("No ledger at %s: %v", path, err)
	}

	ld, err := ledger.New(path)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	records, err := ld.ReadAll()
	if err != nil {
		log.Fatalf("Failed to read ledger: %v", err)
	}
	stats, err := ld.Statistics()
	if err != nil {
		log.Fatalf("Failed to compute statistics: %v", err)
	}

	if *jsonOutput {
		out := struct {
			Trades     []ledger.Record    `json:"trades"`
			Statistics *ledger.Statistics `json:"statistics"`
		}{Trades: records, Statistics: stats}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal JSON: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("Ledger: %s\n\n", path)
	if len(records) == 0 {
		fmt.Println("No trades recorded.")
		return
	}

	start := len(records) - *tail
	if start < 0 {
		start = 0
	}
	fmt.Printf("=== LAST %d TRADE(S) ===\n", len(records)-start)
	for _, rec := range records[start:] {
		fmt.Printf("%s  %-22s %-4s qty %-5d entry %8.2f exit %8.2f pnl %10.2f\n",
			rec.ExitTime.Format("2006-01-02 15:04"), rec.Symbol, rec.Side,
			rec.Quantity, rec.EntryPrice, rec.ExitPrice, rec.PnL)
	}

	fmt.Printf("\n=== STATISTICS ===\n")
	fmt.Printf("Trades:        %d (%d wins / %d losses)\n",
		stats.TotalTrades, stats.WinningTrades, stats.LosingTrades)
	fmt.Printf("Win rate:      %.1f%%\n", stats.WinRate)
	fmt.Printf("Total P&L:     %.2f\n", stats.TotalPnL)
	fmt.Printf("Average win:   %.2f\n", stats.AverageWin)
	fmt.Printf("Average loss:  %.2f\n", stats.AverageLoss)
	fmt.Printf("Best trade:    %.2f\n", stats.BestTrade)
	fmt.Printf("Worst trade:   %.2f\n", stats.WorstTrade)
	fmt.Printf("Streak:        %+d\n", stats.CurrentStreak)
}
