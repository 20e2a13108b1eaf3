package ledger

// Statistics summarizes the recorded trade history. Breakeven trades count
// toward the total but not toward the win rate.
type Statistics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	WorstTrade    float64 `json:"worst_trade"`
	BestTrade     float64 `json:"best_trade"`
	CurrentStreak int     `json:"current_streak"`
}

// ComputeStatistics derives summary statistics from records in ledger order.
func ComputeStatistics(records []Record) *Statistics {
	stats := &Statistics{}
	var winSum, lossSum float64

	for _, rec := range records {
		stats.TotalTrades++
		stats.TotalPnL += rec.PnL

		switch {
		case rec.PnL > 0:
			stats.WinningTrades++
			winSum += rec.PnL
			if stats.CurrentStreak >= 0 {
				stats.CurrentStreak++
			} else {
				stats.CurrentStreak = 1
			}
		case rec.PnL < 0:
			stats.LosingTrades++
			lossSum += rec.PnL
			if stats.CurrentStreak <= 0 {
				stats.CurrentStreak--
			} else {
				stats.CurrentStreak = -1
			}
		}

		if rec.PnL < stats.WorstTrade {
			stats.WorstTrade = rec.PnL
		}
		if rec.PnL > stats.BestTrade {
			stats.BestTrade = rec.PnL
		}
	}

	if stats.WinningTrades > 0 {
		stats.AverageWin = winSum / float64(stats.WinningTrades)
	}
	if stats.LosingTrades > 0 {
		stats.AverageLoss = lossSum / float64(stats.LosingTrades)
	}
	if decided := stats.WinningTrades + stats.LosingTrades; decided > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(decided) * 100
	}
	return stats
}
