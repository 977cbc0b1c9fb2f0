package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	s := r.Summary

	// Header
	sb.WriteString("# Pair Trading Performance Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Closed: %d | Open: %d | Leverage assumption: %.2fx\n\n", s.TotalTrades, s.OpenPositions, r.Leverage))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Wins / Losses | %d / %d |\n", s.Wins, s.Losses))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.2f%% |\n", s.WinRate*100))
	sb.WriteString(fmt.Sprintf("| Total PnL | %.2f%% |\n", s.TotalPnLPct))
	sb.WriteString(fmt.Sprintf("| Avg PnL | %.2f%% |\n", s.AvgPnLPct))
	sb.WriteString(fmt.Sprintf("| Avg Win / Avg Loss | %.2f%% / %.2f%% |\n", s.AvgWinPct, s.AvgLossPct))
	if s.ProfitFactor != nil {
		sb.WriteString(fmt.Sprintf("| Profit Factor | %.2f |\n", *s.ProfitFactor))
	} else {
		sb.WriteString("| Profit Factor | n/a |\n")
	}
	sb.WriteString(fmt.Sprintf("| PnL Stddev | %.2f |\n", s.PnLStddev))
	sb.WriteString(fmt.Sprintf("| PnL P10 / Median / P90 | %.2f%% / %.2f%% / %.2f%% |\n", r.PnLP10, r.PnLMedian, r.PnLP90))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.2f%% |\n", s.MaxDrawdownPct))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", s.MaxConsecutiveLosses))
	sb.WriteString(fmt.Sprintf("| Avg Duration | %.1fh |\n", s.AvgDurationHours))
	sb.WriteString(fmt.Sprintf("| Annualized Return | %.2f%% |\n", s.AnnualizedReturnPct))
	sb.WriteString("\n")

	if r.LastRecorded != nil {
		sb.WriteString(fmt.Sprintf("Last recorded snapshot: %s (%d closed, total PnL %.2f%%)\n\n",
			r.LastRecorded.ComputedAt.UTC().Format(time.RFC3339), r.LastRecorded.TotalTrades, r.LastRecorded.TotalPnLPct))
	}

	// Data Quality
	if len(r.IntegrityErrors) > 0 {
		sb.WriteString("## Integrity Errors\n\n")
		for _, err := range r.IntegrityErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
		sb.WriteString("\n")
	}

	// Close reasons
	sb.WriteString("## Exits by Reason\n\n")
	if len(r.ByCloseReason) > 0 {
		sb.WriteString("| Reason | Trades | Wins | Total PnL% | Avg PnL% |\n")
		sb.WriteString("|--------|--------|------|------------|----------|\n")
		for _, row := range r.ByCloseReason {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.2f | %.2f |\n",
				row.Reason, row.Trades, row.Wins, row.TotalPnLPct, row.AvgPnLPct))
		}
	} else {
		sb.WriteString("No closed positions.\n")
	}
	sb.WriteString("\n")

	// Pairs
	sb.WriteString("## Pairs\n\n")
	if len(r.ByPair) > 0 {
		sb.WriteString("| Pair | Trades | Wins | WinRate | Total PnL% | Avg Hours |\n")
		sb.WriteString("|------|--------|------|---------|------------|-----------|\n")
		for _, row := range r.ByPair {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.4f | %.2f | %.1f |\n",
				row.Pair, row.Trades, row.Wins, row.WinRate, row.TotalPnLPct, row.AvgDurationHours))
		}
	} else {
		sb.WriteString("No closed positions.\n")
	}
	sb.WriteString("\n")

	// Open positions
	sb.WriteString("## Open Positions\n\n")
	if len(r.Open) > 0 {
		sb.WriteString("| ID | Pair | Direction | Entry | Entry Z | Last Z | PnL% | Held |\n")
		sb.WriteString("|----|------|-----------|-------|---------|--------|------|------|\n")
		for _, o := range r.Open {
			lastZ := "-"
			if o.LastZScore != nil {
				lastZ = fmt.Sprintf("%.2f", *o.LastZScore)
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %.2f | %s | %.2f | %.1fh |\n",
				o.ID, o.Pair, o.Direction, o.EntryTime.UTC().Format(time.RFC3339),
				o.EntryZScore, lastZ, o.CurrentPnLPct, o.HeldHours))
		}
	} else {
		sb.WriteString("No open positions.\n")
	}
	sb.WriteString("\n")

	// Trades
	sb.WriteString("## Closed Positions\n\n")
	if len(r.Trades) > 0 {
		sb.WriteString("| ID | Pair | Direction | Entry | Close | Hours | Reason | Trigger | PnL% |\n")
		sb.WriteString("|----|------|-----------|-------|-------|-------|--------|---------|------|\n")
		for _, t := range r.Trades {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %.1f | %s | %.2f | %.2f |\n",
				t.ID, t.Pair, t.Direction,
				t.EntryTime.UTC().Format(time.RFC3339), t.CloseTime.UTC().Format(time.RFC3339),
				t.DurationHours, t.CloseReason, t.CloseTrigger, t.PnLPct))
		}
	} else {
		sb.WriteString("No closed positions.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
