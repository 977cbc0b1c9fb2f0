package ledger

import "math"

// ComputePnLPct returns the spread PnL in percent:
//   - long_return  = (cur_long - entry_long) / entry_long
//   - short_return = (entry_short - cur_short) / entry_short
//   - pnl_pct      = (long_return + short_return) * 100
//
// Percent scaling is applied before division to keep whole-number moves exact.
//
// ok is false if any price is non-positive or non-finite.
func ComputePnLPct(entryLong, entryShort, curLong, curShort float64) (float64, bool) {
	for _, p := range []float64{entryLong, entryShort, curLong, curShort} {
		if !validPrice(p) {
			return 0, false
		}
	}
	longPct := 100 * (curLong - entryLong) / entryLong
	shortPct := 100 * (entryShort - curShort) / entryShort
	return longPct + shortPct, true
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
