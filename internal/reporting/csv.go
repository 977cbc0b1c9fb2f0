package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderCSV renders closed positions as CSV string.
func RenderCSV(trades []ClosedPositionRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("id,pair,direction,long_asset,short_asset,entry_time,close_time,")
	sb.WriteString("duration_hours,entry_z_score,close_reason,close_trigger,pnl_pct\n")

	// Rows
	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%.4f,%.6f,%s,%.6f,%.6f\n",
			t.ID,
			t.Pair,
			t.Direction,
			t.LongAsset,
			t.ShortAsset,
			t.EntryTime.UTC().Format(time.RFC3339),
			t.CloseTime.UTC().Format(time.RFC3339),
			t.DurationHours,
			t.EntryZScore,
			t.CloseReason,
			t.CloseTrigger,
			t.PnLPct,
		))
	}

	return sb.String()
}
