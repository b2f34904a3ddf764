package notify

import (
	"fmt"
	"strings"

	"options-anomaly-trader/internal/outlier"
	"options-anomaly-trader/internal/trader"
)

// FormatOutliers renders the per-symbol signal summary of one folder.
// It returns "" when there is nothing to report.
func FormatOutliers(folder string, sums []outlier.Summary) string {
	if len(sums) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** outlier summary\n```\n", folder)
	fmt.Fprintf(&b, "%-8s %4s %4s %10s %10s %10s %10s\n",
		"symbol", "bull", "bear", "bull call", "bear call", "bull put", "bear put")
	for _, s := range sums {
		fmt.Fprintf(&b, "%-8s %4d %4d %10s %10s %10s %10s\n",
			s.Symbol, s.Bullish, s.Bearish,
			Money(s.BullishCallAmount), Money(s.BearishCallAmount),
			Money(s.BullishPutAmount), Money(s.BearishPutAmount))
	}
	b.WriteString("```")
	return b.String()
}

// FormatReport renders the trades of a decision run. Runs with no trades
// return "".
func FormatReport(r *trader.Report) string {
	if r == nil || len(r.Buys)+len(r.Sells) == 0 {
		return ""
	}
	var b strings.Builder
	for _, f := range r.Sells {
		fmt.Fprintf(&b, "SELL %s %d @ %s gain %s (%s)\n",
			f.Symbol, f.Shares, f.Price.StringFixed(2), f.Gain.StringFixed(2), f.Reason)
	}
	for _, f := range r.Buys {
		fmt.Fprintf(&b, "BUY %s %d @ %s amount %s (%s)\n",
			f.Symbol, f.Shares, f.Price.StringFixed(2), f.Amount.StringFixed(2), f.Reason)
	}
	fmt.Fprintf(&b, "cash %s stock %s total %s",
		r.Account.Cash.StringFixed(2), r.Account.StockValue.StringFixed(2), r.Account.TotalValue.StringFixed(2))
	return b.String()
}

// Money abbreviates a dollar amount: 1.5M, 320K, 900.
func Money(v float64) string {
	switch {
	case v == 0:
		return "-"
	case v >= 1e9:
		return fmt.Sprintf("%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.0fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
