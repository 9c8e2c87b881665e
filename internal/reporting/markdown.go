package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderMarkdown renders the ranking as a Markdown document.
func RenderMarkdown(r *Ranking) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Strategy Ranking %s - %s\n\n", r.Symbol, r.Interval))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Strategies: %d | Affined: %d\n\n", r.Total, r.Affined))

	// Summary
	sb.WriteString("## Summary\n\n")
	if r.Summary.Count == 0 {
		sb.WriteString("No affined strategies.\n\n")
		return sb.String()
	}
	summary := table.NewWriter()
	summary.AppendHeader(table.Row{"Metric", "Value"})
	summary.AppendRows([]table.Row{
		{"Final money mean", fmt.Sprintf("%.2f", r.Summary.FinalMoneyMean)},
		{"Final money median", fmt.Sprintf("%.2f", r.Summary.FinalMoneyMedian)},
		{"Final money stddev", fmt.Sprintf("%.2f", r.Summary.FinalMoneyStdDev)},
		{"Final money P10", fmt.Sprintf("%.2f", r.Summary.FinalMoneyP10)},
		{"Final money P90", fmt.Sprintf("%.2f", r.Summary.FinalMoneyP90)},
		{"Win rate mean", fmt.Sprintf("%.4f", r.Summary.WinRateMean)},
	})
	sb.WriteString(summary.RenderMarkdown())
	sb.WriteString("\n\n")

	// Top strategies
	sb.WriteString(fmt.Sprintf("## Top %d\n\n", len(r.Top)))
	sb.WriteString(rankingTable(r.Top).RenderMarkdown())
	sb.WriteString("\n")

	return sb.String()
}

// RenderTable renders the top strategies as a plain-text table for terminals.
func RenderTable(r *Ranking) string {
	t := rankingTable(r.Top)
	t.SetTitle(fmt.Sprintf("%s - %s: %d/%d affined", r.Symbol, r.Interval, r.Affined, r.Total))
	t.SetStyle(table.StyleLight)
	return t.Render()
}

func rankingTable(rows []RankingRow) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Pattern", "Market", "TP", "SL", "Rep", "Window", "Risk", "Trades", "WinRate", "Final", "Return %", "MaxDD", "Strategy"})
	for _, row := range rows {
		t.AppendRow(table.Row{
			row.Rank, row.Pattern, row.Market,
			row.TakeProfit, row.StopLoss, row.Repetitions, row.WindowSize, row.RiskFraction,
			row.TotalClosed,
			fmt.Sprintf("%.4f", row.WinRate),
			fmt.Sprintf("%.2f", row.FinalMoney),
			fmt.Sprintf("%.2f", row.ReturnPct),
			fmt.Sprintf("%.4f", row.MaxDrawdown),
			shortID(row.StrategyID),
		})
	}
	return t
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
