package main

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"stockinsights/internal/dashboard"
	"stockinsights/internal/domain"
)

// Styles.
var (
	symbolStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	priceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	countStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	dayLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// rangeWidth is the number of cells in a 52-week range bar.
const rangeWidth = 10

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if len(s) > 3 {
		var b strings.Builder
		start := len(s) % 3
		if start > 0 {
			b.WriteString(s[:start])
		}
		for i := start; i < len(s); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(s[i : i+3])
		}
		s = b.String()
	}
	if neg {
		return "-" + s
	}
	return s
}

// FormatCount formats a mention count, using a K suffix for large values.
func FormatCount(n int) string {
	if n >= 100_000 {
		return fmt.Sprintf("%.0fK", float64(n)/1e3)
	}
	return FormatInt(n)
}

// FormatPrice formats a price as X.XX, or "-" for zero or NaN.
func FormatPrice(p float64) string {
	if p == 0 || math.IsNaN(p) {
		return "-"
	}
	return fmt.Sprintf("%.2f", p)
}

// FormatChange formats a daily change as "+X.XX", "-X.XX" or "0.00".
func FormatChange(c float64) string {
	switch {
	case c > 0:
		return fmt.Sprintf("+%.2f", c)
	case c < 0:
		return fmt.Sprintf("%.2f", c)
	default:
		return "0.00"
	}
}

// FormatPercent formats change relative to the previous close (last minus
// change). Drops the decimal at 100% or more to keep the width compact.
func FormatPercent(last, change float64) string {
	prev := last - change
	if prev <= 0 || change == 0 {
		return ""
	}
	pct := change / prev * 100
	sign := "+"
	if pct < 0 {
		sign = "-"
		pct = -pct
	}
	if pct >= 100 {
		return fmt.Sprintf("%s%.0f%%", sign, pct)
	}
	return fmt.Sprintf("%s%.1f%%", sign, pct)
}

// FormatRange draws where a point sits in its 52-week range, low on the
// left. Missing ranges are drawn at the midpoint.
func FormatRange(p domain.PricePoint) string {
	f := math.Min(math.Max(p.Week52Position(), 0), 1)
	pos := int(math.Round(f * float64(rangeWidth-1)))
	return "[" + strings.Repeat("-", pos) + "|" + strings.Repeat("-", rangeWidth-1-pos) + "]"
}

func changeStyle(c float64) lipgloss.Style {
	switch {
	case c > 0:
		return gainStyle
	case c < 0:
		return lossStyle
	default:
		return dimStyle
	}
}

// ---------------------------------------------------------------------------
// Renderers
// ---------------------------------------------------------------------------

// renderPoints writes one row per point: symbol, last, change, percent and
// the 52-week range bar.
func renderPoints(w io.Writer, points []domain.PricePoint) {
	fmt.Fprintln(w, colHeaderStyle.Render(fmt.Sprintf("%-8s %10s %9s %8s  %s", "SYMBOL", "LAST", "CHANGE", "PCT", "52W")))
	for _, p := range points {
		cs := changeStyle(p.Change)
		fmt.Fprintf(w, "%s %s %s %s  %s\n",
			symbolStyle.Render(fmt.Sprintf("%-8s", p.Symbol)),
			priceStyle.Render(fmt.Sprintf("%10s", FormatPrice(p.Last))),
			cs.Render(fmt.Sprintf("%9s", FormatChange(p.Change))),
			cs.Render(fmt.Sprintf("%8s", FormatPercent(p.Last, p.Change))),
			dimStyle.Render(FormatRange(p)),
		)
	}
}

// renderSnapshot writes the day label followed by the day's points.
func renderSnapshot(w io.Writer, snap domain.DateSnapshot) {
	fmt.Fprintln(w, dayLabelStyle.Render(" "+snap.Date.String()+" "))
	renderPoints(w, snap.Data)
}

// latestPoints returns the last point of every series, ordered as symbols.
func latestPoints(symbols []string, series map[string][]domain.PricePoint) []domain.PricePoint {
	var out []domain.PricePoint
	for _, sym := range symbols {
		pts := series[sym]
		if len(pts) == 0 {
			continue
		}
		out = append(out, pts[len(pts)-1])
	}
	return out
}

func renderMovers(w io.Writer, movers []domain.Mover) {
	fmt.Fprintln(w, colHeaderStyle.Render(fmt.Sprintf("%-8s %10s %9s  %s", "SYMBOL", "LAST", "CHANGE", "NAME")))
	for _, m := range movers {
		fmt.Fprintf(w, "%s %s %s  %s\n",
			symbolStyle.Render(fmt.Sprintf("%-8s", m.Symbol)),
			priceStyle.Render(fmt.Sprintf("%10s", FormatPrice(m.Value))),
			changeStyle(m.Change).Render(fmt.Sprintf("%9s", FormatChange(m.Change))),
			dimStyle.Render(m.Description),
		)
	}
}

func renderEntitySummaries(w io.Writer, entities []domain.EntitySummary) {
	fmt.Fprintln(w, colHeaderStyle.Render(fmt.Sprintf("%-32s %7s %9s", "ENTITY", "COUNT", "SENTIMENT")))
	for _, e := range entities {
		fmt.Fprintf(w, "%-32s %s %s\n",
			truncate(e.Text, 32),
			countStyle.Render(fmt.Sprintf("%7s", FormatCount(e.Count))),
			changeStyle(e.AverageSentiment).Render(fmt.Sprintf("%9.2f", e.AverageSentiment)),
		)
	}
}

// renderEntities writes the dashboard's bubble rollup.
func renderEntities(w io.Writer, entities []domain.Entity) {
	fmt.Fprintln(w, colHeaderStyle.Render(fmt.Sprintf("%-32s %7s %9s", "ENTITY", "MENTIONS", "COLOR")))
	for _, e := range entities {
		fmt.Fprintf(w, "%-32s %s %s\n",
			truncate(e.ID, 32),
			countStyle.Render(fmt.Sprintf("%7s", FormatCount(e.Value))),
			changeStyle(e.ColorValue).Render(fmt.Sprintf("%9.2f", e.ColorValue)),
		)
	}
}

// renderState writes a dashboard snapshot: the current day, the selected
// companies and any load errors.
func renderState(w io.Writer, st dashboard.Snapshot) {
	if len(st.Snapshots) > 0 {
		current := st.Snapshots[len(st.Snapshots)-1]
		for _, s := range st.Snapshots {
			if s.Date == st.Date {
				current = s
			}
		}
		renderSnapshot(w, current)
	} else if len(st.Companies) == 0 {
		fmt.Fprintln(w, dimStyle.Render(label(st.Strings, "noCompanies", "No companies")))
	}
	if len(st.Selected) > 0 {
		fmt.Fprintf(w, "%s %s\n", colHeaderStyle.Render(label(st.Strings, "articles", "Articles")+":"), strings.Join(st.Selected, ", "))
	}
	if len(st.Entities) > 0 {
		renderEntities(w, st.Entities)
	}
	for kind, msg := range st.Errors {
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("%s: %s", kind, msg)))
	}
}

// label returns the localized string for key, or def.
func label(strs map[string]string, key, def string) string {
	if v, ok := strs[key]; ok && v != "" {
		return v
	}
	return def
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
