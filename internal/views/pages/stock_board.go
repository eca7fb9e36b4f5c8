package pages

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/shopspring/decimal"

	"stockwright/internal/report"
	"stockwright/internal/views/components"
	"stockwright/internal/views/layout"
	"stockwright/internal/views/theme"
	"stockwright/models"
)

// BoardData is everything the stock board renders.
type BoardData struct {
	Rows        []report.Row
	GeneratedAt time.Time
	Theme       theme.BoardTheme
}

// DefaultDash returns a dash when the provided value is empty or whitespace.
func DefaultDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

// FormatQuantity renders a quantity without trailing zeros followed by its unit.
func FormatQuantity(q decimal.Decimal, unit string) string {
	return strings.TrimSpace(q.String() + " " + unit)
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("02 Jan 2006 15:04")
}

// LevelCounts tallies rows per stock level.
func LevelCounts(rows []report.Row) map[string]int {
	counts := map[string]int{
		models.StockLevelLow:  0,
		models.StockLevelOK:   0,
		models.StockLevelOver: 0,
	}
	for _, r := range rows {
		counts[r.Level]++
	}
	return counts
}

// StockBoard renders the on-hand stock of every active material.
func StockBoard(data BoardData) templ.Component {
	return layout.Layout("Stock board", data.Theme, boardContent(data))
}

func boardContent(data BoardData) templ.Component {
	th := data.Theme
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		counts := LevelCounts(data.Rows)
		if _, err := fmt.Fprintf(w, `<h1 class="mb-1 text-xl font-semibold">Stock board</h1><p class="mb-4 text-xs %s">Generated %s</p><div class="mb-6 grid grid-cols-3 gap-4">`,
			templ.EscapeString(th.MutedClass), templ.EscapeString(data.GeneratedAt.UTC().Format(time.RFC3339))); err != nil {
			return err
		}
		stats := []templ.Component{
			components.StatCard("Materials", strconv.Itoa(len(data.Rows)), "active", th.PanelClass, th.MutedClass),
			components.StatCard("Below minimum", strconv.Itoa(counts[models.StockLevelLow]), "need replenishment", th.PanelClass, th.MutedClass),
			components.StatCard("Above maximum", strconv.Itoa(counts[models.StockLevelOver]), "overstocked", th.PanelClass, th.MutedClass),
		}
		for _, stat := range stats {
			if err := stat.Render(ctx, w); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, `</div>`); err != nil {
			return err
		}

		if len(data.Rows) == 0 {
			_, err := fmt.Fprintf(w, `<p class="%s">No active materials.</p>`, templ.EscapeString(th.MutedClass))
			return err
		}

		if _, err := fmt.Fprintf(w, `<table class="w-full text-sm %s"><thead class="%s"><tr><th class="p-2">Code</th><th class="p-2">Name</th><th class="p-2 text-right">On hand</th><th class="p-2 text-right">Min</th><th class="p-2 text-right">Max</th><th class="p-2">Level</th><th class="p-2">Last movement</th></tr></thead><tbody>`,
			templ.EscapeString(th.PanelClass), templ.EscapeString(th.HeaderClass)); err != nil {
			return err
		}
		for _, r := range data.Rows {
			maxLabel := "-"
			if r.MaxStock != nil {
				maxLabel = FormatQuantity(*r.MaxStock, r.Unit)
			}
			if _, err := fmt.Fprintf(w, `<tr data-material="%d"><td class="p-2 font-mono">%s</td><td class="p-2">%s</td><td class="p-2 text-right">%s</td><td class="p-2 text-right">%s</td><td class="p-2 text-right">%s</td><td class="p-2">`,
				r.MaterialID,
				templ.EscapeString(r.Code),
				templ.EscapeString(DefaultDash(r.Name)),
				templ.EscapeString(FormatQuantity(r.Quantity, r.Unit)),
				templ.EscapeString(FormatQuantity(r.MinStock, r.Unit)),
				templ.EscapeString(maxLabel),
			); err != nil {
				return err
			}
			if err := components.LevelBadge(r.Level, th.Level(r.Level)).Render(ctx, w); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, `</td><td class="p-2 %s">%s</td></tr>`,
				templ.EscapeString(th.MutedClass), templ.EscapeString(formatTimestamp(r.LastMovementAt))); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	})
}
