package components

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// StatCard renders a headline figure with a caption.
func StatCard(label, value, caption, panelClass, mutedClass string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="%s p-4"><p class="text-xs uppercase %s">%s</p><p class="text-2xl font-semibold">%s</p><p class="text-xs %s">%s</p></div>`,
			templ.EscapeString(panelClass),
			templ.EscapeString(mutedClass),
			templ.EscapeString(label),
			templ.EscapeString(value),
			templ.EscapeString(mutedClass),
			templ.EscapeString(caption),
		)
		return err
	})
}

// LevelBadge renders a stock level pill.
func LevelBadge(level, class string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<span class="rounded px-2 py-0.5 text-xs font-medium %s">%s</span>`,
			templ.EscapeString(class), templ.EscapeString(level))
		return err
	})
}
