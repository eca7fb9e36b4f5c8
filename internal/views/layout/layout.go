package layout

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"stockwright/internal/views/theme"
)

// Layout wraps content in the HTML document shell.
func Layout(title string, th theme.BoardTheme, content templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1">`+
			`<title>`+templ.EscapeString(title)+`</title>`+
			`<script src="https://cdn.tailwindcss.com"></script></head>`+
			`<body class="`+templ.EscapeString(th.BodyClass)+`"><div class="mx-auto max-w-6xl p-6">`); err != nil {
			return err
		}
		if content != nil {
			if err := content.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</div></body></html>`)
		return err
	})
}
