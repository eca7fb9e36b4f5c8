package theme

import "strings"

// Option represents a selectable theme exposed to the UI.
type Option struct {
	Value string
	Label string
}

// BoardTheme contains resolved styling primitives for the stock board.
type BoardTheme struct {
	Key         string
	BodyClass   string
	PanelClass  string
	HeaderClass string
	MutedClass  string
	// LevelClass maps a stock level (low, ok, over) to its badge class.
	LevelClass map[string]string
}

const (
	// DefaultKey defines the fallback theme when none is requested.
	DefaultKey = "ledger_light"
)

var catalogue = map[string]BoardTheme{
	"ledger_light": {
		Key:         "ledger_light",
		BodyClass:   "min-h-screen bg-stone-50 text-stone-900",
		PanelClass:  "rounded border border-stone-200 bg-white",
		HeaderClass: "bg-stone-100 text-left text-xs uppercase tracking-wide",
		MutedClass:  "text-stone-500",
		LevelClass: map[string]string{
			"low":  "bg-red-100 text-red-800",
			"ok":   "bg-emerald-100 text-emerald-800",
			"over": "bg-amber-100 text-amber-800",
		},
	},
	"ledger_dark": {
		Key:         "ledger_dark",
		BodyClass:   "min-h-screen bg-slate-950 text-slate-100",
		PanelClass:  "rounded border border-slate-800 bg-slate-900",
		HeaderClass: "bg-slate-800 text-left text-xs uppercase tracking-wide",
		MutedClass:  "text-slate-400",
		LevelClass: map[string]string{
			"low":  "bg-red-900 text-red-100",
			"ok":   "bg-emerald-900 text-emerald-100",
			"over": "bg-amber-900 text-amber-100",
		},
	},
}

var options = []Option{
	{Value: "ledger_light", Label: "Ledger (Light)"},
	{Value: "ledger_dark", Label: "Ledger (Dark)"},
}

// Resolve returns the registered theme configuration for the provided key.
func Resolve(key string) BoardTheme {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if value, ok := catalogue[normalized]; ok {
		return value
	}
	return catalogue[DefaultKey]
}

// Options exposes the available theme selections for rendering in a form control.
func Options() []Option {
	return options
}

// Level returns the badge class for a stock level, falling back to the ok
// style for unknown levels.
func (t BoardTheme) Level(level string) string {
	if class, ok := t.LevelClass[level]; ok {
		return class
	}
	return t.LevelClass["ok"]
}
