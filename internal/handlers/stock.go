package handlers

import (
	"fmt"
	"net/http"
	"time"

	applog "stockwright/internal/log"
	"stockwright/internal/report"
	"stockwright/internal/views/pages"
	"stockwright/internal/views/theme"
)

type recomputeResponse struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Computed   int       `json:"computed"`
	Failed     int       `json:"failed"`
	Failures   []string  `json:"failures"`
}

// RecomputeStock runs one snapshot recomputation pass. Per-material failures
// are reported in the body; only a failure to list materials fails the request.
func RecomputeStock(w http.ResponseWriter, r *http.Request) {
	if !available(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	result, err := services.Recomputer.RecomputeAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recomputeResponse{
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Computed:   result.Computed,
		Failed:     result.Failed(),
		Failures:   result.FailureMessages(),
	})
}

// ExportStock streams the stock listing as an xlsx workbook.
func ExportStock(w http.ResponseWriter, r *http.Request) {
	if !available(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	rows, err := services.Reports.Rows(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := report.Workbook(rows)
	if err != nil {
		applog.Error(r.Context(), "failed to build stock workbook", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to build workbook")
		return
	}

	filename := fmt.Sprintf("stock-%s.xlsx", nowFunc().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		applog.Error(r.Context(), "failed to write stock workbook", "error", err)
	}
}

// StockBoard renders the HTML stock board.
func StockBoard(w http.ResponseWriter, r *http.Request) {
	if !available(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	rows, err := services.Reports.Rows(r.Context())
	if err != nil {
		applog.Error(r.Context(), "failed to load stock board", "error", err)
		http.Error(w, "We were unable to load stock levels. Please try again.", statusFor(err))
		return
	}

	data := pages.BoardData{
		Rows:        rows,
		GeneratedAt: nowFunc().UTC(),
		Theme:       theme.Resolve(r.URL.Query().Get("theme")),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.StockBoard(data).Render(r.Context(), w); err != nil {
		applog.Error(r.Context(), "failed to render stock board", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
