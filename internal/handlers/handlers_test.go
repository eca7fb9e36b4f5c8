package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockwright/internal/catalog"
	"stockwright/internal/errs"
	"stockwright/internal/feasibility"
	"stockwright/internal/report"
	"stockwright/internal/stock"
	"stockwright/internal/store"
	"stockwright/internal/workorder"
)

func withServices(t *testing.T, s store.Store) {
	t.Helper()
	timeout := time.Second
	calc := stock.NewCalculator(s, timeout)
	engine := feasibility.NewEngine(s, calc, timeout)

	original := services
	services = &Services{
		Store:       s,
		Catalog:     catalog.NewService(s, timeout),
		Calculator:  calc,
		Ledger:      stock.NewLedger(s, calc, timeout),
		Recomputer:  stock.NewRecomputer(s, calc, timeout),
		Feasibility: engine,
		WorkOrders:  workorder.NewService(s, engine, calc, timeout),
		Reports:     report.NewBuilder(s, calc, timeout),
	}
	t.Cleanup(func() {
		services = original
	})
}

func do(t *testing.T, handler http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", errs.NotFound("material", 1), http.StatusNotFound},
		{"validation", errs.Invalid("quantity", "must be positive"), http.StatusBadRequest},
		{"transition", errs.TransitionError{From: "completed", To: "pending"}, http.StatusConflict},
		{"busy", errs.Busy("stock recompute"), http.StatusConflict},
		{"unavailable", errs.Unavailable("list", errors.New("connection reset")), http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("read: %w", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := statusFor(tt.err); got != tt.want {
				t.Fatalf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestResourcesWithoutServices(t *testing.T) {
	original := services
	services = nil
	t.Cleanup(func() { services = original })

	for _, h := range []http.HandlerFunc{MaterialResource, ProductResource, WorkOrderResource, RecomputeStock, ExportStock, StockBoard} {
		w := do(t, h, http.MethodGet, "/api/materials", nil)
		expectStatus(t, w, http.StatusServiceUnavailable)
	}
}

func TestParseAsOf(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?as_of=2024-03-01T10:00:00Z", nil)
	got, err := parseAsOf(req)
	if err != nil || !got.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("parseAsOf() = %v, %v", got, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/?as_of=yesterday", nil)
	if _, err := parseAsOf(req); !errs.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSplitPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want int
	}{
		{"/api/materials", 0},
		{"/api/materials/", 0},
		{"/api/materials/3", 1},
		{"/api/materials/3/stock/", 2},
	}
	for _, tt := range tests {
		if got := len(splitPath(tt.path, materialsPrefix)); got != tt.want {
			t.Fatalf("splitPath(%q) has %d segments, want %d", tt.path, got, tt.want)
		}
	}
}
