// Package handlers exposes the stock, catalog and work-order services over a
// thin JSON HTTP layer.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stockwright/internal/catalog"
	"stockwright/internal/errs"
	"stockwright/internal/feasibility"
	applog "stockwright/internal/log"
	"stockwright/internal/report"
	"stockwright/internal/stock"
	"stockwright/internal/store"
	"stockwright/internal/workorder"
)

const maxBodyBytes = 1 << 20

// Services groups the dependencies the handlers call into.
type Services struct {
	Store       store.Store
	Catalog     *catalog.Service
	Calculator  *stock.Calculator
	Ledger      *stock.Ledger
	Recomputer  *stock.Recomputer
	Feasibility *feasibility.Engine
	WorkOrders  *workorder.Service
	Reports     *report.Builder
}

var (
	services *Services
	nowFunc  = time.Now
)

// Configure installs the services used by every handler.
func Configure(s *Services) {
	services = s
}

func available(w http.ResponseWriter, r *http.Request) bool {
	if services == nil {
		applog.Debug(r.Context(), "request without configured services", "path", r.URL.Path)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		applog.Error(context.Background(), "failed to encode json response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errs.IsNotFound(err):
		return http.StatusNotFound
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errs.IsInvalidTransition(err), errs.IsBusy(err):
		return http.StatusConflict
	case errs.IsRetryable(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		applog.Error(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "error", err)
	} else {
		applog.Debug(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSONError(w, status, err.Error())
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// untouched when optional is set.
func decodeJSON(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return errs.Invalid("body", "invalid JSON: %v", err)
	}
	return nil
}

func splitPath(path, prefix string) []string {
	path = strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func parseID(segment string) (uint, error) {
	value, err := strconv.ParseUint(segment, 10, 64)
	if err != nil || value == 0 {
		return 0, fmt.Errorf("invalid identifier %q", segment)
	}
	return uint(value), nil
}

// parseAsOf reads the optional as_of query parameter as RFC 3339.
func parseAsOf(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("as_of"))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errs.Invalid("as_of", "must be an RFC 3339 timestamp")
	}
	return t, nil
}

func parseBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errs.Invalid(key, "must be a boolean")
	}
	return v, nil
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	w.WriteHeader(http.StatusMethodNotAllowed)
}
