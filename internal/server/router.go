package server

import (
	"context"
	"net/http"

	"stockwright/internal/handlers"
	applog "stockwright/internal/log"
	"stockwright/internal/metrics"
)

func newRouter(metricsEnabled bool) http.Handler {
	mux := http.NewServeMux()
	applog.Debug(context.Background(), "registering http routes")

	mux.HandleFunc("/healthz", handlers.Health)
	applog.Debug(context.Background(), "route registered", "path", "/healthz")

	resources := []struct {
		prefix  string
		handler http.HandlerFunc
	}{
		{"/api/materials", handlers.MaterialResource},
		{"/api/products", handlers.ProductResource},
		{"/api/work-orders", handlers.WorkOrderResource},
	}
	for _, res := range resources {
		mux.HandleFunc(res.prefix, res.handler)
		mux.HandleFunc(res.prefix+"/", res.handler)
		applog.Debug(context.Background(), "route registered", "path", res.prefix, "resource", true)
	}

	mux.HandleFunc("/api/feasibility", handlers.FormulaFeasibility)
	mux.HandleFunc("/api/stock/recompute", handlers.RecomputeStock)
	mux.HandleFunc("/api/stock/export.xlsx", handlers.ExportStock)
	mux.HandleFunc("/stock", handlers.StockBoard)
	applog.Debug(context.Background(), "route registered", "path", "/stock")

	if metricsEnabled {
		mux.Handle("/metrics", metrics.Handler())
		applog.Debug(context.Background(), "route registered", "path", "/metrics")
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/stock", http.StatusSeeOther)
	})
	return mux
}
