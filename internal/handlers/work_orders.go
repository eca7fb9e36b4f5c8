package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"stockwright/internal/errs"
	applog "stockwright/internal/log"
	"stockwright/internal/workorder"
	"stockwright/models"
)

const workOrdersPrefix = "/api/work-orders"

// workOrderResponse adds the statuses the order may move to next.
type workOrderResponse struct {
	*models.WorkOrder
	NextStatuses []models.Status `json:"next_statuses"`
}

func newWorkOrderResponse(order *models.WorkOrder) workOrderResponse {
	next := workorder.NextStatuses(order.Status)
	if next == nil {
		next = []models.Status{}
	}
	return workOrderResponse{WorkOrder: order, NextStatuses: next}
}

type transitionRequest struct {
	Status     models.Status                `json:"status"`
	Completion *workorder.CompletionPayload `json:"completion"`
}

// WorkOrderResource serves /api/work-orders, transitions and consumption.
func WorkOrderResource(w http.ResponseWriter, r *http.Request) {
	if !available(w, r) {
		return
	}

	segments := splitPath(r.URL.Path, workOrdersPrefix)
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			listWorkOrders(w, r)
		case http.MethodPost:
			createWorkOrder(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	}

	orderID, err := parseID(segments[0])
	if err != nil {
		applog.Debug(r.Context(), "invalid work order identifier", "identifier", segments[0], "error", err)
		http.NotFound(w, r)
		return
	}
	ctx := applog.With(r.Context(), "work_order", orderID)
	r = r.WithContext(ctx)

	switch {
	case len(segments) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		order, err := services.WorkOrders.Get(ctx, orderID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newWorkOrderResponse(order))
	case len(segments) == 2 && segments[1] == "transition":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		transitionWorkOrder(w, r, orderID)
	case len(segments) == 2 && segments[1] == "consumption":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		records, err := services.WorkOrders.Consumption(ctx, orderID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if records == nil {
			records = []models.ConsumptionRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	default:
		http.NotFound(w, r)
	}
}

func listWorkOrders(w http.ResponseWriter, r *http.Request) {
	opts := workorder.ListOpts{Status: r.URL.Query().Get("status")}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, errs.Invalid("limit", "must be an integer"))
			return
		}
		opts.Limit = limit
	}
	orders, err := services.WorkOrders.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []models.WorkOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func createWorkOrder(w http.ResponseWriter, r *http.Request) {
	var in workorder.CreateInput
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := services.WorkOrders.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	writeJSON(w, http.StatusCreated, result)
}

func transitionWorkOrder(w http.ResponseWriter, r *http.Request, orderID uint) {
	var req transitionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	target := models.Status(strings.ToLower(strings.TrimSpace(string(req.Status))))
	result, err := services.WorkOrders.Transition(r.Context(), orderID, target, req.Completion)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	writeJSON(w, http.StatusOK, result)
}
