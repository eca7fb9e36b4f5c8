package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"stockwright/internal/feasibility"
	"stockwright/internal/stock"
	"stockwright/internal/store"
	"stockwright/internal/store/memory"
	"stockwright/internal/workorder"
	"stockwright/models"
)

var (
	t1 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	t2 = t1.Add(2 * time.Hour)
)

func mustCreateMaterial(t *testing.T, code string) models.Material {
	t.Helper()
	w := do(t, MaterialResource, http.MethodPost, "/api/materials", map[string]any{
		"code": code, "name": "Material " + code, "unit": "g", "min_stock": "10",
	})
	expectStatus(t, w, http.StatusCreated)
	return decode[models.Material](t, w)
}

func postMovement(t *testing.T, materialID uint, qty, direction string, at time.Time) stock.RecordResult {
	t.Helper()
	w := do(t, MaterialResource, http.MethodPost, fmt.Sprintf("/api/materials/%d/movements", materialID), map[string]any{
		"quantity": qty, "direction": direction, "occurred_at": at,
	})
	expectStatus(t, w, http.StatusCreated)
	return decode[stock.RecordResult](t, w)
}

func getStock(t *testing.T, target string) stockResponse {
	t.Helper()
	w := do(t, MaterialResource, http.MethodGet, target, nil)
	expectStatus(t, w, http.StatusOK)
	return decode[stockResponse](t, w)
}

func TestMaterialEndpoints(t *testing.T) {
	withServices(t, memory.New())

	material := mustCreateMaterial(t, "m")
	if material.Code != "M" || !material.IsActive {
		t.Fatalf("unexpected material %+v", material)
	}

	w := do(t, MaterialResource, http.MethodPost, "/api/materials", map[string]any{"code": "M", "name": "dup"})
	expectStatus(t, w, http.StatusBadRequest)
	w = do(t, MaterialResource, http.MethodPost, "/api/materials", map[string]any{"code": "X", "bogus": true})
	expectStatus(t, w, http.StatusBadRequest)

	result := postMovement(t, material.ID, "100", "in", t1)
	if len(result.AffectedMaterials) != 1 || result.AffectedMaterials[0] != material.ID {
		t.Fatalf("unexpected affected materials %v", result.AffectedMaterials)
	}
	postMovement(t, material.ID, "30", "OUT", t2)

	w = do(t, MaterialResource, http.MethodPost, fmt.Sprintf("/api/materials/%d/movements", material.ID), map[string]any{"quantity": "0", "direction": "in"})
	expectStatus(t, w, http.StatusBadRequest)

	if got := getStock(t, fmt.Sprintf("/api/materials/%d/stock", material.ID)); !got.Quantity.Equal(decimal.NewFromInt(70)) || got.Source != "ledger" || got.MovementCount != 2 {
		t.Fatalf("unexpected stock %+v", got)
	}
	asOf := t1.Add(time.Hour).Format(time.RFC3339)
	if got := getStock(t, fmt.Sprintf("/api/materials/%d/stock?as_of=%s", material.ID, asOf)); !got.Quantity.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100 as of %s, got %s", asOf, got.Quantity)
	}

	w = do(t, MaterialResource, http.MethodGet, fmt.Sprintf("/api/materials/%d/stock?cached=true", material.ID), nil)
	expectStatus(t, w, http.StatusNotFound)
	w = do(t, RecomputeStock, http.MethodPost, "/api/stock/recompute", nil)
	expectStatus(t, w, http.StatusOK)
	if rep := decode[recomputeResponse](t, w); rep.Computed != 1 || rep.Failed != 0 {
		t.Fatalf("unexpected recompute report %+v", rep)
	}
	if got := getStock(t, fmt.Sprintf("/api/materials/%d/stock?cached=true", material.ID)); got.Source != "snapshot" || !got.Quantity.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("unexpected cached stock %+v", got)
	}

	w = do(t, MaterialResource, http.MethodGet, fmt.Sprintf("/api/materials/%d/movements?as_of=%s", material.ID, asOf), nil)
	expectStatus(t, w, http.StatusOK)
	if movements := decode[[]models.Movement](t, w); len(movements) != 1 {
		t.Fatalf("expected 1 movement before %s, got %d", asOf, len(movements))
	}

	w = do(t, MaterialResource, http.MethodDelete, fmt.Sprintf("/api/materials/%d", material.ID), nil)
	expectStatus(t, w, http.StatusBadRequest)
	w = do(t, MaterialResource, http.MethodPost, fmt.Sprintf("/api/materials/%d/deactivate", material.ID), nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[models.Material](t, w); got.IsActive {
		t.Fatal("expected material to be inactive")
	}
	w = do(t, MaterialResource, http.MethodGet, "/api/materials?active=true", nil)
	expectStatus(t, w, http.StatusOK)
	if list := decode[[]models.Material](t, w); len(list) != 0 {
		t.Fatalf("expected no active materials, got %d", len(list))
	}

	unused := mustCreateMaterial(t, "unused")
	w = do(t, MaterialResource, http.MethodDelete, fmt.Sprintf("/api/materials/%d", unused.ID), nil)
	expectStatus(t, w, http.StatusNoContent)

	tests := []struct {
		method string
		target string
		want   int
	}{
		{http.MethodGet, "/api/materials/abc", http.StatusNotFound},
		{http.MethodGet, "/api/materials/999", http.StatusNotFound},
		{http.MethodGet, "/api/materials/999/stock", http.StatusNotFound},
		{http.MethodGet, fmt.Sprintf("/api/materials/%d/unknown", material.ID), http.StatusNotFound},
		{http.MethodGet, fmt.Sprintf("/api/materials/%d/stock/recompute", material.ID), http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/materials/999/stock/recompute", http.StatusNotFound},
		{http.MethodPut, "/api/materials", http.StatusMethodNotAllowed},
		{http.MethodPatch, fmt.Sprintf("/api/materials/%d", material.ID), http.StatusMethodNotAllowed},
		{http.MethodGet, fmt.Sprintf("/api/materials/%d/stock?as_of=never", material.ID), http.StatusBadRequest},
		{http.MethodGet, fmt.Sprintf("/api/materials/%d/stock?cached=true&as_of=%s", material.ID, asOf), http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := do(t, MaterialResource, tt.method, tt.target, nil)
		if w.Code != tt.want {
			t.Fatalf("%s %s: expected %d, got %d", tt.method, tt.target, tt.want, w.Code)
		}
	}
}

func TestProductEndpoints(t *testing.T) {
	withServices(t, memory.New())

	a := mustCreateMaterial(t, "a")
	b := mustCreateMaterial(t, "b")
	postMovement(t, a.ID, "100", "in", t1)
	postMovement(t, b.ID, "30", "in", t1)

	w := do(t, ProductResource, http.MethodPost, "/api/products", map[string]any{
		"code": "p", "name": "Product", "base_quantity": "100",
		"formula": []map[string]any{
			{"material_id": a.ID, "required_quantity": "20"},
			{"material_id": b.ID, "required_quantity": "10"},
		},
	})
	expectStatus(t, w, http.StatusCreated)
	product := decode[models.Product](t, w)
	if len(product.Formula) != 2 {
		t.Fatalf("expected 2 formula lines, got %d", len(product.Formula))
	}

	w = do(t, ProductResource, http.MethodGet, fmt.Sprintf("/api/products/%d/feasibility", product.ID), nil)
	expectStatus(t, w, http.StatusOK)
	res := decode[feasibility.ProductResult](t, w)
	if res.MaxBatches != 3 || res.LimitingMaterialID == nil || *res.LimitingMaterialID != b.ID {
		t.Fatalf("unexpected feasibility %+v", res)
	}

	cachedPath := fmt.Sprintf("/api/products/%d/feasibility?cached=true", product.ID)
	w = do(t, ProductResource, http.MethodGet, cachedPath, nil)
	expectStatus(t, w, http.StatusNotFound)
	for _, m := range []models.Material{a, b} {
		w = do(t, MaterialResource, http.MethodPost, fmt.Sprintf("/api/materials/%d/stock/recompute", m.ID), nil)
		expectStatus(t, w, http.StatusOK)
		if snap := decode[stockResponse](t, w); snap.Source != "snapshot" || snap.MaterialID != m.ID {
			t.Fatalf("unexpected snapshot response %+v", snap)
		}
	}
	w = do(t, ProductResource, http.MethodGet, cachedPath, nil)
	expectStatus(t, w, http.StatusOK)
	if cached := decode[feasibility.ProductResult](t, w); cached.MaxBatches != res.MaxBatches || *cached.LimitingMaterialID != b.ID {
		t.Fatalf("expected cached feasibility to match on-demand %+v, got %+v", res, cached)
	}
	w = do(t, ProductResource, http.MethodGet, fmt.Sprintf("/api/products/%d/feasibility?cached=maybe", product.ID), nil)
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, ProductResource, http.MethodGet, fmt.Sprintf("/api/products/%d/feasibility?quantity=250", product.ID), nil)
	expectStatus(t, w, http.StatusOK)
	if res := decode[feasibility.ProductResult](t, w); res.MaxBatches != 1 {
		t.Fatalf("expected 1 batch of 250, got %+v", res)
	}
	w = do(t, ProductResource, http.MethodGet, fmt.Sprintf("/api/products/%d/feasibility?quantity=lots", product.ID), nil)
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, ProductResource, http.MethodPut, fmt.Sprintf("/api/products/%d/formula", product.ID), map[string]any{
		"lines": []map[string]any{{"material_id": a.ID, "required_quantity": "50"}},
	})
	expectStatus(t, w, http.StatusOK)
	w = do(t, ProductResource, http.MethodGet, fmt.Sprintf("/api/products/%d/formula", product.ID), nil)
	expectStatus(t, w, http.StatusOK)
	if lines := decode[[]models.FormulaLine](t, w); len(lines) != 1 || lines[0].MaterialID != a.ID {
		t.Fatalf("unexpected formula %+v", lines)
	}

	w = do(t, ProductResource, http.MethodPut, fmt.Sprintf("/api/products/%d/formula", product.ID), map[string]any{
		"lines": []map[string]any{{"material_id": a.ID, "required_quantity": "1"}, {"material_id": a.ID, "required_quantity": "2"}},
	})
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, FormulaFeasibility, http.MethodPost, "/api/feasibility", map[string]any{
		"lines": []map[string]any{{"material_id": a.ID, "required_quantity": "40"}},
	})
	expectStatus(t, w, http.StatusOK)
	if res := decode[feasibility.Result](t, w); res.MaxBatches != 2 || !res.ProductionReady {
		t.Fatalf("unexpected ad-hoc feasibility %+v", res)
	}

	w = do(t, ProductResource, http.MethodGet, "/api/products", nil)
	expectStatus(t, w, http.StatusOK)
	if list := decode[[]models.Product](t, w); len(list) != 1 {
		t.Fatalf("expected 1 product, got %d", len(list))
	}
	w = do(t, ProductResource, http.MethodGet, "/api/products/42", nil)
	expectStatus(t, w, http.StatusNotFound)
}

// TestWorkOrderLifecycle walks the ledger scenario over HTTP: 100 in, 30 out,
// one item of 5 with M:7 per unit, start, complete without payload.
func TestWorkOrderLifecycle(t *testing.T) {
	withServices(t, memory.New())

	m := mustCreateMaterial(t, "m")
	postMovement(t, m.ID, "100", "in", t1)
	postMovement(t, m.ID, "30", "out", t2)

	w := do(t, ProductResource, http.MethodPost, "/api/products", map[string]any{
		"code": "p", "name": "Product", "base_quantity": "1",
		"formula": []map[string]any{{"material_id": m.ID, "required_quantity": "7"}},
	})
	expectStatus(t, w, http.StatusCreated)
	product := decode[models.Product](t, w)

	w = do(t, WorkOrderResource, http.MethodPost, "/api/work-orders", map[string]any{
		"priority":    2,
		"description": "shortbread run",
		"items":       []map[string]any{{"product_id": product.ID, "planned_quantity": "5"}},
	})
	expectStatus(t, w, http.StatusCreated)
	created := decode[workorder.CreateResult](t, w)
	if len(created.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", created.Warnings)
	}
	order := created.WorkOrder
	if order.Status != models.StatusPending || !strings.HasPrefix(order.OrderNumber, "WO-") {
		t.Fatalf("unexpected order %+v", order)
	}

	orderPath := fmt.Sprintf("/api/work-orders/%d", order.ID)
	w = do(t, WorkOrderResource, http.MethodGet, orderPath, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[workOrderResponse](t, w); got.OrderNumber != order.OrderNumber || len(got.NextStatuses) != 2 ||
		got.NextStatuses[0] != models.StatusInProgress || got.NextStatuses[1] != models.StatusCancelled {
		t.Fatalf("unexpected work order response %+v", got)
	}

	path := fmt.Sprintf("/api/work-orders/%d/transition", order.ID)
	w = do(t, WorkOrderResource, http.MethodPost, path, map[string]any{"status": "completed"})
	expectStatus(t, w, http.StatusConflict)

	w = do(t, WorkOrderResource, http.MethodPost, path, map[string]any{"status": "in_progress"})
	expectStatus(t, w, http.StatusOK)

	w = do(t, WorkOrderResource, http.MethodPost, path, map[string]any{"status": "completed"})
	expectStatus(t, w, http.StatusOK)
	done := decode[workorder.TransitionResult](t, w)
	if done.WorkOrder.Status != models.StatusCompleted || len(done.ConsumptionRecords) != 1 {
		t.Fatalf("unexpected completion %+v", done)
	}
	if !done.ConsumptionRecords[0].ActualConsumption.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("expected 35 consumed, got %s", done.ConsumptionRecords[0].ActualConsumption)
	}

	if got := getStock(t, fmt.Sprintf("/api/materials/%d/stock", m.ID)); !got.Quantity.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("expected 35 on hand, got %s", got.Quantity)
	}

	w = do(t, WorkOrderResource, http.MethodGet, orderPath, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[workOrderResponse](t, w); got.Status != models.StatusCompleted || got.NextStatuses == nil || len(got.NextStatuses) != 0 {
		t.Fatalf("expected completed order with no next statuses, got %+v", got)
	}

	w = do(t, WorkOrderResource, http.MethodGet, fmt.Sprintf("/api/work-orders/%d/consumption", order.ID), nil)
	expectStatus(t, w, http.StatusOK)
	if records := decode[[]models.ConsumptionRecord](t, w); len(records) != 1 {
		t.Fatalf("expected 1 consumption record, got %d", len(records))
	}

	w = do(t, WorkOrderResource, http.MethodPost, path, map[string]any{"status": "cancelled"})
	expectStatus(t, w, http.StatusConflict)
	w = do(t, WorkOrderResource, http.MethodPost, path, map[string]any{"status": "paused"})
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, WorkOrderResource, http.MethodGet, "/api/work-orders?status=completed", nil)
	expectStatus(t, w, http.StatusOK)
	if list := decode[[]models.WorkOrder](t, w); len(list) != 1 {
		t.Fatalf("expected 1 completed order, got %d", len(list))
	}
	w = do(t, WorkOrderResource, http.MethodGet, "/api/work-orders?limit=x", nil)
	expectStatus(t, w, http.StatusBadRequest)
	w = do(t, WorkOrderResource, http.MethodGet, "/api/work-orders/77", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestExportAndBoard(t *testing.T) {
	withServices(t, memory.New())

	m := mustCreateMaterial(t, "sugar")
	postMovement(t, m.ID, "4", "in", t1)

	originalNow := nowFunc
	nowFunc = func() time.Time { return t2 }
	t.Cleanup(func() { nowFunc = originalNow })

	w := do(t, ExportStock, http.MethodGet, "/api/stock/export.xlsx", nil)
	expectStatus(t, w, http.StatusOK)
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "stock-20240301-100000.xlsx") {
		t.Fatalf("unexpected Content-Disposition %q", cd)
	}
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Stock")
	if err != nil || len(rows) != 2 || rows[1][0] != "SUGAR" || rows[1][7] != models.StockLevelLow {
		t.Fatalf("unexpected workbook rows %v (%v)", rows, err)
	}

	w = do(t, StockBoard, http.MethodGet, "/stock?theme=ledger_dark", nil)
	expectStatus(t, w, http.StatusOK)
	body := w.Body.String()
	for _, token := range []string{"SUGAR", "4 g", "bg-slate-950"} {
		if !strings.Contains(body, token) {
			t.Fatalf("expected board to contain %q: %s", token, body)
		}
	}

	w = do(t, RecomputeStock, http.MethodGet, "/api/stock/recompute", nil)
	expectStatus(t, w, http.StatusMethodNotAllowed)
}

// blockingList parks ListMaterials until release is closed.
type blockingList struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingList) ListMaterials(ctx context.Context, opts store.MaterialListOptions) ([]models.Material, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return b.Store.ListMaterials(ctx, opts)
}

func TestRecomputeStockRejectsOverlappingPass(t *testing.T) {
	s := &blockingList{Store: memory.New(), entered: make(chan struct{}, 1), release: make(chan struct{})}
	withServices(t, s)

	done := make(chan int, 1)
	go func() {
		done <- do(t, RecomputeStock, http.MethodPost, "/api/stock/recompute", nil).Code
	}()
	select {
	case <-s.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first recompute never started")
	}

	w := do(t, RecomputeStock, http.MethodPost, "/api/stock/recompute", nil)
	expectStatus(t, w, http.StatusConflict)

	close(s.release)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("expected first recompute to succeed, got %d", code)
	}
}
