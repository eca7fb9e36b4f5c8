package workorder

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"stockwright/internal/errs"
	"stockwright/models"
)

func TestCreateValidation(t *testing.T) {
	t.Parallel()

	e := newMemoryEnv()
	m := e.material(t, "M")
	p := e.product(t, "P", 1, line(m.ID, 1))
	start := time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)
	before := start.Add(-time.Hour)

	tests := []struct {
		name  string
		input CreateInput
		check func(error) bool
	}{
		{"no items", CreateInput{Description: "x"}, errs.IsValidation},
		{"zero planned", CreateInput{Description: "x", Items: []ItemInput{{ProductID: p.ID, PlannedQuantity: dec(0)}}}, errs.IsValidation},
		{"negative planned", CreateInput{Description: "x", Items: []ItemInput{{ProductID: p.ID, PlannedQuantity: dec(-2)}}}, errs.IsValidation},
		{"missing product id", CreateInput{Description: "x", Items: []ItemInput{{PlannedQuantity: dec(1)}}}, errs.IsValidation},
		{"blank description and notes", CreateInput{Description: " ", Notes: "\t", Items: []ItemInput{{ProductID: p.ID, PlannedQuantity: dec(1)}}}, errs.IsValidation},
		{"bad priority", CreateInput{Description: "x", Priority: 3, Items: []ItemInput{{ProductID: p.ID, PlannedQuantity: dec(1)}}}, errs.IsValidation},
		{"end before start", CreateInput{Description: "x", PlannedStart: &start, PlannedEnd: &before, Items: []ItemInput{{ProductID: p.ID, PlannedQuantity: dec(1)}}}, errs.IsValidation},
		{"unknown product", CreateInput{Description: "x", Items: []ItemInput{{ProductID: 999, PlannedQuantity: dec(1)}}}, errs.IsNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := e.svc.Create(context.Background(), tt.input); !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestCreateAcceptsNotesWithoutDescription(t *testing.T) {
	t.Parallel()

	e := newMemoryEnv()
	m := e.material(t, "M")
	p := e.product(t, "P", 1, line(m.ID, 1))
	e.move(t, m.ID, 10, models.DirectionIn, time.Now().Add(-time.Hour))

	result, err := e.svc.Create(context.Background(), CreateInput{
		Notes:    "rush order",
		Priority: models.PriorityUrgent,
		Items:    []ItemInput{{ProductID: p.ID, PlannedQuantity: dec(2)}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.WorkOrder.Status != models.StatusPending || result.WorkOrder.Priority != models.PriorityUrgent {
		t.Fatalf("unexpected order %+v", result.WorkOrder)
	}
}

func TestCreateRejectsInactiveProduct(t *testing.T) {
	t.Parallel()

	e := newMemoryEnv()
	m := e.material(t, "M")
	product := models.Product{Code: "OLD", Name: "Old", BaseQuantity: dec(1), IsActive: false, Formula: []models.FormulaLine{line(m.ID, 1)}}
	if err := e.store.CreateProduct(context.Background(), &product); err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err := e.svc.Create(context.Background(), CreateInput{Description: "x", Items: []ItemInput{{ProductID: product.ID, PlannedQuantity: dec(1)}}})
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error for inactive product, got %v", err)
	}
}

func TestCreateWarnsButSucceedsOnShortage(t *testing.T) {
	t.Parallel()

	e := newMemoryEnv()
	m := e.material(t, "RESIN")
	p := e.product(t, "CAST", 1, line(m.ID, 10))
	e.move(t, m.ID, 15, models.DirectionIn, time.Now().Add(-time.Hour))

	result := e.create(t, ItemInput{ProductID: p.ID, PlannedQuantity: dec(3)})
	if result.WorkOrder == nil || result.WorkOrder.ID == 0 {
		t.Fatal("expected the order to be created despite the shortage")
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], "RESIN") || !strings.Contains(result.Warnings[0], "30") {
		t.Fatalf("expected warning to name material and requirement, got %q", result.Warnings[0])
	}
	if !strings.Contains(result.Warnings[0], "short by 15") {
		t.Fatalf("expected warning to state the shortfall, got %q", result.Warnings[0])
	}
	if got := result.Feasibility[0]; got.InsufficientCount != 1 || got.MaxBatches != 0 {
		t.Fatalf("unexpected feasibility %+v", got.Result)
	}
}

func TestCreateWarnsOnCombinedDemand(t *testing.T) {
	t.Parallel()

	e := newMemoryEnv()
	m := e.material(t, "SHARED")
	other := e.material(t, "OTHER")
	a := e.product(t, "A", 1, line(m.ID, 30))
	b := e.product(t, "B", 1, line(m.ID, 30), line(other.ID, 1))
	e.move(t, m.ID, 50, models.DirectionIn, time.Now().Add(-time.Hour))
	e.move(t, other.ID, 5, models.DirectionIn, time.Now().Add(-time.Hour))

	result := e.create(t,
		ItemInput{ProductID: a.ID, PlannedQuantity: dec(1)},
		ItemInput{ProductID: b.ID, PlannedQuantity: dec(1)},
	)
	if len(result.Warnings) != 1 {
		t.Fatalf("expected one combined-demand warning, got %v", result.Warnings)
	}
	for _, want := range []string{"SHARED", "2 items", "60", "short by 10"} {
		if !strings.Contains(result.Warnings[0], want) {
			t.Fatalf("expected %q in warning %q", want, result.Warnings[0])
		}
	}

	// A shortfall already reported per item is not repeated for the order.
	result = e.create(t,
		ItemInput{ProductID: a.ID, PlannedQuantity: dec(2)},
		ItemInput{ProductID: b.ID, PlannedQuantity: dec(1)},
	)
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "item 1") {
		t.Fatalf("expected only the per-item warning, got %v", result.Warnings)
	}
}

func TestCreateWarnsOnEmptyFormula(t *testing.T) {
	t.Parallel()

	e := newMemoryEnv()
	p := e.product(t, "BARE", 1)

	result := e.create(t, ItemInput{ProductID: p.ID, PlannedQuantity: dec(1)})
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "not production-ready") {
		t.Fatalf("expected not production-ready warning, got %v", result.Warnings)
	}
	if result.Feasibility[0].ProductionReady {
		t.Fatal("expected empty formula to be reported as not production-ready")
	}
}

func TestOrderNumberFormat(t *testing.T) {
	t.Parallel()

	e := newMemoryEnv()
	e.svc.now = func() time.Time { return time.Date(2024, 7, 9, 10, 0, 0, 0, time.UTC) }
	p := e.product(t, "P", 1)

	result := e.create(t, ItemInput{ProductID: p.ID, PlannedQuantity: dec(1)})
	if !regexp.MustCompile(`^WO-20240709-[0-9A-F]{8}$`).MatchString(result.WorkOrder.OrderNumber) {
		t.Fatalf("unexpected order number %q", result.WorkOrder.OrderNumber)
	}
}

func TestStartAndCancel(t *testing.T) {
	t.Parallel()

	e := newMemoryEnv()
	m := e.material(t, "M")
	p := e.product(t, "P", 1, line(m.ID, 5))

	order := e.create(t, ItemInput{ProductID: p.ID, PlannedQuantity: dec(1)}).WorkOrder

	started := e.transition(t, order.ID, models.StatusInProgress, nil)
	if started.WorkOrder.Status != models.StatusInProgress || started.WorkOrder.ActualStart == nil {
		t.Fatalf("expected started order with actual start, got %+v", started.WorkOrder)
	}
	if started.WorkOrder.Items[0].Status != models.StatusInProgress {
		t.Fatalf("expected item to follow the order, got %s", started.WorkOrder.Items[0].Status)
	}
	if len(started.AffectedMaterials) != 0 {
		t.Fatalf("starting must not touch the ledger, got %v", started.AffectedMaterials)
	}

	cancelled := e.transition(t, order.ID, models.StatusCancelled, nil)
	if cancelled.WorkOrder.Status != models.StatusCancelled || len(cancelled.ConsumptionRecords) != 0 {
		t.Fatalf("unexpected cancel result %+v", cancelled)
	}
	movements, err := e.store.ListMovements(context.Background(), m.ID, nil)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 0 {
		t.Fatalf("cancel must not write movements, got %d", len(movements))
	}
}

func TestTransitionErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newMemoryEnv()
	p := e.product(t, "P", 1)
	order := e.create(t, ItemInput{ProductID: p.ID, PlannedQuantity: dec(1)}).WorkOrder

	_, err := e.svc.Transition(ctx, order.ID, models.StatusCompleted, nil)
	var te errs.TransitionError
	if !errors.As(err, &te) || te.From != "pending" || te.To != "completed" {
		t.Fatalf("expected pending -> completed to be rejected, got %v", err)
	}

	if _, err := e.svc.Transition(ctx, order.ID, "archived", nil); !errs.IsValidation(err) {
		t.Fatalf("expected unknown status to be a validation error, got %v", err)
	}
	if _, err := e.svc.Transition(ctx, order.ID, models.StatusInProgress, &CompletionPayload{}); !errs.IsValidation(err) {
		t.Fatalf("expected payload outside completion to be rejected, got %v", err)
	}
	if _, err := e.svc.Transition(ctx, 999, models.StatusInProgress, nil); !errs.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	e.transition(t, order.ID, models.StatusCancelled, nil)
	for _, target := range []models.Status{models.StatusPending, models.StatusInProgress, models.StatusCompleted, models.StatusCancelled} {
		if _, err := e.svc.Transition(ctx, order.ID, target, nil); !errs.IsInvalidTransition(err) {
			t.Fatalf("expected cancelled -> %s to fail, got %v", target, err)
		}
	}
}

func TestListAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newMemoryEnv()
	p := e.product(t, "P", 1)
	first := e.create(t, ItemInput{ProductID: p.ID, PlannedQuantity: dec(1)}).WorkOrder
	second := e.create(t, ItemInput{ProductID: p.ID, PlannedQuantity: dec(2)}).WorkOrder
	e.transition(t, second.ID, models.StatusInProgress, nil)

	all, err := e.svc.List(ctx, ListOpts{})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 orders, got %d (%v)", len(all), err)
	}
	if all[0].ID != second.ID {
		t.Fatalf("expected newest first, got %d", all[0].ID)
	}

	pending, err := e.svc.List(ctx, ListOpts{Status: "pending"})
	if err != nil || len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("expected only the pending order, got %+v (%v)", pending, err)
	}

	if _, err := e.svc.List(ctx, ListOpts{Status: "done"}); !errs.IsValidation(err) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}

	got, err := e.svc.Get(ctx, first.ID)
	if err != nil || got.OrderNumber != first.OrderNumber || len(got.Items) != 1 {
		t.Fatalf("unexpected get result %+v (%v)", got, err)
	}
	if _, err := e.svc.Get(ctx, 999); !errs.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
