package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stockwright/internal/errs"
	"stockwright/internal/store"
	"stockwright/models"
)

func seedMaterial(t *testing.T, s *Store, code string) models.Material {
	t.Helper()
	material := models.Material{Code: code, Name: code, Unit: "g", IsActive: true}
	if err := s.CreateMaterial(context.Background(), &material); err != nil {
		t.Fatalf("create material: %v", err)
	}
	return material
}

func TestListMovementsOrdersByOccurredAt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	material := seedMaterial(t, s, "M")

	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	for _, offset := range []int{3, 1, 2} {
		if _, err := s.AppendMovement(ctx, store.MovementInput{
			MaterialID: material.ID,
			Quantity:   decimal.NewFromInt(int64(offset)),
			Direction:  models.DirectionIn,
			OccurredAt: base.Add(time.Duration(offset) * time.Hour),
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	asOf := base.Add(2 * time.Hour)
	movements, err := s.ListMovements(ctx, material.ID, &asOf)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("expected 2 movements up to asOf, got %d", len(movements))
	}
	if !movements[0].Quantity.Equal(decimal.NewFromInt(1)) || !movements[1].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected order: %v, %v", movements[0].Quantity, movements[1].Quantity)
	}
}

func TestAppendMovementUnknownMaterial(t *testing.T) {
	t.Parallel()

	_, err := New().AppendMovement(context.Background(), store.MovementInput{
		MaterialID: 99,
		Quantity:   decimal.NewFromInt(1),
		Direction:  models.DirectionIn,
		OccurredAt: time.Now(),
	})
	if !errs.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteMaterialRefusesReferenced(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	used := seedMaterial(t, s, "USED")
	free := seedMaterial(t, s, "FREE")

	if _, err := s.AppendMovement(ctx, store.MovementInput{
		MaterialID: used.ID,
		Quantity:   decimal.NewFromInt(5),
		Direction:  models.DirectionIn,
		OccurredAt: time.Now(),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.DeleteMaterial(ctx, used.ID); !errs.IsValidation(err) {
		t.Fatalf("expected validation error deleting referenced material, got %v", err)
	}
	if err := s.DeleteMaterial(ctx, free.ID); err != nil {
		t.Fatalf("delete free material: %v", err)
	}
	if _, err := s.GetMaterial(ctx, free.ID); !errs.IsNotFound(err) {
		t.Fatalf("expected deleted material to be gone, got %v", err)
	}
}

func TestUpdateWorkOrderStatusCompareAndSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	seedMaterial(t, s, "M")
	product := models.Product{Code: "P", Name: "P", BaseQuantity: decimal.NewFromInt(1), IsActive: true}
	if err := s.CreateProduct(ctx, &product); err != nil {
		t.Fatalf("create product: %v", err)
	}
	order := models.WorkOrder{
		OrderNumber: "WO-1",
		Description: "batch",
		Items:       []models.WorkOrderItem{{ProductID: product.ID, PlannedQuantity: decimal.NewFromInt(1)}},
	}
	if err := s.CreateWorkOrder(ctx, &order); err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := s.UpdateWorkOrderStatus(ctx, order.ID, models.StatusPending, models.StatusCancelled, store.StatusTimestamps{}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	err := s.UpdateWorkOrderStatus(ctx, order.ID, models.StatusPending, models.StatusInProgress, store.StatusTimestamps{})
	var te errs.TransitionError
	if !errors.As(err, &te) || te.From != string(models.StatusCancelled) {
		t.Fatalf("expected transition error from cancelled, got %v", err)
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	material := seedMaterial(t, s, "M")

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, w store.Writer) error {
		if _, err := w.AppendMovement(ctx, store.MovementInput{
			MaterialID: material.ID,
			Quantity:   decimal.NewFromInt(10),
			Direction:  models.DirectionIn,
			OccurredAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	movements, err := s.ListMovements(ctx, material.ID, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(movements) != 0 {
		t.Fatalf("expected rollback to discard movement, got %d", len(movements))
	}
}

func TestCancelledContextIsUnavailable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New().ListMaterials(ctx, store.MaterialListOptions{}); !errs.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
