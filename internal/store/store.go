// Package store defines the persistence boundary consumed by the ledger,
// feasibility and work-order services.
//
// Movements are append-only: there is no update or delete operation for them
// on any interface here. Implementations translate their failures into the
// kinds defined by package errs.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stockwright/models"
)

// MovementInput describes a ledger entry to append.
type MovementInput struct {
	MaterialID uint
	Quantity   decimal.Decimal
	Direction  models.Direction
	OccurredAt time.Time
	Notes      string
	Reference  string
}

// ConsumptionInput describes one material consumed by a work-order item. The
// store writes the ConsumptionRecord and its out Movement together.
type ConsumptionInput struct {
	WorkOrderItemID uint
	MaterialID      uint
	Quantity        decimal.Decimal
	OccurredAt      time.Time
	Reference       string
}

// StatusTimestamps carries the lifecycle timestamps set by a status change.
// Nil fields are left untouched.
type StatusTimestamps struct {
	ActualStart *time.Time
	ActualEnd   *time.Time
}

// MaterialListOptions filters ListMaterials.
type MaterialListOptions struct {
	ActiveOnly bool
}

// WorkOrderListOptions filters ListWorkOrders. A zero Limit returns all rows.
type WorkOrderListOptions struct {
	Status models.Status
	Limit  int
}

// Writer holds the mutations that may run inside a transaction.
type Writer interface {
	AppendMovement(ctx context.Context, in MovementInput) (*models.Movement, error)
	PersistConsumption(ctx context.Context, in ConsumptionInput) (*models.ConsumptionRecord, *models.Movement, error)
	UpdateWorkOrderItem(ctx context.Context, itemID uint, produced decimal.Decimal, status models.Status) error
	// UpdateWorkOrderStatus moves the order from one status to another only if
	// it is still in from. A lost race returns errs.TransitionError naming the
	// status actually found.
	UpdateWorkOrderStatus(ctx context.Context, workOrderID uint, from, to models.Status, ts StatusTimestamps) error
}

// Store is the full persistence boundary.
type Store interface {
	Writer

	CreateMaterial(ctx context.Context, material *models.Material) error
	GetMaterial(ctx context.Context, id uint) (*models.Material, error)
	ListMaterials(ctx context.Context, opts MaterialListOptions) ([]models.Material, error)
	SetMaterialActive(ctx context.Context, id uint, active bool) error
	// DeleteMaterial removes a material that nothing references. Referenced
	// materials yield a validation error.
	DeleteMaterial(ctx context.Context, id uint) error

	// ListMovements returns the movements of a material ordered by
	// (OccurredAt, ID). A nil asOf returns the whole ledger.
	ListMovements(ctx context.Context, materialID uint, asOf *time.Time) ([]models.Movement, error)

	// CreateProduct inserts the product together with its formula lines.
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id uint) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	// GetFormula returns the formula lines of a product ordered by Position.
	GetFormula(ctx context.Context, productID uint) ([]models.FormulaLine, error)
	ReplaceFormula(ctx context.Context, productID uint, lines []models.FormulaLine) error

	// CreateWorkOrder inserts the order together with its items.
	CreateWorkOrder(ctx context.Context, order *models.WorkOrder) error
	GetWorkOrder(ctx context.Context, id uint) (*models.WorkOrder, error)
	ListWorkOrders(ctx context.Context, opts WorkOrderListOptions) ([]models.WorkOrder, error)
	GetWorkOrderItems(ctx context.Context, workOrderID uint) ([]models.WorkOrderItem, error)
	ListConsumption(ctx context.Context, workOrderID uint) ([]models.ConsumptionRecord, error)

	// SaveSnapshot upserts the snapshot as a single row write.
	SaveSnapshot(ctx context.Context, snapshot models.StockSnapshot) error
	GetSnapshot(ctx context.Context, materialID uint) (*models.StockSnapshot, error)

	// RunInTx runs fn in a transaction. fn must only touch the store through w;
	// returning an error discards every write made through it.
	RunInTx(ctx context.Context, fn func(ctx context.Context, w Writer) error) error

	Ping(ctx context.Context) error
	Close() error
}
