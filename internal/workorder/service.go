package workorder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockwright/internal/errs"
	"stockwright/internal/feasibility"
	applog "stockwright/internal/log"
	"stockwright/internal/metrics"
	"stockwright/internal/stock"
	"stockwright/internal/store"
	"stockwright/models"
)

// ItemInput is one product line of a new work order.
type ItemInput struct {
	ProductID       uint            `json:"product_id"`
	PlannedQuantity decimal.Decimal `json:"planned_quantity"`
}

type CreateInput struct {
	Priority     int         `json:"priority"`
	Description  string      `json:"description"`
	Notes        string      `json:"notes"`
	PlannedStart *time.Time  `json:"planned_start"`
	PlannedEnd   *time.Time  `json:"planned_end"`
	Items        []ItemInput `json:"items"`
}

// CreateResult carries the created order, the feasibility of each item in
// item order, and any stock warnings. Warnings never prevent creation.
type CreateResult struct {
	WorkOrder   *models.WorkOrder           `json:"work_order"`
	Warnings    []string                    `json:"warnings"`
	Feasibility []feasibility.ProductResult `json:"feasibility"`
}

type TransitionResult struct {
	WorkOrder          *models.WorkOrder          `json:"work_order"`
	Warnings           []string                   `json:"warnings"`
	ConsumptionRecords []models.ConsumptionRecord `json:"consumption_records"`
	// AffectedMaterials lists materials whose stock changed, sorted by ID.
	AffectedMaterials []uint `json:"affected_materials"`
}

type ListOpts struct {
	Status string
	Limit  int
}

type Service struct {
	store   store.Store
	engine  *feasibility.Engine
	calc    *stock.Calculator
	timeout time.Duration

	now         func() time.Time
	orderSuffix func() string
}

func NewService(s store.Store, engine *feasibility.Engine, calc *stock.Calculator, timeout time.Duration) *Service {
	return &Service{
		store:   s,
		engine:  engine,
		calc:    calc,
		timeout: timeout,
		now: func() time.Time {
			return time.Now().UTC()
		},
		orderSuffix: func() string {
			return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		},
	}
}

func (s *Service) orderNumber() string {
	return fmt.Sprintf("WO-%s-%s", s.now().Format("20060102"), s.orderSuffix())
}

func validateCreate(in CreateInput) error {
	if len(in.Items) == 0 {
		return errs.Invalid("items", "at least one item is required")
	}
	for i, item := range in.Items {
		if item.ProductID == 0 {
			return errs.Invalid(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if !item.PlannedQuantity.IsPositive() {
			return errs.Invalid(fmt.Sprintf("items[%d].planned_quantity", i), "must be greater than zero")
		}
	}
	if strings.TrimSpace(in.Description) == "" && strings.TrimSpace(in.Notes) == "" {
		return errs.Invalid("description", "description or notes must be provided")
	}
	if in.Priority < models.PriorityNormal || in.Priority > models.PriorityCritical {
		return errs.Invalid("priority", "must be between %d and %d", models.PriorityNormal, models.PriorityCritical)
	}
	if in.PlannedStart != nil && in.PlannedEnd != nil && in.PlannedEnd.Before(*in.PlannedStart) {
		return errs.Invalid("planned_end", "must not be before planned_start")
	}
	return nil
}

// Create validates and stores a pending work order. Feasibility of every item
// is computed against current stock and shortfalls come back as warnings.
func (s *Service) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	if err := validateCreate(in); err != nil {
		return CreateResult{}, err
	}

	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()

	result := CreateResult{Feasibility: make([]feasibility.ProductResult, 0, len(in.Items))}
	order := &models.WorkOrder{
		OrderNumber:  s.orderNumber(),
		Status:       models.StatusPending,
		Priority:     in.Priority,
		Description:  strings.TrimSpace(in.Description),
		Notes:        strings.TrimSpace(in.Notes),
		PlannedStart: utc(in.PlannedStart),
		PlannedEnd:   utc(in.PlannedEnd),
		Items:        make([]models.WorkOrderItem, 0, len(in.Items)),
	}

	for i, item := range in.Items {
		product, err := s.store.GetProduct(ctx, item.ProductID)
		if err != nil {
			return CreateResult{}, err
		}
		if !product.IsActive {
			return CreateResult{}, errs.Invalid(fmt.Sprintf("items[%d].product_id", i), "product %s is inactive", product.Code)
		}

		report, err := s.engine.ForProduct(ctx, product.ID, item.PlannedQuantity)
		if err != nil {
			return CreateResult{}, err
		}
		result.Feasibility = append(result.Feasibility, report)
		result.Warnings = append(result.Warnings, creationWarnings(i, product, report)...)

		order.Items = append(order.Items, models.WorkOrderItem{
			ProductID:       product.ID,
			PlannedQuantity: item.PlannedQuantity,
			Status:          models.StatusPending,
		})
	}

	result.Warnings = append(result.Warnings, demandWarnings(result.Feasibility)...)

	if err := s.store.CreateWorkOrder(ctx, order); err != nil {
		applog.Error(ctx, "create work order failed", "order_number", order.OrderNumber, "error", err)
		return CreateResult{}, err
	}

	if n := len(result.Warnings); n > 0 {
		metrics.StockWarnings.WithLabelValues("create").Add(float64(n))
	}
	applog.Info(ctx, "work order created",
		"work_order", order.ID,
		"order_number", order.OrderNumber,
		"items", len(order.Items),
		"warnings", len(result.Warnings),
	)

	result.WorkOrder = order
	return result, nil
}

func creationWarnings(index int, product *models.Product, report feasibility.ProductResult) []string {
	if len(report.Lines) == 0 {
		return []string{fmt.Sprintf("item %d: product %s has no formula and is not production-ready", index+1, product.Code)}
	}
	var warnings []string
	for _, line := range report.Insufficient() {
		code := line.MaterialCode
		if code == "" {
			code = fmt.Sprintf("#%d", line.MaterialID)
		}
		warnings = append(warnings, fmt.Sprintf(
			"item %d: product %s needs %s of material %s but only %s is in stock (short by %s)",
			index+1, product.Code, line.RequiredQuantity.String(), code, line.Stock.String(), line.Shortfall().String(),
		))
	}
	return warnings
}

// materialDemand is the requirement of one material summed over an order.
type materialDemand struct {
	materialID uint
	code       string
	required   decimal.Decimal
	stock      decimal.Decimal
	items      int
	shortAlone bool
}

// demandWarnings flags materials shared by several items whose combined
// requirement exceeds stock even though each item fits on its own. Shortfalls
// of a single item are already reported per item.
func demandWarnings(reports []feasibility.ProductResult) []string {
	var order []*materialDemand
	byMaterial := make(map[uint]*materialDemand)
	for _, report := range reports {
		for _, line := range report.Lines {
			if line.Skipped {
				continue
			}
			d, ok := byMaterial[line.MaterialID]
			if !ok {
				d = &materialDemand{materialID: line.MaterialID, code: line.MaterialCode, stock: line.Stock}
				byMaterial[line.MaterialID] = d
				order = append(order, d)
			}
			d.required = d.required.Add(line.RequiredQuantity)
			d.items++
			if !line.Sufficient {
				d.shortAlone = true
			}
		}
	}

	var warnings []string
	for _, d := range order {
		if d.items < 2 || d.shortAlone || !d.required.GreaterThan(d.stock) {
			continue
		}
		code := d.code
		if code == "" {
			code = fmt.Sprintf("#%d", d.materialID)
		}
		warnings = append(warnings, fmt.Sprintf(
			"order: %d items need %s of material %s together but only %s is in stock (short by %s)",
			d.items, d.required.String(), code, d.stock.String(), d.required.Sub(d.stock).String(),
		))
	}
	return warnings
}

// Transition moves a work order to target. A completion payload is only
// accepted when completing. Illegal moves, including one lost to a concurrent
// transition of the same order, fail with errs.TransitionError.
func (s *Service) Transition(ctx context.Context, id uint, target models.Status, payload *CompletionPayload) (TransitionResult, error) {
	if !models.ValidStatus(string(target)) {
		return TransitionResult{}, errs.Invalid("status", "unknown status %q", target)
	}
	if payload != nil && target != models.StatusCompleted {
		return TransitionResult{}, errs.Invalid("completion", "only accepted when completing")
	}

	readCtx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()

	order, err := s.store.GetWorkOrder(readCtx, id)
	if err != nil {
		return TransitionResult{}, err
	}
	if err := checkTransition(order.Status, target); err != nil {
		return TransitionResult{}, err
	}

	ctx = applog.With(ctx, "work_order", order.ID, "order_number", order.OrderNumber)

	var result TransitionResult
	switch target {
	case models.StatusCompleted:
		result, err = s.complete(ctx, order, payload)
	default:
		err = s.move(ctx, order, target)
	}
	if err != nil {
		applog.Error(ctx, "work order transition failed", "from", order.Status, "to", target, "error", err)
		return TransitionResult{}, err
	}
	metrics.WorkOrderTransitions.WithLabelValues(string(order.Status), string(target)).Inc()
	applog.Info(ctx, "work order transitioned", "from", order.Status, "to", target)

	reloadCtx, cancelReload := store.WithTimeout(ctx, s.timeout)
	defer cancelReload()
	updated, err := s.store.GetWorkOrder(reloadCtx, id)
	if err != nil {
		return TransitionResult{}, err
	}
	result.WorkOrder = updated
	return result, nil
}

// move handles the transitions without ledger effects.
func (s *Service) move(ctx context.Context, order *models.WorkOrder, target models.Status) error {
	var ts store.StatusTimestamps
	if target == models.StatusInProgress {
		now := s.now()
		ts.ActualStart = &now
	}

	txCtx, cancel := detached(ctx, s.timeout)
	defer cancel()
	return s.store.RunInTx(txCtx, func(ctx context.Context, w store.Writer) error {
		if err := w.UpdateWorkOrderStatus(ctx, order.ID, order.Status, target, ts); err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := w.UpdateWorkOrderItem(ctx, item.ID, item.ProducedQuantity, target); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns a work order with its items.
func (s *Service) Get(ctx context.Context, id uint) (*models.WorkOrder, error) {
	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.GetWorkOrder(ctx, id)
}

// List returns work orders, newest first.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]models.WorkOrder, error) {
	status := strings.TrimSpace(opts.Status)
	if status != "" && !models.ValidStatus(status) {
		return nil, errs.Invalid("status", "unknown status %q", status)
	}
	if opts.Limit < 0 {
		return nil, errs.Invalid("limit", "must not be negative")
	}

	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.ListWorkOrders(ctx, store.WorkOrderListOptions{
		Status: models.Status(status),
		Limit:  opts.Limit,
	})
}

// Consumption returns the consumption records written when the order was
// completed.
func (s *Service) Consumption(ctx context.Context, id uint) ([]models.ConsumptionRecord, error) {
	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.store.GetWorkOrder(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListConsumption(ctx, id)
}

// detached keeps ctx values but not its cancellation, bounded by timeout.
// Once ledger writes start they are not abandoned halfway.
func detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return store.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
