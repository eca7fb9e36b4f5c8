// Package memory is an in-process implementation of store.Store used by tests
// and local experiments. It keeps every record in maps guarded by one RWMutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stockwright/internal/errs"
	"stockwright/internal/store"
	"stockwright/models"
)

type Store struct {
	mu sync.RWMutex

	seq uint

	materials   map[uint]models.Material
	movements   []models.Movement
	products    map[uint]models.Product
	formulas    map[uint][]models.FormulaLine
	workOrders  map[uint]models.WorkOrder
	items       map[uint]models.WorkOrderItem
	consumption []models.ConsumptionRecord
	snapshots   map[uint]models.StockSnapshot

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		materials:  make(map[uint]models.Material),
		products:   make(map[uint]models.Product),
		formulas:   make(map[uint][]models.FormulaLine),
		workOrders: make(map[uint]models.WorkOrder),
		items:      make(map[uint]models.WorkOrderItem),
		snapshots:  make(map[uint]models.StockSnapshot),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *Store) nextID() uint {
	s.seq++
	return s.seq
}

func live(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errs.Unavailable(op, err)
	}
	return nil
}

// Material Store implementation

func (s *Store) CreateMaterial(ctx context.Context, material *models.Material) error {
	if err := live(ctx, "create material"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.materials {
		if existing.Code == material.Code {
			return errs.Invalid("code", "material code %q already exists", material.Code)
		}
	}
	now := s.now()
	material.ID = s.nextID()
	material.CreatedAt = now
	material.UpdatedAt = now
	s.materials[material.ID] = *material
	return nil
}

func (s *Store) GetMaterial(ctx context.Context, id uint) (*models.Material, error) {
	if err := live(ctx, "get material"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	material, ok := s.materials[id]
	if !ok {
		return nil, errs.NotFound("material", id)
	}
	return &material, nil
}

func (s *Store) ListMaterials(ctx context.Context, opts store.MaterialListOptions) ([]models.Material, error) {
	if err := live(ctx, "list materials"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Material, 0, len(s.materials))
	for _, material := range s.materials {
		if opts.ActiveOnly && !material.IsActive {
			continue
		}
		result = append(result, material)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) SetMaterialActive(ctx context.Context, id uint, active bool) error {
	if err := live(ctx, "update material"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	material, ok := s.materials[id]
	if !ok {
		return errs.NotFound("material", id)
	}
	material.IsActive = active
	material.UpdatedAt = s.now()
	s.materials[id] = material
	return nil
}

func (s *Store) DeleteMaterial(ctx context.Context, id uint) error {
	if err := live(ctx, "delete material"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.materials[id]; !ok {
		return errs.NotFound("material", id)
	}
	for _, movement := range s.movements {
		if movement.MaterialID == id {
			return errs.Invalid("material", "material %d has ledger movements", id)
		}
	}
	for productID, lines := range s.formulas {
		for _, line := range lines {
			if line.MaterialID == id {
				return errs.Invalid("material", "material %d is used by the formula of product %d", id, productID)
			}
		}
	}
	for _, record := range s.consumption {
		if record.MaterialID == id {
			return errs.Invalid("material", "material %d has consumption records", id)
		}
	}
	delete(s.materials, id)
	delete(s.snapshots, id)
	return nil
}

// Ledger

func (s *Store) ListMovements(ctx context.Context, materialID uint, asOf *time.Time) ([]models.Movement, error) {
	if err := live(ctx, "list movements"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Movement, 0)
	for _, movement := range s.movements {
		if movement.MaterialID != materialID {
			continue
		}
		if asOf != nil && movement.OccurredAt.After(*asOf) {
			continue
		}
		result = append(result, movement)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].OccurredAt.Equal(result[j].OccurredAt) {
			return result[i].OccurredAt.Before(result[j].OccurredAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) AppendMovement(ctx context.Context, in store.MovementInput) (*models.Movement, error) {
	if err := live(ctx, "append movement"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendMovement(in, nil)
}

// appendMovement requires s.mu to be held.
func (s *Store) appendMovement(in store.MovementInput, undo *[]func()) (*models.Movement, error) {
	if _, ok := s.materials[in.MaterialID]; !ok {
		return nil, errs.NotFound("material", in.MaterialID)
	}
	movement := models.Movement{
		ID:         s.nextID(),
		MaterialID: in.MaterialID,
		Quantity:   in.Quantity,
		Direction:  in.Direction,
		OccurredAt: in.OccurredAt.UTC(),
		Notes:      in.Notes,
		Reference:  in.Reference,
		CreatedAt:  s.now(),
	}
	s.movements = append(s.movements, movement)
	if undo != nil {
		n := len(s.movements) - 1
		*undo = append(*undo, func() { s.movements = s.movements[:n] })
	}
	return &movement, nil
}

func (s *Store) PersistConsumption(ctx context.Context, in store.ConsumptionInput) (*models.ConsumptionRecord, *models.Movement, error) {
	if err := live(ctx, "persist consumption"); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var undo []func()
	record, movement, err := s.persistConsumption(in, &undo)
	if err != nil {
		rollback(undo)
		return nil, nil, err
	}
	return record, movement, nil
}

// persistConsumption requires s.mu to be held.
func (s *Store) persistConsumption(in store.ConsumptionInput, undo *[]func()) (*models.ConsumptionRecord, *models.Movement, error) {
	if _, ok := s.items[in.WorkOrderItemID]; !ok {
		return nil, nil, errs.NotFound("work order item", in.WorkOrderItemID)
	}
	movement, err := s.appendMovement(store.MovementInput{
		MaterialID: in.MaterialID,
		Quantity:   in.Quantity,
		Direction:  models.DirectionOut,
		OccurredAt: in.OccurredAt,
		Reference:  in.Reference,
		Notes:      "work order consumption",
	}, undo)
	if err != nil {
		return nil, nil, err
	}
	record := models.ConsumptionRecord{
		ID:                s.nextID(),
		WorkOrderItemID:   in.WorkOrderItemID,
		MaterialID:        in.MaterialID,
		ActualConsumption: in.Quantity,
		MovementID:        movement.ID,
		CreatedAt:         s.now(),
	}
	s.consumption = append(s.consumption, record)
	n := len(s.consumption) - 1
	*undo = append(*undo, func() { s.consumption = s.consumption[:n] })
	return &record, movement, nil
}

// Products

func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := live(ctx, "create product"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if existing.Code == product.Code {
			return errs.Invalid("code", "product code %q already exists", product.Code)
		}
	}
	now := s.now()
	product.ID = s.nextID()
	product.CreatedAt = now
	product.UpdatedAt = now
	lines, err := s.buildFormula(product.ID, product.Formula)
	if err != nil {
		return err
	}
	product.Formula = lines
	stored := *product
	stored.Formula = nil
	s.products[product.ID] = stored
	s.formulas[product.ID] = cloneLines(lines)
	return nil
}

// buildFormula requires s.mu to be held.
func (s *Store) buildFormula(productID uint, lines []models.FormulaLine) ([]models.FormulaLine, error) {
	seen := make(map[uint]struct{}, len(lines))
	built := make([]models.FormulaLine, 0, len(lines))
	for _, line := range lines {
		if _, ok := s.materials[line.MaterialID]; !ok {
			return nil, errs.NotFound("material", line.MaterialID)
		}
		if _, dup := seen[line.MaterialID]; dup {
			return nil, errs.Invalid("formula", "material %d appears more than once", line.MaterialID)
		}
		seen[line.MaterialID] = struct{}{}
		line.ID = s.nextID()
		line.ProductID = productID
		line.CreatedAt = s.now()
		line.Material = nil
		built = append(built, line)
	}
	sort.SliceStable(built, func(i, j int) bool { return built[i].Position < built[j].Position })
	return built, nil
}

func (s *Store) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	if err := live(ctx, "get product"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, errs.NotFound("product", id)
	}
	product.Formula = s.formulaWithMaterials(id)
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	if err := live(ctx, "list products"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Product, 0, len(s.products))
	for _, product := range s.products {
		result = append(result, product)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) GetFormula(ctx context.Context, productID uint) ([]models.FormulaLine, error) {
	if err := live(ctx, "get formula"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.products[productID]; !ok {
		return nil, errs.NotFound("product", productID)
	}
	return s.formulaWithMaterials(productID), nil
}

// formulaWithMaterials requires s.mu to be held.
func (s *Store) formulaWithMaterials(productID uint) []models.FormulaLine {
	lines := cloneLines(s.formulas[productID])
	for i := range lines {
		if material, ok := s.materials[lines[i].MaterialID]; ok {
			material := material
			lines[i].Material = &material
		}
	}
	return lines
}

func (s *Store) ReplaceFormula(ctx context.Context, productID uint, lines []models.FormulaLine) error {
	if err := live(ctx, "replace formula"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return errs.NotFound("product", productID)
	}
	built, err := s.buildFormula(productID, lines)
	if err != nil {
		return err
	}
	s.formulas[productID] = built
	return nil
}

func cloneLines(lines []models.FormulaLine) []models.FormulaLine {
	out := make([]models.FormulaLine, len(lines))
	copy(out, lines)
	return out
}

// Work orders

func (s *Store) CreateWorkOrder(ctx context.Context, order *models.WorkOrder) error {
	if err := live(ctx, "create work order"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.workOrders {
		if existing.OrderNumber == order.OrderNumber {
			return errs.Invalid("order_number", "order number %q already exists", order.OrderNumber)
		}
	}
	for _, item := range order.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return errs.NotFound("product", item.ProductID)
		}
	}

	now := s.now()
	order.ID = s.nextID()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = models.StatusPending
	}
	for i := range order.Items {
		item := &order.Items[i]
		item.ID = s.nextID()
		item.WorkOrderID = order.ID
		item.CreatedAt = now
		item.UpdatedAt = now
		if item.Status == "" {
			item.Status = models.StatusPending
		}
		s.items[item.ID] = *item
	}
	stored := *order
	stored.Items = nil
	s.workOrders[order.ID] = stored
	return nil
}

func (s *Store) GetWorkOrder(ctx context.Context, id uint) (*models.WorkOrder, error) {
	if err := live(ctx, "get work order"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.workOrders[id]
	if !ok {
		return nil, errs.NotFound("work order", id)
	}
	order.Items = s.itemsOf(id)
	return &order, nil
}

func (s *Store) ListWorkOrders(ctx context.Context, opts store.WorkOrderListOptions) ([]models.WorkOrder, error) {
	if err := live(ctx, "list work orders"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.WorkOrder, 0, len(s.workOrders))
	for _, order := range s.workOrders {
		if opts.Status != "" && order.Status != opts.Status {
			continue
		}
		order.Items = s.itemsOf(order.ID)
		result = append(result, order)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (s *Store) GetWorkOrderItems(ctx context.Context, workOrderID uint) ([]models.WorkOrderItem, error) {
	if err := live(ctx, "get work order items"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.workOrders[workOrderID]; !ok {
		return nil, errs.NotFound("work order", workOrderID)
	}
	return s.itemsOf(workOrderID), nil
}

// itemsOf requires s.mu to be held.
func (s *Store) itemsOf(workOrderID uint) []models.WorkOrderItem {
	result := make([]models.WorkOrderItem, 0)
	for _, item := range s.items {
		if item.WorkOrderID == workOrderID {
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *Store) ListConsumption(ctx context.Context, workOrderID uint) ([]models.ConsumptionRecord, error) {
	if err := live(ctx, "list consumption"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.ConsumptionRecord, 0)
	for _, record := range s.consumption {
		item, ok := s.items[record.WorkOrderItemID]
		if ok && item.WorkOrderID == workOrderID {
			result = append(result, record)
		}
	}
	return result, nil
}

func (s *Store) UpdateWorkOrderItem(ctx context.Context, itemID uint, produced decimal.Decimal, status models.Status) error {
	if err := live(ctx, "update work order item"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateItem(itemID, produced, status, nil)
}

// updateItem requires s.mu to be held.
func (s *Store) updateItem(itemID uint, produced decimal.Decimal, status models.Status, undo *[]func()) error {
	item, ok := s.items[itemID]
	if !ok {
		return errs.NotFound("work order item", itemID)
	}
	previous := item
	item.ProducedQuantity = produced
	item.Status = status
	item.UpdatedAt = s.now()
	s.items[itemID] = item
	if undo != nil {
		*undo = append(*undo, func() { s.items[itemID] = previous })
	}
	return nil
}

func (s *Store) UpdateWorkOrderStatus(ctx context.Context, workOrderID uint, from, to models.Status, ts store.StatusTimestamps) error {
	if err := live(ctx, "update work order status"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateStatus(workOrderID, from, to, ts, nil)
}

// updateStatus requires s.mu to be held.
func (s *Store) updateStatus(workOrderID uint, from, to models.Status, ts store.StatusTimestamps, undo *[]func()) error {
	order, ok := s.workOrders[workOrderID]
	if !ok {
		return errs.NotFound("work order", workOrderID)
	}
	if order.Status != from {
		return errs.TransitionError{From: string(order.Status), To: string(to)}
	}
	previous := order
	order.Status = to
	if ts.ActualStart != nil {
		start := ts.ActualStart.UTC()
		order.ActualStart = &start
	}
	if ts.ActualEnd != nil {
		end := ts.ActualEnd.UTC()
		order.ActualEnd = &end
	}
	order.UpdatedAt = s.now()
	s.workOrders[workOrderID] = order
	if undo != nil {
		*undo = append(*undo, func() { s.workOrders[workOrderID] = previous })
	}
	return nil
}

// Snapshots

func (s *Store) SaveSnapshot(ctx context.Context, snapshot models.StockSnapshot) error {
	if err := live(ctx, "save snapshot"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.materials[snapshot.MaterialID]; !ok {
		return errs.NotFound("material", snapshot.MaterialID)
	}
	s.snapshots[snapshot.MaterialID] = snapshot
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, materialID uint) (*models.StockSnapshot, error) {
	if err := live(ctx, "get snapshot"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[materialID]
	if !ok {
		return nil, errs.NotFound("stock snapshot", materialID)
	}
	return &snapshot, nil
}

// Transactions

// RunInTx holds the write lock for the duration of fn. Writes made through the
// writer are undone in reverse order when fn fails.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, w store.Writer) error) error {
	if err := live(ctx, "begin transaction"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txWriter{store: s}
	if err := fn(ctx, tx); err != nil {
		rollback(tx.undo)
		return err
	}
	return nil
}

func rollback(undo []func()) {
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

type txWriter struct {
	store *Store
	undo  []func()
}

func (w *txWriter) AppendMovement(ctx context.Context, in store.MovementInput) (*models.Movement, error) {
	if err := live(ctx, "append movement"); err != nil {
		return nil, err
	}
	return w.store.appendMovement(in, &w.undo)
}

func (w *txWriter) PersistConsumption(ctx context.Context, in store.ConsumptionInput) (*models.ConsumptionRecord, *models.Movement, error) {
	if err := live(ctx, "persist consumption"); err != nil {
		return nil, nil, err
	}
	return w.store.persistConsumption(in, &w.undo)
}

func (w *txWriter) UpdateWorkOrderItem(ctx context.Context, itemID uint, produced decimal.Decimal, status models.Status) error {
	if err := live(ctx, "update work order item"); err != nil {
		return err
	}
	return w.store.updateItem(itemID, produced, status, &w.undo)
}

func (w *txWriter) UpdateWorkOrderStatus(ctx context.Context, workOrderID uint, from, to models.Status, ts store.StatusTimestamps) error {
	if err := live(ctx, "update work order status"); err != nil {
		return err
	}
	return w.store.updateStatus(workOrderID, from, to, ts, &w.undo)
}

func (s *Store) Ping(ctx context.Context) error {
	return live(ctx, "ping")
}

func (s *Store) Close() error {
	return nil
}
