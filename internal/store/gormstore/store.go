// Package gormstore implements store.Store on top of gorm. It works against
// both the postgres and sqlite dialects configured by package db.
package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockwright/internal/errs"
	"stockwright/internal/store"
	"stockwright/models"
)

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// classify maps gorm and driver failures onto the errs taxonomy. Errors that
// already carry a kind pass through.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrNotFound),
		errors.Is(err, errs.ErrValidation),
		errors.Is(err, errs.ErrInvalidTransition),
		errors.Is(err, errs.ErrUnavailable):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return errs.Invalid("", "%s: duplicate key", op)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return errs.Invalid("", "%s: referenced record missing", op)
	default:
		return errs.Unavailable(op, err)
	}
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func first(ctx context.Context, db *gorm.DB, dest any, entity string, id uint) error {
	err := db.WithContext(ctx).First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound(entity, id)
	}
	return classify("get "+entity, err)
}

func exists(ctx context.Context, db *gorm.DB, model any, entity string, id uint) error {
	var count int64
	if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return classify("lookup "+entity, err)
	}
	if count == 0 {
		return errs.NotFound(entity, id)
	}
	return nil
}

// Materials

func (s *Store) CreateMaterial(ctx context.Context, material *models.Material) error {
	return classify("create material", s.db.WithContext(ctx).Create(material).Error)
}

func (s *Store) GetMaterial(ctx context.Context, id uint) (*models.Material, error) {
	var material models.Material
	if err := first(ctx, s.db, &material, "material", id); err != nil {
		return nil, err
	}
	return &material, nil
}

func (s *Store) ListMaterials(ctx context.Context, opts store.MaterialListOptions) ([]models.Material, error) {
	query := s.db.WithContext(ctx).Order("id ASC")
	if opts.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	var materials []models.Material
	if err := query.Find(&materials).Error; err != nil {
		return nil, classify("list materials", err)
	}
	return materials, nil
}

func (s *Store) SetMaterialActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.Material{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return classify("update material", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("material", id)
	}
	return nil
}

func (s *Store) DeleteMaterial(ctx context.Context, id uint) error {
	return classify("delete material", s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(ctx, tx, &models.Material{}, "material", id); err != nil {
			return err
		}

		references := []struct {
			model any
			what  string
		}{
			{&models.Movement{}, "ledger movements"},
			{&models.FormulaLine{}, "formula lines"},
			{&models.ConsumptionRecord{}, "consumption records"},
		}
		for _, ref := range references {
			var count int64
			if err := tx.Model(ref.model).Where("material_id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return errs.Invalid("material", "material %d is referenced by %d %s", id, count, ref.what)
			}
		}

		if err := tx.Where("material_id = ?", id).Delete(&models.StockSnapshot{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&models.Material{}, id).Error
	}))
}

// Ledger

func (s *Store) ListMovements(ctx context.Context, materialID uint, asOf *time.Time) ([]models.Movement, error) {
	query := s.db.WithContext(ctx).
		Where("material_id = ?", materialID).
		Order("occurred_at ASC").
		Order("id ASC")
	if asOf != nil {
		query = query.Where("occurred_at <= ?", asOf.UTC())
	}
	var movements []models.Movement
	if err := query.Find(&movements).Error; err != nil {
		return nil, classify("list movements", err)
	}
	return movements, nil
}

func (s *Store) AppendMovement(ctx context.Context, in store.MovementInput) (*models.Movement, error) {
	return appendMovement(ctx, s.db, in)
}

func appendMovement(ctx context.Context, db *gorm.DB, in store.MovementInput) (*models.Movement, error) {
	if err := exists(ctx, db, &models.Material{}, "material", in.MaterialID); err != nil {
		return nil, err
	}
	movement := models.Movement{
		MaterialID: in.MaterialID,
		Quantity:   in.Quantity,
		Direction:  in.Direction,
		OccurredAt: in.OccurredAt.UTC(),
		Notes:      in.Notes,
		Reference:  in.Reference,
	}
	if err := db.WithContext(ctx).Create(&movement).Error; err != nil {
		return nil, classify("append movement", err)
	}
	return &movement, nil
}

func (s *Store) PersistConsumption(ctx context.Context, in store.ConsumptionInput) (*models.ConsumptionRecord, *models.Movement, error) {
	var (
		record   *models.ConsumptionRecord
		movement *models.Movement
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		record, movement, err = persistConsumption(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, nil, classify("persist consumption", err)
	}
	return record, movement, nil
}

func persistConsumption(ctx context.Context, db *gorm.DB, in store.ConsumptionInput) (*models.ConsumptionRecord, *models.Movement, error) {
	if err := exists(ctx, db, &models.WorkOrderItem{}, "work order item", in.WorkOrderItemID); err != nil {
		return nil, nil, err
	}
	movement, err := appendMovement(ctx, db, store.MovementInput{
		MaterialID: in.MaterialID,
		Quantity:   in.Quantity,
		Direction:  models.DirectionOut,
		OccurredAt: in.OccurredAt,
		Reference:  in.Reference,
		Notes:      "work order consumption",
	})
	if err != nil {
		return nil, nil, err
	}
	record := models.ConsumptionRecord{
		WorkOrderItemID:   in.WorkOrderItemID,
		MaterialID:        in.MaterialID,
		ActualConsumption: in.Quantity,
		MovementID:        movement.ID,
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, nil, classify("persist consumption", err)
	}
	return &record, movement, nil
}

// Products

func validateFormula(ctx context.Context, db *gorm.DB, lines []models.FormulaLine) error {
	seen := make(map[uint]struct{}, len(lines))
	for _, line := range lines {
		if _, dup := seen[line.MaterialID]; dup {
			return errs.Invalid("formula", "material %d appears more than once", line.MaterialID)
		}
		seen[line.MaterialID] = struct{}{}
		if err := exists(ctx, db, &models.Material{}, "material", line.MaterialID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	return classify("create product", s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := validateFormula(ctx, tx, product.Formula); err != nil {
			return err
		}
		for i := range product.Formula {
			product.Formula[i].Material = nil
		}
		return tx.Create(product).Error
	}))
}

func orderedFormula(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC").Order("id ASC")
}

func (s *Store) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).
		Preload("Formula", orderedFormula).
		Preload("Formula.Material").
		First(&product, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("product", id)
	}
	if err != nil {
		return nil, classify("get product", err)
	}
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&products).Error; err != nil {
		return nil, classify("list products", err)
	}
	return products, nil
}

func (s *Store) GetFormula(ctx context.Context, productID uint) ([]models.FormulaLine, error) {
	if err := exists(ctx, s.db, &models.Product{}, "product", productID); err != nil {
		return nil, err
	}
	var lines []models.FormulaLine
	err := orderedFormula(s.db.WithContext(ctx)).
		Preload("Material").
		Where("product_id = ?", productID).
		Find(&lines).Error
	if err != nil {
		return nil, classify("get formula", err)
	}
	return lines, nil
}

func (s *Store) ReplaceFormula(ctx context.Context, productID uint, lines []models.FormulaLine) error {
	return classify("replace formula", s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(ctx, tx, &models.Product{}, "product", productID); err != nil {
			return err
		}
		if err := validateFormula(ctx, tx, lines); err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", productID).Delete(&models.FormulaLine{}).Error; err != nil {
			return err
		}
		if len(lines) == 0 {
			return nil
		}
		rows := make([]models.FormulaLine, len(lines))
		for i, line := range lines {
			line.ID = 0
			line.ProductID = productID
			line.Material = nil
			rows[i] = line
		}
		return tx.Create(&rows).Error
	}))
}

// Work orders

func (s *Store) CreateWorkOrder(ctx context.Context, order *models.WorkOrder) error {
	return classify("create work order", s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range order.Items {
			if err := exists(ctx, tx, &models.Product{}, "product", item.ProductID); err != nil {
				return err
			}
		}
		if order.Status == "" {
			order.Status = models.StatusPending
		}
		for i := range order.Items {
			if order.Items[i].Status == "" {
				order.Items[i].Status = models.StatusPending
			}
		}
		return tx.Create(order).Error
	}))
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func (s *Store) GetWorkOrder(ctx context.Context, id uint) (*models.WorkOrder, error) {
	var order models.WorkOrder
	err := s.db.WithContext(ctx).Preload("Items", orderedItems).First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("work order", id)
	}
	if err != nil {
		return nil, classify("get work order", err)
	}
	return &order, nil
}

func (s *Store) ListWorkOrders(ctx context.Context, opts store.WorkOrderListOptions) ([]models.WorkOrder, error) {
	query := s.db.WithContext(ctx).Preload("Items", orderedItems).Order("id DESC")
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	var orders []models.WorkOrder
	if err := query.Find(&orders).Error; err != nil {
		return nil, classify("list work orders", err)
	}
	return orders, nil
}

func (s *Store) GetWorkOrderItems(ctx context.Context, workOrderID uint) ([]models.WorkOrderItem, error) {
	if err := exists(ctx, s.db, &models.WorkOrder{}, "work order", workOrderID); err != nil {
		return nil, err
	}
	var items []models.WorkOrderItem
	if err := orderedItems(s.db.WithContext(ctx)).Where("work_order_id = ?", workOrderID).Find(&items).Error; err != nil {
		return nil, classify("get work order items", err)
	}
	return items, nil
}

func (s *Store) ListConsumption(ctx context.Context, workOrderID uint) ([]models.ConsumptionRecord, error) {
	itemIDs := s.db.Model(&models.WorkOrderItem{}).Select("id").Where("work_order_id = ?", workOrderID)
	var records []models.ConsumptionRecord
	err := s.db.WithContext(ctx).
		Where("work_order_item_id IN (?)", itemIDs).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, classify("list consumption", err)
	}
	return records, nil
}

func (s *Store) UpdateWorkOrderItem(ctx context.Context, itemID uint, produced decimal.Decimal, status models.Status) error {
	return updateWorkOrderItem(ctx, s.db, itemID, produced, status)
}

func updateWorkOrderItem(ctx context.Context, db *gorm.DB, itemID uint, produced decimal.Decimal, status models.Status) error {
	res := db.WithContext(ctx).Model(&models.WorkOrderItem{}).Where("id = ?", itemID).Updates(map[string]any{
		"produced_quantity": produced,
		"status":            status,
	})
	if res.Error != nil {
		return classify("update work order item", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("work order item", itemID)
	}
	return nil
}

func (s *Store) UpdateWorkOrderStatus(ctx context.Context, workOrderID uint, from, to models.Status, ts store.StatusTimestamps) error {
	return updateWorkOrderStatus(ctx, s.db, workOrderID, from, to, ts)
}

func updateWorkOrderStatus(ctx context.Context, db *gorm.DB, workOrderID uint, from, to models.Status, ts store.StatusTimestamps) error {
	updates := map[string]any{"status": to}
	if ts.ActualStart != nil {
		updates["actual_start"] = ts.ActualStart.UTC()
	}
	if ts.ActualEnd != nil {
		updates["actual_end"] = ts.ActualEnd.UTC()
	}

	res := db.WithContext(ctx).Model(&models.WorkOrder{}).
		Where("id = ? AND status = ?", workOrderID, from).
		Updates(updates)
	if res.Error != nil {
		return classify("update work order status", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var current models.WorkOrder
	if err := first(ctx, db.Select("id", "status"), &current, "work order", workOrderID); err != nil {
		return err
	}
	return errs.TransitionError{From: string(current.Status), To: string(to)}
}

// Snapshots

func (s *Store) SaveSnapshot(ctx context.Context, snapshot models.StockSnapshot) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "material_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "raw_quantity", "movement_count", "computed_at"}),
	}).Create(&snapshot).Error
	return classify("save snapshot", err)
}

func (s *Store) GetSnapshot(ctx context.Context, materialID uint) (*models.StockSnapshot, error) {
	var snapshot models.StockSnapshot
	err := s.db.WithContext(ctx).Where("material_id = ?", materialID).First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("stock snapshot", materialID)
	}
	if err != nil {
		return nil, classify("get snapshot", err)
	}
	return &snapshot, nil
}

// Transactions

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, w store.Writer) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &txWriter{db: tx})
	})
	return classify("transaction", err)
}

type txWriter struct {
	db *gorm.DB
}

func (w *txWriter) AppendMovement(ctx context.Context, in store.MovementInput) (*models.Movement, error) {
	return appendMovement(ctx, w.db, in)
}

func (w *txWriter) PersistConsumption(ctx context.Context, in store.ConsumptionInput) (*models.ConsumptionRecord, *models.Movement, error) {
	return persistConsumption(ctx, w.db, in)
}

func (w *txWriter) UpdateWorkOrderItem(ctx context.Context, itemID uint, produced decimal.Decimal, status models.Status) error {
	return updateWorkOrderItem(ctx, w.db, itemID, produced, status)
}

func (w *txWriter) UpdateWorkOrderStatus(ctx context.Context, workOrderID uint, from, to models.Status, ts store.StatusTimestamps) error {
	return updateWorkOrderStatus(ctx, w.db, workOrderID, from, to, ts)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return classify("ping", err)
	}
	return classify("ping", sqlDB.PingContext(ctx))
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
