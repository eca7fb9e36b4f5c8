package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stockwright/internal/config"
	database "stockwright/internal/db"
	applog "stockwright/internal/log"
	"stockwright/internal/store"
	"stockwright/internal/store/gormstore"
	"stockwright/models"
)

// OrderNumber identifies the pending work order seeded by New.
const OrderNumber = "WO-MOCK-0001"

// New returns an in-memory sqlite database seeded with a small bakery: three
// materials with opening stock, one product per formula and a pending work
// order. Each call gets its own database.
func New(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	db, err := database.Initialize(config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		URL:          fmt.Sprintf("file:stockwright-mock-%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
	})
	if err != nil {
		return nil, err
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}

	if err := seed(ctx, gormstore.New(db)); err != nil {
		return nil, err
	}

	applog.Debug(ctx, "mock database ready")
	return db, nil
}

func qty(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func seed(ctx context.Context, s store.Store) error {
	applog.Debug(ctx, "seeding mock database")

	maxFlour := qty("500")
	materials := []models.Material{
		{Code: "FLOUR", Name: "Wheat flour", Unit: "g", MinStock: qty("50"), MaxStock: &maxFlour, IsActive: true},
		{Code: "SUGAR", Name: "Caster sugar", Unit: "g", MinStock: qty("20"), IsActive: true},
		{Code: "BUTTER", Name: "Unsalted butter", Unit: "g", MinStock: qty("40"), IsActive: true},
	}
	for i := range materials {
		if err := s.CreateMaterial(ctx, &materials[i]); err != nil {
			return fmt.Errorf("seed material %s: %w", materials[i].Code, err)
		}
	}
	flour, sugar, butter := materials[0], materials[1], materials[2]

	t1 := time.Date(2024, 1, 8, 7, 0, 0, 0, time.UTC)
	t2 := t1.Add(4 * time.Hour)
	movements := []store.MovementInput{
		{MaterialID: flour.ID, Quantity: qty("100"), Direction: models.DirectionIn, OccurredAt: t1, Reference: "OPENING"},
		{MaterialID: flour.ID, Quantity: qty("30"), Direction: models.DirectionOut, OccurredAt: t2, Notes: "spoiled sack"},
		{MaterialID: sugar.ID, Quantity: qty("60"), Direction: models.DirectionIn, OccurredAt: t1, Reference: "OPENING"},
		{MaterialID: butter.ID, Quantity: qty("25"), Direction: models.DirectionIn, OccurredAt: t1, Reference: "OPENING"},
	}
	for _, in := range movements {
		if _, err := s.AppendMovement(ctx, in); err != nil {
			return fmt.Errorf("seed movement: %w", err)
		}
	}

	dough := models.Product{
		Code:         "DOUGH",
		Name:         "Plain dough",
		Unit:         "pcs",
		BaseQuantity: qty("1"),
		IsActive:     true,
		Formula: []models.FormulaLine{
			{MaterialID: flour.ID, RequiredQuantity: qty("7"), Position: 0},
		},
	}
	shortbread := models.Product{
		Code:         "SHORTBREAD",
		Name:         "Shortbread tray",
		Unit:         "pcs",
		BaseQuantity: qty("10"),
		IsActive:     true,
		Formula: []models.FormulaLine{
			{MaterialID: flour.ID, RequiredQuantity: qty("30"), Position: 0},
			{MaterialID: sugar.ID, RequiredQuantity: qty("10"), Position: 1},
			{MaterialID: butter.ID, RequiredQuantity: qty("20"), Position: 2},
		},
	}
	for _, p := range []*models.Product{&dough, &shortbread} {
		if err := s.CreateProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.Code, err)
		}
	}

	order := &models.WorkOrder{
		OrderNumber: OrderNumber,
		Status:      models.StatusPending,
		Priority:    models.PriorityNormal,
		Description: "Morning dough",
		Items: []models.WorkOrderItem{
			{ProductID: dough.ID, PlannedQuantity: qty("5"), Status: models.StatusPending},
		},
	}
	if err := s.CreateWorkOrder(ctx, order); err != nil {
		return fmt.Errorf("seed work order: %w", err)
	}
	return nil
}
