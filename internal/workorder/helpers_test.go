package workorder

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"stockwright/internal/config"
	"stockwright/internal/db"
	"stockwright/internal/errs"
	"stockwright/internal/feasibility"
	"stockwright/internal/stock"
	"stockwright/internal/store"
	"stockwright/internal/store/gormstore"
	"stockwright/internal/store/memory"
	"stockwright/models"
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func decp(v int64) *decimal.Decimal {
	d := dec(v)
	return &d
}

type env struct {
	store  store.Store
	calc   *stock.Calculator
	engine *feasibility.Engine
	svc    *Service
}

func newEnv(s store.Store) env {
	calc := stock.NewCalculator(s, 2*time.Second)
	engine := feasibility.NewEngine(s, calc, 2*time.Second)
	return env{
		store:  s,
		calc:   calc,
		engine: engine,
		svc:    NewService(s, engine, calc, 2*time.Second),
	}
}

func newMemoryEnv() env {
	return newEnv(memory.New())
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]+`)

func newSQLiteEnv(t *testing.T) env {
	t.Helper()
	database, err := db.Initialize(config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		URL:          fmt.Sprintf("file:workorder_%s?mode=memory&cache=shared", unsafeName.ReplaceAllString(t.Name(), "_")),
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := gormstore.New(database)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return newEnv(s)
}

func (e env) material(t *testing.T, code string) models.Material {
	t.Helper()
	material := models.Material{Code: code, Name: code, Unit: "g", IsActive: true}
	if err := e.store.CreateMaterial(context.Background(), &material); err != nil {
		t.Fatalf("create material %s: %v", code, err)
	}
	return material
}

func (e env) move(t *testing.T, materialID uint, qty int64, dir models.Direction, at time.Time) {
	t.Helper()
	if _, err := e.store.AppendMovement(context.Background(), store.MovementInput{
		MaterialID: materialID,
		Quantity:   dec(qty),
		Direction:  dir,
		OccurredAt: at,
	}); err != nil {
		t.Fatalf("append movement: %v", err)
	}
}

func (e env) product(t *testing.T, code string, base int64, lines ...models.FormulaLine) models.Product {
	t.Helper()
	for i := range lines {
		lines[i].Position = i
	}
	product := models.Product{Code: code, Name: code, BaseQuantity: dec(base), IsActive: true, Formula: lines}
	if err := e.store.CreateProduct(context.Background(), &product); err != nil {
		t.Fatalf("create product %s: %v", code, err)
	}
	return product
}

func line(materialID uint, required int64) models.FormulaLine {
	return models.FormulaLine{MaterialID: materialID, RequiredQuantity: dec(required)}
}

func (e env) create(t *testing.T, items ...ItemInput) CreateResult {
	t.Helper()
	result, err := e.svc.Create(context.Background(), CreateInput{Description: "test batch", Items: items})
	if err != nil {
		t.Fatalf("create work order: %v", err)
	}
	return result
}

func (e env) transition(t *testing.T, id uint, target models.Status, payload *CompletionPayload) TransitionResult {
	t.Helper()
	result, err := e.svc.Transition(context.Background(), id, target, payload)
	if err != nil {
		t.Fatalf("transition %d to %s: %v", id, target, err)
	}
	return result
}

func (e env) onHand(t *testing.T, materialID uint) decimal.Decimal {
	t.Helper()
	qty, err := e.calc.CurrentStock(context.Background(), materialID, time.Time{})
	if err != nil {
		t.Fatalf("current stock: %v", err)
	}
	return qty
}

// failingStore fails the n-th consumption written inside a transaction.
type failingStore struct {
	store.Store
	failAt int
}

func (f *failingStore) RunInTx(ctx context.Context, fn func(ctx context.Context, w store.Writer) error) error {
	return f.Store.RunInTx(ctx, func(ctx context.Context, w store.Writer) error {
		return fn(ctx, &failingWriter{Writer: w, remaining: f.failAt})
	})
}

type failingWriter struct {
	store.Writer
	remaining int
}

var errConnReset = errors.New("connection reset by peer")

func (w *failingWriter) PersistConsumption(ctx context.Context, in store.ConsumptionInput) (*models.ConsumptionRecord, *models.Movement, error) {
	if w.remaining == 0 {
		return nil, nil, errs.Unavailable("persist consumption", errConnReset)
	}
	w.remaining--
	return w.Writer.PersistConsumption(ctx, in)
}
