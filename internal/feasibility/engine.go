package feasibility

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stockwright/internal/errs"
	"stockwright/internal/store"
	"stockwright/models"
)

// StockReader supplies the stock used by the engine. The on-demand
// calculator and the snapshot reader both satisfy it and agree for the same
// ledger.
type StockReader interface {
	StockOf(ctx context.Context, materialID uint) (decimal.Decimal, error)
}

// ProductResult is the feasibility of producing Quantity units of a product.
// MaxBatches counts batches of that size.
type ProductResult struct {
	Result
	ProductID    uint            `json:"product_id"`
	ProductCode  string          `json:"product_code"`
	Quantity     decimal.Decimal `json:"quantity"`
	BaseQuantity decimal.Decimal `json:"base_quantity"`
}

type Engine struct {
	store   store.Store
	reader  StockReader
	timeout time.Duration
}

func NewEngine(s store.Store, reader StockReader, timeout time.Duration) *Engine {
	return &Engine{store: s, reader: reader, timeout: timeout}
}

// WithReader returns a copy of the engine reading stock from r.
func (e *Engine) WithReader(r StockReader) *Engine {
	clone := *e
	clone.reader = r
	return &clone
}

// ForProduct loads the product's formula, scales it to quantity and computes
// feasibility. A zero quantity means the product's base quantity.
func (e *Engine) ForProduct(ctx context.Context, productID uint, quantity decimal.Decimal) (ProductResult, error) {
	if quantity.IsNegative() {
		return ProductResult{}, errs.Invalid("quantity", "must not be negative")
	}

	ctx, cancel := store.WithTimeout(ctx, e.timeout)
	defer cancel()

	product, err := e.store.GetProduct(ctx, productID)
	if err != nil {
		return ProductResult{}, err
	}
	if quantity.IsZero() {
		quantity = product.BaseQuantity
	}

	lines, err := ScaledLines(product, quantity)
	if err != nil {
		return ProductResult{}, err
	}

	result, err := e.compute(ctx, lines)
	if err != nil {
		return ProductResult{}, err
	}
	return ProductResult{
		Result:       result,
		ProductID:    product.ID,
		ProductCode:  product.Code,
		Quantity:     quantity,
		BaseQuantity: product.BaseQuantity,
	}, nil
}

// ForFormula computes feasibility of an ad-hoc formula.
func (e *Engine) ForFormula(ctx context.Context, lines []Line) (Result, error) {
	seen := make(map[uint]struct{}, len(lines))
	for _, line := range lines {
		if _, dup := seen[line.MaterialID]; dup {
			return Result{}, errs.Invalid("formula", "material %d appears more than once", line.MaterialID)
		}
		seen[line.MaterialID] = struct{}{}
		if line.RequiredQuantity.IsNegative() {
			return Result{}, errs.Invalid("required_quantity", "must not be negative")
		}
	}

	ctx, cancel := store.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.compute(ctx, lines)
}

func (e *Engine) compute(ctx context.Context, lines []Line) (Result, error) {
	stocks := make(map[uint]decimal.Decimal, len(lines))
	for _, line := range lines {
		if _, ok := stocks[line.MaterialID]; ok {
			continue
		}
		qty, err := e.reader.StockOf(ctx, line.MaterialID)
		if err != nil {
			return Result{}, err
		}
		stocks[line.MaterialID] = qty
	}
	return Compute(lines, func(id uint) decimal.Decimal { return stocks[id] }), nil
}

// ScaledLines converts a product formula into lines scaled to quantity.
func ScaledLines(product *models.Product, quantity decimal.Decimal) ([]Line, error) {
	lines := make([]Line, 0, len(product.Formula))
	for _, fl := range product.Formula {
		required, err := Scale(fl.RequiredQuantity, quantity, product.BaseQuantity)
		if err != nil {
			return nil, err
		}
		line := Line{MaterialID: fl.MaterialID, RequiredQuantity: required}
		if fl.Material != nil {
			line.MaterialCode = fl.Material.Code
		}
		lines = append(lines, line)
	}
	return lines, nil
}
