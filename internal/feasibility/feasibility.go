// Package feasibility explodes a formula against stock to find how many
// batches can be produced and which material limits production.
package feasibility

import (
	"github.com/shopspring/decimal"

	"stockwright/internal/errs"
	"stockwright/models"
)

// Line is one formula requirement, already scaled to the batch size being
// evaluated.
type Line struct {
	MaterialID       uint            `json:"material_id"`
	MaterialCode     string          `json:"material_code,omitempty"`
	RequiredQuantity decimal.Decimal `json:"required_quantity"`
}

// LineResult is the evaluation of a single line.
type LineResult struct {
	MaterialID       uint            `json:"material_id"`
	MaterialCode     string          `json:"material_code,omitempty"`
	RequiredQuantity decimal.Decimal `json:"required_quantity"`
	Stock            decimal.Decimal `json:"stock"`
	Batches          int64           `json:"batches"`
	Sufficient       bool            `json:"sufficient"`
	// Skipped lines require nothing and never limit production.
	Skipped bool `json:"skipped"`
}

// Shortfall returns how much stock is missing for one batch.
func (l LineResult) Shortfall() decimal.Decimal {
	if l.Sufficient {
		return decimal.Zero
	}
	return l.RequiredQuantity.Sub(l.Stock)
}

type Result struct {
	MaxBatches         int64        `json:"max_batches"`
	LimitingMaterialID *uint        `json:"limiting_material_id"`
	InsufficientCount  int          `json:"insufficient_count"`
	Lines              []LineResult `json:"lines"`
	// ProductionReady is false for an empty formula and when no full batch
	// can be made.
	ProductionReady bool `json:"production_ready"`
}

// Insufficient returns the lines whose stock does not cover one batch.
func (r Result) Insufficient() []LineResult {
	var out []LineResult
	for _, line := range r.Lines {
		if !line.Skipped && !line.Sufficient {
			out = append(out, line)
		}
	}
	return out
}

// Compute evaluates lines against stockOf. Lines requiring zero (or less) are
// skipped. The first line reaching the minimum names the limiting material.
// An empty formula yields zero batches rather than an unbounded count.
func Compute(lines []Line, stockOf func(materialID uint) decimal.Decimal) Result {
	result := Result{Lines: make([]LineResult, 0, len(lines))}

	considered := 0
	for _, line := range lines {
		stock := stockOf(line.MaterialID)
		if stock.IsNegative() {
			stock = decimal.Zero
		}
		lr := LineResult{
			MaterialID:       line.MaterialID,
			MaterialCode:     line.MaterialCode,
			RequiredQuantity: line.RequiredQuantity,
			Stock:            stock,
		}

		if !line.RequiredQuantity.IsPositive() {
			lr.Skipped = true
			lr.Sufficient = true
			result.Lines = append(result.Lines, lr)
			continue
		}

		quotient, _ := stock.QuoRem(line.RequiredQuantity, 0)
		lr.Batches = quotient.IntPart()
		lr.Sufficient = !stock.LessThan(line.RequiredQuantity)
		if !lr.Sufficient {
			result.InsufficientCount++
		}

		if considered == 0 || lr.Batches < result.MaxBatches {
			result.MaxBatches = lr.Batches
			id := line.MaterialID
			result.LimitingMaterialID = &id
		}
		considered++
		result.Lines = append(result.Lines, lr)
	}

	if considered == 0 {
		result.MaxBatches = 0
		result.LimitingMaterialID = nil
	}
	result.ProductionReady = considered > 0 && result.MaxBatches > 0
	return result
}

// Scale applies the rule of three: the requirement for planned units of a
// product whose formula is expressed per base units. The result is rounded to
// the stored quantity scale so callers echo what the ledger persists.
func Scale(required, planned, base decimal.Decimal) (decimal.Decimal, error) {
	if !base.IsPositive() {
		return decimal.Zero, errs.Invalid("base_quantity", "must be greater than zero")
	}
	return required.Mul(planned).Div(base).Round(models.QuantityPlaces), nil
}
