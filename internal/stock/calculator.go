// Package stock derives material quantities from the movement ledger.
//
// Stock is never stored as a source of truth. The Calculator folds the ledger
// on every call; the Recomputer writes snapshots only when explicitly invoked.
package stock

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stockwright/internal/store"
	"stockwright/models"
)

// Balance is the folded state of one material's ledger.
type Balance struct {
	// Quantity is the reported stock, never below zero.
	Quantity decimal.Decimal
	// Raw is the unclamped running total.
	Raw            decimal.Decimal
	MovementCount  int
	LastMovementAt *time.Time
}

// Negative reports whether the raw balance went below zero.
func (b Balance) Negative() bool {
	return b.Raw.IsNegative()
}

// Fold sums movements that occurred at or before asOf in (OccurredAt, ID)
// order. A zero asOf folds the whole slice. The input is not modified.
func Fold(movements []models.Movement, asOf time.Time) Balance {
	ordered := make([]models.Movement, 0, len(movements))
	for _, movement := range movements {
		if !asOf.IsZero() && movement.OccurredAt.After(asOf) {
			continue
		}
		ordered = append(ordered, movement)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].OccurredAt.Equal(ordered[j].OccurredAt) {
			return ordered[i].OccurredAt.Before(ordered[j].OccurredAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	acc := decimal.Zero
	for _, movement := range ordered {
		acc = acc.Add(movement.Signed())
	}

	balance := Balance{
		Quantity:      acc,
		Raw:           acc,
		MovementCount: len(ordered),
	}
	if acc.IsNegative() {
		balance.Quantity = decimal.Zero
	}
	if n := len(ordered); n > 0 {
		last := ordered[n-1].OccurredAt
		balance.LastMovementAt = &last
	}
	return balance
}

// Calculator answers stock queries by folding the ledger on demand. It never
// writes anything.
type Calculator struct {
	store   store.Store
	timeout time.Duration
}

func NewCalculator(s store.Store, timeout time.Duration) *Calculator {
	return &Calculator{store: s, timeout: timeout}
}

// CurrentStock returns the clamped quantity of a material as of asOf. A zero
// asOf means now.
func (c *Calculator) CurrentStock(ctx context.Context, materialID uint, asOf time.Time) (decimal.Decimal, error) {
	balance, err := c.Balance(ctx, materialID, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Quantity, nil
}

// Balance is CurrentStock with the diagnostics of the fold.
func (c *Calculator) Balance(ctx context.Context, materialID uint, asOf time.Time) (Balance, error) {
	ctx, cancel := store.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.store.GetMaterial(ctx, materialID); err != nil {
		return Balance{}, err
	}

	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	movements, err := c.store.ListMovements(ctx, materialID, &asOf)
	if err != nil {
		return Balance{}, err
	}
	return Fold(movements, asOf), nil
}

// StockOf reads the current quantity. It lets the Calculator feed the
// feasibility engine.
func (c *Calculator) StockOf(ctx context.Context, materialID uint) (decimal.Decimal, error) {
	return c.CurrentStock(ctx, materialID, time.Time{})
}
