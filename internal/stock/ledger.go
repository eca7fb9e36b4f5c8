package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockwright/internal/errs"
	applog "stockwright/internal/log"
	"stockwright/internal/metrics"
	"stockwright/internal/store"
	"stockwright/models"
)

// RecordResult is returned by Ledger.Record. AffectedMaterials lists the
// materials whose stock changed so callers can decide whether to recompute
// snapshots.
type RecordResult struct {
	Movement          *models.Movement `json:"movement"`
	AffectedMaterials []uint           `json:"affected_materials"`
	Warnings          []string         `json:"warnings"`
}

// Ledger validates and appends manual movements.
type Ledger struct {
	store   store.Store
	calc    *Calculator
	timeout time.Duration
	now     func() time.Time
}

func NewLedger(s store.Store, calc *Calculator, timeout time.Duration) *Ledger {
	return &Ledger{
		store:   s,
		calc:    calc,
		timeout: timeout,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Record appends one movement. Inactive materials cannot receive stock but
// may still be drawn down. The store is called at most once for the append;
// nothing is retried.
func (l *Ledger) Record(ctx context.Context, in store.MovementInput) (RecordResult, error) {
	in.Quantity = in.Quantity.Round(models.QuantityPlaces)
	if !in.Quantity.IsPositive() {
		return RecordResult{}, errs.Invalid("quantity", "must be greater than zero")
	}
	in.Direction = models.Direction(strings.ToLower(strings.TrimSpace(string(in.Direction))))
	if !in.Direction.Valid() {
		return RecordResult{}, errs.Invalid("direction", "must be %q or %q", models.DirectionIn, models.DirectionOut)
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = l.now()
	}
	in.Notes = strings.TrimSpace(in.Notes)
	in.Reference = strings.TrimSpace(in.Reference)

	ctx, cancel := store.WithTimeout(ctx, l.timeout)
	defer cancel()

	material, err := l.store.GetMaterial(ctx, in.MaterialID)
	if err != nil {
		return RecordResult{}, err
	}
	if in.Direction == models.DirectionIn && !material.IsActive {
		return RecordResult{}, errs.Invalid("material_id", "material %s is inactive", material.Code)
	}

	movement, err := l.store.AppendMovement(ctx, in)
	if err != nil {
		applog.Error(ctx, "append movement failed", "material", material.ID, "error", err)
		return RecordResult{}, err
	}
	metrics.MovementsRecorded.WithLabelValues(string(movement.Direction), "ledger").Inc()
	applog.Debug(ctx, "movement recorded",
		"material", material.ID,
		"movement", movement.ID,
		"direction", movement.Direction,
		"quantity", movement.Quantity.String(),
	)

	result := RecordResult{
		Movement:          movement,
		AffectedMaterials: []uint{material.ID},
	}

	if movement.Direction == models.DirectionOut {
		balance, err := l.calc.Balance(ctx, material.ID, time.Time{})
		if err != nil {
			// The movement is committed; a failed follow-up read only loses the warning.
			applog.Error(ctx, "balance after movement failed", "material", material.ID, "error", err)
		} else if balance.Negative() {
			result.Warnings = append(result.Warnings, NegativeBalanceWarning(material.Code, balance.Raw))
			metrics.StockWarnings.WithLabelValues("movement").Inc()
		}
	}

	return result, nil
}

// Movements returns the ledger of a material up to asOf, oldest first. A zero
// asOf returns every movement.
func (l *Ledger) Movements(ctx context.Context, materialID uint, asOf time.Time) ([]models.Movement, error) {
	ctx, cancel := store.WithTimeout(ctx, l.timeout)
	defer cancel()

	if _, err := l.store.GetMaterial(ctx, materialID); err != nil {
		return nil, err
	}
	var bound *time.Time
	if !asOf.IsZero() {
		bound = &asOf
	}
	return l.store.ListMovements(ctx, materialID, bound)
}

// NegativeBalanceWarning formats the warning returned when consumption pushes
// a material's raw balance below zero.
func NegativeBalanceWarning(code string, raw decimal.Decimal) string {
	return fmt.Sprintf("material %s ledger balance is %s; stock is reported as 0", code, raw.String())
}
