package stock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stockwright/internal/errs"
	applog "stockwright/internal/log"
	"stockwright/internal/metrics"
	"stockwright/internal/store"
	"stockwright/models"
)

// Report summarises one recomputation pass.
type Report struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Computed   int             `json:"computed"`
	Failures   errs.MultiError `json:"-"`
}

// Failed returns the number of materials that could not be recomputed.
func (r Report) Failed() int {
	return len(r.Failures.Errors)
}

// FailureMessages renders the per-material errors.
func (r Report) FailureMessages() []string {
	messages := make([]string, 0, len(r.Failures.Errors))
	for _, err := range r.Failures.Errors {
		messages = append(messages, err.Error())
	}
	return messages
}

// Recomputer refreshes cached stock snapshots. Writes are serialized: a pass
// or single-material refresh started while another is running fails with
// errs.ErrBusy, so an older fold never overwrites a newer snapshot. Readers
// are never blocked.
type Recomputer struct {
	store   store.Store
	calc    *Calculator
	timeout time.Duration
	now     func() time.Time

	running sync.Mutex
}

func NewRecomputer(s store.Store, calc *Calculator, timeout time.Duration) *Recomputer {
	return &Recomputer{
		store:   s,
		calc:    calc,
		timeout: timeout,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RecomputeAll folds the ledger of every active material and upserts its
// snapshot. A failing material is recorded in the report and the pass moves
// on. The returned error is only set when the material list cannot be read.
func (r *Recomputer) RecomputeAll(ctx context.Context) (Report, error) {
	if !r.running.TryLock() {
		applog.Info(ctx, "recompute refused: a pass is already running")
		return Report{}, errs.Busy("stock recompute")
	}
	defer r.running.Unlock()

	report := Report{StartedAt: r.now()}
	metrics.RecomputeRuns.Inc()
	defer func() {
		metrics.RecomputeDuration.Observe(r.now().Sub(report.StartedAt).Seconds())
	}()

	listCtx, cancel := store.WithTimeout(ctx, r.timeout)
	materials, err := r.store.ListMaterials(listCtx, store.MaterialListOptions{ActiveOnly: true})
	cancel()
	if err != nil {
		applog.Error(ctx, "recompute: list materials failed", "error", err)
		return report, err
	}

	applog.Info(ctx, "recompute started", "materials", len(materials))
	for _, material := range materials {
		if err := r.recompute(ctx, material.ID, report.StartedAt); err != nil {
			report.Failures.Add(fmt.Errorf("material %d (%s): %w", material.ID, material.Code, err))
			metrics.RecomputeFailures.Inc()
			applog.Error(ctx, "recompute material failed", "material", material.ID, "error", err)
			continue
		}
		report.Computed++
	}

	report.FinishedAt = r.now()
	applog.Info(ctx, "recompute finished",
		"computed", report.Computed,
		"failed", report.Failed(),
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)
	return report, nil
}

// Recompute refreshes the snapshot of a single material.
func (r *Recomputer) Recompute(ctx context.Context, materialID uint) (*models.StockSnapshot, error) {
	if !r.running.TryLock() {
		return nil, errs.Busy("stock recompute")
	}
	defer r.running.Unlock()

	asOf := r.now()
	if err := r.recompute(ctx, materialID, asOf); err != nil {
		return nil, err
	}
	return r.CachedStock(ctx, materialID)
}

func (r *Recomputer) recompute(ctx context.Context, materialID uint, asOf time.Time) error {
	balance, err := r.calc.Balance(ctx, materialID, asOf)
	if err != nil {
		return err
	}

	ctx, cancel := store.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.SaveSnapshot(ctx, models.StockSnapshot{
		MaterialID:    materialID,
		Quantity:      balance.Quantity,
		RawQuantity:   balance.Raw,
		MovementCount: balance.MovementCount,
		ComputedAt:    asOf,
	})
}

// CachedStock returns the last snapshot written for a material.
func (r *Recomputer) CachedStock(ctx context.Context, materialID uint) (*models.StockSnapshot, error) {
	ctx, cancel := store.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.GetSnapshot(ctx, materialID)
}

// StockOf reads the cached quantity, letting snapshots feed the feasibility
// engine. A material never recomputed yields a not found error.
func (r *Recomputer) StockOf(ctx context.Context, materialID uint) (decimal.Decimal, error) {
	snapshot, err := r.CachedStock(ctx, materialID)
	if err != nil {
		return decimal.Zero, err
	}
	return snapshot.Quantity, nil
}
