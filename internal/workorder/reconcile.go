package workorder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stockwright/internal/errs"
	"stockwright/internal/feasibility"
	applog "stockwright/internal/log"
	"stockwright/internal/metrics"
	"stockwright/internal/stock"
	"stockwright/internal/store"
	"stockwright/models"
)

// Consumption is an actual quantity of one material used by an item.
type Consumption struct {
	MaterialID     uint            `json:"material_id"`
	ActualQuantity decimal.Decimal `json:"actual_quantity"`
}

// ItemCompletion reports what one item really produced and consumed. A nil
// ProducedQuantity means the planned quantity was produced. Formula materials
// absent from Consumption fall back to their scaled planned requirement;
// materials outside the formula (substitutes) are accepted as given.
type ItemCompletion struct {
	ItemID           uint             `json:"item_id"`
	ProducedQuantity *decimal.Decimal `json:"produced_quantity"`
	Consumption      []Consumption    `json:"consumption"`
}

// CompletionPayload is optional; items it does not mention are completed
// entirely from their formula.
type CompletionPayload struct {
	Items []ItemCompletion `json:"items"`
}

type plannedConsumption struct {
	materialID uint
	quantity   decimal.Decimal
}

type itemPlan struct {
	item        models.WorkOrderItem
	produced    decimal.Decimal
	consumption []plannedConsumption
}

// plan resolves the consumption of every item before anything is written.
func (s *Service) plan(ctx context.Context, order *models.WorkOrder, payload *CompletionPayload) ([]itemPlan, map[uint]string, error) {
	items, err := s.store.GetWorkOrderItems(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}

	byItem, err := indexPayload(items, payload)
	if err != nil {
		return nil, nil, err
	}

	codes := make(map[uint]string)
	plans := make([]itemPlan, 0, len(items))
	for _, item := range items {
		completion := byItem[item.ID]

		product, err := s.store.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, nil, err
		}

		p := itemPlan{item: item, produced: item.PlannedQuantity}
		if completion.ProducedQuantity != nil {
			p.produced = *completion.ProducedQuantity
		}

		explicit := make(map[uint]struct{}, len(completion.Consumption))
		for _, c := range completion.Consumption {
			explicit[c.MaterialID] = struct{}{}
			if _, known := codes[c.MaterialID]; !known {
				material, err := s.store.GetMaterial(ctx, c.MaterialID)
				if err != nil {
					return nil, nil, err
				}
				codes[material.ID] = material.Code
			}
			p.consumption = append(p.consumption, plannedConsumption{materialID: c.MaterialID, quantity: c.ActualQuantity.Round(models.QuantityPlaces)})
		}

		for _, line := range product.Formula {
			if line.Material != nil {
				codes[line.MaterialID] = line.Material.Code
			}
			if _, ok := explicit[line.MaterialID]; ok {
				continue
			}
			required, err := feasibility.Scale(line.RequiredQuantity, item.PlannedQuantity, product.BaseQuantity)
			if err != nil {
				return nil, nil, err
			}
			p.consumption = append(p.consumption, plannedConsumption{materialID: line.MaterialID, quantity: required})
		}

		plans = append(plans, p)
	}
	return plans, codes, nil
}

func indexPayload(items []models.WorkOrderItem, payload *CompletionPayload) (map[uint]ItemCompletion, error) {
	byItem := make(map[uint]ItemCompletion)
	if payload == nil {
		return byItem, nil
	}

	known := make(map[uint]struct{}, len(items))
	for _, item := range items {
		known[item.ID] = struct{}{}
	}

	for i, completion := range payload.Items {
		field := fmt.Sprintf("items[%d]", i)
		if _, ok := known[completion.ItemID]; !ok {
			return nil, errs.Invalid(field+".item_id", "item %d does not belong to this work order", completion.ItemID)
		}
		if _, dup := byItem[completion.ItemID]; dup {
			return nil, errs.Invalid(field+".item_id", "item %d listed more than once", completion.ItemID)
		}
		if completion.ProducedQuantity != nil && completion.ProducedQuantity.IsNegative() {
			return nil, errs.Invalid(field+".produced_quantity", "must not be negative")
		}
		seen := make(map[uint]struct{}, len(completion.Consumption))
		for j, c := range completion.Consumption {
			cfield := fmt.Sprintf("%s.consumption[%d]", field, j)
			if c.MaterialID == 0 {
				return nil, errs.Invalid(cfield+".material_id", "is required")
			}
			if _, dup := seen[c.MaterialID]; dup {
				return nil, errs.Invalid(cfield+".material_id", "material %d listed more than once", c.MaterialID)
			}
			seen[c.MaterialID] = struct{}{}
			if c.ActualQuantity.IsNegative() {
				return nil, errs.Invalid(cfield+".actual_quantity", "must not be negative")
			}
		}
		byItem[completion.ItemID] = completion
	}
	return byItem, nil
}

// complete reconciles every item and closes the order. The status change,
// every consumption record with its movement and every item update commit
// together or not at all. Stock is not re-checked: consumption already
// happened, so a negative balance only produces a warning.
func (s *Service) complete(ctx context.Context, order *models.WorkOrder, payload *CompletionPayload) (TransitionResult, error) {
	readCtx, cancel := store.WithTimeout(ctx, s.timeout)
	plans, codes, err := s.plan(readCtx, order, payload)
	cancel()
	if err != nil {
		return TransitionResult{}, err
	}

	now := s.now()
	var records []models.ConsumptionRecord
	affected := make(map[uint]struct{})

	txCtx, cancelTx := detached(ctx, s.timeout)
	defer cancelTx()
	err = s.store.RunInTx(txCtx, func(ctx context.Context, w store.Writer) error {
		records = records[:0]
		clear(affected)

		if err := w.UpdateWorkOrderStatus(ctx, order.ID, models.StatusInProgress, models.StatusCompleted, store.StatusTimestamps{ActualEnd: &now}); err != nil {
			return err
		}
		for _, p := range plans {
			for _, c := range p.consumption {
				if c.quantity.IsZero() {
					continue
				}
				record, _, err := w.PersistConsumption(ctx, store.ConsumptionInput{
					WorkOrderItemID: p.item.ID,
					MaterialID:      c.materialID,
					Quantity:        c.quantity,
					OccurredAt:      now,
					Reference:       order.OrderNumber,
				})
				if err != nil {
					return fmt.Errorf("item %d material %d: %w", p.item.ID, c.materialID, err)
				}
				records = append(records, *record)
				affected[c.materialID] = struct{}{}
			}
			if err := w.UpdateWorkOrderItem(ctx, p.item.ID, p.produced, models.StatusCompleted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}

	metrics.MovementsRecorded.WithLabelValues(string(models.DirectionOut), "consumption").Add(float64(len(records)))

	result := TransitionResult{
		ConsumptionRecords: records,
		AffectedMaterials:  sortedIDs(affected),
	}
	result.Warnings = s.negativeBalanceWarnings(ctx, result.AffectedMaterials, codes)
	if n := len(result.Warnings); n > 0 {
		metrics.StockWarnings.WithLabelValues("complete").Add(float64(n))
	}
	applog.Debug(ctx, "work order reconciled",
		"records", len(records),
		"materials", len(result.AffectedMaterials),
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// negativeBalanceWarnings runs after commit. A failed read drops the warning
// for that material; the completion itself stands.
func (s *Service) negativeBalanceWarnings(ctx context.Context, materials []uint, codes map[uint]string) []string {
	var warnings []string
	for _, id := range materials {
		balance, err := s.calc.Balance(ctx, id, time.Time{})
		if err != nil {
			applog.Error(ctx, "balance after completion failed", "material", id, "error", err)
			continue
		}
		if !balance.Negative() {
			continue
		}
		code, ok := codes[id]
		if !ok {
			code = fmt.Sprintf("#%d", id)
		}
		warnings = append(warnings, stock.NegativeBalanceWarning(code, balance.Raw))
	}
	return warnings
}

func sortedIDs(set map[uint]struct{}) []uint {
	ids := make([]uint, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
