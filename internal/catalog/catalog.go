// Package catalog manages materials, products and their formulas.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockwright/internal/errs"
	applog "stockwright/internal/log"
	"stockwright/internal/store"
	"stockwright/models"
)

var hundred = decimal.NewFromInt(100)

type MaterialInput struct {
	Code     string           `json:"code"`
	Name     string           `json:"name"`
	Unit     string           `json:"unit"`
	MinStock decimal.Decimal  `json:"min_stock"`
	MaxStock *decimal.Decimal `json:"max_stock"`
}

type FormulaLineInput struct {
	MaterialID       uint             `json:"material_id"`
	RequiredQuantity decimal.Decimal  `json:"required_quantity"`
	Percentage       *decimal.Decimal `json:"percentage"`
}

type ProductInput struct {
	Code         string             `json:"code"`
	Name         string             `json:"name"`
	Unit         string             `json:"unit"`
	BaseQuantity decimal.Decimal    `json:"base_quantity"`
	Formula      []FormulaLineInput `json:"formula"`
}

type Service struct {
	store   store.Store
	timeout time.Duration
}

func NewService(s store.Store, timeout time.Duration) *Service {
	return &Service{store: s, timeout: timeout}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func unitOrDefault(unit, def string) string {
	if unit = strings.TrimSpace(unit); unit == "" {
		return def
	}
	return unit
}

func validateMaterial(in MaterialInput) error {
	if normalizeCode(in.Code) == "" {
		return errs.Invalid("code", "is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errs.Invalid("name", "is required")
	}
	if in.MinStock.IsNegative() {
		return errs.Invalid("min_stock", "must not be negative")
	}
	if in.MaxStock != nil && in.MaxStock.LessThan(in.MinStock) {
		return errs.Invalid("max_stock", "must not be below min_stock")
	}
	return nil
}

// CreateMaterial registers an active material. Its stock starts empty.
func (s *Service) CreateMaterial(ctx context.Context, in MaterialInput) (*models.Material, error) {
	if err := validateMaterial(in); err != nil {
		return nil, err
	}

	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()

	material := &models.Material{
		Code:     normalizeCode(in.Code),
		Name:     strings.TrimSpace(in.Name),
		Unit:     unitOrDefault(in.Unit, "g"),
		MinStock: in.MinStock,
		MaxStock: in.MaxStock,
		IsActive: true,
	}
	if err := s.store.CreateMaterial(ctx, material); err != nil {
		return nil, err
	}
	applog.Info(ctx, "material created", "material", material.ID, "code", material.Code)
	return material, nil
}

func (s *Service) GetMaterial(ctx context.Context, id uint) (*models.Material, error) {
	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.GetMaterial(ctx, id)
}

func (s *Service) ListMaterials(ctx context.Context, activeOnly bool) ([]models.Material, error) {
	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.ListMaterials(ctx, store.MaterialListOptions{ActiveOnly: activeOnly})
}

// DeactivateMaterial hides a material from new stock receipts and from the
// recomputation pass. Its ledger is kept.
func (s *Service) DeactivateMaterial(ctx context.Context, id uint) (*models.Material, error) {
	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.SetMaterialActive(ctx, id, false); err != nil {
		return nil, err
	}
	applog.Info(ctx, "material deactivated", "material", id)
	return s.store.GetMaterial(ctx, id)
}

// DeleteMaterial removes a material nothing refers to. Materials with ledger
// movements, formula lines or consumption records must be deactivated instead.
func (s *Service) DeleteMaterial(ctx context.Context, id uint) error {
	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.DeleteMaterial(ctx, id); err != nil {
		return err
	}
	applog.Info(ctx, "material deleted", "material", id)
	return nil
}

func buildFormula(lines []FormulaLineInput) ([]models.FormulaLine, error) {
	seen := make(map[uint]struct{}, len(lines))
	formula := make([]models.FormulaLine, 0, len(lines))
	for i, line := range lines {
		field := fmt.Sprintf("formula[%d]", i)
		if line.MaterialID == 0 {
			return nil, errs.Invalid(field+".material_id", "is required")
		}
		if _, dup := seen[line.MaterialID]; dup {
			return nil, errs.Invalid(field+".material_id", "material %d appears more than once", line.MaterialID)
		}
		seen[line.MaterialID] = struct{}{}
		if !line.RequiredQuantity.IsPositive() {
			return nil, errs.Invalid(field+".required_quantity", "must be greater than zero")
		}
		if p := line.Percentage; p != nil && (p.IsNegative() || p.GreaterThan(hundred)) {
			return nil, errs.Invalid(field+".percentage", "must be between 0 and 100")
		}
		formula = append(formula, models.FormulaLine{
			MaterialID:       line.MaterialID,
			RequiredQuantity: line.RequiredQuantity,
			Percentage:       line.Percentage,
			Position:         i,
		})
	}
	return formula, nil
}

// CreateProduct registers an active product with its formula. RequiredQuantity
// of each line is expressed per BaseQuantity units of the product.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	if normalizeCode(in.Code) == "" {
		return nil, errs.Invalid("code", "is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, errs.Invalid("name", "is required")
	}
	if !in.BaseQuantity.IsPositive() {
		return nil, errs.Invalid("base_quantity", "must be greater than zero")
	}
	formula, err := buildFormula(in.Formula)
	if err != nil {
		return nil, err
	}

	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()

	product := &models.Product{
		Code:         normalizeCode(in.Code),
		Name:         strings.TrimSpace(in.Name),
		Unit:         unitOrDefault(in.Unit, "pcs"),
		BaseQuantity: in.BaseQuantity,
		IsActive:     true,
		Formula:      formula,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, err
	}
	applog.Info(ctx, "product created", "product", product.ID, "code", product.Code, "lines", len(formula))
	return s.store.GetProduct(ctx, product.ID)
}

func (s *Service) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.GetProduct(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.ListProducts(ctx)
}

// ReplaceFormula swaps the whole formula of a product. Work orders already
// created keep consuming by the formula in force at completion time.
func (s *Service) ReplaceFormula(ctx context.Context, productID uint, lines []FormulaLineInput) (*models.Product, error) {
	formula, err := buildFormula(lines)
	if err != nil {
		return nil, err
	}

	ctx, cancel := store.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.ReplaceFormula(ctx, productID, formula); err != nil {
		return nil, err
	}
	applog.Info(ctx, "formula replaced", "product", productID, "lines", len(formula))
	return s.store.GetProduct(ctx, productID)
}
