package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FormulaLine is one bill-of-materials entry. RequiredQuantity is the amount
// needed to produce the owning product's BaseQuantity.
type FormulaLine struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	ProductID        uint             `gorm:"not null;uniqueIndex:idx_formula_product_material" json:"product_id"`
	MaterialID       uint             `gorm:"not null;uniqueIndex:idx_formula_product_material" json:"material_id"`
	RequiredQuantity decimal.Decimal  `gorm:"type:decimal(20,6);not null" json:"required_quantity"`
	Percentage       *decimal.Decimal `gorm:"type:decimal(9,4)" json:"percentage,omitempty"` // informational only
	Position         int              `gorm:"not null;default:0" json:"position"`
	CreatedAt        time.Time        `json:"created_at"`

	Material *Material `gorm:"foreignKey:MaterialID" json:"material,omitempty"`
}
