package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	gorm.Model
	Code         string          `gorm:"uniqueIndex;not null" json:"code"`
	Name         string          `gorm:"not null" json:"name"`
	Unit         string          `gorm:"type:varchar(16);not null;default:pcs" json:"unit"`
	BaseQuantity decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"base_quantity"`
	IsActive     bool            `gorm:"not null;default:true" json:"is_active"`
	Formula      []FormulaLine   `gorm:"foreignKey:ProductID" json:"formula,omitempty"`
}
