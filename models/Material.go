package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Material is a raw material tracked by the ledger. Its quantity on hand is
// always derived from Movements and never stored here.
type Material struct {
	gorm.Model
	Code     string           `gorm:"uniqueIndex;not null" json:"code"`
	Name     string           `gorm:"not null" json:"name"`
	Unit     string           `gorm:"type:varchar(16);not null;default:g" json:"unit"`
	MinStock decimal.Decimal  `gorm:"type:decimal(20,6);not null;default:0" json:"min_stock"`
	MaxStock *decimal.Decimal `gorm:"type:decimal(20,6)" json:"max_stock,omitempty"`
	IsActive bool             `gorm:"not null;default:true" json:"is_active"`
}

// StockLevel classifies a quantity against the material's thresholds.
func (m Material) StockLevel(quantity decimal.Decimal) string {
	switch {
	case quantity.LessThan(m.MinStock):
		return StockLevelLow
	case m.MaxStock != nil && quantity.GreaterThan(*m.MaxStock):
		return StockLevelOver
	default:
		return StockLevelOK
	}
}

const (
	StockLevelLow  = "low"
	StockLevelOK   = "ok"
	StockLevelOver = "over"
)
