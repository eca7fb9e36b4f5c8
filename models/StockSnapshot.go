package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockSnapshot caches the folded ledger of a material. Only the explicit
// recomputation pass writes it.
type StockSnapshot struct {
	MaterialID    uint            `gorm:"primaryKey;autoIncrement:false" json:"material_id"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"quantity"`
	RawQuantity   decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"raw_quantity"`
	MovementCount int             `gorm:"not null;default:0" json:"movement_count"`
	ComputedAt    time.Time       `gorm:"not null" json:"computed_at"`
}
