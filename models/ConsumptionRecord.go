package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsumptionRecord is written at work-order completion, always together with
// the out Movement it references.
type ConsumptionRecord struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	WorkOrderItemID   uint            `gorm:"not null;index" json:"work_order_item_id"`
	MaterialID        uint            `gorm:"not null;index" json:"material_id"`
	ActualConsumption decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"actual_consumption"`
	MovementID        uint            `gorm:"not null" json:"movement_id"`
	CreatedAt         time.Time       `json:"created_at"`
}
