package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WorkOrderItem struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	WorkOrderID      uint            `gorm:"not null;index" json:"work_order_id"`
	ProductID        uint            `gorm:"not null;index" json:"product_id"`
	PlannedQuantity  decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"planned_quantity"`
	ProducedQuantity decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"produced_quantity"`
	Status           Status          `gorm:"type:varchar(16);not null;default:pending" json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
