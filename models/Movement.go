package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuantityPlaces is the fractional scale of the decimal(20,6) quantity
// columns. Quantities are rounded to it before they are written or returned.
const QuantityPlaces int32 = 6

// Direction tells whether a movement adds to or removes from stock.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Movement is a single immutable ledger entry. Corrections are recorded as a
// new offsetting movement; rows are never updated or deleted.
type Movement struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	MaterialID uint            `gorm:"not null;index:idx_movements_material_occurred" json:"material_id"`
	Quantity   decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"quantity"`
	Direction  Direction       `gorm:"type:varchar(8);not null" json:"direction"`
	OccurredAt time.Time       `gorm:"not null;index:idx_movements_material_occurred" json:"occurred_at"`
	Notes      string          `gorm:"type:text" json:"notes,omitempty"`
	Reference  string          `gorm:"type:varchar(64);index" json:"reference,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Signed returns the quantity with the sign implied by the direction.
func (m Movement) Signed() decimal.Decimal {
	if m.Direction == DirectionOut {
		return m.Quantity.Neg()
	}
	return m.Quantity
}
