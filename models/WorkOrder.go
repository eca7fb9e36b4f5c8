package models

import (
	"time"

	"gorm.io/gorm"
)

// Status is shared by work orders and their items.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Priority levels accepted on a work order.
const (
	PriorityNormal   = 0
	PriorityUrgent   = 1
	PriorityCritical = 2
)

// ValidStatus reports whether value names a known status.
func ValidStatus(value string) bool {
	switch Status(value) {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type WorkOrder struct {
	gorm.Model
	OrderNumber  string          `gorm:"uniqueIndex;type:varchar(32);not null" json:"order_number"`
	Status       Status          `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`
	Priority     int             `gorm:"not null;default:0" json:"priority"`
	Description  string          `gorm:"type:text" json:"description"`
	Notes        string          `gorm:"type:text" json:"notes"`
	PlannedStart *time.Time      `json:"planned_start,omitempty"`
	PlannedEnd   *time.Time      `json:"planned_end,omitempty"`
	ActualStart  *time.Time      `json:"actual_start,omitempty"`
	ActualEnd    *time.Time      `json:"actual_end,omitempty"`
	Items        []WorkOrderItem `gorm:"foreignKey:WorkOrderID" json:"items"`
}
