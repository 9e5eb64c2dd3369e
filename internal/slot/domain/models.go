// Package domain contains persistence models for the time-slot ledger.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// AvailabilityWindow bounds where an expert's slots may exist. A booking's
// time range must lie fully inside a non-closed window.
type AvailabilityWindow struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	ExpertID  snowflake.ID `json:"expert_id" gorm:"not null;index"`
	StartAt   time.Time    `json:"start_at" gorm:"not null"`
	EndAt     time.Time    `json:"end_at" gorm:"not null"`
	Closed    bool         `json:"closed" gorm:"not null;default:false"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (AvailabilityWindow) TableName() string { return "availability_windows" }

// TimeSlot is a concrete bookable window with finite capacity. The counter
// against max_bookings is the authoritative gate; IsAvailable only shapes
// what consumers see.
type TimeSlot struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	OfferingID      snowflake.ID `json:"offering_id" gorm:"not null;index"`
	ExpertID        snowflake.ID `json:"expert_id" gorm:"not null;index"`
	StartAt         time.Time    `json:"start_at" gorm:"not null"`
	EndAt           time.Time    `json:"end_at" gorm:"not null"`
	MaxBookings     int          `json:"max_bookings" gorm:"not null"`
	CurrentBookings int          `json:"current_bookings" gorm:"not null;default:0"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

func (TimeSlot) TableName() string { return "time_slots" }

// IsAvailable reports whether the slot can accept another booking.
func (s TimeSlot) IsAvailable() bool {
	return s.CurrentBookings < s.MaxBookings
}

var (
	ErrSlotNotFound    = errors.New("slot_not_found")
	ErrSlotUnavailable = errors.New("slot_unavailable")
)
