// Package domain contains persistence models for expert offerings.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Offering is a bookable session template an expert publishes. Price and
// duration edits never rewrite existing bookings; bookings copy the amount at
// creation time.
type Offering struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	ExpertID        snowflake.ID `json:"expert_id" gorm:"not null;index"`
	Title           string       `json:"title" gorm:"type:text;not null"`
	DurationMinutes int          `json:"duration_minutes" gorm:"not null"`
	PriceAmount     int64        `json:"price_amount" gorm:"not null"`
	Currency        string       `json:"currency" gorm:"type:text;not null"`
	Active          bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

func (Offering) TableName() string { return "offerings" }

var (
	ErrNotFound         = errors.New("offering_not_found")
	ErrOfferingInactive = errors.New("offering_inactive")
)
