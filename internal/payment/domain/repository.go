package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent appends a ledger row, reporting false when the
	// (provider, provider_event_id) pair already exists.
	InsertEvent(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, success bool, errMessage string) error
}
