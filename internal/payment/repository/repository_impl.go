package repository

import (
	"context"

	paymentdomain "github.com/mentorlane/mentorlane/internal/payment/domain"
	"github.com/mentorlane/mentorlane/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

// InsertEvent relies on the unique (provider, provider_event_id) index; the
// conflict path is how concurrent duplicate deliveries lose.
func (r *repo) InsertEvent(ctx context.Context, conn *gorm.DB, record *paymentdomain.EventRecord) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`INSERT INTO webhook_events
		   (id, provider, provider_event_id, event_type, booking_id, payment_intent_id,
		    payload, received_at, success, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		record.ID, record.Provider, record.ProviderEventID, record.EventType,
		record.BookingID, record.PaymentIntentID, record.Payload, record.ReceivedAt,
		false, "",
	)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, conn *gorm.DB, provider, providerEventID string) (*paymentdomain.EventRecord, error) {
	var item paymentdomain.EventRecord
	err := conn.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, booking_id, payment_intent_id,
		        payload, received_at, processed_at, success, error_message
		 FROM webhook_events
		 WHERE provider = ? AND provider_event_id = ?`,
		provider, providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkProcessed(ctx context.Context, conn *gorm.DB, provider, providerEventID string, success bool, errMessage string) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed_at = CURRENT_TIMESTAMP, success = ?, error_message = ?
		 WHERE provider = ? AND provider_event_id = ?`,
		success, errMessage, provider, providerEventID,
	).Error
}
