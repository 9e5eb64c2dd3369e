package domain

import (
	"context"
	"net/http"
)

// Service is the webhook reconciler. IngestWebhook returns
// ErrInvalidSignature before any state change, ErrEventAlreadyProcessed for
// replays of successfully handled events, and ErrEventIgnored for types the
// system does not act on. All three are acknowledged outcomes, not incidents.
type Service interface {
	IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error
}
