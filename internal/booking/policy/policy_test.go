package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRefund(t *testing.T) {
	start := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		now         time.Time
		cancelledBy Party
		amount      int64
		wantRefund  int64
		wantFee     int64
		wantRate    string
	}{
		{
			name:        "learner cancels 30h before",
			now:         start.Add(-30 * time.Hour),
			cancelledBy: PartyLearner,
			amount:      10000,
			wantRefund:  10000,
			wantFee:     0,
			wantRate:    "full",
		},
		{
			name:        "learner cancels exactly 24h before",
			now:         start.Add(-24 * time.Hour),
			cancelledBy: PartyLearner,
			amount:      10000,
			wantRefund:  10000,
			wantFee:     0,
			wantRate:    "full",
		},
		{
			name:        "learner cancels 5h before",
			now:         start.Add(-5 * time.Hour),
			cancelledBy: PartyLearner,
			amount:      10000,
			wantRefund:  5000,
			wantFee:     5000,
			wantRate:    "half",
		},
		{
			name:        "learner cancels exactly 2h before",
			now:         start.Add(-2 * time.Hour),
			cancelledBy: PartyLearner,
			amount:      10000,
			wantRefund:  5000,
			wantFee:     5000,
			wantRate:    "half",
		},
		{
			name:        "learner cancels 30m before",
			now:         start.Add(-30 * time.Minute),
			cancelledBy: PartyLearner,
			amount:      10000,
			wantRefund:  0,
			wantFee:     10000,
			wantRate:    "none",
		},
		{
			name:        "learner cancels after start",
			now:         start.Add(10 * time.Minute),
			cancelledBy: PartyLearner,
			amount:      10000,
			wantRefund:  0,
			wantFee:     10000,
			wantRate:    "none",
		},
		{
			name:        "expert cancels 1h before",
			now:         start.Add(-1 * time.Hour),
			cancelledBy: PartyExpert,
			amount:      10000,
			wantRefund:  10000,
			wantFee:     0,
			wantRate:    "full",
		},
		{
			name:        "system expires the hold",
			now:         start.Add(-10 * time.Minute),
			cancelledBy: PartySystem,
			amount:      10000,
			wantRefund:  10000,
			wantFee:     0,
			wantRate:    "full",
		},
		{
			name:        "odd amount rounds fee down",
			now:         start.Add(-5 * time.Hour),
			cancelledBy: PartyLearner,
			amount:      10001,
			wantRefund:  5001,
			wantFee:     5000,
			wantRate:    "half",
		},
		{
			name:        "zero amount",
			now:         start.Add(-5 * time.Hour),
			cancelledBy: PartyLearner,
			amount:      0,
			wantRefund:  0,
			wantFee:     0,
			wantRate:    "half",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeRefund(start, tt.now, tt.cancelledBy, tt.amount)
			assert.Equal(t, tt.wantRefund, got.RefundAmount)
			assert.Equal(t, tt.wantFee, got.FeeAmount)
			assert.Equal(t, tt.wantRate, got.RefundRate)
			require.Equal(t, tt.amount, got.RefundAmount+got.FeeAmount, "split must conserve the amount")
		})
	}
}

func TestComputeRefundMonotonic(t *testing.T) {
	start := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	amount := int64(7345)

	prev := int64(-1)
	// Walking backwards from plenty of notice to none, the refund must never
	// increase.
	for notice := 48 * time.Hour; notice >= 0; notice -= 15 * time.Minute {
		got := ComputeRefund(start, start.Add(-notice), PartyLearner, amount)
		if prev >= 0 {
			require.LessOrEqual(t, got.RefundAmount, prev, "refund increased as notice shrank to %s", notice)
		}
		prev = got.RefundAmount
	}
}
