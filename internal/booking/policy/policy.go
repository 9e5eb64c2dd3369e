// Package policy computes cancellation refunds. All arithmetic is on integer
// minor units; the fee is rounded down so rounding always favors the learner.
package policy

import "time"

// Party identifies who initiated a cancellation.
type Party string

const (
	PartyLearner Party = "learner"
	PartyExpert  Party = "expert"
	PartySystem  Party = "system"
)

// Thresholds for learner-initiated cancellations, measured from the moment of
// cancellation to the session start.
const (
	FullRefundWindow = 24 * time.Hour
	HalfRefundWindow = 2 * time.Hour
)

// Breakdown is the money split for a cancellation. RefundAmount + FeeAmount
// always equals the captured/authorized amount passed in.
type Breakdown struct {
	RefundAmount int64  `json:"refund_amount"`
	FeeAmount    int64  `json:"fee_amount"`
	RefundRate   string `json:"refund_rate"`
}

// ComputeRefund applies the cancellation schedule. Expert and system
// cancellations always refund in full regardless of timing; learners get a
// sliding scale based on notice given.
func ComputeRefund(sessionStart, now time.Time, cancelledBy Party, amount int64) Breakdown {
	if cancelledBy != PartyLearner {
		return Breakdown{RefundAmount: amount, FeeAmount: 0, RefundRate: "full"}
	}

	notice := sessionStart.Sub(now)
	switch {
	case notice >= FullRefundWindow:
		return Breakdown{RefundAmount: amount, FeeAmount: 0, RefundRate: "full"}
	case notice >= HalfRefundWindow:
		fee := amount / 2
		return Breakdown{RefundAmount: amount - fee, FeeAmount: fee, RefundRate: "half"}
	default:
		return Breakdown{RefundAmount: 0, FeeAmount: amount, RefundRate: "none"}
	}
}
