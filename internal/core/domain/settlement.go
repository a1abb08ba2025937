package domain

import "time"

// SettlementOutcome is the final word from a settlement rail.
type SettlementOutcome string

const (
	OutcomeSettled  SettlementOutcome = "settled"
	OutcomeFailed   SettlementOutcome = "failed"
	OutcomeReturned SettlementOutcome = "returned"
)

// TargetStatus maps a rail outcome onto the transfer lifecycle.
func (o SettlementOutcome) TargetStatus() TransferStatus {
	switch o {
	case OutcomeSettled:
		return StatusCompleted
	case OutcomeReturned:
		return StatusReturned
	default:
		return StatusFailed
	}
}

// SettlementResult is delivered once on a receipt's completion channel.
type SettlementResult struct {
	Outcome SettlementOutcome
	Reason  string
	At      time.Time
}

// SettlementReceipt acknowledges a submission. Completion yields exactly one result and is then closed.
type SettlementReceipt struct {
	ExternalReference string
	Backend           string
	ExpectedArrival   time.Time
	Completion        <-chan SettlementResult
}
