package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatusEvent is published after every accepted transition.
type TransferStatusEvent struct {
	EventID           string          `json:"eventID"`
	TransferID        string          `json:"transferID"`
	UserID            string          `json:"userID"`
	Status            TransferStatus  `json:"status"`
	PreviousStatus    TransferStatus  `json:"previousStatus,omitempty"`
	TransferType      TransferType    `json:"transferType"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	ExternalReference string          `json:"externalReference,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	OccurredAt        time.Time       `json:"occurredAt"`
}

// TrackingInfo is the read model returned when tracking a transfer.
type TrackingInfo struct {
	Transfer            MoneyTransfer        `json:"transfer"`
	Events              []StatusHistoryEntry `json:"events"`
	EstimatedCompletion *time.Time           `json:"estimatedCompletion,omitempty"`
	NextUpdate          *time.Time           `json:"nextUpdate,omitempty"`
}

// TransferPage is one page of a user's transfers.
type TransferPage struct {
	Transfers    []MoneyTransfer `json:"transfers"`
	TotalCount   int             `json:"totalCount"`
	PendingCount int             `json:"pendingCount"`
	Limit        int             `json:"limit"`
	Offset       int             `json:"offset"`
}
