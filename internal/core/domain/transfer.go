package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransferType identifies the rail family a transfer settles over.
type TransferType string

const (
	TransferTypeDomesticBank      TransferType = "domestic_bank"
	TransferTypeInternationalWire TransferType = "international_wire"
	TransferTypeMobileMoney       TransferType = "mobile_money"
	TransferTypeInstant           TransferType = "instant_transfer"
	TransferTypeRemittance        TransferType = "remittance"
	TransferTypeCrypto            TransferType = "crypto"
	TransferTypeLinkedAccount     TransferType = "linked_account_transfer"
)

// AllTransferTypes lists every supported transfer type in display order.
var AllTransferTypes = []TransferType{
	TransferTypeDomesticBank,
	TransferTypeInternationalWire,
	TransferTypeMobileMoney,
	TransferTypeInstant,
	TransferTypeRemittance,
	TransferTypeCrypto,
	TransferTypeLinkedAccount,
}

func (t TransferType) IsValid() bool {
	for _, known := range AllTransferTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TransferPriority is the speed tier chosen by the sender.
type TransferPriority string

const (
	PriorityStandard TransferPriority = "standard"
	PriorityExpress  TransferPriority = "express"
	PriorityUrgent   TransferPriority = "urgent"
)

func (p TransferPriority) IsValid() bool {
	switch p {
	case PriorityStandard, PriorityExpress, PriorityUrgent:
		return true
	}
	return false
}

// TransferStatus is a lifecycle state of a MoneyTransfer.
type TransferStatus string

const (
	StatusPending    TransferStatus = "PENDING"
	StatusProcessing TransferStatus = "PROCESSING"
	StatusInTransit  TransferStatus = "IN_TRANSIT"
	StatusCompleted  TransferStatus = "COMPLETED"
	StatusFailed     TransferStatus = "FAILED"
	StatusCancelled  TransferStatus = "CANCELLED"
	StatusReturned   TransferStatus = "RETURNED"
	StatusOnHold     TransferStatus = "ON_HOLD"
)

// ParseTransferStatus accepts any casing ("pending", "In_Transit").
func ParseTransferStatus(s string) (TransferStatus, error) {
	status := TransferStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := allowedTransitions[status]; !ok {
		return "", fmt.Errorf("unknown transfer status %q", s)
	}
	return status, nil
}

// IsTerminal reports whether no further transition is permitted.
func (s TransferStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// IsPending reports whether the transfer still counts as outstanding for the user.
func (s TransferStatus) IsPending() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusInTransit, StatusOnHold:
		return true
	}
	return false
}

// CountsTowardLimits reports whether the transfer's amount consumes spend limits.
func (s TransferStatus) CountsTowardLimits() bool {
	switch s {
	case StatusCancelled, StatusFailed, StatusReturned:
		return false
	}
	return true
}

var allowedTransitions = map[TransferStatus][]TransferStatus{
	StatusPending:    {StatusProcessing, StatusCancelled, StatusOnHold},
	StatusProcessing: {StatusInTransit, StatusFailed, StatusCancelled, StatusOnHold},
	StatusInTransit:  {StatusCompleted, StatusFailed, StatusReturned, StatusCancelled, StatusOnHold},
	StatusOnHold:     {StatusProcessing, StatusCancelled},
	StatusCompleted:  nil,
	StatusFailed:     nil,
	StatusCancelled:  nil,
	StatusReturned:   nil,
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s TransferStatus) CanTransitionTo(next TransferStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

var (
	ErrTransferAlreadyFinalized = errors.New("transfer: already in a terminal state")
	ErrInvalidStateTransition   = errors.New("transfer: invalid state transition")
)

// StatusHistoryEntry is one accepted transition. Entries are append-only.
type StatusHistoryEntry struct {
	Status TransferStatus `json:"status"`
	At     time.Time      `json:"at"`
	Reason string         `json:"reason,omitempty"`
}

// MoneyTransfer is the single canonical transfer record.
type MoneyTransfer struct {
	TransferID          string           `json:"transferID"`
	UserID              string           `json:"userID"`
	SourceAccountID     string           `json:"sourceAccountID"`
	BeneficiaryID       string           `json:"beneficiaryID"`
	TransferType        TransferType     `json:"transferType"`
	Status              TransferStatus   `json:"status"`
	Priority            TransferPriority `json:"priority"`
	SourceAmount        decimal.Decimal  `json:"sourceAmount"`
	SourceCurrency      string           `json:"sourceCurrency"`
	BaseAmount          decimal.Decimal  `json:"baseAmount"` // SourceAmount in the limits currency
	BaseCurrency        string           `json:"baseCurrency"`
	DestinationAmount   decimal.Decimal  `json:"destinationAmount"`
	DestinationCurrency string           `json:"destinationCurrency"`
	ExchangeRateUsed    *decimal.Decimal `json:"exchangeRateUsed,omitempty"`
	TransferFee         decimal.Decimal  `json:"transferFee"`
	ExchangeFee         decimal.Decimal  `json:"exchangeFee"`
	TotalFees           decimal.Decimal  `json:"totalFees"`
	TotalCost           decimal.Decimal  `json:"totalCost"`
	Purpose             string           `json:"purpose"`
	Reference           string           `json:"reference,omitempty"`
	RecipientMessage    string           `json:"recipientMessage,omitempty"`
	QuoteID             string           `json:"quoteID"`
	ExternalReference   string           `json:"externalReference,omitempty"`
	Backend             string           `json:"backend,omitempty"`
	FailureReason       string           `json:"failureReason,omitempty"`
	CancellationReason  string           `json:"cancellationReason,omitempty"`
	FeesRefunded        bool             `json:"feesRefunded"`

	ComplianceCheckPassed bool `json:"complianceCheckPassed"`
	RequiresDocuments     bool `json:"requiresDocuments"`

	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	ProcessedAt      *time.Time `json:"processedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	EstimatedArrival *time.Time `json:"estimatedArrival,omitempty"`

	StatusHistory []StatusHistoryEntry `json:"statusHistory"`
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (t MoneyTransfer) Clone() MoneyTransfer {
	c := t
	c.StatusHistory = append([]StatusHistoryEntry(nil), t.StatusHistory...)
	if t.ExchangeRateUsed != nil {
		r := *t.ExchangeRateUsed
		c.ExchangeRateUsed = &r
	}
	c.ProcessedAt = copyTime(t.ProcessedAt)
	c.CompletedAt = copyTime(t.CompletedAt)
	c.EstimatedArrival = copyTime(t.EstimatedArrival)
	return c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TransitionTo moves the transfer to next and appends exactly one history entry.
// History timestamps are kept strictly increasing even if the clock stalls.
func (t *MoneyTransfer) TransitionTo(next TransferStatus, at time.Time, reason string) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrTransferAlreadyFinalized, t.Status)
	}
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, t.Status, next)
	}
	t.Status = next
	t.appendHistory(next, at, reason)
	return nil
}

// Start records the initial PENDING entry on a freshly built transfer.
func (t *MoneyTransfer) Start(at time.Time) {
	t.Status = StatusPending
	t.StatusHistory = nil
	t.appendHistory(StatusPending, at, "transfer initiated")
}

func (t *MoneyTransfer) appendHistory(status TransferStatus, at time.Time, reason string) {
	if n := len(t.StatusHistory); n > 0 {
		last := t.StatusHistory[n-1].At
		if !at.After(last) {
			at = last.Add(time.Nanosecond)
		}
	}
	t.StatusHistory = append(t.StatusHistory, StatusHistoryEntry{Status: status, At: at, Reason: reason})
	t.UpdatedAt = at
}

// LastTransitionAt returns the timestamp of the newest history entry.
func (t MoneyTransfer) LastTransitionAt() time.Time {
	if n := len(t.StatusHistory); n > 0 {
		return t.StatusHistory[n-1].At
	}
	return t.CreatedAt
}
