package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyTransfer is a row of money_transfers.
type MoneyTransfer struct {
	TransferID            string           `db:"transfer_id"`
	UserID                string           `db:"user_id"`
	SourceAccountID       string           `db:"source_account_id"`
	BeneficiaryID         string           `db:"beneficiary_id"`
	TransferType          string           `db:"transfer_type"`
	Status                string           `db:"status"`
	Priority              string           `db:"priority"`
	SourceAmount          decimal.Decimal  `db:"source_amount"`
	SourceCurrency        string           `db:"source_currency"`
	BaseAmount            decimal.Decimal  `db:"base_amount"`
	BaseCurrency          string           `db:"base_currency"`
	DestinationAmount     decimal.Decimal  `db:"destination_amount"`
	DestinationCurrency   string           `db:"destination_currency"`
	ExchangeRateUsed      *decimal.Decimal `db:"exchange_rate_used"` // Nullable, same-currency transfers
	TransferFee           decimal.Decimal  `db:"transfer_fee"`
	ExchangeFee           decimal.Decimal  `db:"exchange_fee"`
	TotalFees             decimal.Decimal  `db:"total_fees"`
	TotalCost             decimal.Decimal  `db:"total_cost"`
	Purpose               string           `db:"purpose"`
	Reference             string           `db:"reference"`
	RecipientMessage      string           `db:"recipient_message"`
	QuoteID               string           `db:"quote_id"`
	ExternalReference     string           `db:"external_reference"`
	Backend               string           `db:"backend"`
	FailureReason         string           `db:"failure_reason"`
	CancellationReason    string           `db:"cancellation_reason"`
	FeesRefunded          bool             `db:"fees_refunded"`
	ComplianceCheckPassed bool             `db:"compliance_check_passed"`
	RequiresDocuments     bool             `db:"requires_documents"`
	CreatedAt             time.Time        `db:"created_at"`
	UpdatedAt             time.Time        `db:"updated_at"`
	ProcessedAt           *time.Time       `db:"processed_at"`
	CompletedAt           *time.Time       `db:"completed_at"`
	EstimatedArrival      *time.Time       `db:"estimated_arrival"`
}

// TransferStatusHistory is a row of transfer_status_history. Seq orders a transfer's entries.
type TransferStatusHistory struct {
	TransferID string    `db:"transfer_id"`
	Seq        int       `db:"seq"`
	Status     string    `db:"status"`
	At         time.Time `db:"at"`
	Reason     string    `db:"reason"`
}

// TransferQuote is a row of transfer_quotes. Rate columns are NULL for same-currency quotes.
type TransferQuote struct {
	QuoteID              string           `db:"quote_id"`
	BatchID              string           `db:"batch_id"`
	UserID               string           `db:"user_id"`
	SourceAccountID      string           `db:"source_account_id"`
	BeneficiaryID        string           `db:"beneficiary_id"`
	FromAmount           decimal.Decimal  `db:"from_amount"`
	FromCurrency         string           `db:"from_currency"`
	ToAmount             decimal.Decimal  `db:"to_amount"`
	ToCurrency           string           `db:"to_currency"`
	Rate                 *decimal.Decimal `db:"rate"`
	InverseRate          *decimal.Decimal `db:"inverse_rate"`
	RateMargin           *decimal.Decimal `db:"rate_margin"`
	TransferFee          decimal.Decimal  `db:"transfer_fee"`
	ExchangeFee          decimal.Decimal  `db:"exchange_fee"`
	TotalFees            decimal.Decimal  `db:"total_fees"`
	TotalCost            decimal.Decimal  `db:"total_cost"`
	TransferType         string           `db:"transfer_type"`
	Priority             string           `db:"priority"`
	CreatedAt            time.Time        `db:"created_at"`
	ExpiresAt            time.Time        `db:"expires_at"`
	ConsumedByTransferID string           `db:"consumed_by_transfer_id"`
	ConsumedAt           *time.Time       `db:"consumed_at"`
}
