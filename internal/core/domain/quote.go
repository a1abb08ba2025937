package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteTTL is how long a quote batch stays executable after creation.
const QuoteTTL = 10 * time.Minute

// TransferQuote is a priced, time-boxed offer. Pricing fields never change after creation;
// only the consumption marker is written, once.
type TransferQuote struct {
	QuoteID         string           `json:"quoteID"`
	BatchID         string           `json:"batchID"`
	UserID          string           `json:"userID"`
	SourceAccountID string           `json:"sourceAccountID"`
	BeneficiaryID   string           `json:"beneficiaryID"`
	FromAmount      decimal.Decimal  `json:"fromAmount"`
	FromCurrency    string           `json:"fromCurrency"`
	ToAmount        decimal.Decimal  `json:"toAmount"`
	ToCurrency      string           `json:"toCurrency"`
	ExchangeRate    *ExchangeRate    `json:"exchangeRate,omitempty"`
	TransferFee     decimal.Decimal  `json:"transferFee"`
	ExchangeFee     decimal.Decimal  `json:"exchangeFee"`
	TotalFees       decimal.Decimal  `json:"totalFees"`
	TotalCost       decimal.Decimal  `json:"totalCost"`
	TransferType    TransferType     `json:"transferType"`
	Priority        TransferPriority `json:"priority"`
	CreatedAt       time.Time        `json:"createdAt"`
	ExpiresAt       time.Time        `json:"expiresAt"`

	ConsumedByTransferID string     `json:"consumedByTransferID,omitempty"`
	ConsumedAt           *time.Time `json:"consumedAt,omitempty"`
}

// IsExpired is a pure time comparison; nothing sweeps expired quotes.
func (q TransferQuote) IsExpired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}

func (q TransferQuote) IsConsumed() bool {
	return q.ConsumedByTransferID != ""
}

// RateValue returns the locked rate, or nil when no conversion happens.
func (q TransferQuote) RateValue() *decimal.Decimal {
	if q.ExchangeRate == nil {
		return nil
	}
	r := q.ExchangeRate.Rate
	return &r
}

// QuoteRequest carries everything needed to price a transfer.
type QuoteRequest struct {
	UserID          string
	SourceAccountID string
	BeneficiaryID   string
	Amount          decimal.Decimal
	FromCurrency    string
	ToCurrency      string
	TransferType    TransferType
	Priority        TransferPriority
}

// QuoteBatch is the primary quote plus its faster alternatives. All share ExpiresAt and BatchID.
type QuoteBatch struct {
	Primary      TransferQuote   `json:"primary"`
	Alternatives []TransferQuote `json:"alternatives"`
}

// All returns the primary followed by the alternatives.
func (b QuoteBatch) All() []TransferQuote {
	out := make([]TransferQuote, 0, len(b.Alternatives)+1)
	out = append(out, b.Primary)
	return append(out, b.Alternatives...)
}
