package dto

import (
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CreateQuoteRequest defines the structure for pricing a transfer.
type CreateQuoteRequest struct {
	SourceAccountID string          `json:"sourceAccountID" binding:"required"`
	BeneficiaryID   string          `json:"beneficiaryID" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required,positive_amount"`
	FromCurrency    string          `json:"fromCurrency" binding:"required,iso4217"`
	ToCurrency      string          `json:"toCurrency" binding:"required,iso4217"`
	TransferType    string          `json:"transferType" binding:"required,transfer_type"`
	Priority        string          `json:"priority" binding:"omitempty,transfer_priority"`
}

// ExchangeRateResponse is the locked rate attached to a quote.
type ExchangeRateResponse struct {
	FromCurrency string          `json:"fromCurrency"`
	ToCurrency   string          `json:"toCurrency"`
	Rate         decimal.Decimal `json:"rate"`
	InverseRate  decimal.Decimal `json:"inverseRate"`
	Margin       decimal.Decimal `json:"margin"`
	ValidUntil   time.Time       `json:"validUntil"`
}

// QuoteResponse defines the data returned for a single quote.
type QuoteResponse struct {
	QuoteID      string                `json:"quoteID"`
	FromAmount   decimal.Decimal       `json:"fromAmount"`
	FromCurrency string                `json:"fromCurrency"`
	ToAmount     decimal.Decimal       `json:"toAmount"`
	ToCurrency   string                `json:"toCurrency"`
	ExchangeRate *ExchangeRateResponse `json:"exchangeRate,omitempty"`
	TransferFee  decimal.Decimal       `json:"transferFee"`
	ExchangeFee  decimal.Decimal       `json:"exchangeFee"`
	TotalFees    decimal.Decimal       `json:"totalFees"`
	TotalCost    decimal.Decimal       `json:"totalCost"`
	TransferType string                `json:"transferType"`
	Priority     string                `json:"priority"`
	CreatedAt    time.Time             `json:"createdAt"`
	ExpiresAt    time.Time             `json:"expiresAt"`
}

// QuoteBatchResponse wraps the primary quote and its alternatives.
type QuoteBatchResponse struct {
	Quote        QuoteResponse   `json:"quote"`
	Alternatives []QuoteResponse `json:"alternatives"`
}

// ToExchangeRateResponse converts a domain.ExchangeRate to its DTO.
func ToExchangeRateResponse(r domain.ExchangeRate) ExchangeRateResponse {
	return ExchangeRateResponse{
		FromCurrency: r.FromCurrency,
		ToCurrency:   r.ToCurrency,
		Rate:         r.Rate,
		InverseRate:  r.InverseRate,
		Margin:       r.Margin,
		ValidUntil:   r.ValidUntil,
	}
}

// ToExchangeRateResponses converts a slice of rates.
func ToExchangeRateResponses(rates []domain.ExchangeRate) []ExchangeRateResponse {
	responses := make([]ExchangeRateResponse, len(rates))
	for i, r := range rates {
		responses[i] = ToExchangeRateResponse(r)
	}
	return responses
}

// ToQuoteResponse converts a domain.TransferQuote to QuoteResponse DTO.
func ToQuoteResponse(q domain.TransferQuote) QuoteResponse {
	resp := QuoteResponse{
		QuoteID:      q.QuoteID,
		FromAmount:   q.FromAmount,
		FromCurrency: q.FromCurrency,
		ToAmount:     q.ToAmount,
		ToCurrency:   q.ToCurrency,
		TransferFee:  q.TransferFee,
		ExchangeFee:  q.ExchangeFee,
		TotalFees:    q.TotalFees,
		TotalCost:    q.TotalCost,
		TransferType: string(q.TransferType),
		Priority:     string(q.Priority),
		CreatedAt:    q.CreatedAt,
		ExpiresAt:    q.ExpiresAt,
	}
	if q.ExchangeRate != nil {
		rate := ToExchangeRateResponse(*q.ExchangeRate)
		resp.ExchangeRate = &rate
	}
	return resp
}

// ToQuoteBatchResponse converts a domain.QuoteBatch.
func ToQuoteBatchResponse(b *domain.QuoteBatch) QuoteBatchResponse {
	alts := make([]QuoteResponse, len(b.Alternatives))
	for i, q := range b.Alternatives {
		alts[i] = ToQuoteResponse(q)
	}
	return QuoteBatchResponse{Quote: ToQuoteResponse(b.Primary), Alternatives: alts}
}
