package dto

import (
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	"github.com/SscSPs/money_transfer_engine/internal/utils/pagination"
	"github.com/shopspring/decimal"
)

// InitiateTransferRequest executes a previously issued quote.
type InitiateTransferRequest struct {
	Purpose          string `json:"purpose" binding:"required,max=140"`
	Reference        string `json:"reference" binding:"omitempty,max=35"`
	RecipientMessage string `json:"recipientMessage" binding:"omitempty,max=280"`
}

// CancelTransferRequest cancels a non-terminal transfer.
type CancelTransferRequest struct {
	Reason     string `json:"reason" binding:"required,max=255"`
	RefundFees bool   `json:"refundFees"`
}

// HoldTransferRequest parks a transfer for manual review.
type HoldTransferRequest struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

// ListTransfersParams defines query parameters for listing transfers.
type ListTransfersParams struct {
	Status string `form:"status" binding:"omitempty,transfer_status"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`

	// PageToken overrides Offset when set.
	PageToken string `form:"pageToken"`
}

// ExchangeRatesParams defines query parameters for the rate listing.
type ExchangeRatesParams struct {
	Base    string `form:"base" binding:"omitempty,iso4217"`
	Symbols string `form:"symbols"`
}

// StatusHistoryResponse is one lifecycle event.
type StatusHistoryResponse struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// TransferResponse defines the data returned for a transfer.
type TransferResponse struct {
	TransferID          string                  `json:"transferID"`
	SourceAccountID     string                  `json:"sourceAccountID"`
	BeneficiaryID       string                  `json:"beneficiaryID"`
	TransferType        string                  `json:"transferType"`
	Status              string                  `json:"status"`
	Priority            string                  `json:"priority"`
	SourceAmount        decimal.Decimal         `json:"sourceAmount"`
	SourceCurrency      string                  `json:"sourceCurrency"`
	DestinationAmount   decimal.Decimal         `json:"destinationAmount"`
	DestinationCurrency string                  `json:"destinationCurrency"`
	ExchangeRateUsed    *decimal.Decimal        `json:"exchangeRateUsed,omitempty"`
	TransferFee         decimal.Decimal         `json:"transferFee"`
	ExchangeFee         decimal.Decimal         `json:"exchangeFee"`
	TotalFees           decimal.Decimal         `json:"totalFees"`
	TotalCost           decimal.Decimal         `json:"totalCost"`
	Purpose             string                  `json:"purpose"`
	Reference           string                  `json:"reference,omitempty"`
	RecipientMessage    string                  `json:"recipientMessage,omitempty"`
	QuoteID             string                  `json:"quoteID"`
	ExternalReference   string                  `json:"externalReference,omitempty"`
	FailureReason       string                  `json:"failureReason,omitempty"`
	CancellationReason  string                  `json:"cancellationReason,omitempty"`
	FeesRefunded        bool                    `json:"feesRefunded"`
	RequiresDocuments   bool                    `json:"requiresDocuments"`
	CreatedAt           time.Time               `json:"createdAt"`
	ProcessedAt         *time.Time              `json:"processedAt,omitempty"`
	CompletedAt         *time.Time              `json:"completedAt,omitempty"`
	EstimatedArrival    *time.Time              `json:"estimatedArrival,omitempty"`
	StatusHistory       []StatusHistoryResponse `json:"statusHistory"`
}

// TrackTransferResponse is the tracking payload.
type TrackTransferResponse struct {
	Transfer            TransferResponse        `json:"transfer"`
	TrackingEvents      []StatusHistoryResponse `json:"trackingEvents"`
	EstimatedCompletion *time.Time              `json:"estimatedCompletion,omitempty"`
	NextUpdate          *time.Time              `json:"nextUpdate,omitempty"`
}

// ListTransfersResponse is one page of transfers.
type ListTransfersResponse struct {
	Transfers     []TransferResponse `json:"transfers"`
	TotalCount    int                `json:"totalCount"`
	PendingCount  int                `json:"pendingCount"`
	Limit         int                `json:"limit"`
	Offset        int                `json:"offset"`
	NextPageToken string             `json:"nextPageToken,omitempty"`
}

// ToStatusHistoryResponses converts status history entries.
func ToStatusHistoryResponses(entries []domain.StatusHistoryEntry) []StatusHistoryResponse {
	responses := make([]StatusHistoryResponse, len(entries))
	for i, e := range entries {
		responses[i] = StatusHistoryResponse{Status: string(e.Status), At: e.At, Reason: e.Reason}
	}
	return responses
}

// ToTransferResponse converts a domain.MoneyTransfer to TransferResponse DTO.
func ToTransferResponse(t *domain.MoneyTransfer) TransferResponse {
	return TransferResponse{
		TransferID:          t.TransferID,
		SourceAccountID:     t.SourceAccountID,
		BeneficiaryID:       t.BeneficiaryID,
		TransferType:        string(t.TransferType),
		Status:              string(t.Status),
		Priority:            string(t.Priority),
		SourceAmount:        t.SourceAmount,
		SourceCurrency:      t.SourceCurrency,
		DestinationAmount:   t.DestinationAmount,
		DestinationCurrency: t.DestinationCurrency,
		ExchangeRateUsed:    t.ExchangeRateUsed,
		TransferFee:         t.TransferFee,
		ExchangeFee:         t.ExchangeFee,
		TotalFees:           t.TotalFees,
		TotalCost:           t.TotalCost,
		Purpose:             t.Purpose,
		Reference:           t.Reference,
		RecipientMessage:    t.RecipientMessage,
		QuoteID:             t.QuoteID,
		ExternalReference:   t.ExternalReference,
		FailureReason:       t.FailureReason,
		CancellationReason:  t.CancellationReason,
		FeesRefunded:        t.FeesRefunded,
		RequiresDocuments:   t.RequiresDocuments,
		CreatedAt:           t.CreatedAt,
		ProcessedAt:         t.ProcessedAt,
		CompletedAt:         t.CompletedAt,
		EstimatedArrival:    t.EstimatedArrival,
		StatusHistory:       ToStatusHistoryResponses(t.StatusHistory),
	}
}

// ToTrackTransferResponse converts tracking info.
func ToTrackTransferResponse(info *domain.TrackingInfo) TrackTransferResponse {
	return TrackTransferResponse{
		Transfer:            ToTransferResponse(&info.Transfer),
		TrackingEvents:      ToStatusHistoryResponses(info.Events),
		EstimatedCompletion: info.EstimatedCompletion,
		NextUpdate:          info.NextUpdate,
	}
}

// ToListTransfersResponse converts a page of transfers. statusFilter is carried into the next page token.
func ToListTransfersResponse(page *domain.TransferPage, statusFilter string) ListTransfersResponse {
	transfers := make([]TransferResponse, len(page.Transfers))
	for i := range page.Transfers {
		transfers[i] = ToTransferResponse(&page.Transfers[i])
	}
	return ListTransfersResponse{
		Transfers:     transfers,
		TotalCount:    page.TotalCount,
		PendingCount:  page.PendingCount,
		Limit:         page.Limit,
		Offset:        page.Offset,
		NextPageToken: pagination.NextPageToken(page.Offset, len(page.Transfers), page.TotalCount, statusFilter),
	}
}
