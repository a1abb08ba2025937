package services

import (
	"context"

	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	"github.com/SscSPs/money_transfer_engine/internal/dto"
)

// TransferReaderSvc defines read operations exposed to transfer clients
type TransferReaderSvc interface {
	// TrackTransfer returns the transfer, its event log and delivery estimates.
	TrackTransfer(ctx context.Context, userID, transferID string) (*domain.TrackingInfo, error)

	// ListTransfers returns a page of the user's transfers with total and pending counts.
	ListTransfers(ctx context.Context, userID string, params dto.ListTransfersParams) (*domain.TransferPage, error)

	// GetLimits returns the user's ceilings and usage, recomputed from history.
	GetLimits(ctx context.Context, userID string) (*domain.LimitsWindow, error)

	// GetFeeSchedule returns the published pricing for a transfer type.
	GetFeeSchedule(ctx context.Context, transferType domain.TransferType) (*domain.FeeSchedule, error)

	// GetExchangeRates lists indicative rates from base, optionally filtered by symbols.
	GetExchangeRates(ctx context.Context, base string, symbols []string) ([]domain.ExchangeRate, error)

	// GetCorridors lists supported country routes.
	GetCorridors(ctx context.Context) []domain.Corridor
}

// TransferWriterSvc defines state-changing operations exposed to transfer clients
type TransferWriterSvc interface {
	// CreateQuote prices a transfer and returns the primary quote with its faster alternatives.
	CreateQuote(ctx context.Context, userID string, req dto.CreateQuoteRequest) (*domain.QuoteBatch, error)

	// InitiateTransfer consumes a quote and creates a PENDING transfer.
	InitiateTransfer(ctx context.Context, userID, quoteID string, req dto.InitiateTransferRequest) (*domain.MoneyTransfer, error)

	// CancelTransfer cancels a non-terminal transfer.
	CancelTransfer(ctx context.Context, userID, transferID string, req dto.CancelTransferRequest) (*domain.MoneyTransfer, error)
}

// TransferOperationsSvc defines operator actions on transfers
type TransferOperationsSvc interface {
	HoldTransfer(ctx context.Context, transferID, reason string) (*domain.MoneyTransfer, error)
	ReleaseTransfer(ctx context.Context, transferID string) (*domain.MoneyTransfer, error)
}

// TransferSvcFacade combines all transfer-related service interfaces
type TransferSvcFacade interface {
	TransferReaderSvc
	TransferWriterSvc
	TransferOperationsSvc
}
