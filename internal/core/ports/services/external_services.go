package services

import (
	"context"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	"github.com/shopspring/decimal"
)

// AccountService is the account system of record. It owns ownership and balance checks.
type AccountService interface {
	// ValidateOwnership fails with apperrors.ErrNotFound for unknown accounts and
	// apperrors.ErrValidation when the account belongs to someone else.
	ValidateOwnership(ctx context.Context, accountID, userID string) error

	// AvailableBalance returns the spendable balance in the account's currency.
	AvailableBalance(ctx context.Context, accountID string) (*domain.AccountBalance, error)
}

// BeneficiaryStore reads beneficiaries owned by the beneficiary service.
type BeneficiaryStore interface {
	GetBeneficiary(ctx context.Context, beneficiaryID string) (*domain.Beneficiary, error)
}

// UserLedger reports historical transfer volume for limit evaluation.
type UserLedger interface {
	TransferVolume(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error)
}

// ComplianceGate is the AML screen. A false result blocks the transfer.
type ComplianceGate interface {
	Check(ctx context.Context, intent domain.TransferIntent) (bool, error)
}

// EventPublisher fans transfer status changes out to downstream consumers (notifications, analytics).
type EventPublisher interface {
	PublishTransferEvent(ctx context.Context, event domain.TransferStatusEvent) error
	Close() error
}
