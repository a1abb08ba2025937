package services

import (
	"context"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
)

// SettlementBackend executes a transfer over an external rail and reports the outcome out-of-band
// on the receipt's completion channel.
type SettlementBackend interface {
	Name() string
	ExpectedTurnaround() time.Duration

	// Authorize is the first phase of two-phase rails. Single-phase rails approve immediately.
	Authorize(ctx context.Context, transfer domain.MoneyTransfer) error

	// Submit hands the transfer to the rail. It is called at most once per transfer.
	Submit(ctx context.Context, transfer domain.MoneyTransfer) (*domain.SettlementReceipt, error)
}

// SettlementRouter selects the backend for a transfer type.
type SettlementRouter interface {
	BackendFor(transferType domain.TransferType) (SettlementBackend, error)
}

// SettlementSvc drives scheduled transfers to a terminal state in the background.
type SettlementSvc interface {
	// Schedule starts settlement for a transfer. It reports false when one is already running.
	Schedule(ctx context.Context, transferID string) bool

	// Notify wakes the transfer's settlement task after an out-of-band change.
	Notify(transferID string)

	// Shutdown stops accepting work and waits for in-flight tasks to exit.
	Shutdown(ctx context.Context) error
}
