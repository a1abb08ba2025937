package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	"github.com/shopspring/decimal"
)

// TransferMutation edits a locked transfer in place. Returning applied=false leaves the stored
// record untouched and is not an error.
type TransferMutation func(t *domain.MoneyTransfer) (applied bool, err error)

// TransferAdmission decides whether a new transfer may be stored. It runs while the owning
// user's admission lock is held, so every transfer admitted before it is visible to its reads.
// Returning an error aborts the insert.
type TransferAdmission func(ctx context.Context) error

// TransferReader defines read operations for transfers. Reads never take the per-transfer lock.
type TransferReader interface {
	// FindTransferByID retrieves a transfer with its full status history.
	FindTransferByID(ctx context.Context, transferID string) (*domain.MoneyTransfer, error)

	// ListTransfersByUser returns a newest-first page and the total number of matching transfers.
	ListTransfersByUser(ctx context.Context, userID string, status *domain.TransferStatus, limit, offset int) ([]domain.MoneyTransfer, int, error)

	// CountPendingTransfers counts the user's transfers that have not reached a terminal state.
	CountPendingTransfers(ctx context.Context, userID string) (int, error)

	// TransferVolume totals base-currency amounts of limit-counting transfers created at or after since.
	TransferVolume(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error)
}

// TransferWriter defines write operations for transfers.
type TransferWriter interface {
	// CreateTransfer takes t.UserID's admission lock, runs admit (when non-nil), then consumes
	// t.QuoteID and inserts t in one atomic step. It fails with apperrors.ErrBusinessRule when any
	// quote of the same batch was already consumed.
	CreateTransfer(ctx context.Context, t domain.MoneyTransfer, admit TransferAdmission) error

	// UpdateTransfer runs mutate while holding the transfer's row lock and persists the result,
	// including any newly appended history entries.
	UpdateTransfer(ctx context.Context, transferID string, mutate TransferMutation) (*domain.MoneyTransfer, bool, error)
}

// TransferRepositoryFacade combines all transfer-related repository interfaces
type TransferRepositoryFacade interface {
	TransferReader
	TransferWriter
}
