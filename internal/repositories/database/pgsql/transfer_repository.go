package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_engine/internal/core/ports/repositories"
	"github.com/SscSPs/money_transfer_engine/internal/models"
	"github.com/SscSPs/money_transfer_engine/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// querier is satisfied by both the pool and an open pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const transferColumns = `
	transfer_id, user_id, source_account_id, beneficiary_id, transfer_type, status, priority,
	source_amount, source_currency, base_amount, base_currency, destination_amount, destination_currency, exchange_rate_used,
	transfer_fee, exchange_fee, total_fees, total_cost, purpose, reference, recipient_message,
	quote_id, external_reference, backend, failure_reason, cancellation_reason, fees_refunded,
	compliance_check_passed, requires_documents, created_at, updated_at, processed_at,
	completed_at, estimated_arrival`

var pendingStatuses = []string{
	string(domain.StatusPending),
	string(domain.StatusProcessing),
	string(domain.StatusInTransit),
	string(domain.StatusOnHold),
}

var nonCountingStatuses = []string{
	string(domain.StatusCancelled),
	string(domain.StatusFailed),
	string(domain.StatusReturned),
}

// PgxTransferRepository implements portsrepo.TransferRepositoryFacade using Postgres row locks.
type PgxTransferRepository struct {
	BaseRepository
}

// newPgxTransferRepository creates a new repository for transfer data.
func newPgxTransferRepository(pool PgxPool) portsrepo.TransferRepositoryFacade {
	return &PgxTransferRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

var _ portsrepo.TransferRepositoryFacade = (*PgxTransferRepository)(nil)

func scanTransfer(row rowScanner) (models.MoneyTransfer, error) {
	var m models.MoneyTransfer
	err := row.Scan(
		&m.TransferID, &m.UserID, &m.SourceAccountID, &m.BeneficiaryID, &m.TransferType, &m.Status, &m.Priority,
		&m.SourceAmount, &m.SourceCurrency, &m.BaseAmount, &m.BaseCurrency, &m.DestinationAmount, &m.DestinationCurrency, &m.ExchangeRateUsed,
		&m.TransferFee, &m.ExchangeFee, &m.TotalFees, &m.TotalCost, &m.Purpose, &m.Reference, &m.RecipientMessage,
		&m.QuoteID, &m.ExternalReference, &m.Backend, &m.FailureReason, &m.CancellationReason, &m.FeesRefunded,
		&m.ComplianceCheckPassed, &m.RequiresDocuments, &m.CreatedAt, &m.UpdatedAt, &m.ProcessedAt,
		&m.CompletedAt, &m.EstimatedArrival,
	)
	return m, err
}

// loadHistory returns the ordered history of each requested transfer.
func loadHistory(ctx context.Context, q querier, transferIDs []string) (map[string][]models.TransferStatusHistory, error) {
	rows, err := q.Query(ctx, `
		SELECT transfer_id, seq, status, at, reason
		FROM transfer_status_history
		WHERE transfer_id = ANY($1)
		ORDER BY transfer_id, seq;`, transferIDs)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query transfer history", err)
	}
	defer rows.Close()

	history := make(map[string][]models.TransferStatusHistory, len(transferIDs))
	for rows.Next() {
		var h models.TransferStatusHistory
		if err := rows.Scan(&h.TransferID, &h.Seq, &h.Status, &h.At, &h.Reason); err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan transfer history", err)
		}
		history[h.TransferID] = append(history[h.TransferID], h)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating transfer history", err)
	}
	return history, nil
}

func insertHistory(ctx context.Context, q querier, entries []models.TransferStatusHistory) error {
	for _, h := range entries {
		_, err := q.Exec(ctx, `
			INSERT INTO transfer_status_history (transfer_id, seq, status, at, reason)
			VALUES ($1, $2, $3, $4, $5);`,
			h.TransferID, h.Seq, h.Status, h.At, h.Reason,
		)
		if err != nil {
			return apperrors.NewAppError(500, "failed to insert transfer history", err)
		}
	}
	return nil
}

// CreateTransfer locks the user's admission row, runs admit, then locks every quote of the
// batch, marks them consumed and inserts the transfer.
func (r *PgxTransferRepository) CreateTransfer(ctx context.Context, t domain.MoneyTransfer, admit portsrepo.TransferAdmission) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_transfer_limits (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING;`, t.UserID); err != nil {
			return apperrors.NewAppError(500, "failed to prepare admission lock", err)
		}
		if _, err := tx.Exec(ctx, `
			SELECT user_id FROM user_transfer_limits WHERE user_id = $1 FOR UPDATE;`, t.UserID); err != nil {
			return apperrors.NewAppError(500, "failed to take admission lock", err)
		}
		// admit reads through the pool; competing admissions committed before the lock was granted.
		if admit != nil {
			if err := admit(ctx); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE user_transfer_limits SET last_admission_at = $2 WHERE user_id = $1;`, t.UserID, t.CreatedAt); err != nil {
			return apperrors.NewAppError(500, "failed to record admission", err)
		}

		var batchID string
		err := tx.QueryRow(ctx, `SELECT batch_id FROM transfer_quotes WHERE quote_id = $1;`, t.QuoteID).Scan(&batchID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFoundError("quote " + t.QuoteID + " not found")
			}
			return apperrors.NewAppError(500, "failed to find quote batch", err)
		}

		rows, err := tx.Query(ctx, `
			SELECT quote_id, consumed_by_transfer_id
			FROM transfer_quotes
			WHERE batch_id = $1
			FOR UPDATE;`, batchID)
		if err != nil {
			return apperrors.NewAppError(500, "failed to lock quote batch", err)
		}
		consumedBy := ""
		for rows.Next() {
			var quoteID, consumer string
			if err := rows.Scan(&quoteID, &consumer); err != nil {
				rows.Close()
				return apperrors.NewAppError(500, "failed to scan quote batch", err)
			}
			if consumer != "" && consumedBy == "" {
				consumedBy = consumer
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return apperrors.NewAppError(500, "error iterating quote batch", err)
		}
		if consumedBy != "" {
			return apperrors.NewBusinessRuleError(fmt.Sprintf("quote %s has already been used by transfer %s", t.QuoteID, consumedBy))
		}

		if _, err := tx.Exec(ctx, `
			UPDATE transfer_quotes
			SET consumed_by_transfer_id = $1, consumed_at = $2
			WHERE batch_id = $3;`, t.TransferID, t.CreatedAt, batchID); err != nil {
			return apperrors.NewAppError(500, "failed to consume quote batch", err)
		}

		m := mapping.ToModelTransfer(t)
		_, err = tx.Exec(ctx, `
			INSERT INTO money_transfers (`+transferColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
				$21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34);`,
			m.TransferID, m.UserID, m.SourceAccountID, m.BeneficiaryID, m.TransferType, m.Status, m.Priority,
			m.SourceAmount, m.SourceCurrency, m.BaseAmount, m.BaseCurrency, m.DestinationAmount, m.DestinationCurrency, m.ExchangeRateUsed,
			m.TransferFee, m.ExchangeFee, m.TotalFees, m.TotalCost, m.Purpose, m.Reference, m.RecipientMessage,
			m.QuoteID, m.ExternalReference, m.Backend, m.FailureReason, m.CancellationReason, m.FeesRefunded,
			m.ComplianceCheckPassed, m.RequiresDocuments, m.CreatedAt, m.UpdatedAt, m.ProcessedAt,
			m.CompletedAt, m.EstimatedArrival,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: transfer %s", apperrors.ErrDuplicate, t.TransferID)
			}
			return apperrors.NewAppError(500, "failed to insert transfer", err)
		}

		return insertHistory(ctx, tx, mapping.ToModelHistory(t.TransferID, t.StatusHistory, 0))
	})
}

// UpdateTransfer locks the transfer row, applies mutate to a copy and persists the result
// together with any new history entries. A mutation that is not applied rolls back.
func (r *PgxTransferRepository) UpdateTransfer(ctx context.Context, transferID string, mutate portsrepo.TransferMutation) (*domain.MoneyTransfer, bool, error) {
	tx, err := r.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer r.Rollback(ctx, tx)

	m, err := scanTransfer(tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM money_transfers WHERE transfer_id = $1 FOR UPDATE;`, transferID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, apperrors.NewNotFoundError("transfer " + transferID + " not found")
		}
		return nil, false, apperrors.NewAppError(500, "failed to lock transfer", err)
	}
	history, err := loadHistory(ctx, tx, []string{transferID})
	if err != nil {
		return nil, false, err
	}

	current := mapping.ToDomainTransfer(m, history[transferID])
	next := current.Clone()
	applied, err := mutate(&next)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		return &current, false, nil
	}

	u := mapping.ToModelTransfer(next)
	_, err = tx.Exec(ctx, `
		UPDATE money_transfers
		SET status = $1, external_reference = $2, backend = $3, failure_reason = $4, cancellation_reason = $5,
			fees_refunded = $6, updated_at = $7, processed_at = $8, completed_at = $9, estimated_arrival = $10
		WHERE transfer_id = $11;`,
		u.Status, u.ExternalReference, u.Backend, u.FailureReason, u.CancellationReason,
		u.FeesRefunded, u.UpdatedAt, u.ProcessedAt, u.CompletedAt, u.EstimatedArrival,
		transferID,
	)
	if err != nil {
		return nil, false, apperrors.NewAppError(500, "failed to update transfer", err)
	}
	if err := insertHistory(ctx, tx, mapping.ToModelHistory(transferID, next.StatusHistory, len(current.StatusHistory))); err != nil {
		return nil, false, err
	}
	if err := r.Commit(ctx, tx); err != nil {
		return nil, false, err
	}
	return &next, true, nil
}

// FindTransferByID retrieves a transfer with its full status history.
func (r *PgxTransferRepository) FindTransferByID(ctx context.Context, transferID string) (*domain.MoneyTransfer, error) {
	m, err := scanTransfer(r.Pool.QueryRow(ctx, `SELECT `+transferColumns+` FROM money_transfers WHERE transfer_id = $1;`, transferID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("transfer " + transferID + " not found")
		}
		return nil, apperrors.NewAppError(500, "failed to find transfer", err)
	}
	history, err := loadHistory(ctx, r.Pool, []string{transferID})
	if err != nil {
		return nil, err
	}
	t := mapping.ToDomainTransfer(m, history[transferID])
	return &t, nil
}

// ListTransfersByUser returns a newest-first page and the total number of matching transfers.
func (r *PgxTransferRepository) ListTransfersByUser(ctx context.Context, userID string, status *domain.TransferStatus, limit, offset int) ([]domain.MoneyTransfer, int, error) {
	where := ` FROM money_transfers WHERE user_id = $1`
	args := []any{userID}
	if status != nil {
		where += ` AND status = $2`
		args = append(args, string(*status))
	}

	var total int
	if err := r.Pool.QueryRow(ctx, `SELECT COUNT(*)`+where+`;`, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.NewAppError(500, "failed to count transfers", err)
	}
	if total == 0 {
		return []domain.MoneyTransfer{}, 0, nil
	}

	page := fmt.Sprintf(` ORDER BY created_at DESC, transfer_id DESC LIMIT $%d OFFSET $%d;`, len(args)+1, len(args)+2)
	rows, err := r.Pool.Query(ctx, `SELECT `+transferColumns+where+page, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, apperrors.NewAppError(500, "failed to list transfers", err)
	}
	defer rows.Close()

	var found []models.MoneyTransfer
	for rows.Next() {
		m, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, apperrors.NewAppError(500, "failed to scan transfer", err)
		}
		found = append(found, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.NewAppError(500, "error iterating transfers", err)
	}
	if len(found) == 0 {
		return []domain.MoneyTransfer{}, total, nil
	}

	ids := make([]string, len(found))
	for i, m := range found {
		ids[i] = m.TransferID
	}
	history, err := loadHistory(ctx, r.Pool, ids)
	if err != nil {
		return nil, 0, err
	}

	transfers := make([]domain.MoneyTransfer, len(found))
	for i, m := range found {
		transfers[i] = mapping.ToDomainTransfer(m, history[m.TransferID])
	}
	return transfers, total, nil
}

// CountPendingTransfers counts the user's transfers that have not reached a terminal state.
func (r *PgxTransferRepository) CountPendingTransfers(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM money_transfers
		WHERE user_id = $1 AND status = ANY($2);`, userID, pendingStatuses).Scan(&count)
	if err != nil {
		return 0, apperrors.NewAppError(500, "failed to count pending transfers", err)
	}
	return count, nil
}

// TransferVolume totals base-currency amounts of limit-counting transfers created at or after since.
func (r *PgxTransferRepository) TransferVolume(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(base_amount), 0) FROM money_transfers
		WHERE user_id = $1 AND created_at >= $2 AND NOT (status = ANY($3));`,
		userID, since, nonCountingStatuses).Scan(&total)
	if err != nil {
		return decimal.Zero, apperrors.NewAppError(500, "failed to sum transfer volume", err)
	}
	return total, nil
}
