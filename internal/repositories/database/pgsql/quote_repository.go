package pgsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_engine/internal/core/ports/repositories"
	"github.com/SscSPs/money_transfer_engine/internal/models"
	"github.com/SscSPs/money_transfer_engine/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
)

const quoteColumns = `
	quote_id, batch_id, user_id, source_account_id, beneficiary_id, from_amount, from_currency,
	to_amount, to_currency, rate, inverse_rate, rate_margin, transfer_fee, exchange_fee, total_fees,
	total_cost, transfer_type, priority, created_at, expires_at, consumed_by_transfer_id, consumed_at`

// PgxQuoteRepository implements portsrepo.QuoteRepositoryFacade.
type PgxQuoteRepository struct {
	BaseRepository
}

// newPgxQuoteRepository creates a new repository for quote data.
func newPgxQuoteRepository(pool PgxPool) portsrepo.QuoteRepositoryFacade {
	return &PgxQuoteRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

var _ portsrepo.QuoteRepositoryFacade = (*PgxQuoteRepository)(nil)

// SaveQuoteBatch persists a primary quote together with its alternatives.
func (r *PgxQuoteRepository) SaveQuoteBatch(ctx context.Context, batch domain.QuoteBatch) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		for _, q := range batch.All() {
			m := mapping.ToModelQuote(q)
			_, err := tx.Exec(ctx, `
				INSERT INTO transfer_quotes (`+quoteColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22);`,
				m.QuoteID, m.BatchID, m.UserID, m.SourceAccountID, m.BeneficiaryID, m.FromAmount, m.FromCurrency,
				m.ToAmount, m.ToCurrency, m.Rate, m.InverseRate, m.RateMargin, m.TransferFee, m.ExchangeFee, m.TotalFees,
				m.TotalCost, m.TransferType, m.Priority, m.CreatedAt, m.ExpiresAt, m.ConsumedByTransferID, m.ConsumedAt,
			)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: quote %s", apperrors.ErrDuplicate, q.QuoteID)
				}
				return apperrors.NewAppError(500, "failed to insert quote", err)
			}
		}
		return nil
	})
}

// FindQuoteByID retrieves a quote, including its consumption marker.
func (r *PgxQuoteRepository) FindQuoteByID(ctx context.Context, quoteID string) (*domain.TransferQuote, error) {
	var m models.TransferQuote
	err := r.Pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM transfer_quotes WHERE quote_id = $1;`, quoteID).Scan(
		&m.QuoteID, &m.BatchID, &m.UserID, &m.SourceAccountID, &m.BeneficiaryID, &m.FromAmount, &m.FromCurrency,
		&m.ToAmount, &m.ToCurrency, &m.Rate, &m.InverseRate, &m.RateMargin, &m.TransferFee, &m.ExchangeFee, &m.TotalFees,
		&m.TotalCost, &m.TransferType, &m.Priority, &m.CreatedAt, &m.ExpiresAt, &m.ConsumedByTransferID, &m.ConsumedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("quote " + quoteID + " not found")
		}
		return nil, apperrors.NewAppError(500, "failed to find quote", err)
	}
	q := mapping.ToDomainQuote(m)
	return &q, nil
}
