package pgsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_engine/internal/models"
	"github.com/SscSPs/money_transfer_engine/internal/utils/mapping"
	"github.com/jackc/pgx/v5"
)

// PgxAccountDirectory reads source accounts from the accounts table.
type PgxAccountDirectory struct {
	BaseRepository
}

// NewPgxAccountDirectory creates an account reader over the pool.
func NewPgxAccountDirectory(pool PgxPool) *PgxAccountDirectory {
	return &PgxAccountDirectory{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portssvc.AccountService = (*PgxAccountDirectory)(nil)

func (r *PgxAccountDirectory) findAccount(ctx context.Context, accountID string) (*models.SourceAccount, error) {
	var a models.SourceAccount
	err := r.Pool.QueryRow(ctx, `
		SELECT account_id, user_id, currency_code, available_balance, is_active
		FROM accounts
		WHERE account_id = $1;`, accountID).Scan(
		&a.AccountID, &a.UserID, &a.CurrencyCode, &a.AvailableBalance, &a.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("account " + accountID + " not found")
		}
		return nil, apperrors.NewAppError(500, "failed to find account", err)
	}
	if !a.IsActive {
		return nil, apperrors.NewNotFoundError("account " + accountID + " not found")
	}
	return &a, nil
}

// ValidateOwnership fails with ErrValidation when the account belongs to someone else.
func (r *PgxAccountDirectory) ValidateOwnership(ctx context.Context, accountID, userID string) error {
	a, err := r.findAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if a.UserID != userID {
		return fmt.Errorf("%w: account %s does not belong to the requesting user", apperrors.ErrValidation, accountID)
	}
	return nil
}

// AvailableBalance returns the spendable balance in the account's currency.
func (r *PgxAccountDirectory) AvailableBalance(ctx context.Context, accountID string) (*domain.AccountBalance, error) {
	a, err := r.findAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.AccountBalance{
		AccountID:    a.AccountID,
		CurrencyCode: a.CurrencyCode,
		Available:    a.AvailableBalance,
	}, nil
}

// PgxBeneficiaryDirectory reads saved recipients from the beneficiaries table.
type PgxBeneficiaryDirectory struct {
	BaseRepository
}

// NewPgxBeneficiaryDirectory creates a beneficiary reader over the pool.
func NewPgxBeneficiaryDirectory(pool PgxPool) *PgxBeneficiaryDirectory {
	return &PgxBeneficiaryDirectory{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portssvc.BeneficiaryStore = (*PgxBeneficiaryDirectory)(nil)

func (r *PgxBeneficiaryDirectory) GetBeneficiary(ctx context.Context, beneficiaryID string) (*domain.Beneficiary, error) {
	var b models.Beneficiary
	err := r.Pool.QueryRow(ctx, `
		SELECT beneficiary_id, user_id, display_name, country, currency, bank_name, account_number,
			iban, mobile_number, mobile_provider, status, is_favorite
		FROM beneficiaries
		WHERE beneficiary_id = $1;`, beneficiaryID).Scan(
		&b.BeneficiaryID, &b.UserID, &b.DisplayName, &b.Country, &b.Currency, &b.BankName, &b.AccountNumber,
		&b.IBAN, &b.MobileNumber, &b.MobileProvider, &b.Status, &b.IsFavorite,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("beneficiary " + beneficiaryID + " not found")
		}
		return nil, apperrors.NewAppError(500, "failed to find beneficiary", err)
	}
	d := mapping.ToDomainBeneficiary(b)
	return &d, nil
}
