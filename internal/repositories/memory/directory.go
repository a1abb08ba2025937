package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/shopspring/decimal"
)

// Account is a source account known to the Directory.
type Account struct {
	AccountID    string
	UserID       string
	CurrencyCode string
	Available    decimal.Decimal
}

// Directory serves accounts and beneficiaries from memory.
type Directory struct {
	mu            sync.RWMutex
	accounts      map[string]Account
	beneficiaries map[string]domain.Beneficiary
}

var (
	_ portssvc.AccountService   = (*Directory)(nil)
	_ portssvc.BeneficiaryStore = (*Directory)(nil)
)

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		accounts:      make(map[string]Account),
		beneficiaries: make(map[string]domain.Beneficiary),
	}
}

// PutAccount adds or replaces an account.
func (d *Directory) PutAccount(a Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[a.AccountID] = a
}

// PutBeneficiary adds or replaces a beneficiary.
func (d *Directory) PutBeneficiary(b domain.Beneficiary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.beneficiaries[b.BeneficiaryID] = b
}

func (d *Directory) ValidateOwnership(ctx context.Context, accountID, userID string) error {
	d.mu.RLock()
	a, ok := d.accounts[accountID]
	d.mu.RUnlock()
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("account %s not found", accountID))
	}
	if a.UserID != userID {
		return fmt.Errorf("%w: account %s does not belong to the user", apperrors.ErrValidation, accountID)
	}
	return nil
}

func (d *Directory) AvailableBalance(ctx context.Context, accountID string) (*domain.AccountBalance, error) {
	d.mu.RLock()
	a, ok := d.accounts[accountID]
	d.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("account %s not found", accountID))
	}
	return &domain.AccountBalance{AccountID: a.AccountID, CurrencyCode: a.CurrencyCode, Available: a.Available}, nil
}

func (d *Directory) GetBeneficiary(ctx context.Context, beneficiaryID string) (*domain.Beneficiary, error) {
	d.mu.RLock()
	b, ok := d.beneficiaries[beneficiaryID]
	d.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("beneficiary %s not found", beneficiaryID))
	}
	return &b, nil
}
