package memory

import (
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	"github.com/shopspring/decimal"
)

// Demo fixture IDs seeded by SeedDemo.
const (
	DemoAccountID           = "demo-usd-account"
	DemoBankBeneficiaryID   = "demo-eur-bank"
	DemoMobileBeneficiaryID = "demo-kes-mobile"
)

// SeedDemo gives userID a funded USD account, a verified EUR bank beneficiary and a verified
// KES mobile money beneficiary, so a fresh in-memory engine can quote and settle right away.
// Seeding again resets the fixtures.
func (d *Directory) SeedDemo(userID string, balance decimal.Decimal) {
	d.PutAccount(Account{
		AccountID:    DemoAccountID,
		UserID:       userID,
		CurrencyCode: "USD",
		Available:    balance,
	})
	d.PutBeneficiary(domain.Beneficiary{
		BeneficiaryID: DemoBankBeneficiaryID,
		UserID:        userID,
		DisplayName:   "Demo Bank Payee",
		Country:       "DE",
		Currency:      "EUR",
		BankName:      "Demo Bank AG",
		IBAN:          "DE89370400440532013000",
		Status:        domain.BeneficiaryVerified,
	})
	d.PutBeneficiary(domain.Beneficiary{
		BeneficiaryID:  DemoMobileBeneficiaryID,
		UserID:         userID,
		DisplayName:    "Demo Mobile Payee",
		Country:        "KE",
		Currency:       "KES",
		MobileNumber:   "+254700000000",
		MobileProvider: "M-Pesa",
		Status:         domain.BeneficiaryVerified,
	})
}
