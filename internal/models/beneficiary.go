package models

import (
	"github.com/shopspring/decimal"
)

// SourceAccount is the subset of accounts the engine reads.
type SourceAccount struct {
	AccountID        string          `db:"account_id"`
	UserID           string          `db:"user_id"`
	CurrencyCode     string          `db:"currency_code"`
	AvailableBalance decimal.Decimal `db:"available_balance"`
	IsActive         bool            `db:"is_active"`
}

// Beneficiary is a row of beneficiaries.
type Beneficiary struct {
	BeneficiaryID  string `db:"beneficiary_id"`
	UserID         string `db:"user_id"`
	DisplayName    string `db:"display_name"`
	Country        string `db:"country"`
	Currency       string `db:"currency"`
	BankName       string `db:"bank_name"`
	AccountNumber  string `db:"account_number"`
	IBAN           string `db:"iban"`
	MobileNumber   string `db:"mobile_number"`
	MobileProvider string `db:"mobile_provider"`
	Status         string `db:"status"`
	IsFavorite     bool   `db:"is_favorite"`
}
