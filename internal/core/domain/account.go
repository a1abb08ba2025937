package domain

import (
	"github.com/shopspring/decimal"
)

// AccountBalance is the funding view of a source account as reported by the account service.
type AccountBalance struct {
	AccountID    string          `json:"accountID"`
	CurrencyCode string          `json:"currencyCode"`
	Available    decimal.Decimal `json:"available"`
}

// TransferIntent is what the compliance gate sees before a transfer is created.
type TransferIntent struct {
	UserID             string
	SourceAccountID    string
	BeneficiaryID      string
	BeneficiaryCountry string
	TransferType       TransferType
	Amount             decimal.Decimal
	BaseAmount         decimal.Decimal // Amount in the limits currency
	FromCurrency       string
	ToCurrency         string
	Purpose            string
}
