package domain

import "github.com/shopspring/decimal"

// FeeRate is the base and proportional component for one transfer type.
type FeeRate struct {
	Base     decimal.Decimal `json:"base"`
	Variable decimal.Decimal `json:"variable"`
}

// FeeSchedule is the published pricing structure for a transfer type.
type FeeSchedule struct {
	TransferType       TransferType                         `json:"transferType"`
	BaseFee            decimal.Decimal                      `json:"baseFee"`
	VariableRate       decimal.Decimal                      `json:"variableRate"`
	ExchangeFeeRate    decimal.Decimal                      `json:"exchangeFeeRate"`
	PrioritySurcharges map[TransferPriority]decimal.Decimal `json:"prioritySurcharges"`
	CurrencyPairs      []string                             `json:"currencyPairs"`
}

// Corridor describes a supported country-to-country route.
type Corridor struct {
	FromCountry            string         `json:"fromCountry"`
	ToCountry              string         `json:"toCountry"`
	SupportedTransferTypes []TransferType `json:"supportedTransferTypes"`
	AverageDeliveryTime    string         `json:"averageDeliveryTime"`
	ComplianceLevel        string         `json:"complianceLevel"`
}
