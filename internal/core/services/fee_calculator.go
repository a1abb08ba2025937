package services

import (
	"fmt"
	"sort"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	"github.com/shopspring/decimal"
)

// feeDecimals is the precision of every computed fee.
const feeDecimals int32 = 2

var defaultFeeTable = map[domain.TransferType]domain.FeeRate{
	domain.TransferTypeDomesticBank:      {Base: decimal.RequireFromString("0.50"), Variable: decimal.RequireFromString("0.002")},
	domain.TransferTypeInternationalWire: {Base: decimal.RequireFromString("10.00"), Variable: decimal.RequireFromString("0.005")},
	domain.TransferTypeMobileMoney:       {Base: decimal.RequireFromString("0.50"), Variable: decimal.RequireFromString("0.004")},
	domain.TransferTypeInstant:           {Base: decimal.RequireFromString("1.50"), Variable: decimal.RequireFromString("0.003")},
	domain.TransferTypeRemittance:        {Base: decimal.RequireFromString("5.00"), Variable: decimal.RequireFromString("0.004")},
	domain.TransferTypeCrypto:            {Base: decimal.RequireFromString("2.50"), Variable: decimal.RequireFromString("0.003")},
	domain.TransferTypeLinkedAccount:     {Base: decimal.Zero, Variable: decimal.Zero},
}

var defaultPrioritySurcharges = map[domain.TransferPriority]decimal.Decimal{
	domain.PriorityStandard: decimal.Zero,
	domain.PriorityExpress:  decimal.RequireFromString("2.00"),
	domain.PriorityUrgent:   decimal.RequireFromString("5.00"),
}

var defaultExchangeFeeRate = decimal.RequireFromString("0.005")

// FeeCalculator prices transfers from a fixed, named fee table. Fees are never capped.
type FeeCalculator struct {
	table           map[domain.TransferType]domain.FeeRate
	surcharges      map[domain.TransferPriority]decimal.Decimal
	exchangeFeeRate decimal.Decimal
}

// NewFeeCalculator returns a calculator over the published fee table.
func NewFeeCalculator() *FeeCalculator {
	return &FeeCalculator{
		table:           defaultFeeTable,
		surcharges:      defaultPrioritySurcharges,
		exchangeFeeRate: defaultExchangeFeeRate,
	}
}

// TransferFee = base[type] + variable[type]*amount + surcharge[priority], rounded half-up to 2 places.
func (c *FeeCalculator) TransferFee(amount decimal.Decimal, transferType domain.TransferType, priority domain.TransferPriority) (decimal.Decimal, error) {
	rate, ok := c.table[transferType]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unsupported transfer type %q", apperrors.ErrValidation, transferType)
	}
	surcharge, ok := c.surcharges[priority]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unsupported priority %q", apperrors.ErrValidation, priority)
	}
	return rate.Base.Add(rate.Variable.Mul(amount)).Add(surcharge).Round(feeDecimals), nil
}

// ExchangeFee is charged only when the currencies differ.
func (c *FeeCalculator) ExchangeFee(amount decimal.Decimal, fromCurrency, toCurrency string) decimal.Decimal {
	if fromCurrency == toCurrency {
		return decimal.Zero
	}
	return amount.Mul(c.exchangeFeeRate).Round(feeDecimals)
}

// PrioritySurcharge returns the flat add-on for a priority; unknown priorities cost nothing extra.
func (c *FeeCalculator) PrioritySurcharge(priority domain.TransferPriority) decimal.Decimal {
	return c.surcharges[priority]
}

// Schedule returns the published pricing structure for a transfer type.
func (c *FeeCalculator) Schedule(transferType domain.TransferType, currencyPairs []string) (*domain.FeeSchedule, error) {
	rate, ok := c.table[transferType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported transfer type %q", apperrors.ErrValidation, transferType)
	}
	surcharges := make(map[domain.TransferPriority]decimal.Decimal, len(c.surcharges))
	for p, s := range c.surcharges {
		surcharges[p] = s
	}
	pairs := append([]string(nil), currencyPairs...)
	sort.Strings(pairs)
	return &domain.FeeSchedule{
		TransferType:       transferType,
		BaseFee:            rate.Base,
		VariableRate:       rate.Variable,
		ExchangeFeeRate:    c.exchangeFeeRate,
		PrioritySurcharges: surcharges,
		CurrencyPairs:      pairs,
	}, nil
}
