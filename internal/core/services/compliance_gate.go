package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/shopspring/decimal"
)

// ThresholdComplianceGate screens transfers by beneficiary country and an optional amount cap.
type ThresholdComplianceGate struct {
	BaseService
	blocked   map[string]bool
	maxAmount decimal.Decimal
}

var _ portssvc.ComplianceGate = (*ThresholdComplianceGate)(nil)

// NewThresholdComplianceGate blocks the listed ISO 3166 country codes. maxAmount is in the limits
// currency; zero disables the cap.
func NewThresholdComplianceGate(blockedCountries []string, maxAmount decimal.Decimal) *ThresholdComplianceGate {
	blocked := make(map[string]bool, len(blockedCountries))
	for _, c := range blockedCountries {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			blocked[c] = true
		}
	}
	return &ThresholdComplianceGate{blocked: blocked, maxAmount: maxAmount}
}

func (g *ThresholdComplianceGate) Check(ctx context.Context, intent domain.TransferIntent) (bool, error) {
	if g.blocked[strings.ToUpper(intent.BeneficiaryCountry)] {
		g.LogWarn(ctx, "Compliance screen blocked beneficiary country",
			slog.String("beneficiary_id", intent.BeneficiaryID),
			slog.String("country", intent.BeneficiaryCountry))
		return false, nil
	}
	amount := intent.BaseAmount
	if amount.IsZero() {
		amount = intent.Amount
	}
	if g.maxAmount.IsPositive() && amount.GreaterThan(g.maxAmount) {
		g.LogWarn(ctx, "Compliance screen blocked amount",
			slog.String("user_id", intent.UserID),
			slog.String("amount", amount.String()))
		return false, nil
	}
	return true, nil
}
