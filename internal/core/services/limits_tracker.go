package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// LimitCeilings are the per-user transfer ceilings, expressed in Currency.
type LimitCeilings struct {
	Currency    string
	Daily       decimal.Decimal
	Monthly     decimal.Decimal
	Annual      decimal.Decimal
	PerTransfer decimal.Decimal
}

// DefaultLimitCeilings returns the standard tier ceilings.
func DefaultLimitCeilings() LimitCeilings {
	return LimitCeilings{
		Currency:    defaultLimitsCurrency,
		Daily:       decimal.NewFromInt(10000),
		Monthly:     decimal.NewFromInt(50000),
		Annual:      decimal.NewFromInt(300000),
		PerTransfer: decimal.NewFromInt(25000),
	}
}

const (
	dailyWindow   = 24 * time.Hour
	monthlyWindow = 30 * 24 * time.Hour
	annualWindow  = 365 * 24 * time.Hour
)

const (
	usageUnavailable      = "usage unavailable"
	defaultLimitsCurrency = "USD"
)

// LimitsTracker evaluates requested amounts against rolling windows of historical volume.
// Amounts and volumes are compared in the ceilings' currency.
type LimitsTracker struct {
	BaseService
	ledger   portssvc.UserLedger
	ceilings LimitCeilings
	rates    portssvc.RateProvider
	now      func() time.Time
}

// LimitsTrackerOption configures a LimitsTracker.
type LimitsTrackerOption func(*LimitsTracker)

// WithLimitRates sets the rate source used to convert transfer amounts into the limits currency.
func WithLimitRates(rates portssvc.RateProvider) LimitsTrackerOption {
	return func(l *LimitsTracker) { l.rates = rates }
}

// NewLimitsTracker creates a LimitsTracker.
func NewLimitsTracker(ledger portssvc.UserLedger, ceilings LimitCeilings, now func() time.Time, opts ...LimitsTrackerOption) *LimitsTracker {
	if now == nil {
		now = time.Now
	}
	ceilings.Currency = strings.ToUpper(strings.TrimSpace(ceilings.Currency))
	if ceilings.Currency == "" {
		ceilings.Currency = defaultLimitsCurrency
	}
	l := &LimitsTracker{ledger: ledger, ceilings: ceilings, now: now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Currency is the currency the ceilings and recorded volumes are expressed in.
func (l *LimitsTracker) Currency() string {
	return l.ceilings.Currency
}

// ToBase converts amount, given in currency, into the limits currency.
func (l *LimitsTracker) ToBase(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	base := l.ceilings.Currency
	if strings.EqualFold(currency, base) {
		return amount, nil
	}
	if l.rates == nil {
		return decimal.Zero, fmt.Errorf("no rate source to convert %s into %s", currency, base)
	}
	// base->currency rather than its inverse: USD/JPY is 110 while JPY/USD rounds to 0.0091.
	rate, err := l.rates.GetRate(ctx, base, strings.ToUpper(currency))
	if err != nil {
		return decimal.Zero, err
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive rate for %s/%s", base, currency)
	}
	return domain.RoundToCurrency(amount.DivRound(rate, domain.CurrencyPrecision(base)+4), base), nil
}

type windowUsage struct {
	daily, monthly, annual decimal.Decimal
}

func (l *LimitsTracker) usage(ctx context.Context, userID string, at time.Time) (windowUsage, error) {
	var u windowUsage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		u.daily, err = l.ledger.TransferVolume(gctx, userID, at.Add(-dailyWindow))
		return err
	})
	g.Go(func() (err error) {
		u.monthly, err = l.ledger.TransferVolume(gctx, userID, at.Add(-monthlyWindow))
		return err
	})
	g.Go(func() (err error) {
		u.annual, err = l.ledger.TransferVolume(gctx, userID, at.Add(-annualWindow))
		return err
	})
	return u, g.Wait()
}

// Check returns one verdict per window for amount, already in the limits currency. When usage
// cannot be read every verdict is disallowed, so an unavailable ledger never lets a transfer through.
func (l *LimitsTracker) Check(ctx context.Context, userID string, amount decimal.Decimal) (*domain.LimitsCheck, error) {
	check := &domain.LimitsCheck{UserID: userID, Amount: amount, Currency: l.ceilings.Currency}

	check.Verdicts = append(check.Verdicts, verdict(domain.WindowPerTransfer, l.ceilings.PerTransfer, decimal.Zero, amount))

	u, err := l.usage(ctx, userID, l.now())
	if err != nil {
		l.LogError(ctx, err, "Failed to read transfer volume for limits", slog.String("user_id", userID))
		for _, w := range []struct {
			window domain.LimitWindow
			limit  decimal.Decimal
		}{
			{domain.WindowDaily, l.ceilings.Daily},
			{domain.WindowMonthly, l.ceilings.Monthly},
			{domain.WindowAnnual, l.ceilings.Annual},
		} {
			check.Verdicts = append(check.Verdicts, domain.LimitVerdict{
				Window:    w.window,
				Limit:     w.limit,
				Requested: amount,
				Allowed:   false,
				Reason:    usageUnavailable,
			})
		}
		return check, nil
	}

	check.Verdicts = append(check.Verdicts,
		verdict(domain.WindowDaily, l.ceilings.Daily, u.daily, amount),
		verdict(domain.WindowMonthly, l.ceilings.Monthly, u.monthly, amount),
		verdict(domain.WindowAnnual, l.ceilings.Annual, u.annual, amount),
	)
	return check, nil
}

func verdict(window domain.LimitWindow, limit, used, requested decimal.Decimal) domain.LimitVerdict {
	remaining := decimal.Max(limit.Sub(used), decimal.Zero)
	v := domain.LimitVerdict{
		Window:    window,
		Limit:     limit,
		Used:      used,
		Remaining: remaining,
		Requested: requested,
		Allowed:   used.Add(requested).LessThanOrEqual(limit),
	}
	if !v.Allowed {
		v.Reason = fmt.Sprintf("%s limit exceeded: %s used of %s, requested %s", window, used.StringFixed(2), limit.StringFixed(2), requested.StringFixed(2))
	}
	return v
}

// Limits returns the user's ceilings and current usage.
func (l *LimitsTracker) Limits(ctx context.Context, userID string) (*domain.LimitsWindow, error) {
	at := l.now().UTC()
	u, err := l.usage(ctx, userID, at)
	if err != nil {
		l.LogError(ctx, err, "Failed to read transfer volume", slog.String("user_id", userID))
		return nil, apperrors.NewExternalServiceError("transfer ledger", err)
	}
	remaining := func(limit, used decimal.Decimal) decimal.Decimal {
		return decimal.Max(limit.Sub(used), decimal.Zero)
	}
	return &domain.LimitsWindow{
		UserID:              userID,
		Currency:            l.ceilings.Currency,
		DailyLimit:          l.ceilings.Daily,
		MonthlyLimit:        l.ceilings.Monthly,
		AnnualLimit:         l.ceilings.Annual,
		SingleTransferLimit: l.ceilings.PerTransfer,
		DailyUsed:           u.daily,
		MonthlyUsed:         u.monthly,
		AnnualUsed:          u.annual,
		RemainingDaily:      remaining(l.ceilings.Daily, u.daily),
		RemainingMonthly:    remaining(l.ceilings.Monthly, u.monthly),
		RemainingAnnual:     remaining(l.ceilings.Annual, u.annual),
		ComputedAt:          at,
	}, nil
}
