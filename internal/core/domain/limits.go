package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LimitWindow names a rolling spend window.
type LimitWindow string

const (
	WindowDaily       LimitWindow = "daily"
	WindowMonthly     LimitWindow = "monthly"
	WindowAnnual      LimitWindow = "annual"
	WindowPerTransfer LimitWindow = "per_transfer"
)

// LimitVerdict is the outcome for one window.
type LimitVerdict struct {
	Window    LimitWindow     `json:"window"`
	Limit     decimal.Decimal `json:"limit"`
	Used      decimal.Decimal `json:"used"`
	Remaining decimal.Decimal `json:"remaining"`
	Requested decimal.Decimal `json:"requested"`
	Allowed   bool            `json:"allowed"`
	Reason    string          `json:"reason,omitempty"`
}

// LimitsCheck is the full verdict for a prospective transfer.
type LimitsCheck struct {
	UserID   string          `json:"userID"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Verdicts []LimitVerdict  `json:"verdicts"`
}

// Allowed is true only when every window allows the amount.
func (c LimitsCheck) Allowed() bool {
	for _, v := range c.Verdicts {
		if !v.Allowed {
			return false
		}
	}
	return true
}

// FirstViolation returns the first rejecting verdict, if any.
func (c LimitsCheck) FirstViolation() (LimitVerdict, bool) {
	for _, v := range c.Verdicts {
		if !v.Allowed {
			return v, true
		}
	}
	return LimitVerdict{}, false
}

// LimitsWindow is the per-user view of ceilings and usage, recomputed from the ledger on every read.
type LimitsWindow struct {
	UserID              string          `json:"userID"`
	Currency            string          `json:"currency"`
	DailyLimit          decimal.Decimal `json:"dailyLimit"`
	MonthlyLimit        decimal.Decimal `json:"monthlyLimit"`
	AnnualLimit         decimal.Decimal `json:"annualLimit"`
	SingleTransferLimit decimal.Decimal `json:"singleTransferLimit"`
	DailyUsed           decimal.Decimal `json:"dailyUsed"`
	MonthlyUsed         decimal.Decimal `json:"monthlyUsed"`
	AnnualUsed          decimal.Decimal `json:"annualUsed"`
	RemainingDaily      decimal.Decimal `json:"remainingDaily"`
	RemainingMonthly    decimal.Decimal `json:"remainingMonthly"`
	RemainingAnnual     decimal.Decimal `json:"remainingAnnual"`
	ComputedAt          time.Time       `json:"computedAt"`
}
