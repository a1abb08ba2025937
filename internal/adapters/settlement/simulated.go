// Package settlement contains the settlement rails a transfer can be dispatched to and the
// router that picks one by transfer type.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_engine/internal/middleware"
	"github.com/google/uuid"
)

// Rail names.
const (
	DomesticBankRail  = "domestic_bank"
	MobileMoneyRail   = "mobile_money"
	CardNetworkRail   = "card_network"
	LinkedAccountRail = "linked_account_ach"
)

// RailConfig configures one simulated rail.
type RailConfig struct {
	Name       string
	RefPrefix  string
	Latency    time.Duration
	Turnaround time.Duration

	// FailureRate and ReturnRate are probabilities in [0,1] of the final outcome.
	FailureRate float64
	ReturnRate  float64
	// SubmitErrorRate is the probability that the rail refuses a submission as temporarily
	// unavailable, before accepting it.
	SubmitErrorRate float64

	RequiresAuthorization bool
}

// SimulatedRail stands in for an external network. It accepts a transfer and reports the
// outcome on the receipt's completion channel after Latency.
type SimulatedRail struct {
	cfg    RailConfig
	random func() float64

	mu         sync.Mutex
	authorized map[string]bool
}

var _ portssvc.SettlementBackend = (*SimulatedRail)(nil)

// RailOption configures a SimulatedRail
type RailOption func(*SimulatedRail)

// WithRandom replaces the outcome source, mainly for tests.
func WithRandom(random func() float64) RailOption {
	return func(r *SimulatedRail) {
		r.random = random
	}
}

// NewSimulatedRail creates a rail from cfg.
func NewSimulatedRail(cfg RailConfig, opts ...RailOption) *SimulatedRail {
	r := &SimulatedRail{
		cfg:        cfg,
		random:     rand.Float64,
		authorized: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *SimulatedRail) Name() string {
	return r.cfg.Name
}

func (r *SimulatedRail) ExpectedTurnaround() time.Duration {
	return r.cfg.Turnaround
}

// Authorize approves immediately on single-phase rails. Two-phase rails remember the approval
// and refuse Submit without it.
func (r *SimulatedRail) Authorize(ctx context.Context, t domain.MoneyTransfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.cfg.RequiresAuthorization {
		return nil
	}
	r.mu.Lock()
	r.authorized[t.TransferID] = true
	r.mu.Unlock()
	middleware.GetLoggerFromCtx(ctx).Debug("Transfer authorized on rail",
		slog.String("rail", r.cfg.Name),
		slog.String("transfer_id", t.TransferID))
	return nil
}

func (r *SimulatedRail) Submit(ctx context.Context, t domain.MoneyTransfer) (*domain.SettlementReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.cfg.RequiresAuthorization {
		r.mu.Lock()
		ok := r.authorized[t.TransferID]
		delete(r.authorized, t.TransferID)
		r.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("%w: transfer %s submitted to %s without authorization", apperrors.ErrValidation, t.TransferID, r.cfg.Name)
		}
	}
	if r.cfg.SubmitErrorRate > 0 && r.random() < r.cfg.SubmitErrorRate {
		if r.cfg.RequiresAuthorization {
			r.mu.Lock()
			r.authorized[t.TransferID] = true
			r.mu.Unlock()
		}
		return nil, apperrors.NewExternalServiceError(r.cfg.Name, fmt.Errorf("rail temporarily unavailable"))
	}

	now := time.Now().UTC()
	ref := r.cfg.RefPrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
	completion := make(chan domain.SettlementResult, 1)
	outcome := r.decide()

	time.AfterFunc(r.cfg.Latency, func() {
		res := domain.SettlementResult{Outcome: outcome, At: time.Now().UTC()}
		switch outcome {
		case domain.OutcomeFailed:
			res.Reason = "rejected by " + r.cfg.Name
		case domain.OutcomeReturned:
			res.Reason = "returned by receiving institution"
		}
		completion <- res
		close(completion)
	})

	middleware.GetLoggerFromCtx(ctx).Info("Transfer submitted to rail",
		slog.String("rail", r.cfg.Name),
		slog.String("transfer_id", t.TransferID),
		slog.String("external_reference", ref))

	return &domain.SettlementReceipt{
		ExternalReference: ref,
		Backend:           r.cfg.Name,
		ExpectedArrival:   now.Add(r.cfg.Turnaround),
		Completion:        completion,
	}, nil
}

func (r *SimulatedRail) decide() domain.SettlementOutcome {
	roll := r.random()
	switch {
	case roll < r.cfg.FailureRate:
		return domain.OutcomeFailed
	case roll < r.cfg.FailureRate+r.cfg.ReturnRate:
		return domain.OutcomeReturned
	default:
		return domain.OutcomeSettled
	}
}
