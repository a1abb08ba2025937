package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_engine/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// documentsThreshold is the source amount from which supporting documents are requested.
var documentsThreshold = decimal.NewFromInt(10000)

// TransferDetails are the caller-supplied fields recorded on a new transfer.
type TransferDetails struct {
	Purpose          string
	Reference        string
	RecipientMessage string
}

// TransferStateMachine owns every status change of a MoneyTransfer. Each transition runs
// under the repository's per-transfer lock, appends one history entry and emits one event.
type TransferStateMachine struct {
	BaseService
	repo       portsrepo.TransferRepositoryFacade
	limits     *LimitsTracker
	compliance portssvc.ComplianceGate
	router     portssvc.SettlementRouter
	publisher  portssvc.EventPublisher
	now        func() time.Time
	newID      func() string
}

// NewTransferStateMachine creates a TransferStateMachine.
func NewTransferStateMachine(
	repo portsrepo.TransferRepositoryFacade,
	limits *LimitsTracker,
	compliance portssvc.ComplianceGate,
	router portssvc.SettlementRouter,
	publisher portssvc.EventPublisher,
	now func() time.Time,
) *TransferStateMachine {
	if now == nil {
		now = time.Now
	}
	return &TransferStateMachine{
		repo:       repo,
		limits:     limits,
		compliance: compliance,
		router:     router,
		publisher:  publisher,
		now:        now,
		newID:      uuid.NewString,
	}
}

// Create validates the quote against the current state of the world and stores a PENDING
// transfer, consuming the quote batch in the same store operation.
func (m *TransferStateMachine) Create(
	ctx context.Context,
	quote domain.TransferQuote,
	beneficiary domain.Beneficiary,
	source domain.AccountBalance,
	details TransferDetails,
) (*domain.MoneyTransfer, error) {
	now := m.now().UTC()

	if quote.IsExpired(now) {
		return nil, apperrors.NewBusinessRuleError(fmt.Sprintf(
			"quote %s expired at %s, request a new quote", quote.QuoteID, quote.ExpiresAt.UTC().Format(time.RFC3339)))
	}
	if quote.IsConsumed() {
		return nil, apperrors.NewBusinessRuleError(fmt.Sprintf("quote %s has already been used", quote.QuoteID))
	}
	if !beneficiary.IsVerified() {
		return nil, apperrors.NewBusinessRuleError(fmt.Sprintf(
			"beneficiary %s is not verified (status %s)", beneficiary.BeneficiaryID, beneficiary.Status))
	}

	// The rate lookup happens here, outside the admission lock taken by CreateTransfer.
	baseAmount, err := m.limits.ToBase(ctx, quote.FromAmount, quote.FromCurrency)
	if err != nil {
		m.LogError(ctx, err, "Failed to convert amount for limits", slog.String("quote_id", quote.QuoteID))
		return nil, apperrors.NewBusinessRuleError(fmt.Sprintf(
			"transfer limits could not be evaluated for %s %s, try again later",
			quote.FromAmount.String(), quote.FromCurrency))
	}

	passed, err := m.compliance.Check(ctx, domain.TransferIntent{
		UserID:             quote.UserID,
		SourceAccountID:    quote.SourceAccountID,
		BeneficiaryID:      beneficiary.BeneficiaryID,
		BeneficiaryCountry: beneficiary.Country,
		TransferType:       quote.TransferType,
		Amount:             quote.FromAmount,
		BaseAmount:         baseAmount,
		FromCurrency:       quote.FromCurrency,
		ToCurrency:         quote.ToCurrency,
		Purpose:            details.Purpose,
	})
	if err != nil {
		return nil, apperrors.NewExternalServiceError("compliance", err)
	}
	if !passed {
		return nil, apperrors.NewBusinessRuleError("transfer did not pass compliance screening")
	}

	if source.CurrencyCode != quote.FromCurrency {
		return nil, fmt.Errorf("%w: source account currency %s does not match quote currency %s",
			apperrors.ErrValidation, source.CurrencyCode, quote.FromCurrency)
	}
	if source.Available.LessThan(quote.TotalCost) {
		return nil, apperrors.NewBusinessRuleError(fmt.Sprintf(
			"insufficient funds: available %s, required %s", source.Available.StringFixed(2), quote.TotalCost.StringFixed(2)))
	}

	backend, err := m.router.BackendFor(quote.TransferType)
	if err != nil {
		return nil, err
	}
	eta := now.Add(backend.ExpectedTurnaround())

	t := domain.MoneyTransfer{
		TransferID:            m.newID(),
		UserID:                quote.UserID,
		SourceAccountID:       quote.SourceAccountID,
		BeneficiaryID:         beneficiary.BeneficiaryID,
		TransferType:          quote.TransferType,
		Priority:              quote.Priority,
		SourceAmount:          quote.FromAmount,
		SourceCurrency:        quote.FromCurrency,
		BaseAmount:            baseAmount,
		BaseCurrency:          m.limits.Currency(),
		DestinationAmount:     quote.ToAmount,
		DestinationCurrency:   quote.ToCurrency,
		ExchangeRateUsed:      quote.RateValue(),
		TransferFee:           quote.TransferFee,
		ExchangeFee:           quote.ExchangeFee,
		TotalFees:             quote.TotalFees,
		TotalCost:             quote.TotalCost,
		Purpose:               details.Purpose,
		Reference:             details.Reference,
		RecipientMessage:      details.RecipientMessage,
		QuoteID:               quote.QuoteID,
		ComplianceCheckPassed: true,
		RequiresDocuments:     quote.FromAmount.GreaterThanOrEqual(documentsThreshold),
		CreatedAt:             now,
		EstimatedArrival:      &eta,
	}
	t.Start(now)

	admit := func(ctx context.Context) error {
		return m.admit(ctx, quote.QuoteID, quote.UserID, baseAmount)
	}
	if err := m.repo.CreateTransfer(ctx, t, admit); err != nil {
		return nil, err
	}

	m.LogInfo(ctx, "Transfer created",
		slog.String("transfer_id", t.TransferID),
		slog.String("quote_id", t.QuoteID),
		slog.String("total_cost", t.TotalCost.String()))
	m.publish(ctx, t, "")

	return &t, nil
}

// admit checks the limits while the user's admission lock is held, so concurrent initiations
// cannot jointly exceed a ceiling.
func (m *TransferStateMachine) admit(ctx context.Context, quoteID, userID string, baseAmount decimal.Decimal) error {
	check, err := m.limits.Check(ctx, userID, baseAmount)
	if err != nil {
		return err
	}
	if v, violated := check.FirstViolation(); violated {
		m.LogWarn(ctx, "Transfer rejected by limits",
			slog.String("quote_id", quoteID),
			slog.String("window", string(v.Window)),
			slog.String("reason", v.Reason))
		return apperrors.NewBusinessRuleError(fmt.Sprintf(
			"%s limit exceeded: current %s, limit %s, requested %s %s",
			v.Window, v.Used.StringFixed(2), v.Limit.StringFixed(2), v.Requested.StringFixed(2), check.Currency))
	}
	return nil
}

// apply runs mutate under the transfer lock and emits an event when the status changed.
func (m *TransferStateMachine) apply(ctx context.Context, transferID string, mutate portsrepo.TransferMutation) (*domain.MoneyTransfer, bool, error) {
	var previous domain.TransferStatus
	t, applied, err := m.repo.UpdateTransfer(ctx, transferID, func(t *domain.MoneyTransfer) (bool, error) {
		previous = t.Status
		return mutate(t)
	})
	if err != nil {
		return nil, false, err
	}
	if applied && t.Status != previous {
		m.publish(ctx, *t, previous)
	}
	return t, applied, nil
}

// transition moves t to next when allowed. A refused transition is reported as not applied.
func (m *TransferStateMachine) transition(t *domain.MoneyTransfer, next domain.TransferStatus, reason string) bool {
	if err := t.TransitionTo(next, m.now().UTC(), reason); err != nil {
		return false
	}
	return true
}

// Submit claims the transfer for dispatch (PENDING -> PROCESSING) and hands it to the rail
// chosen by its type. Only the caller that wins the claim talks to the rail; everyone else
// gets a nil receipt. A rail error marks the transfer FAILED.
func (m *TransferStateMachine) Submit(ctx context.Context, transferID string) (*domain.SettlementReceipt, error) {
	var backend portssvc.SettlementBackend
	claimed, applied, err := m.apply(ctx, transferID, func(t *domain.MoneyTransfer) (bool, error) {
		b, err := m.router.BackendFor(t.TransferType)
		if err != nil {
			return false, err
		}
		switch {
		case t.Status == domain.StatusPending:
			if !m.transition(t, domain.StatusProcessing, "submitted to "+b.Name()) {
				return false, nil
			}
		case t.Status == domain.StatusProcessing && t.Backend == "":
			// released from hold before it was ever dispatched
		default:
			return false, nil
		}
		t.Backend = b.Name()
		backend = b
		return true, nil
	})
	if err != nil || !applied {
		return nil, err
	}

	// The rail is called outside the transfer lock.
	receipt, err := m.dispatch(ctx, backend, *claimed)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		m.LogError(ctx, err, "Settlement dispatch failed",
			slog.String("transfer_id", transferID),
			slog.String("backend", backend.Name()))
		if _, _, ferr := m.failDispatch(ctx, transferID, "dispatch failed: "+err.Error()); ferr != nil {
			m.LogError(ctx, ferr, "Failed to record dispatch failure", slog.String("transfer_id", transferID))
		}
		return nil, err
	}

	_, recorded, err := m.repo.UpdateTransfer(ctx, transferID, func(t *domain.MoneyTransfer) (bool, error) {
		if t.ExternalReference != "" {
			return false, nil
		}
		t.ExternalReference = receipt.ExternalReference
		return true, nil
	})
	if err != nil {
		m.LogWarn(ctx, "Failed to record external reference",
			slog.String("transfer_id", transferID),
			slog.String("external_reference", receipt.ExternalReference),
			slog.String("error", err.Error()))
	} else if !recorded {
		m.LogWarn(ctx, "External reference already set",
			slog.String("transfer_id", transferID),
			slog.String("external_reference", receipt.ExternalReference))
	}

	return receipt, nil
}

// failDispatch records a dispatch whose retries are exhausted. A transfer still in PROCESSING
// fails. One put on hold while the rail was being called forgets the dispatch, so release
// submits it again.
func (m *TransferStateMachine) failDispatch(ctx context.Context, transferID, reason string) (*domain.MoneyTransfer, bool, error) {
	return m.apply(ctx, transferID, func(t *domain.MoneyTransfer) (bool, error) {
		switch t.Status {
		case domain.StatusProcessing:
			if !m.transition(t, domain.StatusFailed, reason) {
				return false, nil
			}
			t.FailureReason = reason
			return true, nil
		case domain.StatusOnHold:
			if t.Backend == "" {
				return false, nil
			}
			m.LogWarn(ctx, "Dispatch failed while on hold, will resubmit on release",
				slog.String("transfer_id", transferID),
				slog.String("backend", t.Backend))
			t.Backend = ""
			return true, nil
		default:
			return false, nil
		}
	})
}

func (m *TransferStateMachine) dispatch(ctx context.Context, backend portssvc.SettlementBackend, t domain.MoneyTransfer) (*domain.SettlementReceipt, error) {
	if err := backend.Authorize(ctx, t); err != nil {
		return nil, err
	}
	receipt, err := backend.Submit(ctx, t)
	if err != nil {
		return nil, err
	}
	if receipt == nil || receipt.ExternalReference == "" {
		return nil, apperrors.NewExternalServiceError(backend.Name(), errors.New("empty settlement receipt"))
	}
	return receipt, nil
}

// Acknowledge records that the rail accepted the transfer (PROCESSING -> IN_TRANSIT).
func (m *TransferStateMachine) Acknowledge(ctx context.Context, transferID, externalReference string, eta time.Time) (*domain.MoneyTransfer, bool, error) {
	return m.apply(ctx, transferID, func(t *domain.MoneyTransfer) (bool, error) {
		if t.Status != domain.StatusProcessing {
			return false, nil
		}
		if t.ExternalReference == "" {
			t.ExternalReference = externalReference
		}
		if !m.transition(t, domain.StatusInTransit, "accepted by "+t.Backend) {
			return false, nil
		}
		processedAt := t.LastTransitionAt()
		t.ProcessedAt = &processedAt
		if !eta.IsZero() {
			arrival := eta.UTC()
			t.EstimatedArrival = &arrival
		}
		return true, nil
	})
}

// Settle applies the rail's final outcome. It is a silent no-op when the transfer already
// reached a terminal state or cannot move to the outcome's status from where it is.
func (m *TransferStateMachine) Settle(ctx context.Context, transferID string, result domain.SettlementResult) (*domain.MoneyTransfer, bool, error) {
	return m.apply(ctx, transferID, func(t *domain.MoneyTransfer) (bool, error) {
		target := result.Outcome.TargetStatus()
		if t.Status.IsTerminal() || !t.Status.CanTransitionTo(target) {
			return false, nil
		}
		reason := result.Reason
		if target == domain.StatusCompleted && reason == "" {
			reason = "settled"
		}
		if !m.transition(t, target, reason) {
			return false, nil
		}
		switch target {
		case domain.StatusCompleted:
			completedAt := t.LastTransitionAt()
			t.CompletedAt = &completedAt
		case domain.StatusFailed, domain.StatusReturned:
			t.FailureReason = result.Reason
		}
		return true, nil
	})
}

// Cancel moves a non-terminal transfer to CANCELLED. Losing the race against settlement is
// reported as not applied, without an error.
func (m *TransferStateMachine) Cancel(ctx context.Context, transferID, reason string, refundFees bool) (*domain.MoneyTransfer, bool, error) {
	return m.apply(ctx, transferID, func(t *domain.MoneyTransfer) (bool, error) {
		if !m.transition(t, domain.StatusCancelled, reason) {
			return false, nil
		}
		t.CancellationReason = reason
		t.FeesRefunded = refundFees
		return true, nil
	})
}

// Hold parks a non-terminal transfer for manual review.
func (m *TransferStateMachine) Hold(ctx context.Context, transferID, reason string) (*domain.MoneyTransfer, bool, error) {
	return m.apply(ctx, transferID, func(t *domain.MoneyTransfer) (bool, error) {
		if t.Status == domain.StatusOnHold {
			return false, nil
		}
		return m.transition(t, domain.StatusOnHold, reason), nil
	})
}

// Release returns a held transfer to PROCESSING.
func (m *TransferStateMachine) Release(ctx context.Context, transferID string) (*domain.MoneyTransfer, bool, error) {
	return m.apply(ctx, transferID, func(t *domain.MoneyTransfer) (bool, error) {
		if t.Status != domain.StatusOnHold {
			return false, nil
		}
		return m.transition(t, domain.StatusProcessing, "released from hold"), nil
	})
}

func (m *TransferStateMachine) publish(ctx context.Context, t domain.MoneyTransfer, previous domain.TransferStatus) {
	var reason string
	if n := len(t.StatusHistory); n > 0 {
		reason = t.StatusHistory[n-1].Reason
	}
	event := domain.TransferStatusEvent{
		EventID:           m.newID(),
		TransferID:        t.TransferID,
		UserID:            t.UserID,
		Status:            t.Status,
		PreviousStatus:    previous,
		TransferType:      t.TransferType,
		Amount:            t.SourceAmount,
		Currency:          t.SourceCurrency,
		ExternalReference: t.ExternalReference,
		Reason:            reason,
		OccurredAt:        t.LastTransitionAt(),
	}
	if err := m.publisher.PublishTransferEvent(ctx, event); err != nil {
		m.LogWarn(ctx, "Failed to publish transfer event",
			slog.String("transfer_id", t.TransferID),
			slog.String("status", string(t.Status)),
			slog.String("error", err.Error()))
	}
}
