package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_engine/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_engine/internal/dto"
	"github.com/SscSPs/money_transfer_engine/internal/middleware"
)

const (
	defaultListLimit   = 20
	trackingUpdateStep = 15 * time.Minute
	indicativeRateTTL  = 15 * time.Minute
	defaultRateBase    = "USD"
)

var defaultCorridors = []domain.Corridor{
	{
		FromCountry:            "US",
		ToCountry:              "GB",
		SupportedTransferTypes: []domain.TransferType{domain.TransferTypeInternationalWire, domain.TransferTypeRemittance},
		AverageDeliveryTime:    "1-2 business days",
		ComplianceLevel:        "standard",
	},
	{
		FromCountry:            "US",
		ToCountry:              "NG",
		SupportedTransferTypes: []domain.TransferType{domain.TransferTypeRemittance, domain.TransferTypeMobileMoney},
		AverageDeliveryTime:    "minutes to 1 business day",
		ComplianceLevel:        "enhanced",
	},
	{
		FromCountry:            "GB",
		ToCountry:              "EU",
		SupportedTransferTypes: []domain.TransferType{domain.TransferTypeInternationalWire, domain.TransferTypeInstant},
		AverageDeliveryTime:    "same day",
		ComplianceLevel:        "standard",
	},
}

// TransferServiceDeps lists the collaborators of transferService.
type TransferServiceDeps struct {
	Accounts      portssvc.AccountService
	Beneficiaries portssvc.BeneficiaryStore
	Quotes        portsrepo.QuoteRepositoryFacade
	Transfers     portsrepo.TransferReader
	Rates         portssvc.RateLister
	Engine        *QuoteEngine
	Fees          *FeeCalculator
	Limits        *LimitsTracker
	StateMachine  *TransferStateMachine
	Worker        *SettlementWorker
	Now           func() time.Time
}

type transferService struct {
	BaseService
	accounts      portssvc.AccountService
	beneficiaries portssvc.BeneficiaryStore
	quotes        portsrepo.QuoteRepositoryFacade
	transfers     portsrepo.TransferReader
	rates         portssvc.RateLister
	engine        *QuoteEngine
	fees          *FeeCalculator
	limits        *LimitsTracker
	sm            *TransferStateMachine
	worker        *SettlementWorker
	now           func() time.Time
}

var _ portssvc.TransferSvcFacade = (*transferService)(nil)

// NewTransferService creates the transfer orchestrator.
func NewTransferService(deps TransferServiceDeps) portssvc.TransferSvcFacade {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &transferService{
		accounts:      deps.Accounts,
		beneficiaries: deps.Beneficiaries,
		quotes:        deps.Quotes,
		transfers:     deps.Transfers,
		rates:         deps.Rates,
		engine:        deps.Engine,
		fees:          deps.Fees,
		limits:        deps.Limits,
		sm:            deps.StateMachine,
		worker:        deps.Worker,
		now:           now,
	}
}

// CreateQuote checks ownership of the source account and beneficiary, prices the request and
// stores the batch so any one of its quotes can be initiated later.
func (s *transferService) CreateQuote(ctx context.Context, userID string, req dto.CreateQuoteRequest) (*domain.QuoteBatch, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if err := s.accounts.ValidateOwnership(ctx, req.SourceAccountID, userID); err != nil {
		return nil, err
	}
	balance, err := s.accounts.AvailableBalance(ctx, req.SourceAccountID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(balance.CurrencyCode, req.FromCurrency) {
		return nil, fmt.Errorf("%w: source account is denominated in %s, not %s",
			apperrors.ErrValidation, balance.CurrencyCode, req.FromCurrency)
	}
	if _, err := s.ownedBeneficiary(ctx, userID, req.BeneficiaryID); err != nil {
		return nil, err
	}

	batch, err := s.engine.CreateQuote(ctx, domain.QuoteRequest{
		UserID:          userID,
		SourceAccountID: req.SourceAccountID,
		BeneficiaryID:   req.BeneficiaryID,
		Amount:          req.Amount,
		FromCurrency:    req.FromCurrency,
		ToCurrency:      req.ToCurrency,
		TransferType:    domain.TransferType(req.TransferType),
		Priority:        domain.TransferPriority(req.Priority),
	})
	if err != nil {
		return nil, err
	}

	if err := s.quotes.SaveQuoteBatch(ctx, *batch); err != nil {
		logger.Error("Failed to save quote batch in repository", slog.String("error", err.Error()), slog.String("batch_id", batch.Primary.BatchID))
		return nil, fmt.Errorf("failed to save quote: %w", err)
	}

	logger.Info("Quote created",
		slog.String("quote_id", batch.Primary.QuoteID),
		slog.String("from", batch.Primary.FromCurrency),
		slog.String("to", batch.Primary.ToCurrency),
		slog.String("total_cost", batch.Primary.TotalCost.String()))
	return batch, nil
}

func (s *transferService) ownedBeneficiary(ctx context.Context, userID, beneficiaryID string) (*domain.Beneficiary, error) {
	b, err := s.beneficiaries.GetBeneficiary(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("beneficiary %s not found", beneficiaryID))
	}
	return b, nil
}

// InitiateTransfer executes a quote. The quote batch is consumed and the transfer stored in one
// repository operation; settlement is scheduled once the transfer exists.
func (s *transferService) InitiateTransfer(ctx context.Context, userID, quoteID string, req dto.InitiateTransferRequest) (*domain.MoneyTransfer, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	quote, err := s.quotes.FindQuoteByID(ctx, quoteID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			logger.Error("Failed to find quote in repository", slog.String("error", err.Error()), slog.String("quote_id", quoteID))
		}
		return nil, err
	}
	if quote.UserID != userID {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("quote %s not found", quoteID))
	}

	if err := s.accounts.ValidateOwnership(ctx, quote.SourceAccountID, userID); err != nil {
		return nil, err
	}
	beneficiary, err := s.ownedBeneficiary(ctx, userID, quote.BeneficiaryID)
	if err != nil {
		return nil, err
	}
	balance, err := s.accounts.AvailableBalance(ctx, quote.SourceAccountID)
	if err != nil {
		return nil, err
	}

	transfer, err := s.sm.Create(ctx, *quote, *beneficiary, *balance, TransferDetails{
		Purpose:          req.Purpose,
		Reference:        req.Reference,
		RecipientMessage: req.RecipientMessage,
	})
	if err != nil {
		return nil, err
	}

	s.worker.Schedule(ctx, transfer.TransferID)
	return transfer, nil
}

func (s *transferService) ownedTransfer(ctx context.Context, userID, transferID string) (*domain.MoneyTransfer, error) {
	t, err := s.transfers.FindTransferByID(ctx, transferID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to find transfer in repository", slog.String("transfer_id", transferID))
		}
		return nil, err
	}
	if t.UserID != userID {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("transfer %s not found", transferID))
	}
	return t, nil
}

// CancelTransfer cancels a non-terminal transfer. When settlement wins the race the settled
// snapshot is returned unchanged.
func (s *transferService) CancelTransfer(ctx context.Context, userID, transferID string, req dto.CancelTransferRequest) (*domain.MoneyTransfer, error) {
	current, err := s.ownedTransfer(ctx, userID, transferID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, apperrors.NewBusinessRuleError(fmt.Sprintf(
			"transfer %s is already %s and cannot be cancelled", transferID, current.Status))
	}

	t, applied, err := s.sm.Cancel(ctx, transferID, req.Reason, req.RefundFees)
	if err != nil {
		return nil, err
	}
	if applied {
		s.LogInfo(ctx, "Transfer cancelled", slog.String("transfer_id", transferID), slog.Bool("refund_fees", req.RefundFees))
		s.worker.Notify(transferID)
	} else {
		s.LogInfo(ctx, "Cancel lost to a concurrent transition", slog.String("transfer_id", transferID), slog.String("status", string(t.Status)))
	}
	return t, nil
}

// TrackTransfer returns a read-only snapshot with its history and delivery estimates.
func (s *transferService) TrackTransfer(ctx context.Context, userID, transferID string) (*domain.TrackingInfo, error) {
	t, err := s.ownedTransfer(ctx, userID, transferID)
	if err != nil {
		return nil, err
	}

	info := &domain.TrackingInfo{
		Transfer: *t,
		Events:   append([]domain.StatusHistoryEntry(nil), t.StatusHistory...),
	}
	if t.Status.IsTerminal() {
		info.EstimatedCompletion = t.CompletedAt
		return info, nil
	}
	info.EstimatedCompletion = t.EstimatedArrival
	next := s.now().UTC().Add(trackingUpdateStep)
	info.NextUpdate = &next
	return info, nil
}

// ListTransfers returns one newest-first page of the user's transfers.
func (s *transferService) ListTransfers(ctx context.Context, userID string, params dto.ListTransfersParams) (*domain.TransferPage, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	var status *domain.TransferStatus
	if params.Status != "" {
		st, err := domain.ParseTransferStatus(params.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		status = &st
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := max(params.Offset, 0)

	transfers, total, err := s.transfers.ListTransfersByUser(ctx, userID, status, limit, offset)
	if err != nil {
		logger.Error("Failed to list transfers from repository", slog.String("error", err.Error()), slog.Int("limit", limit), slog.Int("offset", offset))
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	pending, err := s.transfers.CountPendingTransfers(ctx, userID)
	if err != nil {
		logger.Error("Failed to count pending transfers", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to count pending transfers: %w", err)
	}
	if transfers == nil {
		transfers = []domain.MoneyTransfer{}
	}

	return &domain.TransferPage{
		Transfers:    transfers,
		TotalCount:   total,
		PendingCount: pending,
		Limit:        limit,
		Offset:       offset,
	}, nil
}

func (s *transferService) GetLimits(ctx context.Context, userID string) (*domain.LimitsWindow, error) {
	return s.limits.Limits(ctx, userID)
}

func (s *transferService) GetFeeSchedule(ctx context.Context, transferType domain.TransferType) (*domain.FeeSchedule, error) {
	if !transferType.IsValid() {
		return nil, fmt.Errorf("%w: unsupported transfer type %q", apperrors.ErrValidation, transferType)
	}
	var pairs []string
	rates, err := s.rates.ListRates(ctx, defaultRateBase)
	if err != nil {
		s.LogWarn(ctx, "Currency pairs unavailable for fee schedule", slog.String("error", err.Error()))
	}
	for code := range rates {
		pairs = append(pairs, defaultRateBase+"/"+code)
	}
	return s.fees.Schedule(transferType, pairs)
}

// GetExchangeRates lists indicative rates from base, sorted by quote currency.
func (s *transferService) GetExchangeRates(ctx context.Context, base string, symbols []string) ([]domain.ExchangeRate, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		base = defaultRateBase
	}
	rates, err := s.rates.ListRates(ctx, base)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			wanted[sym] = true
		}
	}

	validUntil := s.now().UTC().Add(indicativeRateTTL)
	out := make([]domain.ExchangeRate, 0, len(rates))
	for code, rate := range rates {
		if len(wanted) > 0 && !wanted[code] {
			continue
		}
		out = append(out, domain.NewExchangeRate(base, code, rate, validUntil))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToCurrency < out[j].ToCurrency })
	return out, nil
}

func (s *transferService) GetCorridors(ctx context.Context) []domain.Corridor {
	out := make([]domain.Corridor, len(defaultCorridors))
	copy(out, defaultCorridors)
	return out
}

// HoldTransfer parks a transfer for manual review. Settlement pauses until release.
func (s *transferService) HoldTransfer(ctx context.Context, transferID, reason string) (*domain.MoneyTransfer, error) {
	t, applied, err := s.sm.Hold(ctx, transferID, reason)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, apperrors.NewBusinessRuleError(fmt.Sprintf("transfer %s cannot be held in status %s", transferID, t.Status))
	}
	s.LogInfo(ctx, "Transfer placed on hold", slog.String("transfer_id", transferID), slog.String("reason", reason))
	s.worker.Notify(transferID)
	return t, nil
}

// ReleaseTransfer resumes a held transfer.
func (s *transferService) ReleaseTransfer(ctx context.Context, transferID string) (*domain.MoneyTransfer, error) {
	t, applied, err := s.sm.Release(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, apperrors.NewBusinessRuleError(fmt.Sprintf("transfer %s is not on hold (status %s)", transferID, t.Status))
	}
	s.LogInfo(ctx, "Transfer released from hold", slog.String("transfer_id", transferID))
	if !s.worker.Schedule(ctx, transferID) {
		s.worker.Notify(transferID)
	}
	return t, nil
}
