package services

import (
	portsrepo "github.com/SscSPs/money_transfer_engine/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_engine/internal/platform/config"
)

// Dependencies are the adapters the transfer engine runs on.
type Dependencies struct {
	Repos         portsrepo.RepositoryProvider
	Accounts      portssvc.AccountService
	Beneficiaries portssvc.BeneficiaryStore
	Rates         portssvc.RateSource
	Router        portssvc.SettlementRouter
	Publisher     portssvc.EventPublisher
}

// NewServiceContainer creates a new service container with properly initialized dependencies
func NewServiceContainer(cfg *config.Config, deps Dependencies) *portssvc.ServiceContainer {
	fees := NewFeeCalculator()

	limits := NewLimitsTracker(deps.Repos.TransferRepo, LimitCeilings{
		Currency:    cfg.LimitsCurrency,
		Daily:       cfg.DailyLimit,
		Monthly:     cfg.MonthlyLimit,
		Annual:      cfg.AnnualLimit,
		PerTransfer: cfg.PerTransferLimit,
	}, nil, WithLimitRates(deps.Rates))

	compliance := NewThresholdComplianceGate(cfg.BlockedCountries, cfg.ComplianceMaxAmount)

	sm := NewTransferStateMachine(deps.Repos.TransferRepo, limits, compliance, deps.Router, deps.Publisher, nil)
	worker := NewSettlementWorker(sm, deps.Repos.TransferRepo, cfg.SettlementRetryInterval)

	transfer := NewTransferService(TransferServiceDeps{
		Accounts:      deps.Accounts,
		Beneficiaries: deps.Beneficiaries,
		Quotes:        deps.Repos.QuoteRepo,
		Transfers:     deps.Repos.TransferRepo,
		Rates:         deps.Rates,
		Engine:        NewQuoteEngine(deps.Rates, fees, WithQuoteTTL(cfg.QuoteTTL)),
		Fees:          fees,
		Limits:        limits,
		StateMachine:  sm,
		Worker:        worker,
	})

	return &portssvc.ServiceContainer{
		Transfer:   transfer,
		Settlement: worker,
	}
}

// Helper to check interface implementations at compile time
var (
	_ portssvc.TransferSvcFacade = (*transferService)(nil)
	_ portssvc.SettlementSvc     = (*SettlementWorker)(nil)
	_ portssvc.UserLedger        = (portsrepo.TransferReader)(nil)
)
