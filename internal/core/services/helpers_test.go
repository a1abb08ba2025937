package services_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_engine/internal/core/services"
	"github.com/SscSPs/money_transfer_engine/internal/repositories/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

const (
	testUser       = "user-1"
	otherUser      = "user-2"
	usdAccount     = "acc-usd"
	jpyAccount     = "acc-jpy"
	eurBeneficiary = "ben-eur"
	unverifiedBen  = "ben-pending"
)

var baseTime = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// --- Clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Settlement rail ---

// scriptedRail settles every submission with outcome, or holds the completion channel open
// for the test to resolve when outcome is empty.
type scriptedRail struct {
	mu          sync.Mutex
	outcome     domain.SettlementOutcome
	submitErr   error
	submits     map[string]int
	completions map[string]chan domain.SettlementResult
	gate        chan struct{}
}

func newScriptedRail(outcome domain.SettlementOutcome) *scriptedRail {
	return &scriptedRail{
		outcome:     outcome,
		submits:     make(map[string]int),
		completions: make(map[string]chan domain.SettlementResult),
	}
}

var _ portssvc.SettlementBackend = (*scriptedRail)(nil)

func (r *scriptedRail) Name() string                      { return "test_rail" }
func (r *scriptedRail) ExpectedTurnaround() time.Duration { return 2 * time.Hour }

func (r *scriptedRail) Authorize(ctx context.Context, t domain.MoneyTransfer) error { return nil }

func (r *scriptedRail) Submit(ctx context.Context, t domain.MoneyTransfer) (*domain.SettlementReceipt, error) {
	r.mu.Lock()
	r.submits[t.TransferID]++
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitErr != nil {
		return nil, r.submitErr
	}
	ch := make(chan domain.SettlementResult, 1)
	if r.outcome != "" {
		ch <- domain.SettlementResult{Outcome: r.outcome, At: time.Now().UTC()}
		close(ch)
	} else {
		r.completions[t.TransferID] = ch
	}
	return &domain.SettlementReceipt{
		ExternalReference: "TR-" + t.TransferID,
		Backend:           r.Name(),
		ExpectedArrival:   time.Now().UTC().Add(r.ExpectedTurnaround()),
		Completion:        ch,
	}, nil
}

// Gate blocks every later Submit call until open is called.
func (r *scriptedRail) Gate() (open func()) {
	ch := make(chan struct{})
	r.mu.Lock()
	r.gate = ch
	r.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.gate = nil
			r.mu.Unlock()
			close(ch)
		})
	}
}

func (r *scriptedRail) SetSubmitErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitErr = err
}

func (r *scriptedRail) Submissions(transferID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submits[transferID]
}

// Complete resolves a held completion channel. It reports false if the transfer was never submitted.
func (r *scriptedRail) Complete(transferID string, result domain.SettlementResult) bool {
	r.mu.Lock()
	ch, ok := r.completions[transferID]
	delete(r.completions, transferID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- result
	close(ch)
	return true
}

type singleRailRouter struct {
	rail portssvc.SettlementBackend
}

func (r singleRailRouter) BackendFor(transferType domain.TransferType) (portssvc.SettlementBackend, error) {
	return r.rail, nil
}

// --- Event publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.TransferStatusEvent
}

func (p *recordingPublisher) PublishTransferEvent(ctx context.Context, event domain.TransferStatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) StatusesFor(transferID string) []domain.TransferStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.TransferStatus
	for _, e := range p.events {
		if e.TransferID == transferID {
			out = append(out, e.Status)
		}
	}
	return out
}

// --- Mocks ---

// MockUserLedger is a mock type for the UserLedger interface
type MockUserLedger struct {
	mock.Mock
}

func (m *MockUserLedger) TransferVolume(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, userID, since)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockRateProvider is a mock type for the RateProvider interface
type MockRateProvider struct {
	mock.Mock
}

func (m *MockRateProvider) GetRate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	args := m.Called(ctx, fromCurrency, toCurrency)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type stubCompliance struct {
	pass bool
	err  error
}

func (c stubCompliance) Check(ctx context.Context, intent domain.TransferIntent) (bool, error) {
	return c.pass, c.err
}

var errLedgerDown = errors.New("ledger unavailable")

type downLedger struct{}

func (downLedger) TransferVolume(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	return decimal.Zero, errLedgerDown
}

// --- Engine fixture ---

// engine wires the real services over the in-memory store.
type engine struct {
	clock     *fakeClock
	store     *memory.Store
	directory *memory.Directory
	rail      *scriptedRail
	publisher *recordingPublisher
	sm        *services.TransferStateMachine
	worker    *services.SettlementWorker
	svc       portssvc.TransferSvcFacade
}

type engineOptions struct {
	outcome    domain.SettlementOutcome
	ledger     portssvc.UserLedger
	compliance portssvc.ComplianceGate
	balance    decimal.Decimal
}

func newEngine(opts engineOptions) *engine {
	clock := newFakeClock(baseTime)
	store := memory.NewStore()

	directory := memory.NewDirectory()
	balance := opts.balance
	if balance.IsZero() {
		balance = decimal.NewFromInt(50000)
	}
	directory.PutAccount(memory.Account{AccountID: usdAccount, UserID: testUser, CurrencyCode: "USD", Available: balance})
	directory.PutAccount(memory.Account{AccountID: jpyAccount, UserID: testUser, CurrencyCode: "JPY", Available: decimal.NewFromInt(5000000)})
	directory.PutBeneficiary(domain.Beneficiary{
		BeneficiaryID: eurBeneficiary, UserID: testUser, DisplayName: "Anna Schmidt",
		Country: "DE", Currency: "EUR", IBAN: "DE89370400440532013000", Status: domain.BeneficiaryVerified,
	})
	directory.PutBeneficiary(domain.Beneficiary{
		BeneficiaryID: unverifiedBen, UserID: testUser, DisplayName: "New Payee",
		Country: "DE", Currency: "EUR", Status: domain.BeneficiaryPendingVerification,
	})

	var ledger portssvc.UserLedger = store
	if opts.ledger != nil {
		ledger = opts.ledger
	}
	var compliance portssvc.ComplianceGate = services.NewThresholdComplianceGate(nil, decimal.Zero)
	if opts.compliance != nil {
		compliance = opts.compliance
	}

	rail := newScriptedRail(opts.outcome)
	publisher := &recordingPublisher{}
	fees := services.NewFeeCalculator()
	rates := services.NewStaticRateProvider(nil)
	limits := services.NewLimitsTracker(ledger, services.DefaultLimitCeilings(), clock.Now, services.WithLimitRates(rates))
	sm := services.NewTransferStateMachine(store, limits, compliance, singleRailRouter{rail: rail}, publisher, clock.Now)
	worker := services.NewSettlementWorker(sm, store, 10*time.Millisecond)

	svc := services.NewTransferService(services.TransferServiceDeps{
		Accounts:      directory,
		Beneficiaries: directory,
		Quotes:        store,
		Transfers:     store,
		Rates:         rates,
		Engine:        services.NewQuoteEngine(rates, fees, services.WithQuoteClock(clock.Now)),
		Fees:          fees,
		Limits:        limits,
		StateMachine:  sm,
		Worker:        worker,
		Now:           clock.Now,
	})

	return &engine{
		clock:     clock,
		store:     store,
		directory: directory,
		rail:      rail,
		publisher: publisher,
		sm:        sm,
		worker:    worker,
		svc:       svc,
	}
}

func (e *engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = e.worker.Shutdown(ctx)
}

func (e *engine) status(transferID string) domain.TransferStatus {
	t, err := e.store.FindTransferByID(context.Background(), transferID)
	if err != nil {
		return ""
	}
	return t.Status
}

func historyStatuses(t *domain.MoneyTransfer) []domain.TransferStatus {
	out := make([]domain.TransferStatus, len(t.StatusHistory))
	for i, h := range t.StatusHistory {
		out[i] = h.Status
	}
	return out
}
