package settlement_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/adapters/settlement"
	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(v float64) func() float64 {
	return func() float64 { return v }
}

func awaitResult(t *testing.T, ch <-chan domain.SettlementResult) domain.SettlementResult {
	t.Helper()
	select {
	case res, ok := <-ch:
		require.True(t, ok, "completion closed without a result")
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("no settlement result")
		return domain.SettlementResult{}
	}
}

func TestSimulatedRail_SettlesAfterLatency(t *testing.T) {
	rail := settlement.NewSimulatedRail(settlement.RailConfig{
		Name:       settlement.CardNetworkRail,
		RefPrefix:  "CN",
		Latency:    10 * time.Millisecond,
		Turnaround: time.Minute,
	}, settlement.WithRandom(fixed(0.99)))

	tr := domain.MoneyTransfer{TransferID: "t1"}
	require.NoError(t, rail.Authorize(context.Background(), tr))
	receipt, err := rail.Submit(context.Background(), tr)
	require.NoError(t, err)

	assert.Regexp(t, `^CN[0-9A-F]{16}$`, receipt.ExternalReference)
	assert.Equal(t, settlement.CardNetworkRail, receipt.Backend)
	assert.Equal(t, domain.OutcomeSettled, awaitResult(t, receipt.Completion).Outcome)
}

func TestSimulatedRail_FailureAndReturnRates(t *testing.T) {
	cfg := settlement.RailConfig{Name: "r", Latency: time.Millisecond, FailureRate: 0.1, ReturnRate: 0.1}

	failing := settlement.NewSimulatedRail(cfg, settlement.WithRandom(fixed(0.05)))
	receipt, err := failing.Submit(context.Background(), domain.MoneyTransfer{TransferID: "t1"})
	require.NoError(t, err)
	res := awaitResult(t, receipt.Completion)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.NotEmpty(t, res.Reason)

	returning := settlement.NewSimulatedRail(cfg, settlement.WithRandom(fixed(0.15)))
	receipt, err = returning.Submit(context.Background(), domain.MoneyTransfer{TransferID: "t2"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReturned, awaitResult(t, receipt.Completion).Outcome)
}

func TestSimulatedRail_TwoPhaseRequiresAuthorization(t *testing.T) {
	rail := settlement.NewSimulatedRail(settlement.RailConfig{
		Name:                  settlement.LinkedAccountRail,
		RefPrefix:             "ACH",
		Latency:               time.Millisecond,
		RequiresAuthorization: true,
	}, settlement.WithRandom(fixed(0.5)))
	tr := domain.MoneyTransfer{TransferID: "t1"}

	_, err := rail.Submit(context.Background(), tr)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	require.NoError(t, rail.Authorize(context.Background(), tr))
	receipt, err := rail.Submit(context.Background(), tr)
	require.NoError(t, err)
	assert.Contains(t, receipt.ExternalReference, "ACH")
}

func TestRouter_MapsEveryTransferType(t *testing.T) {
	router, err := settlement.NewRouter(settlement.DefaultRails(settlement.SimulationConfig{}))
	require.NoError(t, err)

	expected := map[domain.TransferType]string{
		domain.TransferTypeDomesticBank:      settlement.DomesticBankRail,
		domain.TransferTypeInternationalWire: settlement.DomesticBankRail,
		domain.TransferTypeRemittance:        settlement.DomesticBankRail,
		domain.TransferTypeMobileMoney:       settlement.MobileMoneyRail,
		domain.TransferTypeInstant:           settlement.CardNetworkRail,
		domain.TransferTypeCrypto:            settlement.CardNetworkRail,
		domain.TransferTypeLinkedAccount:     settlement.LinkedAccountRail,
	}
	for _, tt := range domain.AllTransferTypes {
		b, err := router.BackendFor(tt)
		require.NoError(t, err, tt)
		assert.Equal(t, expected[tt], b.Name(), tt)
	}

	_, err = router.BackendFor("carrier_pigeon")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestNewRouter_MissingRail(t *testing.T) {
	rails := settlement.DefaultRails(settlement.SimulationConfig{})
	delete(rails, settlement.MobileMoneyRail)

	_, err := settlement.NewRouter(rails)
	assert.Error(t, err)
}

// flakyRail fails Submit with a transient error a fixed number of times.
type flakyRail struct {
	failures int32
	calls    int32
	err      error
}

func (f *flakyRail) Name() string { return "flaky" }
func (f *flakyRail) ExpectedTurnaround() time.Duration { return time.Minute }
func (f *flakyRail) Authorize(ctx context.Context, t domain.MoneyTransfer) error {
	return nil
}

func (f *flakyRail) Submit(ctx context.Context, t domain.MoneyTransfer) (*domain.SettlementReceipt, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return nil, f.err
	}
	ch := make(chan domain.SettlementResult, 1)
	return &domain.SettlementReceipt{ExternalReference: "FLAKY1", Backend: "flaky", Completion: ch}, nil
}

func fastResilience() settlement.ResilienceConfig {
	return settlement.ResilienceConfig{
		MaxRetries:          3,
		InitialInterval:     time.Millisecond,
		MaxInterval:         5 * time.Millisecond,
		ConsecutiveFailures: 100,
		OpenTimeout:         time.Minute,
	}
}

func TestResilientBackend_RetriesTransientErrors(t *testing.T) {
	inner := &flakyRail{failures: 2, err: apperrors.NewExternalServiceError("flaky", nil)}
	b := settlement.NewResilientBackend(inner, fastResilience())

	receipt, err := b.Submit(context.Background(), domain.MoneyTransfer{TransferID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "FLAKY1", receipt.ExternalReference)
	assert.Equal(t, int32(3), atomic.LoadInt32(&inner.calls))
}

func TestResilientBackend_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyRail{failures: 100, err: apperrors.NewExternalServiceError("flaky", nil)}
	b := settlement.NewResilientBackend(inner, fastResilience())

	_, err := b.Submit(context.Background(), domain.MoneyTransfer{TransferID: "t1"})
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.Equal(t, int32(4), atomic.LoadInt32(&inner.calls))
}

func TestResilientBackend_DoesNotRetryPermanentErrors(t *testing.T) {
	inner := &flakyRail{failures: 100, err: apperrors.NewValidationError("bad account")}
	b := settlement.NewResilientBackend(inner, fastResilience())

	_, err := b.Submit(context.Background(), domain.MoneyTransfer{TransferID: "t1"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
}

func TestResilientBackend_OpenBreakerRejects(t *testing.T) {
	cfg := fastResilience()
	cfg.ConsecutiveFailures = 2
	cfg.MaxRetries = 0
	inner := &flakyRail{failures: 100, err: apperrors.NewExternalServiceError("flaky", nil)}
	b := settlement.NewResilientBackend(inner, cfg)

	for i := 0; i < 2; i++ {
		_, err := b.Submit(context.Background(), domain.MoneyTransfer{TransferID: "t1"})
		require.Error(t, err)
	}
	calls := atomic.LoadInt32(&inner.calls)

	_, err := b.Submit(context.Background(), domain.MoneyTransfer{TransferID: "t1"})
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.Equal(t, calls, atomic.LoadInt32(&inner.calls), "open breaker must not reach the rail")
}
