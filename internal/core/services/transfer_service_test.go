package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	"github.com/SscSPs/money_transfer_engine/internal/dto"
	"github.com/SscSPs/money_transfer_engine/internal/repositories/memory"
	"github.com/stretchr/testify/suite"
)

const (
	eventually = 2 * time.Second
	tick       = 5 * time.Millisecond
)

type TransferServiceTestSuite struct {
	suite.Suite
	ctx context.Context
	e   *engine
}

func (s *TransferServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	// completions are held until the test resolves them
	s.e = newEngine(engineOptions{})
}

func (s *TransferServiceTestSuite) TearDownTest() {
	s.e.shutdown()
}

func (s *TransferServiceTestSuite) quoteRequest(amount string) dto.CreateQuoteRequest {
	return dto.CreateQuoteRequest{
		SourceAccountID: usdAccount,
		BeneficiaryID:   eurBeneficiary,
		Amount:          dec(amount),
		FromCurrency:    "USD",
		ToCurrency:      "EUR",
		TransferType:    string(domain.TransferTypeDomesticBank),
	}
}

func (s *TransferServiceTestSuite) initiate(amount string) *domain.MoneyTransfer {
	batch, err := s.e.svc.CreateQuote(s.ctx, testUser, s.quoteRequest(amount))
	s.Require().NoError(err)
	t, err := s.e.svc.InitiateTransfer(s.ctx, testUser, batch.Primary.QuoteID, dto.InitiateTransferRequest{Purpose: "rent"})
	s.Require().NoError(err)
	return t
}

func (s *TransferServiceTestSuite) waitForStatus(id string, want domain.TransferStatus) {
	s.Require().Eventually(func() bool { return s.e.status(id) == want }, eventually, tick,
		"transfer %s never reached %s (now %s)", id, want, s.e.status(id))
}

func (s *TransferServiceTestSuite) TestCreateQuote() {
	batch, err := s.e.svc.CreateQuote(s.ctx, testUser, s.quoteRequest("1000"))
	s.Require().NoError(err)

	assertDecimal(s.T(), "1007.50", batch.Primary.TotalCost)
	assertDecimal(s.T(), "845.00", batch.Primary.ToAmount)
	s.Equal(domain.PriorityStandard, batch.Primary.Priority)
	s.Len(batch.Alternatives, 2)

	stored, err := s.e.store.FindQuoteByID(s.ctx, batch.Alternatives[0].QuoteID)
	s.Require().NoError(err)
	s.Equal(batch.Primary.BatchID, stored.BatchID)
	s.Equal(testUser, stored.UserID)
}

func (s *TransferServiceTestSuite) TestCreateQuote_Rejections() {
	s.e.directory.PutAccount(memory.Account{AccountID: "acc-other", UserID: otherUser, CurrencyCode: "USD", Available: dec("100")})
	s.e.directory.PutBeneficiary(domain.Beneficiary{
		BeneficiaryID: "ben-other", UserID: otherUser, Country: "FR", Currency: "EUR", Status: domain.BeneficiaryVerified,
	})

	tests := []struct {
		name   string
		mutate func(r *dto.CreateQuoteRequest)
		want   error
	}{
		{"account owned by someone else", func(r *dto.CreateQuoteRequest) { r.SourceAccountID = "acc-other" }, apperrors.ErrValidation},
		{"unknown account", func(r *dto.CreateQuoteRequest) { r.SourceAccountID = "acc-missing" }, apperrors.ErrNotFound},
		{"currency differs from account", func(r *dto.CreateQuoteRequest) { r.FromCurrency = "GBP" }, apperrors.ErrValidation},
		{"beneficiary of another user", func(r *dto.CreateQuoteRequest) { r.BeneficiaryID = "ben-other" }, apperrors.ErrNotFound},
		{"unknown beneficiary", func(r *dto.CreateQuoteRequest) { r.BeneficiaryID = "ben-missing" }, apperrors.ErrNotFound},
		{"unsupported transfer type", func(r *dto.CreateQuoteRequest) { r.TransferType = "teleport" }, apperrors.ErrValidation},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := s.quoteRequest("100")
			tt.mutate(&req)
			_, err := s.e.svc.CreateQuote(s.ctx, testUser, req)
			s.ErrorIs(err, tt.want)
		})
	}
}

func (s *TransferServiceTestSuite) TestInitiate_ConcurrentOnSameQuote() {
	batch, err := s.e.svc.CreateQuote(s.ctx, testUser, s.quoteRequest("100"))
	s.Require().NoError(err)

	const callers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes []*domain.MoneyTransfer
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			t, err := s.e.svc.InitiateTransfer(s.ctx, testUser, batch.Primary.QuoteID, dto.InitiateTransferRequest{Purpose: "rent"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes = append(successes, t)
		}()
	}
	close(start)
	wg.Wait()

	s.Require().Len(successes, 1)
	s.Len(failures, callers-1)
	for _, err := range failures {
		s.ErrorIs(err, apperrors.ErrBusinessRule)
	}

	page, err := s.e.svc.ListTransfers(s.ctx, testUser, dto.ListTransfersParams{})
	s.Require().NoError(err)
	s.Equal(1, page.TotalCount)
}

func (s *TransferServiceTestSuite) TestInitiate_AlternativeAfterPrimaryConsumed() {
	batch, err := s.e.svc.CreateQuote(s.ctx, testUser, s.quoteRequest("100"))
	s.Require().NoError(err)

	_, err = s.e.svc.InitiateTransfer(s.ctx, testUser, batch.Primary.QuoteID, dto.InitiateTransferRequest{Purpose: "rent"})
	s.Require().NoError(err)

	_, err = s.e.svc.InitiateTransfer(s.ctx, testUser, batch.Alternatives[0].QuoteID, dto.InitiateTransferRequest{Purpose: "rent"})
	s.ErrorIs(err, apperrors.ErrBusinessRule)
}

func (s *TransferServiceTestSuite) TestInitiate_QuoteOfAnotherUser() {
	batch, err := s.e.svc.CreateQuote(s.ctx, testUser, s.quoteRequest("100"))
	s.Require().NoError(err)

	_, err = s.e.svc.InitiateTransfer(s.ctx, otherUser, batch.Primary.QuoteID, dto.InitiateTransferRequest{Purpose: "rent"})
	s.ErrorIs(err, apperrors.ErrNotFound)

	_, err = s.e.svc.InitiateTransfer(s.ctx, testUser, "no-such-quote", dto.InitiateTransferRequest{Purpose: "rent"})
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *TransferServiceTestSuite) TestInitiate_SettlesEndToEnd() {
	s.e.shutdown()
	s.e = newEngine(engineOptions{outcome: domain.OutcomeSettled})

	t := s.initiate("100")
	s.waitForStatus(t.TransferID, domain.StatusCompleted)
	s.Eventually(func() bool { return !s.e.worker.InFlight(t.TransferID) }, eventually, tick)

	stored, err := s.e.store.FindTransferByID(s.ctx, t.TransferID)
	s.Require().NoError(err)
	s.Equal([]domain.TransferStatus{
		domain.StatusPending, domain.StatusProcessing, domain.StatusInTransit, domain.StatusCompleted,
	}, historyStatuses(stored))
	s.NotNil(stored.ProcessedAt)
	s.NotNil(stored.CompletedAt)
	s.Equal("TR-"+t.TransferID, stored.ExternalReference)
	s.Equal(1, s.e.rail.Submissions(t.TransferID))
	s.Equal(historyStatuses(stored), s.e.publisher.StatusesFor(t.TransferID))
}

func (s *TransferServiceTestSuite) TestInitiate_RailFailureEndsFailed() {
	s.e.shutdown()
	s.e = newEngine(engineOptions{outcome: domain.OutcomeFailed})

	t := s.initiate("100")
	s.waitForStatus(t.TransferID, domain.StatusFailed)

	limits, err := s.e.svc.GetLimits(s.ctx, testUser)
	s.Require().NoError(err)
	s.True(limits.DailyUsed.IsZero(), "failed transfers do not consume limits")
}

// Settlement and cancellation race for the same IN_TRANSIT transfer. Whatever the
// interleaving, exactly one terminal status is recorded and published.
func (s *TransferServiceTestSuite) TestCancelSettleRace() {
	const rounds = 25
	for i := 0; i < rounds; i++ {
		t := s.initiate("10")
		s.waitForStatus(t.TransferID, domain.StatusInTransit)

		var wg sync.WaitGroup
		var cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.e.rail.Complete(t.TransferID, domain.SettlementResult{Outcome: domain.OutcomeSettled, At: time.Now().UTC()})
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = s.e.svc.CancelTransfer(s.ctx, testUser, t.TransferID, dto.CancelTransferRequest{Reason: "race"})
		}()
		wg.Wait()

		if cancelErr != nil {
			s.Require().ErrorIs(cancelErr, apperrors.ErrBusinessRule)
		}
		s.Require().Eventually(func() bool { return s.e.status(t.TransferID).IsTerminal() }, eventually, tick)
		s.Require().Eventually(func() bool { return !s.e.worker.InFlight(t.TransferID) }, eventually, tick)

		stored, err := s.e.store.FindTransferByID(s.ctx, t.TransferID)
		s.Require().NoError(err)
		s.Contains([]domain.TransferStatus{domain.StatusCompleted, domain.StatusCancelled}, stored.Status)

		terminal := 0
		for _, st := range historyStatuses(stored) {
			if st.IsTerminal() {
				terminal++
			}
		}
		s.Equal(1, terminal, "round %d", i)

		published := 0
		for _, st := range s.e.publisher.StatusesFor(t.TransferID) {
			if st.IsTerminal() {
				published++
			}
		}
		s.Equal(1, published, "round %d", i)

		if stored.Status == domain.StatusCompleted {
			s.Empty(stored.CancellationReason)
		} else {
			s.Nil(stored.CompletedAt)
		}
	}
}

func (s *TransferServiceTestSuite) TestCancel_AfterCompletion() {
	s.e.shutdown()
	s.e = newEngine(engineOptions{outcome: domain.OutcomeSettled})

	t := s.initiate("100")
	s.waitForStatus(t.TransferID, domain.StatusCompleted)

	_, err := s.e.svc.CancelTransfer(s.ctx, testUser, t.TransferID, dto.CancelTransferRequest{Reason: "too late"})
	s.ErrorIs(err, apperrors.ErrBusinessRule)
	s.Contains(err.Error(), "COMPLETED")
}

func (s *TransferServiceTestSuite) TestCancel_PendingRefundsFees() {
	t := s.initiate("100")
	s.waitForStatus(t.TransferID, domain.StatusInTransit)

	cancelled, err := s.e.svc.CancelTransfer(s.ctx, testUser, t.TransferID, dto.CancelTransferRequest{Reason: "wrong payee", RefundFees: true})
	s.Require().NoError(err)
	s.Equal(domain.StatusCancelled, cancelled.Status)
	s.True(cancelled.FeesRefunded)
	s.Equal("wrong payee", cancelled.CancellationReason)
	s.Eventually(func() bool { return !s.e.worker.InFlight(t.TransferID) }, eventually, tick)

	_, err = s.e.svc.CancelTransfer(s.ctx, otherUser, t.TransferID, dto.CancelTransferRequest{Reason: "not mine"})
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *TransferServiceTestSuite) TestHoldPausesSettlementUntilRelease() {
	t := s.initiate("100")
	s.waitForStatus(t.TransferID, domain.StatusInTransit)

	held, err := s.e.svc.HoldTransfer(s.ctx, t.TransferID, "manual review")
	s.Require().NoError(err)
	s.Equal(domain.StatusOnHold, held.Status)

	_, err = s.e.svc.HoldTransfer(s.ctx, t.TransferID, "again")
	s.ErrorIs(err, apperrors.ErrBusinessRule)

	// The rail settles while the transfer is parked; the result waits for release.
	s.Require().True(s.e.rail.Complete(t.TransferID, domain.SettlementResult{Outcome: domain.OutcomeSettled, At: time.Now().UTC()}))
	s.Never(func() bool { return s.e.status(t.TransferID) != domain.StatusOnHold }, 100*time.Millisecond, tick)

	_, err = s.e.svc.ReleaseTransfer(s.ctx, t.TransferID)
	s.Require().NoError(err)
	s.waitForStatus(t.TransferID, domain.StatusCompleted)

	_, err = s.e.svc.ReleaseTransfer(s.ctx, t.TransferID)
	s.ErrorIs(err, apperrors.ErrBusinessRule)
}

// A hold taken while the rail call is outstanding must not strand the transfer when that
// call then fails: the dispatch is dropped and release submits again.
func (s *TransferServiceTestSuite) TestHoldDuringDispatch_FailedDispatchResubmitsOnRelease() {
	open := s.e.rail.Gate()
	t := s.initiate("100")
	s.Require().Eventually(func() bool { return s.e.rail.Submissions(t.TransferID) == 1 }, eventually, tick)
	s.Equal(domain.StatusProcessing, s.e.status(t.TransferID))

	_, err := s.e.svc.HoldTransfer(s.ctx, t.TransferID, "manual review")
	s.Require().NoError(err)

	s.e.rail.SetSubmitErr(apperrors.NewExternalServiceError("test_rail", errors.New("connection reset")))
	open()
	s.Require().Eventually(func() bool {
		stored, err := s.e.store.FindTransferByID(s.ctx, t.TransferID)
		return err == nil && stored.Status == domain.StatusOnHold && stored.Backend == ""
	}, eventually, tick)

	s.e.rail.SetSubmitErr(nil)
	_, err = s.e.svc.ReleaseTransfer(s.ctx, t.TransferID)
	s.Require().NoError(err)
	s.waitForStatus(t.TransferID, domain.StatusInTransit)
	s.Equal(2, s.e.rail.Submissions(t.TransferID))

	s.Require().True(s.e.rail.Complete(t.TransferID, domain.SettlementResult{Outcome: domain.OutcomeSettled, At: time.Now().UTC()}))
	s.waitForStatus(t.TransferID, domain.StatusCompleted)

	stored, err := s.e.store.FindTransferByID(s.ctx, t.TransferID)
	s.Require().NoError(err)
	s.Equal([]domain.TransferStatus{
		domain.StatusPending, domain.StatusProcessing, domain.StatusOnHold,
		domain.StatusProcessing, domain.StatusInTransit, domain.StatusCompleted,
	}, historyStatuses(stored))
	s.Empty(stored.FailureReason)
}

func (s *TransferServiceTestSuite) TestHoldDuringDispatch_ResubmitFailureEndsFailed() {
	open := s.e.rail.Gate()
	t := s.initiate("100")
	s.Require().Eventually(func() bool { return s.e.rail.Submissions(t.TransferID) == 1 }, eventually, tick)

	_, err := s.e.svc.HoldTransfer(s.ctx, t.TransferID, "manual review")
	s.Require().NoError(err)

	s.e.rail.SetSubmitErr(apperrors.NewExternalServiceError("test_rail", errors.New("connection reset")))
	open()
	s.Require().Eventually(func() bool {
		stored, err := s.e.store.FindTransferByID(s.ctx, t.TransferID)
		return err == nil && stored.Backend == ""
	}, eventually, tick)

	_, err = s.e.svc.ReleaseTransfer(s.ctx, t.TransferID)
	s.Require().NoError(err)
	s.waitForStatus(t.TransferID, domain.StatusFailed)
	s.Eventually(func() bool { return !s.e.worker.InFlight(t.TransferID) }, eventually, tick)

	stored, err := s.e.store.FindTransferByID(s.ctx, t.TransferID)
	s.Require().NoError(err)
	s.Contains(stored.FailureReason, "dispatch failed")
	s.Equal(2, s.e.rail.Submissions(t.TransferID))
}

func (s *TransferServiceTestSuite) TestHold_UnknownTransfer() {
	_, err := s.e.svc.HoldTransfer(s.ctx, "missing", "review")
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *TransferServiceTestSuite) TestTrackTransfer() {
	t := s.initiate("100")
	s.waitForStatus(t.TransferID, domain.StatusInTransit)

	info, err := s.e.svc.TrackTransfer(s.ctx, testUser, t.TransferID)
	s.Require().NoError(err)
	s.Equal(t.TransferID, info.Transfer.TransferID)
	s.Len(info.Events, 3)
	s.Require().NotNil(info.NextUpdate)
	s.Equal(baseTime.Add(15*time.Minute), *info.NextUpdate)
	s.NotNil(info.EstimatedCompletion)

	s.Require().True(s.e.rail.Complete(t.TransferID, domain.SettlementResult{Outcome: domain.OutcomeSettled}))
	s.waitForStatus(t.TransferID, domain.StatusCompleted)

	info, err = s.e.svc.TrackTransfer(s.ctx, testUser, t.TransferID)
	s.Require().NoError(err)
	s.Nil(info.NextUpdate)
	s.Equal(info.Transfer.CompletedAt, info.EstimatedCompletion)

	_, err = s.e.svc.TrackTransfer(s.ctx, otherUser, t.TransferID)
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *TransferServiceTestSuite) TestListTransfers() {
	first := s.initiate("100")
	s.initiate("200")
	s.initiate("300")

	_, err := s.e.svc.CancelTransfer(s.ctx, testUser, first.TransferID, dto.CancelTransferRequest{Reason: "duplicate"})
	s.Require().NoError(err)

	page, err := s.e.svc.ListTransfers(s.ctx, testUser, dto.ListTransfersParams{Limit: 2})
	s.Require().NoError(err)
	s.Len(page.Transfers, 2)
	s.Equal(3, page.TotalCount)
	s.Equal(2, page.PendingCount)
	s.Equal(2, page.Limit)

	cancelled, err := s.e.svc.ListTransfers(s.ctx, testUser, dto.ListTransfersParams{Status: "cancelled"})
	s.Require().NoError(err)
	s.Require().Len(cancelled.Transfers, 1)
	s.Equal(first.TransferID, cancelled.Transfers[0].TransferID)
	s.Equal(20, cancelled.Limit)

	empty, err := s.e.svc.ListTransfers(s.ctx, otherUser, dto.ListTransfersParams{})
	s.Require().NoError(err)
	s.NotNil(empty.Transfers)
	s.Empty(empty.Transfers)

	_, err = s.e.svc.ListTransfers(s.ctx, testUser, dto.ListTransfersParams{Status: "lost"})
	s.ErrorIs(err, apperrors.ErrValidation)
}

func (s *TransferServiceTestSuite) TestGetLimits() {
	s.initiate("1500")

	limits, err := s.e.svc.GetLimits(s.ctx, testUser)
	s.Require().NoError(err)
	assertDecimal(s.T(), "1500", limits.DailyUsed)
	assertDecimal(s.T(), "8500", limits.RemainingDaily)
	assertDecimal(s.T(), "48500", limits.RemainingMonthly)
	assertDecimal(s.T(), "25000", limits.SingleTransferLimit)
}

// Limits are kept in one currency whatever the source account holds.
func (s *TransferServiceTestSuite) TestLimits_NormalizeSourceCurrency() {
	req := s.quoteRequest("30000")
	req.SourceAccountID = jpyAccount
	req.FromCurrency = "JPY"
	batch, err := s.e.svc.CreateQuote(s.ctx, testUser, req)
	s.Require().NoError(err)

	// 30,000 JPY is well under the 25,000 USD per-transfer ceiling
	jpy, err := s.e.svc.InitiateTransfer(s.ctx, testUser, batch.Primary.QuoteID, dto.InitiateTransferRequest{Purpose: "tuition"})
	s.Require().NoError(err)
	assertDecimal(s.T(), "272.73", jpy.BaseAmount)
	s.Equal("USD", jpy.BaseCurrency)

	s.initiate("1500")

	limits, err := s.e.svc.GetLimits(s.ctx, testUser)
	s.Require().NoError(err)
	s.Equal("USD", limits.Currency)
	assertDecimal(s.T(), "1772.73", limits.DailyUsed)
	assertDecimal(s.T(), "8227.27", limits.RemainingDaily)
}

func (s *TransferServiceTestSuite) TestLimits_ForeignAmountAboveCeiling() {
	// 3,000,000 JPY is about 27,273 USD
	req := s.quoteRequest("3000000")
	req.SourceAccountID = jpyAccount
	req.FromCurrency = "JPY"
	batch, err := s.e.svc.CreateQuote(s.ctx, testUser, req)
	s.Require().NoError(err)

	_, err = s.e.svc.InitiateTransfer(s.ctx, testUser, batch.Primary.QuoteID, dto.InitiateTransferRequest{Purpose: "tuition"})
	s.Require().ErrorIs(err, apperrors.ErrBusinessRule)
	s.Contains(err.Error(), "per_transfer limit exceeded")
	s.Contains(err.Error(), "27272.73 USD")
}

// Concurrent initiations for one user are admitted one at a time, so together they cannot
// exceed the daily ceiling.
func (s *TransferServiceTestSuite) TestInitiate_ConcurrentRespectDailyCeiling() {
	first, err := s.e.svc.CreateQuote(s.ctx, testUser, s.quoteRequest("6000"))
	s.Require().NoError(err)
	second, err := s.e.svc.CreateQuote(s.ctx, testUser, s.quoteRequest("6000"))
	s.Require().NoError(err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for _, quoteID := range []string{first.Primary.QuoteID, second.Primary.QuoteID} {
		wg.Add(1)
		go func(quoteID string) {
			defer wg.Done()
			<-start
			_, err := s.e.svc.InitiateTransfer(s.ctx, testUser, quoteID, dto.InitiateTransferRequest{Purpose: "rent"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes++
		}(quoteID)
	}
	close(start)
	wg.Wait()

	s.Equal(1, successes)
	s.Require().Len(failures, 1)
	s.ErrorIs(failures[0], apperrors.ErrBusinessRule)
	s.Contains(failures[0].Error(), "daily limit exceeded")

	page, err := s.e.svc.ListTransfers(s.ctx, testUser, dto.ListTransfersParams{})
	s.Require().NoError(err)
	s.Equal(1, page.TotalCount)
}

func (s *TransferServiceTestSuite) TestReferenceData() {
	rates, err := s.e.svc.GetExchangeRates(s.ctx, "usd", []string{"gbp", " EUR "})
	s.Require().NoError(err)
	s.Require().Len(rates, 2)
	s.Equal("EUR", rates[0].ToCurrency)
	s.Equal("GBP", rates[1].ToCurrency)
	assertDecimal(s.T(), "0.85", rates[0].Rate)

	all, err := s.e.svc.GetExchangeRates(s.ctx, "", nil)
	s.Require().NoError(err)
	s.Len(all, 14)

	_, err = s.e.svc.GetExchangeRates(s.ctx, "XYZ", nil)
	s.ErrorIs(err, apperrors.ErrValidation)

	schedule, err := s.e.svc.GetFeeSchedule(s.ctx, domain.TransferTypeInternationalWire)
	s.Require().NoError(err)
	s.Len(schedule.CurrencyPairs, 14)
	s.Contains(schedule.CurrencyPairs, "USD/EUR")

	_, err = s.e.svc.GetFeeSchedule(s.ctx, domain.TransferType("teleport"))
	s.True(errors.Is(err, apperrors.ErrValidation))

	corridors := s.e.svc.GetCorridors(s.ctx)
	s.Len(corridors, 3)
	corridors[0].FromCountry = "XX"
	s.Equal("US", s.e.svc.GetCorridors(s.ctx)[0].FromCountry)
}

func TestTransferServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TransferServiceTestSuite))
}
