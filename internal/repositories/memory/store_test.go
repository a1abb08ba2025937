package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	"github.com/SscSPs/money_transfer_engine/internal/repositories/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatch(userID string, created time.Time) domain.QuoteBatch {
	q := domain.TransferQuote{
		QuoteID:      "q_primary",
		BatchID:      "b_1",
		UserID:       userID,
		FromAmount:   decimal.NewFromInt(100),
		FromCurrency: "USD",
		ToCurrency:   "USD",
		CreatedAt:    created,
		ExpiresAt:    created.Add(domain.QuoteTTL),
	}
	alt := q
	alt.QuoteID = "q_express"
	alt.Priority = domain.PriorityExpress
	return domain.QuoteBatch{Primary: q, Alternatives: []domain.TransferQuote{alt}}
}

func newTransfer(id, quoteID, userID string, amount int64, created time.Time) domain.MoneyTransfer {
	t := domain.MoneyTransfer{
		TransferID:     id,
		UserID:         userID,
		QuoteID:        quoteID,
		SourceAmount:   decimal.NewFromInt(amount),
		SourceCurrency: "USD",
		BaseAmount:     decimal.NewFromInt(amount),
		BaseCurrency:   "USD",
		CreatedAt:      created,
	}
	t.Start(created)
	return t
}

func TestStore_CreateTransfer_ConsumesWholeBatch(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	now := time.Now()
	require.NoError(t, s.SaveQuoteBatch(ctx, testBatch("u1", now)))

	require.NoError(t, s.CreateTransfer(ctx, newTransfer("t1", "q_primary", "u1", 100, now), nil))

	err := s.CreateTransfer(ctx, newTransfer("t2", "q_express", "u1", 100, now), nil)
	assert.ErrorIs(t, err, apperrors.ErrBusinessRule)

	q, err := s.FindQuoteByID(ctx, "q_express")
	require.NoError(t, err)
	assert.True(t, q.IsConsumed())
	assert.Equal(t, "t1", q.ConsumedByTransferID)
}

func TestStore_CreateTransfer_ConcurrentInitiateOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	now := time.Now()
	require.NoError(t, s.SaveQuoteBatch(ctx, testBatch("u1", now)))

	var wins, losses int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.CreateTransfer(ctx, newTransfer(fmt.Sprintf("t%d", i), "q_primary", "u1", 100, now), nil)
			if err == nil {
				atomic.AddInt32(&wins, 1)
			} else if errors.Is(err, apperrors.ErrBusinessRule) {
				atomic.AddInt32(&losses, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(19), losses)
}

func TestStore_UpdateTransfer_NotAppliedKeepsRecord(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	now := time.Now()
	require.NoError(t, s.SaveQuoteBatch(ctx, testBatch("u1", now)))
	require.NoError(t, s.CreateTransfer(ctx, newTransfer("t1", "q_primary", "u1", 100, now), nil))

	got, applied, err := s.UpdateTransfer(ctx, "t1", func(t *domain.MoneyTransfer) (bool, error) {
		t.Purpose = "changed"
		return false, nil
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, got.Purpose)

	stored, err := s.FindTransferByID(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, stored.Purpose)
}

func TestStore_UpdateTransfer_ConcurrentTransitionsSerialize(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	now := time.Now()
	require.NoError(t, s.SaveQuoteBatch(ctx, testBatch("u1", now)))
	require.NoError(t, s.CreateTransfer(ctx, newTransfer("t1", "q_primary", "u1", 100, now), nil))

	var applied int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.UpdateTransfer(ctx, "t1", func(t *domain.MoneyTransfer) (bool, error) {
				return t.TransitionTo(domain.StatusCancelled, time.Now(), "race") == nil, nil
			})
			if err == nil && ok {
				atomic.AddInt32(&applied, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied)
	stored, err := s.FindTransferByID(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, stored.StatusHistory, 2)
}

func TestStore_ListAndVolume(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		batch := testBatch("u1", base)
		batch.Primary.BatchID = fmt.Sprintf("b%d", i)
		batch.Primary.QuoteID = fmt.Sprintf("q%d", i)
		batch.Alternatives = nil
		require.NoError(t, s.SaveQuoteBatch(ctx, batch))
		require.NoError(t, s.CreateTransfer(ctx, newTransfer(fmt.Sprintf("t%d", i), batch.Primary.QuoteID, "u1", 100*int64(i+1), base.Add(time.Duration(i)*time.Hour)), nil))
	}
	_, _, err := s.UpdateTransfer(ctx, "t0", func(t *domain.MoneyTransfer) (bool, error) {
		return true, t.TransitionTo(domain.StatusCancelled, base.Add(5*time.Hour), "user")
	})
	require.NoError(t, err)

	page, total, err := s.ListTransfersByUser(ctx, "u1", nil, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "t2", page[0].TransferID)
	assert.Equal(t, "t1", page[1].TransferID)

	pendingStatus := domain.StatusPending
	_, pendingTotal, err := s.ListTransfersByUser(ctx, "u1", &pendingStatus, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, pendingTotal)

	pending, err := s.CountPendingTransfers(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	volume, err := s.TransferVolume(ctx, "u1", base)
	require.NoError(t, err)
	assert.True(t, volume.Equal(decimal.NewFromInt(500)), "volume %s", volume)

	_, err = s.FindTransferByID(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_TransferVolume_SumsBaseAmounts(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	usd := testBatch("u1", now)
	require.NoError(t, s.SaveQuoteBatch(ctx, usd))
	require.NoError(t, s.CreateTransfer(ctx, newTransfer("t1", "q_primary", "u1", 100, now), nil))

	jpy := testBatch("u1", now)
	jpy.Primary.BatchID, jpy.Primary.QuoteID = "b_jpy", "q_jpy"
	jpy.Alternatives = nil
	require.NoError(t, s.SaveQuoteBatch(ctx, jpy))
	tr := newTransfer("t2", "q_jpy", "u1", 30000, now)
	tr.SourceCurrency = "JPY"
	tr.BaseAmount = decimal.RequireFromString("272.73")
	require.NoError(t, s.CreateTransfer(ctx, tr, nil))

	volume, err := s.TransferVolume(ctx, "u1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "372.73", volume.StringFixed(2))
}

func TestStore_CreateTransfer_AdmissionSerializedPerUser(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	now := time.Now()

	const attempts = 10
	for i := 0; i < attempts; i++ {
		batch := testBatch("u1", now)
		batch.Primary.BatchID = fmt.Sprintf("b%d", i)
		batch.Primary.QuoteID = fmt.Sprintf("q%d", i)
		batch.Alternatives = nil
		require.NoError(t, s.SaveQuoteBatch(ctx, batch))
	}

	// admit allows at most 300 of volume; without serialization several would see 0 and pass
	ceiling := decimal.NewFromInt(300)
	var inside, maxInside, admitted int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			admit := func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				defer atomic.AddInt32(&inside, -1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				used, err := s.TransferVolume(ctx, "u1", now.Add(-time.Hour))
				if err != nil {
					return err
				}
				if used.Add(decimal.NewFromInt(100)).GreaterThan(ceiling) {
					return apperrors.NewBusinessRuleError("daily limit exceeded")
				}
				return nil
			}
			err := s.CreateTransfer(ctx, newTransfer(fmt.Sprintf("t%d", i), fmt.Sprintf("q%d", i), "u1", 100, now), admit)
			if err == nil {
				atomic.AddInt32(&admitted, 1)
			} else {
				assert.ErrorIs(t, err, apperrors.ErrBusinessRule)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, int32(3), admitted)
	volume, err := s.TransferVolume(ctx, "u1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, volume.Equal(ceiling), "volume %s", volume)
}

func TestStore_CreateTransfer_RejectedAdmissionLeavesQuoteUnused(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	now := time.Now()
	require.NoError(t, s.SaveQuoteBatch(ctx, testBatch("u1", now)))

	err := s.CreateTransfer(ctx, newTransfer("t1", "q_primary", "u1", 100, now), func(context.Context) error {
		return apperrors.NewBusinessRuleError("per-transfer limit exceeded")
	})
	assert.ErrorIs(t, err, apperrors.ErrBusinessRule)

	q, err := s.FindQuoteByID(ctx, "q_primary")
	require.NoError(t, err)
	assert.False(t, q.IsConsumed())
	_, err = s.FindTransferByID(ctx, "t1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
