// Package memory provides process-local repositories used when no database is configured
// and by service tests. Every transfer has its own mutex; there is no store-wide lock around
// transitions.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/apperrors"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_engine/internal/core/ports/repositories"
	"github.com/shopspring/decimal"
)

type transferRecord struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[domain.MoneyTransfer]
}

type quoteBatch struct {
	mu         sync.Mutex
	consumedBy string
	consumedAt *time.Time
	quotes     map[string]domain.TransferQuote
}

// Store keeps quotes and transfers together so a quote batch can be consumed in the same
// step that inserts the transfer.
type Store struct {
	mu           sync.RWMutex
	admissions   sync.Map // user id -> *sync.Mutex
	transfers    map[string]*transferRecord
	batches      map[string]*quoteBatch
	quoteToBatch map[string]string
}

var (
	_ portsrepo.TransferRepositoryFacade = (*Store)(nil)
	_ portsrepo.QuoteRepositoryFacade    = (*Store)(nil)
)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		transfers:    make(map[string]*transferRecord),
		batches:      make(map[string]*quoteBatch),
		quoteToBatch: make(map[string]string),
	}
}

func (s *Store) SaveQuoteBatch(ctx context.Context, batch domain.QuoteBatch) error {
	quotes := batch.All()
	b := &quoteBatch{quotes: make(map[string]domain.TransferQuote, len(quotes))}
	for _, q := range quotes {
		b.quotes[q.QuoteID] = q
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	batchID := batch.Primary.BatchID
	if _, exists := s.batches[batchID]; exists {
		return fmt.Errorf("%w: quote batch %s", apperrors.ErrDuplicate, batchID)
	}
	s.batches[batchID] = b
	for _, q := range quotes {
		s.quoteToBatch[q.QuoteID] = batchID
	}
	return nil
}

func (s *Store) batchFor(quoteID string) (*quoteBatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batchID, ok := s.quoteToBatch[quoteID]
	if !ok {
		return nil, false
	}
	b, ok := s.batches[batchID]
	return b, ok
}

func (s *Store) FindQuoteByID(ctx context.Context, quoteID string) (*domain.TransferQuote, error) {
	b, ok := s.batchFor(quoteID)
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("quote %s not found", quoteID))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.quotes[quoteID]
	q.ConsumedByTransferID = b.consumedBy
	q.ConsumedAt = b.consumedAt
	return &q, nil
}

func (s *Store) admissionLock(userID string) *sync.Mutex {
	l, _ := s.admissions.LoadOrStore(userID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (s *Store) CreateTransfer(ctx context.Context, t domain.MoneyTransfer, admit portsrepo.TransferAdmission) error {
	// Admissions of one user are serialized; other users and transitions are unaffected.
	lock := s.admissionLock(t.UserID)
	lock.Lock()
	defer lock.Unlock()

	if admit != nil {
		if err := admit(ctx); err != nil {
			return err
		}
	}

	b, ok := s.batchFor(t.QuoteID)
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("quote %s not found", t.QuoteID))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumedBy != "" {
		return apperrors.NewBusinessRuleError(fmt.Sprintf("quote %s has already been used", t.QuoteID))
	}

	rec := &transferRecord{}
	stored := t.Clone()
	rec.snapshot.Store(&stored)

	s.mu.Lock()
	if _, exists := s.transfers[t.TransferID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: transfer %s", apperrors.ErrDuplicate, t.TransferID)
	}
	s.transfers[t.TransferID] = rec
	s.mu.Unlock()

	consumedAt := t.CreatedAt
	b.consumedBy = t.TransferID
	b.consumedAt = &consumedAt
	return nil
}

func (s *Store) record(transferID string) (*transferRecord, error) {
	s.mu.RLock()
	rec, ok := s.transfers[transferID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("transfer %s not found", transferID))
	}
	return rec, nil
}

func (s *Store) UpdateTransfer(ctx context.Context, transferID string, mutate portsrepo.TransferMutation) (*domain.MoneyTransfer, bool, error) {
	rec, err := s.record(transferID)
	if err != nil {
		return nil, false, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	working := rec.snapshot.Load().Clone()
	applied, err := mutate(&working)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		current := rec.snapshot.Load().Clone()
		return &current, false, nil
	}
	stored := working.Clone()
	rec.snapshot.Store(&stored)
	return &working, true, nil
}

func (s *Store) FindTransferByID(ctx context.Context, transferID string) (*domain.MoneyTransfer, error) {
	rec, err := s.record(transferID)
	if err != nil {
		return nil, err
	}
	t := rec.snapshot.Load().Clone()
	return &t, nil
}

// snapshots returns a copy of every transfer owned by userID.
func (s *Store) snapshots(userID string) []domain.MoneyTransfer {
	s.mu.RLock()
	recs := make([]*transferRecord, 0, len(s.transfers))
	for _, rec := range s.transfers {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	out := make([]domain.MoneyTransfer, 0, len(recs))
	for _, rec := range recs {
		t := rec.snapshot.Load()
		if t.UserID == userID {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (s *Store) ListTransfersByUser(ctx context.Context, userID string, status *domain.TransferStatus, limit, offset int) ([]domain.MoneyTransfer, int, error) {
	all := s.snapshots(userID)
	matched := all[:0]
	for _, t := range all {
		if status == nil || t.Status == *status {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].TransferID > matched[j].TransferID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return []domain.MoneyTransfer{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func (s *Store) CountPendingTransfers(ctx context.Context, userID string) (int, error) {
	n := 0
	for _, t := range s.snapshots(userID) {
		if t.Status.IsPending() {
			n++
		}
	}
	return n, nil
}

func (s *Store) TransferVolume(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, t := range s.snapshots(userID) {
		if t.Status.CountsTowardLimits() && !t.CreatedAt.Before(since) {
			total = total.Add(t.BaseAmount)
		}
	}
	return total, nil
}
