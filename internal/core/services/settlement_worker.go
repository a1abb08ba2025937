package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_engine/internal/core/ports/repositories"
	"github.com/SscSPs/money_transfer_engine/internal/middleware"
)

const defaultSettlementRetryInterval = time.Second

// settlementRun is the single in-flight settlement task of one transfer.
type settlementRun struct {
	wake chan struct{}
}

// SettlementWorker drives each scheduled transfer from PENDING to a terminal state: it
// dispatches once, acknowledges the rail and applies the rail's completion. One goroutine
// runs per in-flight transfer.
type SettlementWorker struct {
	BaseService
	sm            *TransferStateMachine
	reader        portsrepo.TransferReader
	retryInterval time.Duration

	runs sync.Map

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSettlementWorker creates a SettlementWorker. Call Shutdown to stop it.
func NewSettlementWorker(sm *TransferStateMachine, reader portsrepo.TransferReader, retryInterval time.Duration) *SettlementWorker {
	if retryInterval <= 0 {
		retryInterval = defaultSettlementRetryInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SettlementWorker{
		sm:            sm,
		reader:        reader,
		retryInterval: retryInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Schedule starts the settlement task for transferID. It reports false when a task is
// already running for the transfer or the worker is stopped.
func (w *SettlementWorker) Schedule(ctx context.Context, transferID string) bool {
	run := &settlementRun{wake: make(chan struct{}, 1)}
	if _, loaded := w.runs.LoadOrStore(transferID, run); loaded {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		w.runs.Delete(transferID)
		return false
	}

	logger := middleware.GetLoggerFromCtx(ctx).With(slog.String("transfer_id", transferID))
	runCtx := middleware.WithLogger(w.ctx, logger)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.runs.Delete(transferID)
		w.drive(runCtx, transferID, run)
	}()
	return true
}

// Notify wakes the transfer's task so it re-reads state after an out-of-band change
// (cancel, hold, release).
func (w *SettlementWorker) Notify(transferID string) {
	v, ok := w.runs.Load(transferID)
	if !ok {
		return
	}
	select {
	case v.(*settlementRun).wake <- struct{}{}:
	default:
	}
}

// InFlight reports whether a task is running for transferID.
func (w *SettlementWorker) InFlight(transferID string) bool {
	_, ok := w.runs.Load(transferID)
	return ok
}

func (w *SettlementWorker) drive(ctx context.Context, transferID string, run *settlementRun) {
	var (
		receipt    *domain.SettlementReceipt
		completion <-chan domain.SettlementResult
		result     *domain.SettlementResult
	)

	for {
		var retry <-chan time.Time

		t, err := w.reader.FindTransferByID(ctx, transferID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			w.LogError(ctx, err, "Failed to read transfer for settlement")
			retry = time.After(w.retryInterval)

		case t.Status.IsTerminal():
			w.LogDebug(ctx, "Settlement task finished", slog.String("status", string(t.Status)))
			return

		case t.Status == domain.StatusOnHold:
			// Wait for release or cancel. A completion that arrives meanwhile is kept.

		case receipt == nil && (t.Status == domain.StatusPending || (t.Status == domain.StatusProcessing && t.Backend == "")):
			r, err := w.sm.Submit(ctx, transferID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				retry = time.After(w.retryInterval)
				break
			}
			if r != nil {
				receipt = r
				completion = r.Completion
			}
			continue

		case receipt == nil:
			// Dispatched by a task that no longer runs; its completion cannot be observed here.
			w.LogWarn(ctx, "Transfer dispatched without a live receipt, leaving for reconciliation",
				slog.String("status", string(t.Status)),
				slog.String("backend", t.Backend))
			return

		case t.Status == domain.StatusProcessing:
			_, _, err := w.sm.Acknowledge(ctx, transferID, receipt.ExternalReference, receipt.ExpectedArrival)
			if err != nil {
				w.LogError(ctx, err, "Failed to acknowledge transfer")
				retry = time.After(w.retryInterval)
				break
			}
			continue

		case t.Status == domain.StatusInTransit && result != nil:
			_, applied, err := w.sm.Settle(ctx, transferID, *result)
			if err != nil {
				w.LogError(ctx, err, "Failed to apply settlement result")
				retry = time.After(w.retryInterval)
				break
			}
			if !applied {
				w.LogInfo(ctx, "Settlement result not applied", slog.String("outcome", string(result.Outcome)))
			}
			result = nil
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-run.wake:
		case <-retry:
		case res, ok := <-completion:
			completion = nil
			if !ok {
				res = domain.SettlementResult{Outcome: domain.OutcomeFailed, Reason: "settlement channel closed", At: time.Now().UTC()}
			}
			result = &res
		}
	}
}

// Shutdown stops accepting work, cancels in-flight tasks and waits for them to exit.
func (w *SettlementWorker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	w.LogInfo(ctx, "Shutting down settlement worker")
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.LogInfo(ctx, "All settlement tasks stopped")
		return nil
	case <-ctx.Done():
		w.LogWarn(ctx, "Settlement worker shutdown timeout exceeded")
		return ctx.Err()
	}
}
