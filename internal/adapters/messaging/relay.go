// Package messaging decouples transfer transitions from event delivery.
package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
)

const sendTimeout = 5 * time.Second

// AsyncPublisher queues events and delivers them from a fixed pool of workers, so a slow
// broker never holds up a transfer transition. Events are dropped when the queue is full.
type AsyncPublisher struct {
	next  portssvc.EventPublisher
	log   *slog.Logger
	queue chan domain.TransferStatusEvent

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ portssvc.EventPublisher = (*AsyncPublisher)(nil)

// NewAsyncPublisher starts workers delivering to next.
func NewAsyncPublisher(next portssvc.EventPublisher, workers, queueSize int, log *slog.Logger) *AsyncPublisher {
	if workers <= 0 {
		workers = 1
	}
	p := &AsyncPublisher{
		next:   next,
		log:    log,
		queue:  make(chan domain.TransferStatusEvent, queueSize),
		stopCh: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *AsyncPublisher) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.queue:
			p.deliver(id, event)
		case <-p.stopCh:
			// drain what is already queued
			for {
				select {
				case event := <-p.queue:
					p.deliver(id, event)
				default:
					return
				}
			}
		}
	}
}

func (p *AsyncPublisher) deliver(workerID int, event domain.TransferStatusEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := p.next.PublishTransferEvent(ctx, event); err != nil {
		p.log.Error("Transfer event delivery failed",
			slog.Int("worker_id", workerID),
			slog.String("transfer_id", event.TransferID),
			slog.String("status", string(event.Status)),
			slog.String("error", err.Error()))
	}
}

// PublishTransferEvent enqueues event without blocking.
func (p *AsyncPublisher) PublishTransferEvent(ctx context.Context, event domain.TransferStatusEvent) error {
	select {
	case <-p.stopCh:
		p.log.Warn("Event publisher stopped, dropping event", slog.String("transfer_id", event.TransferID))
		return nil
	default:
	}
	select {
	case p.queue <- event:
	default:
		p.log.Warn("Event queue full, dropping event",
			slog.String("transfer_id", event.TransferID),
			slog.String("status", string(event.Status)))
	}
	return nil
}

// Shutdown stops accepting events, flushes the queue and waits for the workers.
func (p *AsyncPublisher) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.log.Warn("Event publisher shutdown timeout exceeded")
		return ctx.Err()
	}
}

// Close shuts the relay down and closes the underlying publisher.
func (p *AsyncPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*sendTimeout)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		return err
	}
	return p.next.Close()
}
