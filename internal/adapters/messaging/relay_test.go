package messaging_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/SscSPs/money_transfer_engine/internal/adapters/messaging"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.TransferStatusEvent
	closed bool
}

func (r *recordingPublisher) PublishTransferEvent(ctx context.Context, event domain.TransferStatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestAsyncPublisher_DeliversAndFlushesOnClose(t *testing.T) {
	next := &recordingPublisher{}
	p := messaging.NewAsyncPublisher(next, 2, 16, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < 10; i++ {
		require.NoError(t, p.PublishTransferEvent(context.Background(), domain.TransferStatusEvent{TransferID: "t1"}))
	}
	require.NoError(t, p.Close())

	assert.Equal(t, 10, next.count())
	assert.True(t, next.closed)
}

func TestAsyncPublisher_DropsAfterShutdown(t *testing.T) {
	next := &recordingPublisher{}
	p := messaging.NewAsyncPublisher(next, 1, 4, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	assert.NoError(t, p.PublishTransferEvent(context.Background(), domain.TransferStatusEvent{TransferID: "late"}))
	assert.Equal(t, 0, next.count())
}
