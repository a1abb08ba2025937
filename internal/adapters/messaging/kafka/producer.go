// Package kafka publishes transfer status events to Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/SscSPs/money_transfer_engine/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
)

// Producer publishes each event keyed by transfer ID so one transfer's events stay ordered
// within a partition.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	log      *slog.Logger
}

var _ portssvc.EventPublisher = (*Producer)(nil)

// NewConfig returns the producer configuration used in production.
func NewConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Timeout = 5 * time.Second
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// NewProducer connects to brokers.
func NewProducer(brokers []string, topic string, log *slog.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	log.Info("Kafka producer created", slog.String("topic", topic), slog.Any("brokers", brokers))
	return NewProducerWithClient(producer, topic, log), nil
}

// NewProducerWithClient wraps an existing sarama producer.
func NewProducerWithClient(producer sarama.SyncProducer, topic string, log *slog.Logger) *Producer {
	return &Producer{producer: producer, topic: topic, log: log}
}

func (p *Producer) PublishTransferEvent(ctx context.Context, event domain.TransferStatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.TransferID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte("TransferStatusChanged")},
			{Key: []byte("event_id"), Value: []byte(event.EventID)},
		},
	}

	type result struct {
		partition int32
		offset    int64
		err       error
	}
	resultCh := make(chan result, 1)

	go func() {
		partition, offset, err := p.producer.SendMessage(msg)
		resultCh <- result{partition, offset, err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			p.log.Error("Kafka send failed",
				slog.String("transfer_id", event.TransferID),
				slog.String("error", res.err.Error()))
			return res.err
		}
		p.log.Debug("Kafka send success",
			slog.String("transfer_id", event.TransferID),
			slog.String("status", string(event.Status)),
			slog.Int("partition", int(res.partition)),
			slog.Int64("offset", res.offset))
		return nil
	case <-ctx.Done():
		p.log.Warn("Kafka send cancelled", slog.String("transfer_id", event.TransferID))
		return ctx.Err()
	}
}

func (p *Producer) Close() error {
	if p.producer == nil {
		return nil
	}
	p.log.Info("Closing kafka producer")
	return p.producer.Close()
}

// NoOpProducer drops events. It is used when no brokers are configured.
type NoOpProducer struct {
	log *slog.Logger
}

var _ portssvc.EventPublisher = (*NoOpProducer)(nil)

func NewNoOpProducer(log *slog.Logger) *NoOpProducer {
	return &NoOpProducer{log: log}
}

func (p *NoOpProducer) PublishTransferEvent(ctx context.Context, event domain.TransferStatusEvent) error {
	p.log.Debug("Kafka disabled, event not sent",
		slog.String("transfer_id", event.TransferID),
		slog.String("status", string(event.Status)))
	return nil
}

func (p *NoOpProducer) Close() error {
	return nil
}
