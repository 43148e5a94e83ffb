package order

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Submitter hands a confirmed order to fulfilment.
type Submitter interface {
	Submit(ctx context.Context, s Submission) error
}

// MessageWriter is the subset of *kafka.Writer used for publishing.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSubmitter publishes submissions as JSON, keyed by order ID.
type KafkaSubmitter struct {
	writer MessageWriter
	log    *slog.Logger
}

// NewKafkaWriter returns a writer that hashes keys so one order always lands
// on the same partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
}

// NewKafkaSubmitter wraps w.
func NewKafkaSubmitter(w MessageWriter, logger *slog.Logger) *KafkaSubmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSubmitter{writer: w, log: logger}
}

// Submit implements Submitter.
func (k *KafkaSubmitter) Submit(ctx context.Context, s Submission) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(s.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}); err != nil {
		return fmt.Errorf("publish submission %s: %w", s.ID, err)
	}

	k.log.Info("Order published.", "order", s.ID, "total", s.TotalPrice, "files", len(s.Files))
	return nil
}

// Close closes the underlying writer.
func (k *KafkaSubmitter) Close() error {
	return k.writer.Close()
}

// LogSubmitter records submissions in the log only. It is used when no broker
// is configured.
type LogSubmitter struct {
	Logger *slog.Logger
}

// Submit implements Submitter.
func (l LogSubmitter) Submit(_ context.Context, s Submission) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Order received.",
		"order", s.ID,
		"mode", s.PrintMode,
		"copies", s.Copies,
		"total", s.TotalPrice,
		"currency", s.Currency,
		"files", len(s.Files),
		"customer", s.Customer.Email,
	)
	return nil
}
