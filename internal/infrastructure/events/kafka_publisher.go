// Package events publishes captured-notice events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/ports"
)

const EventCaptured = "notice.captured"

// Config holds Kafka producer settings.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per captured notice, keyed by identity hash.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher builds a kafka-go writer for the configured brokers.
func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(writer, cfg.Topic, logger)
}

func newPublisher(writer messageWriter, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{writer: writer, topic: topic, logger: logger}
}

// CapturedEvent is the JSON payload of a notice.captured message.
type CapturedEvent struct {
	NoticeID        uuid.UUID `json:"notice_id"`
	IdentityHash    string    `json:"identity_hash"`
	SourcePlatform  string    `json:"source_platform"`
	RegionCode      string    `json:"region_code"`
	ProcessNumber   string    `json:"process_number"`
	IssuingBodyName string    `json:"issuing_body_name"`
	EstimatedValue  *float64  `json:"estimated_value"`
	CapturedAt      time.Time `json:"captured_at"`
}

// PublishCaptured emits the notice.captured event.
func (p *Publisher) PublishCaptured(ctx context.Context, notice domain.Notice) error {
	data, err := json.Marshal(CapturedEvent{
		NoticeID:        notice.ID,
		IdentityHash:    notice.IdentityHash,
		SourcePlatform:  notice.SourcePlatform,
		RegionCode:      notice.RegionCode,
		ProcessNumber:   notice.ProcessNumber,
		IssuingBodyName: notice.IssuingBodyName,
		EstimatedValue:  notice.EstimatedValue,
		CapturedAt:      notice.CapturedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(notice.IdentityHash),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventCaptured)},
			{Key: "source_platform", Value: []byte(notice.SourcePlatform)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", EventCaptured, err)
	}
	p.logger.Debug("event published", "topic", p.topic, "identity_hash", notice.IdentityHash)
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
