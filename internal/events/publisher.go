// Package events publishes finalized transcript entries to Kafka so that
// downstream consumers (analytics, archival) can follow conversations without
// touching the session pipeline. Publishing is optional: with no brokers
// configured the publisher degrades to log-only mode.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Twaha07/voice-interactive-translation-assistant/internal/transcript"
)

// Config holds Kafka publisher settings.
type Config struct {
	Brokers []string
	Topic   string
}

// entryEvent is the JSON payload written per finalized entry.
type entryEvent struct {
	SessionID string    `json:"session_id"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher writes transcript entries to a Kafka topic. Safe for concurrent
// use. A Publisher created without brokers is a no-op that only logs.
type Publisher struct {
	writer *kafka.Writer
	topic  string
}

// New creates a Publisher. When cfg has no brokers, publishing is disabled
// and entries are logged at debug level only.
func New(cfg Config) *Publisher {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		slog.Info("events: kafka disabled, log-only mode")
		return &Publisher{}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	slog.Info("events: kafka publisher initialised", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &Publisher{writer: w, topic: cfg.Topic}
}

// PublishEntry writes one finalized entry keyed by session ID.
func (p *Publisher) PublishEntry(ctx context.Context, sessionID string, e transcript.Entry) error {
	payload, err := json.Marshal(entryEvent{
		SessionID: sessionID,
		Speaker:   string(e.Speaker),
		Text:      e.Text,
		Timestamp: e.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("events: marshal entry: %w", err)
	}

	if p.writer == nil {
		slog.Debug("events: entry (kafka disabled)", "session_id", sessionID, "speaker", e.Speaker)
		return nil
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(sessionID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("events: publish entry: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
