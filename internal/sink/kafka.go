// Package sink publishes finished analyses to downstream consumers.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ppiankov/evidencecheck/internal/logging"
	"github.com/ppiankov/evidencecheck/internal/model"
)

// ErrNoBrokers is returned when the sink is configured without brokers
var ErrNoBrokers = errors.New("no kafka brokers configured")

// MessageWriter is the subset of *kafka.Writer the sink uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each analysis as a JSON message keyed by analysis ID
type KafkaSink struct {
	writer MessageWriter
	topic  string
	lg     *slog.Logger
}

// NewKafkaSink builds a sink with a hash-balanced writer for cfg.KafkaTopic
func NewKafkaSink(cfg model.SinkConfig) (*KafkaSink, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.KafkaTopic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return NewKafkaSinkWithWriter(w, cfg.KafkaTopic), nil
}

// NewKafkaSinkWithWriter wraps an existing writer
func NewKafkaSinkWithWriter(w MessageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: w, topic: topic, lg: logging.New("sink")}
}

// Publish writes the analysis. It satisfies pipeline.Publisher.
func (s *KafkaSink) Publish(ctx context.Context, analysis *model.Analysis) error {
	if analysis == nil {
		return errors.New("publish: nil analysis")
	}

	value, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(analysis.ID),
		Value: value,
		Time:  analysis.AnalyzedAt,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "score", Value: []byte(fmt.Sprintf("%d", analysis.Report.OverallScore))},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", s.topic, err)
	}

	s.lg.Debug("analysis published", "topic", s.topic, "id", analysis.ID, "score", analysis.Report.OverallScore)
	return nil
}

// Close flushes pending messages and closes the writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
