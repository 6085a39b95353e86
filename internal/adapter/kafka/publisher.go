package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
)

// Feed names carried in the message headers.
const (
	feedProduction = "production"
	feedIoT        = "iot"
	feedWeather    = "weather"
)

// Publisher produces flagged anomalies to the alert topic.
// It implements pipeline.AnomalyPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the anomaly alert topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishAnomalies serializes one date's flagged anomalies and publishes them
// in a single WriteMessages call. The warehouse anomaly logs remain the system
// of record; this feed only drives alerting.
func (p *Publisher) PublishAnomalies(ctx context.Context, day time.Time, s domain.AnomalySet) error {
	if s.Empty() {
		return nil
	}

	msgs := make([]kafkago.Message, 0, s.Len())
	for _, a := range s.Production {
		msg, err := serializeToMessage(day, feedProduction, a.Reason, a)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	for _, a := range s.IoT {
		msg, err := serializeToMessage(day, feedIoT, a.Reason, a)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	for _, a := range s.Weather {
		msg, err := serializeToMessage(day, feedWeather, a.Reason, a)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals one anomaly into a Kafka message keyed by date,
// so every alert for a date lands on the same partition.
func serializeToMessage(day time.Time, feed, reason string, anomaly any) (kafkago.Message, error) {
	data, err := json.Marshal(anomaly)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s anomaly: %w", feed, err)
	}
	return kafkago.Message{
		Key:   []byte(domain.Day(day).Format("2006-01-02")),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "feed", Value: []byte(feed)},
			{Key: "reason", Value: []byte(reason)},
		},
	}, nil
}
