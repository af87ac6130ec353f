// Package eventlog publishes a best-effort reconciliation event stream to
// Kafka: mapping created, mapping deleted, conflict resolved. Adapted
// from orchid/pkg/kafka/producer.go's Writer setup and trace-context
// header injection, retargeted from "API response relay" onto this
// engine's own three mapping-lifecycle event types. A publish failure is
// logged, never propagated — the event log observes the engine, it
// never gates it (spec.md §7's "never propagates" discipline, carried
// into the one component whose whole job is side-channel observability).
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/trackersync/trackersync/internal/metrics"
	"github.com/trackersync/trackersync/internal/models"
	"github.com/trackersync/trackersync/internal/tracing"
)

// Config holds Kafka producer configuration.
type Config struct {
	Brokers []string
	Topic   string
}

func ParseConfig(brokers, topic string) Config {
	list := strings.Split(brokers, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	return Config{Brokers: list, Topic: topic}
}

// Producer implements both reconcile.EventPublisher and
// pairing.EventPublisher, publishing every event to one topic
// distinguished by its Type field.
type Producer struct {
	writer *kafkago.Writer
	logger ectologger.Logger
	topic  string
}

func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.LeastBytes{},
		BatchSize:    50,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireOne,
		Async:        false,
		// Allow Kafka to auto-create the topic in dev environments when
		// it doesn't exist yet.
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer, logger: logger, topic: cfg.Topic}
}

func (p *Producer) Close() error { return p.writer.Close() }

// EventType enumerates the three mapping-lifecycle events this repo
// emits; spec.md §4.7/§4.6 name these states explicitly.
type EventType string

const (
	EventMappingCreated   EventType = "mapping.created"
	EventMappingDeleted   EventType = "mapping.deleted"
	EventConflictResolved EventType = "conflict.resolved"
)

// Event is the wire shape published to the event-log topic.
type Event struct {
	Type             EventType `json:"type"`
	MappingID        uuid.UUID `json:"mapping_id"`
	ProjectID        uuid.UUID `json:"project_id"`
	ExternalAIssueID int       `json:"external_a_issue_id"`
	ExternalBIssueID int       `json:"external_b_issue_id"`
	Timestamp        time.Time `json:"timestamp"`
	TraceID          string    `json:"trace_id,omitempty"`
}

func (p *Producer) publish(ctx context.Context, evt Event) {
	ctx, span := tracing.StartSpan(ctx, "eventlog.Producer.publish")
	defer span.End()

	evt.Timestamp = time.Now().UTC()
	evt.TraceID = tracing.GetTraceID(ctx)

	data, err := json.Marshal(evt)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Errorf("eventlog: failed to marshal event")
		metrics.RecordEventPublish(string(evt.Type), "marshal_error")
		return
	}

	key := fmt.Sprintf("%s:%s", evt.ProjectID, evt.MappingID)
	headers := []kafkago.Header{
		{Key: "type", Value: []byte(evt.Type)},
		{Key: "project_id", Value: []byte(evt.ProjectID.String())},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafkago.Header{Key: "traceparent", Value: []byte(traceparent)})
	}

	if err := p.writer.WriteMessages(ctx, kafkago.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
	}); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warnf("eventlog: failed to publish %s to topic %s", evt.Type, p.topic)
		metrics.RecordEventPublish(string(evt.Type), "publish_error")
		return
	}
	metrics.RecordEventPublish(string(evt.Type), "ok")
}

// MappingCreated implements pairing.EventPublisher.
func (p *Producer) MappingCreated(ctx context.Context, m models.IssueMapping) {
	p.publish(ctx, Event{
		Type:             EventMappingCreated,
		MappingID:        m.ID,
		ProjectID:        m.ProjectID,
		ExternalAIssueID: m.ExternalAIssueID,
		ExternalBIssueID: m.ExternalBIssueID,
	})
}

// MappingDeleted implements reconcile.EventPublisher.
func (p *Producer) MappingDeleted(ctx context.Context, m models.IssueMapping) {
	p.publish(ctx, Event{
		Type:             EventMappingDeleted,
		MappingID:        m.ID,
		ProjectID:        m.ProjectID,
		ExternalAIssueID: m.ExternalAIssueID,
		ExternalBIssueID: m.ExternalBIssueID,
	})
}

// ConflictResolved implements reconcile.EventPublisher.
func (p *Producer) ConflictResolved(ctx context.Context, m models.IssueMapping) {
	p.publish(ctx, Event{
		Type:             EventConflictResolved,
		MappingID:        m.ID,
		ProjectID:        m.ProjectID,
		ExternalAIssueID: m.ExternalAIssueID,
		ExternalBIssueID: m.ExternalBIssueID,
	})
}
