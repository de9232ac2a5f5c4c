// Package events publishes rule-version events to Kafka so downstream
// consumers can flag stored scores for recalculation.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/solatis/medaudit/internal/logger"
	"github.com/solatis/medaudit/internal/types"
)

// EventTypeVersionCreated marks a newly recorded rule-set version.
const EventTypeVersionCreated = "rule_version.created"

// partitionKey is shared by every message so all versions land on one
// partition in order.
const partitionKey = "rule-set"

const (
	batchTimeout = 50 * time.Millisecond
	writeTimeout = 10 * time.Second
)

// VersionEvent is the JSON body of every message.
type VersionEvent struct {
	ID            string          `json:"id"`
	EventType     string          `json:"eventType"`
	Timestamp     time.Time       `json:"timestamp"`
	VersionID     types.VersionID `json:"versionId"`
	VersionNumber int             `json:"versionNumber"`
	ContentHash   string          `json:"contentHash"`
	Description   string          `json:"description,omitempty"`
	ChangeCount   int             `json:"changeCount"`
	Changes       []ChangeSummary `json:"changes"`
}

// ChangeSummary names one rule touched by the version.
type ChangeSummary struct {
	RuleID     types.RuleID     `json:"ruleId"`
	ChangeType types.ChangeType `json:"changeType"`
	ChangedBy  string           `json:"changedBy,omitempty"`
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements versioning.Notifier over a Kafka topic.
type Publisher struct {
	writer messageWriter
	topic  string
	log    logger.Logger
	now    func() time.Time
}

// NewKafkaPublisher creates a synchronous publisher for topic.
func NewKafkaPublisher(brokers []string, topic string, log logger.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, topic, log), nil
}

func newPublisher(w messageWriter, topic string, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{writer: w, topic: topic, log: log, now: time.Now}
}

// VersionCreated publishes one event for v.
func (p *Publisher) VersionCreated(ctx context.Context, v *types.RuleVersion, entries []types.RuleChangeLogEntry) error {
	event := NewVersionEvent(v, entries, p.now())
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal version event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(partitionKey),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeVersionCreated)},
		},
		Time: event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	p.log.Debugw("Published rule version event",
		"topic", p.topic,
		"version", v.VersionNumber,
		"event_id", event.ID,
	)
	return nil
}

// Close flushes pending messages and releases connections.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NewVersionEvent builds the event for v.
func NewVersionEvent(v *types.RuleVersion, entries []types.RuleChangeLogEntry, at time.Time) VersionEvent {
	changes := make([]ChangeSummary, 0, len(entries))
	for _, e := range entries {
		changes = append(changes, ChangeSummary{
			RuleID:     e.RuleID,
			ChangeType: e.ChangeType,
			ChangedBy:  e.ChangedBy,
		})
	}
	return VersionEvent{
		ID:            uuid.New().String(),
		EventType:     EventTypeVersionCreated,
		Timestamp:     at.UTC(),
		VersionID:     v.ID,
		VersionNumber: v.VersionNumber,
		ContentHash:   v.ContentHash,
		Description:   v.Description,
		ChangeCount:   len(entries),
		Changes:       changes,
	}
}
