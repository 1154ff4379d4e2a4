// Package notify publishes letter lifecycle events to Kafka and sends
// operator alert email. All delivery is fire and forget: a notification
// failure is logged and never fails the triggering operation.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"letterworks/pkg/config"
	"letterworks/pkg/email"
	"letterworks/pkg/logging"
	"letterworks/pkg/models"
)

const letterEventsTopic = "letter_events"

// Event is the wire shape published to the letter_events topic.
type Event struct {
	EventID   string              `json:"event_id"`
	EventType string              `json:"event_type"`
	LetterID  string              `json:"letter_id"`
	UserID    string              `json:"user_id"`
	Status    models.LetterStatus `json:"status,omitempty"`
	Detail    string              `json:"detail,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Event types consumed downstream (delivery pipeline, user notification service).
const (
	EventLetterSubmitted  = "letter.submitted"
	EventLetterApproved   = "letter.approved"
	EventLetterRejected   = "letter.rejected"
	EventLetterCompleted  = "letter.completed"
	EventGenerationFailed = "letter.generation_failed"
)

// Notifier fans letter events out to Kafka and operators. A zero-configured
// Notifier is a no-op; callers never need to check whether messaging is
// enabled.
type Notifier struct {
	client     *kgo.Client
	sender     *email.Sender
	alertEmail string
	logger     logging.Logger
}

// NewNotifier builds a notifier from environment configuration. Missing
// KAFKA_BROKERS disables event publishing, missing SMTP config disables
// alert email. Either half can run without the other.
func NewNotifier(logger logging.Logger) (*Notifier, error) {
	n := &Notifier{logger: logger}

	if brokers := config.GetEnv("KAFKA_BROKERS", ""); brokers != "" {
		client, err := kgo.NewClient(
			kgo.SeedBrokers(strings.Split(brokers, ",")...),
			kgo.ClientID("scrivener"),
			kgo.ProducerBatchCompression(kgo.SnappyCompression()),
			kgo.ProducerLinger(10*time.Millisecond),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka client: %w", err)
		}
		n.client = client
		logger.WithField("brokers", brokers).Info("Letter event publishing enabled")
	} else {
		logger.Warn("KAFKA_BROKERS not set, letter events disabled")
	}

	if host := config.GetEnv("SMTP_HOST", ""); host != "" {
		n.sender = email.NewSender(email.Config{
			Host:     host,
			Port:     config.GetEnv("SMTP_PORT", "587"),
			User:     config.GetEnv("SMTP_USER", ""),
			Password: config.GetEnv("SMTP_PASSWORD", ""),
			From:     config.GetEnv("SMTP_FROM", "noreply@letterworks.dev"),
			FromName: config.GetEnv("SMTP_FROM_NAME", "Letterworks"),
		})
		n.alertEmail = config.GetEnv("ALERT_EMAIL", "")
	}

	return n, nil
}

// NewDisabledNotifier returns a notifier with publishing and alerting off.
// Useful in tests and local setups without Kafka or SMTP.
func NewDisabledNotifier(logger logging.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// Client exposes the underlying Kafka client for health checks. Nil when
// publishing is disabled.
func (n *Notifier) Client() *kgo.Client {
	return n.client
}

// Close flushes and releases the Kafka client.
func (n *Notifier) Close() {
	if n.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n.client.Flush(ctx)
		n.client.Close()
	}
}

// Publish emits one letter event asynchronously. Errors end up in the log.
func (n *Notifier) Publish(eventType string, letter models.Letter, detail string) {
	if n.client == nil {
		return
	}

	event := Event{
		EventID:   uuid.New().String(),
		EventType: eventType,
		LetterID:  letter.ID,
		UserID:    letter.UserID,
		Status:    letter.Status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		n.logger.WithField("error", err.Error()).Error("Failed to marshal letter event")
		return
	}

	record := &kgo.Record{
		Topic: letterEventsTopic,
		Key:   []byte(letter.ID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	n.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil {
			n.logger.WithFields(logging.Fields{
				"letter_id":  letter.ID,
				"event_type": eventType,
				"error":      err.Error(),
			}).Error("Failed to publish letter event")
		}
	})
}

// AlertOperators emails the configured operator address about a failure that
// needs human attention. No-op when alerting is not configured.
func (n *Notifier) AlertOperators(ctx context.Context, subject, body string) {
	if n.sender == nil || n.alertEmail == "" {
		return
	}

	if err := n.sender.SendAlert(ctx, n.alertEmail, subject, body); err != nil {
		n.logger.WithFields(logging.Fields{
			"subject": subject,
			"error":   err.Error(),
		}).Error("Failed to send operator alert")
	}
}
