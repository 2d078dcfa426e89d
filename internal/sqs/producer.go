// Package sqs publishes donation lifecycle events to an SQS queue for
// downstream consumers (analytics, provider dashboards).
package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventType string

const (
	EventOfferSent         EventType = "offer.sent"
	EventOfferResponded    EventType = "offer.responded"
	EventRequestTransition EventType = "request.status_changed"
)

type Config struct {
	Region   string
	QueueURL string
}

// Event is the JSON body of every queued message.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	RequestID   int64     `json:"request_id"`
	DonorID     int64     `json:"donor_id,omitempty"`
	RecipientID int64     `json:"recipient_id,omitempty"`
	FromStatus  string    `json:"from_status,omitempty"`
	ToStatus    string    `json:"to_status,omitempty"`
	Response    string    `json:"response,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// sendMessageAPI is the slice of *sqs.Client the producer needs.
type sendMessageAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type Producer struct {
	client   sendMessageAPI
	queueURL string
	logger   *zap.Logger
	now      func() time.Time
}

func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	if cfg.QueueURL == "" {
		return nil, errors.New("sqs queue url is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("sqs producer initialized", zap.String("queue_url", cfg.QueueURL))

	return newProducer(sqs.NewFromConfig(awsCfg), cfg.QueueURL, logger), nil
}

func newProducer(client sendMessageAPI, queueURL string, logger *zap.Logger) *Producer {
	return &Producer{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		now:      time.Now,
	}
}

// Publish fills in the event id and timestamp when unset and returns the SQS message id.
func (p *Producer) Publish(ctx context.Context, ev Event) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now().UTC()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(ev.Type)),
			},
		},
	})
	if err != nil {
		p.logger.Error("failed to send event to sqs",
			zap.Error(err),
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.Int64("request_id", ev.RequestID),
		)
		return "", fmt.Errorf("sqs send failed: %w", err)
	}

	return aws.ToString(out.MessageId), nil
}
