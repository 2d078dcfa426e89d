// Package notify records user notifications and fans lifecycle events out to
// SQS and SMS. Every method is fire-and-forget: failures are logged and
// counted, never returned, so a committed ledger change is never reported as
// failed because a side effect did not land.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/db"
	"github.com/lalithlochan/bloodlink/internal/lifecycle"
	"github.com/lalithlochan/bloodlink/internal/metrics"
	"github.com/lalithlochan/bloodlink/internal/sqs"
)

type Store interface {
	CreateNotification(ctx context.Context, notif *db.Notification) error
	AppendToNotification(ctx context.Context, userID, requestID int64, suffix string) (bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev sqs.Event) (string, error)
}

type Sender interface {
	Send(ctx context.Context, to, message string) error
	Name() string
}

type Option func(*Notifier)

// WithEvents publishes lifecycle events through p.
func WithEvents(p EventPublisher) Option {
	return func(n *Notifier) { n.events = p }
}

// WithSMS texts donors when an offer arrives.
func WithSMS(s Sender) Option {
	return func(n *Notifier) { n.sms = s }
}

type Notifier struct {
	store  Store
	events EventPublisher
	sms    Sender
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger, opts ...Option) *Notifier {
	n := &Notifier{store: store, logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// OfferMessage is the text a donor sees when a recipient reaches out.
func OfferMessage(fullname, bloodType, hospital, location string) string {
	return fmt.Sprintf("You have a blood request from %s (Blood Type: %s) at %s, %s.",
		fullname, bloodType, hospital, location)
}

// ResponseMessage is the text a recipient sees when a donor answers.
func ResponseMessage(donorName string, resp lifecycle.Response) string {
	return fmt.Sprintf("%s has %s your blood request.", donorName, strings.ToLower(resp.Label()))
}

// ReminderMessage is the text of the day-before appointment reminder.
func ReminderMessage(date string) string {
	return fmt.Sprintf("Reminder: You have a blood donation appointment tomorrow (%s).", date)
}

// Notify persists a notification and reports whether it was stored.
func (n *Notifier) Notify(ctx context.Context, userID int64, kind, message string, requestID *int64) bool {
	notif := &db.Notification{
		UserID:    userID,
		Type:      kind,
		Message:   message,
		RequestID: requestID,
	}
	if err := n.store.CreateNotification(ctx, notif); err != nil {
		metrics.RecordNotificationFailure("persist")
		n.logger.Warn("failed to record notification",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("type", kind),
		)
		return false
	}
	metrics.RecordNotificationCreated(kind)
	return true
}

type Offer struct {
	RequestID   int64
	RecipientID int64
	DonorID     int64
	DonorPhone  *string
	Message     string
}

func (n *Notifier) OfferSent(ctx context.Context, o Offer) {
	requestID := o.RequestID
	n.Notify(ctx, o.DonorID, db.NotificationBloodRequest, o.Message, &requestID)

	if n.sms != nil && o.DonorPhone != nil && *o.DonorPhone != "" {
		if err := n.sms.Send(ctx, *o.DonorPhone, o.Message); err != nil {
			metrics.RecordNotificationFailure("sms")
			n.logger.Warn("failed to send offer sms",
				zap.Error(err),
				zap.String("sender", n.sms.Name()),
				zap.Int64("donor_id", o.DonorID),
				zap.Int64("request_id", o.RequestID),
			)
		}
	}

	n.publish(ctx, sqs.Event{
		Type:        sqs.EventOfferSent,
		RequestID:   o.RequestID,
		DonorID:     o.DonorID,
		RecipientID: o.RecipientID,
	})
}

type Response struct {
	RequestID   int64
	RecipientID int64
	DonorID     int64
	DonorName   string
	Response    lifecycle.Response
}

// OfferResponded amends the donor's offer notification with the response
// label and tells the recipient.
func (n *Notifier) OfferResponded(ctx context.Context, r Response) {
	found, err := n.store.AppendToNotification(ctx, r.DonorID, r.RequestID, "  "+r.Response.Label())
	switch {
	case err != nil:
		metrics.RecordNotificationFailure("amend")
		n.logger.Warn("failed to amend offer notification",
			zap.Error(err),
			zap.Int64("donor_id", r.DonorID),
			zap.Int64("request_id", r.RequestID),
		)
	case !found:
		n.logger.Debug("no offer notification to amend",
			zap.Int64("donor_id", r.DonorID),
			zap.Int64("request_id", r.RequestID),
		)
	}

	requestID := r.RequestID
	n.Notify(ctx, r.RecipientID, db.NotificationOfferResponse, ResponseMessage(r.DonorName, r.Response), &requestID)

	n.publish(ctx, sqs.Event{
		Type:        sqs.EventOfferResponded,
		RequestID:   r.RequestID,
		DonorID:     r.DonorID,
		RecipientID: r.RecipientID,
		Response:    string(r.Response),
	})
}

func (n *Notifier) RequestTransitioned(ctx context.Context, requestID, recipientID int64, from, to lifecycle.Status) {
	metrics.RecordTransition(string(from), string(to))
	n.publish(ctx, sqs.Event{
		Type:        sqs.EventRequestTransition,
		RequestID:   requestID,
		RecipientID: recipientID,
		FromStatus:  string(from),
		ToStatus:    string(to),
	})
}

func (n *Notifier) publish(ctx context.Context, ev sqs.Event) {
	if n.events == nil {
		return
	}
	if _, err := n.events.Publish(ctx, ev); err != nil {
		metrics.RecordNotificationFailure("event")
		n.logger.Warn("failed to publish lifecycle event",
			zap.Error(err),
			zap.String("type", string(ev.Type)),
			zap.Int64("request_id", ev.RequestID),
		)
	}
}
