// Package donation implements the matching and request lifecycle workflow:
// recipients create requests and send offers, donors answer them, and each
// answer moves the request through its status machine. Every operation takes
// the caller's user id explicitly.
package donation

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/apperr"
	"github.com/lalithlochan/bloodlink/internal/db"
	"github.com/lalithlochan/bloodlink/internal/geo"
	"github.com/lalithlochan/bloodlink/internal/lifecycle"
	"github.com/lalithlochan/bloodlink/internal/notify"
)

// openStatuses are the states in which a request still takes offers.
var openStatuses = []lifecycle.Status{lifecycle.StatusActive, lifecycle.StatusPending, lifecycle.StatusRejected}

// Store is the persistence the workflow needs. *db.Repository satisfies it.
type Store interface {
	FindUserByID(ctx context.Context, id int64) (*db.User, error)
	FindDonors(ctx context.Context, bloodType, location string) ([]*db.User, error)
	UpdateUserFields(ctx context.Context, id int64, upd db.UserUpdate) error

	FindConstituency(ctx context.Context, name string) (*db.Constituency, error)
	FindHospital(ctx context.Context, constituency, name string) (*db.Hospital, error)

	CreateRequest(ctx context.Context, req *db.BloodRequest) error
	LatestRequest(ctx context.Context, recipientID int64, statuses ...lifecycle.Status) (*db.BloodRequest, error)
	LatestRequestWithRecipient(ctx context.Context, recipientID int64, statuses ...lifecycle.Status) (*db.RequestWithRecipient, error)
	CountRequests(ctx context.Context, recipientID int64, status lifecycle.Status) (int, error)
	RejectedDonorIDs(ctx context.Context, requestID int64) ([]int64, error)
	DonorInbox(ctx context.Context, donorID int64) ([]*db.DonorInboxItem, error)
	DonorMatch(ctx context.Context, donorID int64) (*db.DonorMatch, error)

	WithinLedger(ctx context.Context, fn func(db.Ledger) error) error
}

// Notifier receives post-commit side effects. Implementations must not block
// on or surface delivery failures.
type Notifier interface {
	OfferSent(ctx context.Context, o notify.Offer)
	OfferResponded(ctx context.Context, r notify.Response)
	RequestTransitioned(ctx context.Context, requestID, recipientID int64, from, to lifecycle.Status)
}

type Service struct {
	store    Store
	notifier Notifier
	jitter   *geo.Jitterer
	logger   *zap.Logger
}

func NewService(store Store, notifier Notifier, jitter *geo.Jitterer, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		jitter:   jitter,
		logger:   logger,
	}
}

// transitioned records a committed status change.
type transitioned struct {
	RequestID   int64
	RecipientID int64
	From        lifecycle.Status
	To          lifecycle.Status
}

func (s *Service) announce(ctx context.Context, t *transitioned) {
	if t == nil {
		return
	}
	s.logger.Info("blood request transitioned",
		zap.Int64("request_id", t.RequestID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
	)
	s.notifier.RequestTransitioned(ctx, t.RequestID, t.RecipientID, t.From, t.To)
}

// applyTransition runs the compare-and-set for ev against req inside l. It
// returns nil without touching storage when ev does not apply to req's status.
func applyTransition(ctx context.Context, l db.Ledger, req *db.BloodRequest, ev lifecycle.Event) (*transitioned, error) {
	tr, err := lifecycle.Next(req.Status, ev)
	if err != nil {
		return nil, nil
	}
	ok, err := l.UpdateRequestStatus(ctx, req.ID, tr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &transitioned{RequestID: req.ID, RecipientID: req.RecipientID, From: req.Status, To: tr.To}, nil
}

// internal passes classified errors through and logs and wraps the rest as Internal.
func (s *Service) internal(op string, err error, fields ...zap.Field) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	s.logger.Error(op+" failed", append(fields, zap.Error(err))...)
	return apperr.Internal(op, err)
}

func notFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
