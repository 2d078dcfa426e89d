package donation

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/apperr"
	"github.com/lalithlochan/bloodlink/internal/db"
	"github.com/lalithlochan/bloodlink/internal/lifecycle"
	"github.com/lalithlochan/bloodlink/internal/metrics"
	"github.com/lalithlochan/bloodlink/internal/notify"
)

type OfferInput struct {
	DonorID      int64
	RequestID    int64
	HospitalName string
}

// SendOffer records a pending offer from the caller's request to a donor and
// moves the request to pending. The ledger transaction holds the request's
// row lock, so a concurrent duplicate sees the first offer.
func (s *Service) SendOffer(ctx context.Context, callerID int64, in OfferInput) (*db.Offer, error) {
	in.HospitalName = strings.TrimSpace(in.HospitalName)
	if in.DonorID <= 0 || in.RequestID <= 0 || in.HospitalName == "" {
		return nil, apperr.Validation("Missing required fields")
	}

	donor, err := s.store.FindUserByID(ctx, in.DonorID)
	if notFound(err) {
		return nil, apperr.NotFound("Donor not found.")
	}
	if err != nil {
		return nil, s.internal("find donor", err, zap.Int64("donor_id", in.DonorID))
	}
	if donor.Usertype != db.UserTypeDonor {
		return nil, apperr.Validation("Selected user is not a donor.")
	}

	recipient, err := s.store.FindUserByID(ctx, callerID)
	if notFound(err) {
		return nil, apperr.Unauthorized("Unknown user.")
	}
	if err != nil {
		return nil, s.internal("find recipient", err, zap.Int64("recipient_id", callerID))
	}

	var (
		req   *db.BloodRequest
		offer = &db.Offer{DonorID: in.DonorID, RequestID: in.RequestID, HospitalName: in.HospitalName}
		moved *transitioned
	)
	err = s.store.WithinLedger(ctx, func(l db.Ledger) error {
		var err error
		req, err = l.LockRequest(ctx, in.RequestID)
		if notFound(err) {
			return apperr.NotFound("Blood request or recipient not found.")
		}
		if err != nil {
			return err
		}
		if req.RecipientID != callerID {
			return apperr.NotFound("Blood request or recipient not found.")
		}
		if !req.Status.Open() {
			return apperr.Conflict("Request is no longer accepting donors.")
		}

		if err := l.InsertOffer(ctx, offer); err != nil {
			if errors.Is(err, db.ErrDuplicate) {
				return apperr.Conflict("Request already sent to this donor.")
			}
			return err
		}

		moved, err = applyTransition(ctx, l, req, lifecycle.EventOfferSent)
		return err
	})
	if err != nil {
		return nil, s.internal("send offer", err, zap.Int64("request_id", in.RequestID), zap.Int64("donor_id", in.DonorID))
	}

	metrics.RecordOfferSent()
	s.logger.Info("offer sent",
		zap.Int64("request_id", req.ID),
		zap.Int64("donor_id", donor.ID),
		zap.Int64("offer_id", offer.ID),
	)

	s.notifier.OfferSent(ctx, notify.Offer{
		RequestID:   req.ID,
		RecipientID: req.RecipientID,
		DonorID:     donor.ID,
		DonorPhone:  donor.Phone,
		Message:     notify.OfferMessage(recipient.Fullname, req.BloodType, in.HospitalName, req.Location),
	})
	s.announce(ctx, moved)
	return offer, nil
}

type RespondResult struct {
	RequestID int64              `json:"request_id"`
	Response  lifecycle.Response `json:"response"`
	Status    lifecycle.Status   `json:"status"`
}

// Respond records the caller's answer to their pending offer for requestID.
//
// An acceptance matches the request; at most one offer per request is ever
// accepted. A rejection moves a pending request to rejected so the recipient
// can match again. Rejecting after another donor has matched leaves the
// request matched.
func (s *Service) Respond(ctx context.Context, callerID, requestID int64, resp lifecycle.Response) (*RespondResult, error) {
	if resp != lifecycle.ResponseAccepted && resp != lifecycle.ResponseRejected {
		return nil, apperr.Validation("Invalid response type.")
	}

	var (
		req    *db.BloodRequest
		moved  *transitioned
		status lifecycle.Status
	)
	err := s.store.WithinLedger(ctx, func(l db.Ledger) error {
		var err error
		req, err = l.LockRequest(ctx, requestID)
		if notFound(err) {
			return apperr.NotFound("Request not found.")
		}
		if err != nil {
			return err
		}
		status = req.Status

		if resp == lifecycle.ResponseAccepted {
			holder, err := l.AcceptedDonor(ctx, requestID)
			switch {
			case err == nil && holder != callerID:
				return apperr.Conflict("This request has already been accepted by another donor.")
			case err != nil && !notFound(err):
				return err
			}
		}

		updated, err := l.SetOfferResponse(ctx, callerID, requestID, resp)
		if err != nil {
			return err
		}
		if !updated {
			return apperr.Conflict("You already responded or request not found.")
		}

		ev := lifecycle.EventFor(resp)
		if resp == lifecycle.ResponseAccepted {
			if _, err := lifecycle.Next(req.Status, ev); err != nil {
				return apperr.Conflict("Request is no longer accepting donors.")
			}
		}
		moved, err = applyTransition(ctx, l, req, ev)
		if err != nil {
			return err
		}
		if moved != nil {
			status = moved.To
		} else if resp == lifecycle.ResponseAccepted {
			return apperr.Conflict("Request is no longer accepting donors.")
		}
		return nil
	})
	if err != nil {
		return nil, s.internal("respond", err, zap.Int64("request_id", requestID), zap.Int64("donor_id", callerID))
	}

	metrics.RecordOfferResponse(string(resp))
	s.logger.Info("offer answered",
		zap.Int64("request_id", requestID),
		zap.Int64("donor_id", callerID),
		zap.String("response", string(resp)),
	)

	s.notifier.OfferResponded(ctx, notify.Response{
		RequestID:   requestID,
		RecipientID: req.RecipientID,
		DonorID:     callerID,
		DonorName:   s.displayName(ctx, callerID),
		Response:    resp,
	})
	s.announce(ctx, moved)

	return &RespondResult{RequestID: requestID, Response: resp, Status: status}, nil
}

// displayName is best effort; the response is already committed.
func (s *Service) displayName(ctx context.Context, userID int64) string {
	u, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load donor name", zap.Error(err), zap.Int64("user_id", userID))
		return "A donor"
	}
	return u.Fullname
}

type TransitionResult struct {
	Updated   bool             `json:"updated"`
	RequestID int64            `json:"request_id,omitempty"`
	Status    lifecycle.Status `json:"status,omitempty"`
}

// MarkMatched manually matches the caller's latest active request.
func (s *Service) MarkMatched(ctx context.Context, callerID int64) (*TransitionResult, error) {
	return s.markLatest(ctx, callerID, lifecycle.EventMarkMatched)
}

// MarkComplete completes the caller's latest request that can still be
// completed. With none, nothing changes and Updated is false.
func (s *Service) MarkComplete(ctx context.Context, callerID int64) (*TransitionResult, error) {
	return s.markLatest(ctx, callerID, lifecycle.EventMarkComplete)
}

func (s *Service) markLatest(ctx context.Context, callerID int64, ev lifecycle.Event) (*TransitionResult, error) {
	var moved *transitioned
	err := s.store.WithinLedger(ctx, func(l db.Ledger) error {
		req, err := l.LockLatestRequest(ctx, callerID, lifecycle.For(ev).From)
		if notFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		moved, err = applyTransition(ctx, l, req, ev)
		return err
	})
	if err != nil {
		return nil, s.internal(string(ev), err, zap.Int64("recipient_id", callerID))
	}

	if moved == nil {
		s.logger.Info("no request to transition",
			zap.Int64("recipient_id", callerID),
			zap.String("event", string(ev)),
		)
		return &TransitionResult{Updated: false}, nil
	}

	s.announce(ctx, moved)
	return &TransitionResult{Updated: true, RequestID: moved.RequestID, Status: moved.To}, nil
}
