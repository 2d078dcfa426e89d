package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/lifecycle"
)

var requestColumns = []string{
	"br.id", "br.recipient_id", "br.blood_type", "br.urgency_level", "br.units",
	"br.location", "br.contact_info", "br.date_needed", "br.latitude", "br.longitude",
	"br.status", "br.requested_at", "br.matched_at", "br.completed_at",
}

func statusValues(statuses []lifecycle.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// latestRequestQuery selects a recipient's most recent request, optionally
// restricted to the given statuses.
func latestRequestQuery(recipientID int64, statuses []lifecycle.Status) sq.SelectBuilder {
	b := psql().Select(requestColumns...).From("blood_requests br").
		Where(sq.Eq{"br.recipient_id": recipientID})
	if len(statuses) > 0 {
		b = b.Where(sq.Eq{"br.status": statusValues(statuses)})
	}
	return b.OrderBy("br.requested_at DESC", "br.id DESC").Limit(1)
}

// CreateRequest inserts req in the active state and fills its id and requested_at.
func (r *Repository) CreateRequest(ctx context.Context, req *BloodRequest) error {
	req.Status = lifecycle.StatusActive

	query, args, err := psql().Insert("blood_requests").
		Columns("recipient_id", "blood_type", "urgency_level", "units", "location",
			"contact_info", "date_needed", "latitude", "longitude", "status").
		Values(req.RecipientID, req.BloodType, req.UrgencyLevel, req.Units, req.Location,
			req.ContactInfo, req.DateNeeded, req.Latitude, req.Longitude, string(req.Status)).
		Suffix("RETURNING id, requested_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.db.Pool().QueryRow(ctx, query, args...).Scan(&req.ID, &req.RequestedAt); err != nil {
		r.logger.Error("failed to create blood request",
			zap.Error(err),
			zap.Int64("recipient_id", req.RecipientID),
		)
		return fmt.Errorf("insert blood request: %w", err)
	}

	r.logger.Info("blood request created",
		zap.Int64("request_id", req.ID),
		zap.Int64("recipient_id", req.RecipientID),
		zap.String("blood_type", req.BloodType),
		zap.String("location", req.Location),
	)
	return nil
}

// LatestRequest returns the recipient's newest request in one of statuses (any when empty).
func (r *Repository) LatestRequest(ctx context.Context, recipientID int64, statuses ...lifecycle.Status) (*BloodRequest, error) {
	var req BloodRequest
	if err := r.get(ctx, &req, latestRequestQuery(recipientID, statuses)); err != nil {
		return nil, fmt.Errorf("latest request for %d: %w", recipientID, err)
	}
	return &req, nil
}

// LatestRequestWithRecipient is LatestRequest joined with the recipient's name.
func (r *Repository) LatestRequestWithRecipient(ctx context.Context, recipientID int64, statuses ...lifecycle.Status) (*RequestWithRecipient, error) {
	var req RequestWithRecipient
	b := latestRequestQuery(recipientID, statuses).
		Column("u.fullname AS recipient_name").
		Join("users u ON u.id = br.recipient_id")
	if err := r.get(ctx, &req, b); err != nil {
		return nil, fmt.Errorf("latest request for %d: %w", recipientID, err)
	}
	return &req, nil
}

// CountRequests counts a recipient's requests in status.
func (r *Repository) CountRequests(ctx context.Context, recipientID int64, status lifecycle.Status) (int, error) {
	query, args, err := psql().Select("COUNT(*)").From("blood_requests").
		Where(sq.Eq{"recipient_id": recipientID, "status": string(status)}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int
	if err := r.db.Pool().QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

// LatestRequestPerRecipient lists every recipient's newest request, newest first.
func (r *Repository) LatestRequestPerRecipient(ctx context.Context) ([]*RequestWithRecipient, error) {
	inner := psql().Select(append([]string{"DISTINCT ON (br.recipient_id) br.id"}, requestColumns[1:]...)...).
		Column("u.fullname AS recipient_name").
		From("blood_requests br").
		Join("users u ON u.id = br.recipient_id").
		OrderBy("br.recipient_id", "br.requested_at DESC", "br.id DESC")

	query, args, err := inner.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	query = "SELECT * FROM (" + query + ") latest ORDER BY requested_at DESC"

	out := make([]*RequestWithRecipient, 0)
	if err := pgxscan.Select(ctx, r.db.Pool(), &out, query, args...); err != nil {
		return nil, fmt.Errorf("list latest requests: %w", err)
	}
	return out, nil
}

// RejectedDonorIDs lists donors who rejected requestID.
func (r *Repository) RejectedDonorIDs(ctx context.Context, requestID int64) ([]int64, error) {
	ids := make([]int64, 0)
	err := r.selectAll(ctx, &ids, psql().Select("donor_id").From("donor_blood_requests").
		Where(sq.Eq{"blood_request_id": requestID, "response": string(lifecycle.ResponseRejected)}))
	if err != nil {
		return nil, fmt.Errorf("rejected donors for %d: %w", requestID, err)
	}
	return ids, nil
}

// DonorInbox lists the offers sent to donorID, newest first.
func (r *Repository) DonorInbox(ctx context.Context, donorID int64) ([]*DonorInboxItem, error) {
	b := psql().Select(
		"dbr.id AS offer_id", "br.id AS request_id", "dbr.response", "dbr.hospital_name",
		"dbr.created_at AS sent_at", "br.blood_type", "br.urgency_level", "br.units",
		"br.location", "br.date_needed", "br.contact_info", "br.status AS request_status",
		"u.fullname AS recipient_name",
	).
		From("donor_blood_requests dbr").
		Join("blood_requests br ON br.id = dbr.blood_request_id").
		Join("users u ON u.id = br.recipient_id").
		Where(sq.Eq{"dbr.donor_id": donorID}).
		OrderBy("dbr.created_at DESC", "dbr.id DESC")

	out := make([]*DonorInboxItem, 0)
	if err := r.selectAll(ctx, &out, b); err != nil {
		return nil, fmt.Errorf("donor inbox for %d: %w", donorID, err)
	}
	return out, nil
}

// DonorMatch returns the donor's latest accepted offer on a matched request.
func (r *Repository) DonorMatch(ctx context.Context, donorID int64) (*DonorMatch, error) {
	var m DonorMatch
	b := psql().Select("br.id AS request_id", "br.location", "br.date_needed").
		From("donor_blood_requests dbr").
		Join("blood_requests br ON br.id = dbr.blood_request_id").
		Where(sq.Eq{
			"dbr.donor_id": donorID,
			"dbr.response": string(lifecycle.ResponseAccepted),
			"br.status":    string(lifecycle.StatusMatched),
		}).
		OrderBy("dbr.created_at DESC").
		Limit(1)
	if err := r.get(ctx, &m, b); err != nil {
		return nil, fmt.Errorf("donor match for %d: %w", donorID, err)
	}
	return &m, nil
}
