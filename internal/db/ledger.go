package db

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/lalithlochan/bloodlink/internal/lifecycle"
)

// Ledger is the transactional view used by lifecycle operations. Every method
// runs on the same transaction; locking a request serializes all other
// ledger work on that request until the transaction ends.
type Ledger interface {
	LockRequest(ctx context.Context, id int64) (*BloodRequest, error)
	LockLatestRequest(ctx context.Context, recipientID int64, statuses []lifecycle.Status) (*BloodRequest, error)
	InsertOffer(ctx context.Context, offer *Offer) error
	AcceptedDonor(ctx context.Context, requestID int64) (int64, error)
	SetOfferResponse(ctx context.Context, donorID, requestID int64, resp lifecycle.Response) (bool, error)
	UpdateRequestStatus(ctx context.Context, id int64, tr lifecycle.Transition) (bool, error)
}

// WithinLedger runs fn in a transaction. fn's error aborts and is returned as is.
func (r *Repository) WithinLedger(ctx context.Context, fn func(Ledger) error) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgLedger{tx: tx})
	})
}

type pgLedger struct {
	tx pgx.Tx
}

func (l *pgLedger) get(ctx context.Context, dst any, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return translate(pgxscan.Get(ctx, l.tx, dst, query, args...))
}

func (l *pgLedger) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	tag, err := l.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

// LockRequest takes a row lock on the request for the rest of the transaction.
func (l *pgLedger) LockRequest(ctx context.Context, id int64) (*BloodRequest, error) {
	var req BloodRequest
	b := psql().Select(requestColumns...).From("blood_requests br").
		Where(sq.Eq{"br.id": id}).Suffix("FOR UPDATE")
	if err := l.get(ctx, &req, b); err != nil {
		return nil, fmt.Errorf("lock request %d: %w", id, err)
	}
	return &req, nil
}

func (l *pgLedger) LockLatestRequest(ctx context.Context, recipientID int64, statuses []lifecycle.Status) (*BloodRequest, error) {
	var req BloodRequest
	if err := l.get(ctx, &req, latestRequestQuery(recipientID, statuses).Suffix("FOR UPDATE")); err != nil {
		return nil, fmt.Errorf("lock latest request for %d: %w", recipientID, err)
	}
	return &req, nil
}

// InsertOffer returns ErrDuplicate when the donor already has an offer for the request.
func (l *pgLedger) InsertOffer(ctx context.Context, offer *Offer) error {
	offer.Response = lifecycle.ResponsePending

	query, args, err := psql().Insert("donor_blood_requests").
		Columns("donor_id", "blood_request_id", "response", "hospital_name").
		Values(offer.DonorID, offer.RequestID, string(offer.Response), offer.HospitalName).
		Suffix("ON CONFLICT (donor_id, blood_request_id) DO NOTHING RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	err = translate(l.tx.QueryRow(ctx, query, args...).Scan(&offer.ID, &offer.CreatedAt))
	if errors.Is(err, ErrNotFound) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

// AcceptedDonor returns the donor holding the accepted offer, or ErrNotFound.
func (l *pgLedger) AcceptedDonor(ctx context.Context, requestID int64) (int64, error) {
	var donorID int64
	b := psql().Select("donor_id").From("donor_blood_requests").
		Where(sq.Eq{"blood_request_id": requestID, "response": string(lifecycle.ResponseAccepted)}).
		Limit(1)
	if err := l.get(ctx, &donorID, b); err != nil {
		return 0, err
	}
	return donorID, nil
}

func offerResponseStatement(donorID, requestID int64, resp lifecycle.Response) sq.UpdateBuilder {
	return psql().Update("donor_blood_requests").
		Set("response", string(resp)).
		Set("responded_at", sq.Expr("NOW()")).
		Where(sq.Eq{"donor_id": donorID}).
		Where(sq.Eq{"blood_request_id": requestID}).
		Where(sq.Eq{"response": string(lifecycle.ResponsePending)})
}

// SetOfferResponse moves the donor's pending offer to resp. It reports false
// when there is no pending offer to update.
func (l *pgLedger) SetOfferResponse(ctx context.Context, donorID, requestID int64, resp lifecycle.Response) (bool, error) {
	n, err := l.exec(ctx, offerResponseStatement(donorID, requestID, resp))
	if err != nil {
		return false, fmt.Errorf("update offer response: %w", err)
	}
	return n > 0, nil
}

// statusStatement is the compare-and-set update for one transition.
func statusStatement(id int64, tr lifecycle.Transition) sq.UpdateBuilder {
	b := psql().Update("blood_requests").Set("status", string(tr.To))
	if tr.Stamp != lifecycle.StampNone {
		b = b.Set(string(tr.Stamp), sq.Expr("NOW()"))
	}
	return b.Where(sq.Eq{"id": id}).Where(sq.Eq{"status": statusValues(tr.From)})
}

// UpdateRequestStatus applies tr only if the request is still in one of tr.From.
func (l *pgLedger) UpdateRequestStatus(ctx context.Context, id int64, tr lifecycle.Transition) (bool, error) {
	n, err := l.exec(ctx, statusStatement(id, tr))
	if err != nil {
		return false, fmt.Errorf("update request %d status: %w", id, err)
	}
	return n > 0, nil
}
