package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
)

// CreateNotification inserts notif and fills its id and created_at.
func (r *Repository) CreateNotification(ctx context.Context, notif *Notification) error {
	query, args, err := psql().Insert("notifications").
		Columns("user_id", "type", "message", "request_id").
		Values(notif.UserID, notif.Type, notif.Message, notif.RequestID).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.db.Pool().QueryRow(ctx, query, args...).Scan(&notif.ID, &notif.CreatedAt); err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.Int64("user_id", notif.UserID),
			zap.String("type", notif.Type),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

// appendMessageStatement amends the user's newest notification for requestID.
func appendMessageStatement(userID, requestID int64, suffix string) sq.UpdateBuilder {
	newest := sq.Select("id").From("notifications").
		Where(sq.Eq{"user_id": userID, "request_id": requestID, "type": NotificationBloodRequest}).
		OrderBy("created_at DESC", "id DESC").
		Limit(1)

	return psql().Update("notifications").
		Set("message", sq.Expr("message || ?", suffix)).
		Where(sq.Expr("id = (?)", newest))
}

// AppendToNotification appends suffix to the offer notification for
// (userID, requestID). It reports whether one was found.
func (r *Repository) AppendToNotification(ctx context.Context, userID, requestID int64, suffix string) (bool, error) {
	n, err := r.exec(ctx, appendMessageStatement(userID, requestID, suffix))
	if err != nil {
		return false, fmt.Errorf("append to notification: %w", err)
	}
	return n > 0, nil
}

// ListNotifications returns a user's notifications, newest first.
func (r *Repository) ListNotifications(ctx context.Context, userID int64, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	out := make([]*Notification, 0)
	err := r.selectAll(ctx, &out, psql().
		Select("id", "user_id", "type", "message", "request_id", "created_at").
		From("notifications").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}
