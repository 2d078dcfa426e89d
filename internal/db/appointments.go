package db

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
)

var appointmentColumns = []string{
	"a.id", "a.user_id", "a.date", "a.location", "a.status", "a.units", "a.reminded_at", "a.created_at",
}

// CreateAppointment inserts appt and fills its generated fields.
func (r *Repository) CreateAppointment(ctx context.Context, appt *Appointment) error {
	if appt.Status == "" {
		appt.Status = AppointmentScheduled
	}

	query, args, err := psql().Insert("appointments").
		Columns("user_id", "date", "location", "status", "units").
		Values(appt.UserID, appt.Date, appt.Location, string(appt.Status), appt.Units).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.db.Pool().QueryRow(ctx, query, args...).Scan(&appt.ID, &appt.CreatedAt); err != nil {
		r.logger.Error("failed to create appointment", zap.Error(err), zap.Int64("user_id", appt.UserID))
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *Repository) ListAppointments(ctx context.Context, userID int64) ([]*Appointment, error) {
	out := make([]*Appointment, 0)
	err := r.selectAll(ctx, &out, psql().Select(appointmentColumns...).From("appointments a").
		Where(sq.Eq{"a.user_id": userID}).OrderBy("a.date DESC"))
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

// ListAllAppointments returns every appointment with its donor, newest date first.
func (r *Repository) ListAllAppointments(ctx context.Context) ([]*AppointmentView, error) {
	out := make([]*AppointmentView, 0)
	err := r.selectAll(ctx, &out, psql().Select(appointmentColumns...).
		Columns("u.fullname AS donor_name", "u.bloodtype").
		From("appointments a").
		Join("users u ON u.id = a.user_id").
		OrderBy("a.date DESC"))
	if err != nil {
		return nil, fmt.Errorf("list all appointments: %w", err)
	}
	return out, nil
}

// UpdateAppointmentStatus returns ErrNotFound when no appointment has id.
func (r *Repository) UpdateAppointmentStatus(ctx context.Context, id int64, status AppointmentStatus) error {
	n, err := r.exec(ctx, psql().Update("appointments").Set("status", string(status)).Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("update appointment %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update appointment %d: %w", id, ErrNotFound)
	}
	return nil
}

// dueRemindersQuery finds unreminded, uncancelled appointments within [from, to).
func dueRemindersQuery(from, to time.Time, limit int) sq.SelectBuilder {
	return psql().Select(appointmentColumns...).From("appointments a").
		Where(sq.GtOrEq{"a.date": from}).
		Where(sq.Lt{"a.date": to}).
		Where(sq.Eq{"a.reminded_at": nil}).
		Where(sq.NotEq{"a.status": string(AppointmentCancelled)}).
		OrderBy("a.date").
		Limit(uint64(limit))
}

// DueReminders lists appointments in [from, to) that have not been reminded.
func (r *Repository) DueReminders(ctx context.Context, from, to time.Time, limit int) ([]*Appointment, error) {
	out := make([]*Appointment, 0)
	if err := r.selectAll(ctx, &out, dueRemindersQuery(from, to, limit)); err != nil {
		return nil, fmt.Errorf("due reminders: %w", err)
	}
	return out, nil
}

// MarkReminded stamps reminded_at once; it reports false if already stamped.
func (r *Repository) MarkReminded(ctx context.Context, id int64) (bool, error) {
	n, err := r.exec(ctx, psql().Update("appointments").
		Set("reminded_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "reminded_at": nil}))
	if err != nil {
		return false, fmt.Errorf("mark appointment %d reminded: %w", id, err)
	}
	return n > 0, nil
}
