package donation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/apperr"
	"github.com/lalithlochan/bloodlink/internal/db"
)

type AppointmentStore interface {
	CreateAppointment(ctx context.Context, appt *db.Appointment) error
	ListAppointments(ctx context.Context, userID int64) ([]*db.Appointment, error)
	ListAllAppointments(ctx context.Context) ([]*db.AppointmentView, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, status db.AppointmentStatus) error
}

// Appointments books and updates donation appointments.
type Appointments struct {
	store  AppointmentStore
	logger *zap.Logger
}

func NewAppointments(store AppointmentStore, logger *zap.Logger) *Appointments {
	return &Appointments{store: store, logger: logger}
}

type NewAppointment struct {
	Date     time.Time
	Location string
	Units    int
	Status   string
}

func (a *Appointments) Create(ctx context.Context, callerID int64, in NewAppointment) (*db.Appointment, error) {
	in.Location = strings.TrimSpace(in.Location)
	if in.Date.IsZero() || in.Location == "" || in.Units <= 0 {
		return nil, apperr.Validation("All fields are required.")
	}

	status := db.AppointmentScheduled
	if in.Status != "" {
		st, ok := db.ParseAppointmentStatus(in.Status)
		if !ok {
			return nil, apperr.Validation("Invalid appointment status.")
		}
		status = st
	}

	appt := &db.Appointment{
		UserID:   callerID,
		Date:     in.Date,
		Location: in.Location,
		Units:    in.Units,
		Status:   status,
	}
	if err := a.store.CreateAppointment(ctx, appt); err != nil {
		a.logger.Error("create appointment failed", zap.Error(err), zap.Int64("user_id", callerID))
		return nil, apperr.Internal("create appointment", err)
	}
	return appt, nil
}

func (a *Appointments) List(ctx context.Context, callerID int64) ([]*db.Appointment, error) {
	out, err := a.store.ListAppointments(ctx, callerID)
	if err != nil {
		a.logger.Error("list appointments failed", zap.Error(err), zap.Int64("user_id", callerID))
		return nil, apperr.Internal("list appointments", err)
	}
	return out, nil
}

func (a *Appointments) ListAll(ctx context.Context) ([]*db.AppointmentView, error) {
	out, err := a.store.ListAllAppointments(ctx)
	if err != nil {
		a.logger.Error("list all appointments failed", zap.Error(err))
		return nil, apperr.Internal("list all appointments", err)
	}
	return out, nil
}

func (a *Appointments) UpdateStatus(ctx context.Context, id int64, status string) error {
	st, ok := db.ParseAppointmentStatus(status)
	if !ok {
		return apperr.Validation("Invalid appointment status.")
	}

	err := a.store.UpdateAppointmentStatus(ctx, id, st)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("Appointment not found.")
	}
	if err != nil {
		a.logger.Error("update appointment failed", zap.Error(err), zap.Int64("appointment_id", id))
		return apperr.Internal("update appointment", err)
	}
	return nil
}
