// Package reminder sends day-before notifications for donation appointments.
package reminder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/db"
	"github.com/lalithlochan/bloodlink/internal/metrics"
	"github.com/lalithlochan/bloodlink/internal/notify"
)

type Repository interface {
	DueReminders(ctx context.Context, from, to time.Time, limit int) ([]*db.Appointment, error)
	MarkReminded(ctx context.Context, id int64) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, kind, message string, requestID *int64) bool
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

type Worker struct {
	repo     Repository
	notifier Notifier
	config   Config
	logger   *zap.Logger
	now      func() time.Time
}

func New(repo Repository, notifier Notifier, cfg Config, logger *zap.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Hour
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}

	return &Worker{
		repo:     repo,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Start runs one pass immediately and then one per PollInterval until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Tomorrow returns the UTC calendar day after now as a half-open range.
func Tomorrow(now time.Time) (time.Time, time.Time) {
	y, m, d := now.UTC().Date()
	start := time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// RunOnce reminds every appointment due tomorrow and returns how many were sent.
func (w *Worker) RunOnce(ctx context.Context) int {
	from, to := Tomorrow(w.now())

	due, err := w.repo.DueReminders(ctx, from, to, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to load due reminders", zap.Error(err))
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	sent := 0
	for _, appt := range due {
		if ctx.Err() != nil {
			break
		}
		if w.remind(ctx, appt) {
			sent++
		}
	}

	w.logger.Info("appointment reminders sent",
		zap.Int("due", len(due)),
		zap.Int("sent", sent),
	)
	return sent
}

func (w *Worker) remind(ctx context.Context, appt *db.Appointment) bool {
	// Claim first so a concurrent pass never reminds the same appointment twice.
	claimed, err := w.repo.MarkReminded(ctx, appt.ID)
	if err != nil {
		w.logger.Error("failed to mark appointment reminded",
			zap.Error(err),
			zap.Int64("appointment_id", appt.ID),
		)
		return false
	}
	if !claimed {
		return false
	}

	msg := notify.ReminderMessage(appt.Date.UTC().Format("2006-01-02"))
	if !w.notifier.Notify(ctx, appt.UserID, db.NotificationReminder, msg, nil) {
		return false
	}
	metrics.RecordReminderSent()
	return true
}
