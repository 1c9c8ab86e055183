// Package reminders runs the medication reminder sweep on a cron schedule.
// Scheduling and state transitions only; notification delivery is out of
// scope for the server.
package reminders

import (
	"fmt"
	"time"

	"github.com/glucolog/glucolog/internal/config"
	"github.com/glucolog/glucolog/internal/entries"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner periodically marks overdue scheduled medications as missed so
// adherence stats reflect reality without manual bookkeeping.
type Runner struct {
	config  config.RemindersConfig
	entries *entries.Store
	logger  *zap.Logger
	cron    *cron.Cron
	userID  string
}

func NewRunner(cfg config.RemindersConfig, entryStore *entries.Store, userID string, logger *zap.Logger) *Runner {
	return &Runner{
		config:  cfg,
		entries: entryStore,
		logger:  logger,
		cron:    cron.New(),
		userID:  userID,
	}
}

// Start schedules the sweep. It fails on an invalid cron spec rather than
// silently never running.
func (r *Runner) Start() error {
	if !r.config.Enabled {
		return nil
	}

	_, err := r.cron.AddFunc(r.config.CronSpec, func() {
		if _, err := r.Sweep(); err != nil {
			r.logger.Error("reminder sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", r.config.CronSpec, err)
	}

	r.cron.Start()
	r.logger.Info("reminder scheduler started", zap.String("spec", r.config.CronSpec))
	return nil
}

// Stop halts the scheduler, waiting for an in-flight sweep to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("reminder scheduler stopped")
}

// Sweep marks scheduled medications past the grace period as missed and
// returns how many transitioned.
func (r *Runner) Sweep() (int, error) {
	grace := time.Duration(r.config.OverdueAfter) * time.Minute
	overdue, err := r.entries.OverdueMedications(r.userID, grace)
	if err != nil {
		return 0, fmt.Errorf("listing overdue medications: %w", err)
	}

	missed := 0
	for i := range overdue {
		entry := &overdue[i]
		entry.Status = entries.StatusMissed
		if err := r.entries.Update(entry); err != nil {
			return missed, fmt.Errorf("marking %s missed: %w", entry.ID, err)
		}
		missed++
		r.logger.Info("medication marked missed",
			zap.String("entry_id", entry.ID),
			zap.String("name", entry.Name),
			zap.Timep("scheduled_at", entry.ScheduledAt))
	}
	return missed, nil
}
