package maintenance

import (
	"context"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/config"
)

// AttemptExpirer closes drill attempts past their deadline.
type AttemptExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// SimulationReaper fails abandoned simulations.
type SimulationReaper interface {
	FailStale(ctx context.Context) (int, error)
}

// SubscriptionExpirer downgrades subscriptions whose period lapsed.
type SubscriptionExpirer interface {
	ExpireLapsed(ctx context.Context) (int, error)
}

// Sweeps groups the built-in maintenance targets. Nil fields are skipped.
type Sweeps struct {
	Attempts      AttemptExpirer
	Simulations   SimulationReaper
	Subscriptions SubscriptionExpirer
}

// AddSweeps registers the built-in jobs on the configured schedules.
func (s *Scheduler) AddSweeps(cfg config.MaintenanceConfig, sw Sweeps) error {
	if sw.Attempts != nil {
		if err := s.Add(Job{Name: JobExpireAttempts, Schedule: cfg.AttemptSchedule, Run: sw.Attempts.ExpireStale}); err != nil {
			return err
		}
	}
	if sw.Simulations != nil {
		if err := s.Add(Job{Name: JobFailSimulations, Schedule: cfg.SimulationSchedule, Run: sw.Simulations.FailStale}); err != nil {
			return err
		}
	}
	if sw.Subscriptions != nil {
		if err := s.Add(Job{Name: JobExpireSubscriptions, Schedule: cfg.SubscriptionSchedule, Run: sw.Subscriptions.ExpireLapsed}); err != nil {
			return err
		}
	}
	return nil
}
