package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const DefaultSweepSchedule = "@every 5m"

// Sweeper marks in-progress sessions as abandoned once they are older than
// the configured age, which frees the user to start again.
type Sweeper struct {
	store    Store
	after    time.Duration
	schedule string
	now      func() time.Time
	cron     *cron.Cron
}

func NewSweeper(store Store, after time.Duration, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{store: store, after: after, schedule: schedule, now: time.Now}
}

// WithClock is test-only for deterministic cutoffs.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Sweep runs one pass and returns the number of sessions abandoned.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if s.after <= 0 {
		return 0, nil
	}
	n, err := s.store.AbandonStale(ctx, s.now().UTC().Add(-s.after))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("abandoned %d stale quiz sessions", n)
	}
	return n, nil
}

// Start schedules Sweep until ctx is cancelled. A zero age disables the sweeper.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.after <= 0 {
		log.Info("session sweeper disabled")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			log.Errorf("session sweep failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule sweeper %q: %w", s.schedule, err)
	}
	s.cron = c
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
