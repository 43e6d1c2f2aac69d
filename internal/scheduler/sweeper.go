package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"partner-service/internal/services"
)

// ExpirySweeper periodically deactivates codes whose expiry date has passed.
// Redemption already rejects expired codes on its own; the sweep only keeps
// the is_active flag honest for listings and dashboards.
type ExpirySweeper struct {
	codes    *services.CodeService
	schedule string
	logger   *logrus.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewExpirySweeper creates a sweeper with a standard 5-field cron schedule.
func NewExpirySweeper(codes *services.CodeService, schedule string, logger *logrus.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		codes:    codes,
		schedule: schedule,
		logger:   logger,
	}
}

// Start starts the sweeper
func (s *ExpirySweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	schedule := s.schedule
	if schedule == "" {
		schedule = "0 * * * *" // Top of every hour
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(schedule, s.runSweep); err != nil {
		s.logger.WithError(err).Error("Failed to schedule expiry sweep")
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.WithField("schedule", schedule).Info("Code expiry sweeper started")
	return nil
}

// Stop stops the sweeper and waits for a running sweep to finish
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.cron == nil {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info("Code expiry sweeper stopped")
}

func (s *ExpirySweeper) runSweep() {
	start := time.Now()

	deactivated, err := s.codes.DeactivateExpired(start)
	if err != nil {
		s.logger.WithError(err).Error("Code expiry sweep failed")
		return
	}

	if deactivated > 0 {
		s.logger.WithFields(logrus.Fields{
			"deactivated": deactivated,
			"duration":    time.Since(start).String(),
		}).Info("Deactivated expired invitation codes")
	}
}
