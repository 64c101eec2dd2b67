package quota

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ntduong/agentpay/internal/logger"
	"github.com/ntduong/agentpay/internal/repository"
)

const DefaultSweepSchedule = "@hourly"

// Sweeper periodically flips the stored status of grants that have passed
// their expiry. Business logic never trusts the stored status alone, the
// sweep only keeps listing queries cheap.
type Sweeper struct {
	storage  repository.Storage
	logger   logger.Logger
	schedule string
	cron     *cron.Cron
}

func NewSweeper(storage repository.Storage, l logger.Logger, schedule string) *Sweeper {
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	return &Sweeper{
		storage:  storage,
		logger:   l,
		schedule: schedule,
	}
}

func (s *Sweeper) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.Sweep); err != nil {
		return err
	}

	c.Start()
	s.cron = c
	s.logger.Info("package expiry sweeper started", "schedule", s.schedule)

	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.storage.UserPackages().MarkExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("package expiry sweep failed", "error", err)
		return
	}

	if n > 0 {
		s.logger.Info("expired user packages", "count", n)
	}
}
