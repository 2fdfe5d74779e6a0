package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type leaseExpirer interface {
	ExpireLeases(ctx context.Context) (int, error)
}

// GenerationSweeper periodically fails generation jobs whose lease ran out
// so abandoned jobs never block their term.
type GenerationSweeper struct {
	expirer  leaseExpirer
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
	cron     *cron.Cron
}

// NewGenerationSweeper constructs a sweeper running on a cron schedule such as
// "@every 5m".
func NewGenerationSweeper(expirer leaseExpirer, schedule string, logger *zap.Logger) *GenerationSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == "" {
		schedule = "@every 5m"
	}
	return &GenerationSweeper{
		expirer:  expirer,
		schedule: schedule,
		timeout:  time.Minute,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// Start registers the sweep and starts the scheduler.
func (s *GenerationSweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("schedule generation sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("generation sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *GenerationSweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep expires lapsed jobs once.
func (s *GenerationSweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.expirer.ExpireLeases(ctx)
	if err != nil {
		s.logger.Warn("generation sweep failed", zap.Int("expired", n), zap.Error(err))
		return n, err
	}
	if n > 0 {
		s.logger.Info("expired generation jobs", zap.Int("count", n))
	}
	return n, nil
}
