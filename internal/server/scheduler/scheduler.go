// Package scheduler drives the periodic background passes: scheduled
// evolutions and ledger retry repairs. Each pass runs on its own ticker;
// a non-positive interval disables that pass.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/logging"
	"github.com/andrejs2008/evomint/internal/server/lifecycle"
)

// Runner is the slice of the lifecycle service the scheduler drives.
type Runner interface {
	EvolveDueItems(ctx context.Context) (*lifecycle.EvolveReport, error)
	RetrySweep(ctx context.Context) (*lifecycle.RetryReport, error)
}

type Config struct {
	EvolutionInterval time.Duration
	RetryInterval     time.Duration
}

type Scheduler struct {
	runner Runner
	cfg    Config
	logger logging.Logger
}

func New(runner Runner, cfg Config, logger logging.Logger) *Scheduler {
	return &Scheduler{runner: runner, cfg: cfg, logger: logger}
}

// Run blocks until ctx is cancelled, firing the enabled passes on their
// intervals. An overlapping manual run surfaces as ErrSweepActive and is
// skipped silently; the pass fires again on the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup

	if s.cfg.EvolutionInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, s.cfg.EvolutionInterval, "evolution", func(ctx context.Context) error {
				_, err := s.runner.EvolveDueItems(ctx)
				return err
			})
		}()
	}

	if s.cfg.RetryInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, s.cfg.RetryInterval, "retry", func(ctx context.Context) error {
				_, err := s.runner.RetrySweep(ctx)
				return err
			})
		}()
	}

	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, name string, pass func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "background pass scheduled", "pass", name, "interval", interval.String())

	for {
		select {
		case <-ticker.C:
			err := pass(ctx)
			if err == nil || errors.Is(err, common.ErrSweepActive) {
				continue
			}
			s.logger.Error(ctx, "background pass failed", "pass", name, "error", err)

		case <-ctx.Done():
			s.logger.Info(ctx, "background pass stopped", "pass", name)
			return
		}
	}
}
