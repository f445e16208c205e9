package gateway

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/hotline/internal/call"
	"github.com/haasonsaas/hotline/internal/config"
)

// sweeper periodically evicts idle call sessions. Sessions whose expected
// next event never arrives would otherwise leak until process restart.
type sweeper struct {
	schedule cron.Schedule
	maxIdle  time.Duration
	machine  *call.Machine
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func newSweeper(cfg config.SessionConfig, machine *call.Machine, logger *slog.Logger) (*sweeper, error) {
	schedule, err := cron.ParseStandard(cfg.SweepSchedule)
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
	}
	return &sweeper{
		schedule: schedule,
		maxIdle:  cfg.MaxIdle,
		machine:  machine,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

func (s *sweeper) start() {
	s.wg.Add(1)
	go s.run()
}

func (s *sweeper) run() {
	defer s.wg.Done()
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.machine.Sweep(s.maxIdle)
		}
	}
}

func (s *sweeper) stop() {
	s.once.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}
