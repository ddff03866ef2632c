// Package scheduler drives the periodic SLA pass. The cron entry and the
// manual admin trigger share the same Run method; an atomic flag prevents
// overlapping passes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sunfin/quote-engine/internal/service"
)

// ErrPassRunning wraps the service conflict sentinel so a manual trigger
// racing the timer surfaces as a 409 rather than an internal error.
var ErrPassRunning = fmt.Errorf("%w: a pass is already running", service.ErrConflict)

type Runner interface {
	RunOnce(ctx context.Context) (service.PassSummary, error)
}

type Scheduler struct {
	runner   Runner
	interval time.Duration
	log      zerolog.Logger
	cron     *cron.Cron
	running  atomic.Bool
}

func New(runner Runner, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		log:      log,
		cron:     cron.New(),
	}
}

// Start registers the periodic pass and launches the cron loop. A failed pass
// is logged and retried on the next tick, never immediately.
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.Run(context.Background()); err != nil && !errors.Is(err, ErrPassRunning) {
			s.log.Error().Err(err).Msg("scheduled sla pass failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sla pass: %w", err)
	}

	s.cron.Start()
	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Run executes one pass if none is in flight.
func (s *Scheduler) Run(ctx context.Context) (service.PassSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return service.PassSummary{}, ErrPassRunning
	}
	defer s.running.Store(false)

	return s.runner.RunOnce(ctx)
}
