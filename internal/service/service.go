package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"house-finance/internal/fetcher"
	"house-finance/internal/scheduler"
	"house-finance/internal/storage"
)

// Service runs the periodic pipeline: collect every source, classify the
// current window and report month-to-date progress.
type Service struct {
	scheduler  *scheduler.Scheduler
	collector  *Collector
	classifier *Classifier
	reporter   *Reporter
	locker     storage.AdvisoryLocker
	lockKey    int64
	months     int
	loc        *time.Location
	logger     zerolog.Logger
}

// Options configure a Service. Classifier and Reporter are optional.
type Options struct {
	Collector    *Collector
	Classifier   *Classifier
	Reporter     *Reporter
	Locker       storage.AdvisoryLocker
	LockKey      int64
	ClassifySpan int
	Location     *time.Location
}

// New constructs the pipeline service.
func New(sched *scheduler.Scheduler, opts Options, logger zerolog.Logger) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	months := opts.ClassifySpan
	if months < 1 {
		months = 1
	}
	return &Service{
		scheduler:  sched,
		collector:  opts.Collector,
		classifier: opts.Classifier,
		reporter:   opts.Reporter,
		locker:     opts.Locker,
		lockKey:    opts.LockKey,
		months:     months,
		loc:        loc,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the aligned pipeline loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick runs one pipeline pass unless another instance holds the lock.
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeTick(ctx, tick)
}

// executeTick keeps going after a failed source so the remaining steps still
// see whatever was collected.
func (s *Service) executeTick(ctx context.Context, tick time.Time) error {
	var errs []error
	if s.collector != nil {
		if err := s.collector.CollectAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("collect: %w", err))
		}
	}

	if s.classifier != nil && ctx.Err() == nil {
		from, to := s.ClassifyWindow(tick)
		if _, err := s.classifier.Run(ctx, from, to); err != nil {
			s.logger.Error().Err(err).Time("tick", tick).Msg("classification failed")
			errs = append(errs, fmt.Errorf("classify: %w", err))
		}
	}

	if s.reporter != nil && ctx.Err() == nil {
		if _, err := s.reporter.Send(ctx); err != nil {
			s.logger.Error().Err(err).Time("tick", tick).Msg("progress report failed")
			errs = append(errs, fmt.Errorf("report: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info().Time("tick", tick).Msg("pipeline tick complete")
	return nil
}

// ClassifyWindow spans from the first of tick's month over the configured
// number of months.
func (s *Service) ClassifyWindow(tick time.Time) (time.Time, time.Time) {
	local := tick.In(s.loc)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.loc)
	return first, fetcher.AddMonths(first, s.months)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
