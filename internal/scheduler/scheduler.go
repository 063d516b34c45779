package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is a scheduled task. ctx is cancelled when the scheduler stops.
type JobFunc func(ctx context.Context) error

// Scheduler runs named jobs on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	jobs   map[string]cron.EntryID
}

// New creates a scheduler evaluating schedules in loc (UTC when nil).
func New(loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		jobs:   make(map[string]cron.EntryID),
	}
}

// AddJob registers fn under name with a standard five-field cron spec.
func (s *Scheduler) AddJob(spec, name string, fn JobFunc) error {
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("schedule %q (%s): %w", name, spec, err)
	}
	s.jobs[name] = id
	return nil
}

func (s *Scheduler) run(name string, fn JobFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", zap.String("job", name), zap.Any("panic", r))
		}
	}()
	start := time.Now()
	s.logger.Info("running scheduled job", zap.String("job", name))
	if err := fn(s.ctx); err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.logger.Info("scheduled job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
}

// Start begins running registered jobs. With no jobs it is a no-op.
func (s *Scheduler) Start() {
	if len(s.jobs) == 0 {
		s.logger.Info("no scheduled jobs configured")
		return
	}
	s.cron.Start()
	for name := range s.jobs {
		next, _ := s.Next(name)
		s.logger.Info("scheduled job", zap.String("job", name), zap.Time("next", next))
	}
}

// Stop cancels the context of running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Next returns the next activation of the named job, if it is scheduled and running.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	id, ok := s.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(id).Next
	return next, !next.IsZero()
}
