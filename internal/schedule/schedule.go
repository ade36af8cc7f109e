// Package schedule runs a task on a cron spec, typically a periodic
// import-all. Ticks never overlap: a tick that fires while the previous
// run is still loading is skipped and logged.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Task is one scheduled unit of work.
type Task func(ctx context.Context) error

// Options configure a Scheduler.
type Options struct {
	// RunNow runs the task once at Start without waiting for the first tick.
	RunNow bool
	Log    zerolog.Logger
}

// Scheduler wraps robfig/cron around a single task.
type Scheduler struct {
	cron *cron.Cron
	job  cron.Job
	spec string
	task Task
	opt  Options

	ctx  context.Context
	runs atomic.Int64
	fail atomic.Int64
}

// Every returns the cron spec for a fixed interval.
func Every(d time.Duration) (string, error) {
	if d < time.Second {
		return "", fmt.Errorf("schedule: interval must be at least 1s, got %s", d)
	}
	return "@every " + d.String(), nil
}

// New validates spec and builds a stopped scheduler.
func New(spec string, task Task, opt Options) (*Scheduler, error) {
	if task == nil {
		return nil, errors.New("schedule: nil task")
	}
	logger := cronLogger{log: opt.Log}
	s := &Scheduler{
		cron: cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger))),
		spec: spec,
		task: task,
		opt:  opt,
		ctx:  context.Background(),
	}
	s.job = cron.NewChain(cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(s.tick))
	if _, err := s.cron.AddJob(spec, s.job); err != nil {
		return nil, fmt.Errorf("schedule: spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins ticking. ctx is passed to every run.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.opt.Log.Info().Str("spec", s.spec).Msg("schedule: started")
	if s.opt.RunNow {
		go s.job.Run()
	}
}

// Stop halts ticking and waits for a run in progress.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.opt.Log.Info().Int64("runs", s.runs.Load()).Int64("failed", s.fail.Load()).Msg("schedule: stopped")
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

// Next is the time of the next tick; zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Runs is the number of completed runs, failed ones included.
func (s *Scheduler) Runs() int64 { return s.runs.Load() }

func (s *Scheduler) tick() {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.opt.Log.Info().Msg("schedule: run started")
	err := s.task(s.ctx)
	s.runs.Add(1)
	if err != nil {
		s.fail.Add(1)
		s.opt.Log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("schedule: run failed")
		return
	}
	s.opt.Log.Info().Dur("elapsed", time.Since(start)).Time("next", s.Next()).Msg("schedule: run complete")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
