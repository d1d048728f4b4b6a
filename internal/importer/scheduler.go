package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ehr/notesync/internal/domain/importjob"
)

// ErrRunInProgress is returned when a run is triggered while another one is
// still executing.
var ErrRunInProgress = errors.New("import run already in progress")

// Runner executes one import run.
type Runner interface {
	Run(ctx context.Context) (*importjob.JobRun, error)
}

// cronParser accepts the six-field form with a leading seconds field, e.g.
// "0 15 1/2 * * *", plus descriptors such as "@hourly".
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler serialises import runs. Cron ticks, HTTP triggers and the CLI
// all go through it, so at most one run executes at a time.
type Scheduler struct {
	runner  Runner
	spec    string
	logger  zerolog.Logger
	mu      sync.Mutex
	running atomic.Bool
	cron    *cron.Cron
	wg      sync.WaitGroup
}

// ValidateSchedule reports whether spec is a usable import schedule.
func ValidateSchedule(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid import schedule %q: %w", spec, err)
	}
	return nil
}

// NewScheduler validates spec and returns a stopped scheduler. An empty spec
// disables the periodic trigger.
func NewScheduler(runner Runner, spec string, logger zerolog.Logger) (*Scheduler, error) {
	if spec != "" {
		if err := ValidateSchedule(spec); err != nil {
			return nil, err
		}
	}
	logger = logger.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		runner: runner,
		spec:   spec,
		logger: logger,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cronLogger{logger: logger}),
		),
	}, nil
}

// TryRun executes a run synchronously unless one is already in progress.
func (s *Scheduler) TryRun(ctx context.Context) (*importjob.JobRun, error) {
	if !s.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.mu.Unlock()
	s.running.Store(true)
	defer s.running.Store(false)
	return s.runner.Run(ctx)
}

// Trigger starts a run in the background and returns immediately. The run
// is detached from ctx's cancellation.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if !s.mu.TryLock() {
		return ErrRunInProgress
	}
	s.running.Store(true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.mu.Unlock()
		defer s.running.Store(false)
		s.logRun(s.runner.Run(context.WithoutCancel(ctx)))
	}()
	return nil
}

// Running reports whether a run is executing right now.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Start registers the periodic trigger and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.spec == "" {
		s.logger.Info().Msg("no import schedule configured")
		return nil
	}
	_, err := s.cron.AddFunc(s.spec, func() {
		s.logger.Info().Msg("scheduled import started")
		job, err := s.TryRun(ctx)
		if errors.Is(err, ErrRunInProgress) {
			s.logger.Warn().Msg("previous import still running, skipping tick")
			return
		}
		s.logRun(job, err)
	})
	if err != nil {
		return fmt.Errorf("register import schedule: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", s.spec).Msg("import scheduler started")
	return nil
}

// Stop halts the cron loop and waits for in-flight runs, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) logRun(job *importjob.JobRun, err error) {
	ev := s.logger.Info()
	if err != nil {
		ev = s.logger.Error().Err(err)
	}
	if job != nil {
		ev = ev.Int64("job_run_id", job.ID).Str("status", string(job.Status))
	}
	ev.Msg("import run finished")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
