// Package scheduler runs the recurring ETL jobs on gocron executor goroutines.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-aqi-etl/internal/airquality"
	"github.com/JakeFAU/realtime-aqi-etl/internal/metrics"
)

// Job names registered by the service.
const (
	JobFetchAndStore = "fetch-and-store"
	JobKeepAlive     = "keep-alive"
)

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("scheduler already running")

// State is the lifecycle state of a Scheduler.
type State int

// Scheduler states.
const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// JobFunc is the body of a recurring job.
type JobFunc func(ctx context.Context) error

// Job binds a body to its own fixed interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      JobFunc
}

// JobResult describes one execution of a job.
type JobResult struct {
	Job      string
	RunID    string
	Start    time.Time
	Duration time.Duration
	Err      error
}

// Scheduler registers jobs on start and drains in-flight executions on stop.
type Scheduler struct {
	jobs     []Job
	ids      airquality.IDGenerator
	logger   *zap.Logger
	onResult func(JobResult)

	mu       sync.Mutex
	state    State
	stopping bool
	cron     *gocron.Scheduler
	inflight sync.WaitGroup
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithResultHook registers fn to receive every JobResult after it is logged.
func WithResultHook(fn func(JobResult)) Option {
	return func(s *Scheduler) {
		s.onResult = fn
	}
}

// New validates jobs and returns a stopped Scheduler.
func New(jobs []Job, ids airquality.IDGenerator, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if len(jobs) == 0 {
		return nil, fmt.Errorf("at least one job is required")
	}
	seen := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		if j.Name == "" {
			return nil, fmt.Errorf("job name is required")
		}
		if _, dup := seen[j.Name]; dup {
			return nil, fmt.Errorf("duplicate job %q", j.Name)
		}
		seen[j.Name] = struct{}{}
		if j.Interval <= 0 {
			return nil, fmt.Errorf("job %q: interval must be > 0", j.Name)
		}
		if j.Run == nil {
			return nil, fmt.Errorf("job %q: body is required", j.Name)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		jobs:   append([]Job(nil), jobs...),
		ids:    ids,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start registers every job and returns immediately. Each job first fires one
// interval after Start and never overlaps itself. Job contexts inherit ctx's
// values but not its cancellation, so stopping never aborts a running job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return ErrAlreadyRunning
	}

	cron := gocron.NewScheduler(time.UTC)
	cron.WaitForScheduleAll()
	jobCtx := context.WithoutCancel(ctx)
	for _, job := range s.jobs {
		_, err := cron.Every(job.Interval).Tag(job.Name).SingletonMode().Do(func() {
			s.trigger(jobCtx, job)
		})
		if err != nil {
			cron.Clear()
			return fmt.Errorf("register job %q: %w", job.Name, err)
		}
		s.logger.Info("job registered", zap.String("job", job.Name), zap.Duration("interval", job.Interval))
	}

	cron.StartAsync()
	s.cron = cron
	s.stopping = false
	s.state = StateRunning
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop stops new triggers and blocks until in-flight executions finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	cron := s.cron
	s.mu.Unlock()

	s.logger.Info("scheduler stopping, waiting for running jobs")
	cron.Stop()
	s.inflight.Wait()

	s.mu.Lock()
	s.cron = nil
	s.state = StateStopped
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) trigger(ctx context.Context, job Job) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	s.Execute(ctx, job)
}

// Execute runs one job body synchronously and reports its result. Errors and
// panics are captured in the result; they never escape.
func (s *Scheduler) Execute(ctx context.Context, job Job) JobResult {
	result := JobResult{Job: job.Name, Start: time.Now().UTC()}
	if s.ids != nil {
		if id, err := s.ids.NewID(); err == nil {
			result.RunID = id
		} else {
			s.logger.Warn("generate run id failed", zap.String("job", job.Name), zap.Error(err))
		}
	}

	result.Err = runSafely(airquality.WithRunID(ctx, result.RunID), job.Run)
	result.Duration = time.Since(result.Start)
	s.report(result)
	return result
}

func runSafely(ctx context.Context, fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (s *Scheduler) report(result JobResult) {
	metrics.ObserveJob(result.Job, metrics.Outcome(result.Err), result.Duration)
	fields := []zap.Field{
		zap.String("job", result.Job),
		zap.String("run_id", result.RunID),
		zap.Duration("duration", result.Duration),
	}
	if result.Err != nil {
		s.logger.Error("job failed", append(fields, zap.Error(result.Err))...)
	} else {
		s.logger.Info("job completed", fields...)
	}
	if s.onResult != nil {
		s.onResult(result)
	}
}
