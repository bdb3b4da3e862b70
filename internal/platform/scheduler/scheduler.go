package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Locker provides distributed mutual exclusion keyed by job name so that a
// clustered deployment runs each job on at most one node at a time. Holds are
// bounded by maxHold: a crashed holder is overtaken once the hold expires.
// The expiry is a timeout, not a cancellation guarantee; a run that outlives
// its hold may briefly overlap a takeover on another node.
type Locker interface {
	Acquire(ctx context.Context, name string, holder string, maxHold time.Duration) (bool, error)
	Release(ctx context.Context, name string, holder string) error
}

// Job describes one cron-triggered unit of work.
type Job struct {
	Name         string
	CronSpec     string
	LockMaxHold  time.Duration
	MaxExecution time.Duration
	Run          func(ctx context.Context) error
}

type registeredJob struct {
	job      Job
	schedule cron.Schedule
}

// Scheduler triggers registered jobs on their cron cadence, each run wrapped
// as (trigger, lock-acquire, run-with-deadline, lock-release).
type Scheduler struct {
	locker   Locker
	logger   *slog.Logger
	holderID string
	jobs     []registeredJob
	parser   cron.Parser
}

// New creates a Scheduler. The holder identity is unique per process so a
// node only releases locks it acquired itself.
func New(locker Locker, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		locker:   locker,
		logger:   logger,
		holderID: uuid.NewString(),
		// Quartz-style six-field expressions with a seconds column.
		parser: cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Register parses the job's cron expression and adds it to the schedule.
func (s *Scheduler) Register(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}
	schedule, err := s.parser.Parse(job.CronSpec)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for job %q: %w", job.CronSpec, job.Name, err)
	}
	s.jobs = append(s.jobs, registeredJob{job: job, schedule: schedule})
	return nil
}

// Start runs all registered jobs until ctx is cancelled. It blocks.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, rj := range s.jobs {
		wg.Add(1)
		go func(rj registeredJob) {
			defer wg.Done()
			s.runLoop(ctx, rj)
		}(rj)
	}
	wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, rj registeredJob) {
	for {
		next := rj.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.InfoContext(ctx, "Scheduler stopping job loop", "job", rj.job.Name)
			return
		case <-timer.C:
			s.RunOnce(ctx, rj.job)
		}
	}
}

// RunOnce executes a single guarded invocation of the job: acquire the
// distributed lock, run under the execution deadline, release the lock.
// A lock held elsewhere means another node is running the job; that is not
// an error.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) {
	acquired, err := s.locker.Acquire(ctx, job.Name, s.holderID, job.LockMaxHold)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to acquire scheduler lock", "job", job.Name, "error", err)
		return
	}
	if !acquired {
		s.logger.DebugContext(ctx, "Scheduler lock held elsewhere, skipping run", "job", job.Name)
		return
	}
	defer func() {
		if err := s.locker.Release(ctx, job.Name, s.holderID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to release scheduler lock", "job", job.Name, "error", err)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, job.MaxExecution)
	defer cancel()

	start := time.Now()
	s.logger.InfoContext(runCtx, "Scheduled job starting", "job", job.Name)
	if err := job.Run(runCtx); err != nil {
		s.logger.ErrorContext(ctx, "Scheduled job failed", "job", job.Name, "error", err, "duration", time.Since(start).String())
		return
	}
	s.logger.InfoContext(ctx, "Scheduled job finished", "job", job.Name, "duration", time.Since(start).String())
}
