package background

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"orderbridge/internal/models"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// SyncRunner runs one reconciliation pass
type SyncRunner interface {
	Run(ctx context.Context) *models.SyncResult
}

// LockSweeper releases expired edit locks
type LockSweeper interface {
	CleanupExpiredLocks(ctx context.Context) (int, error)
}

// Options controls which periodic jobs are registered
type Options struct {
	SyncEnabled   bool
	SyncInterval  time.Duration
	SweepInterval time.Duration
}

// JobScheduler runs the periodic ledger sync and the edit lock sweep
type JobScheduler struct {
	scheduler gocron.Scheduler
	sync      SyncRunner
	locks     LockSweeper
	log       *zap.Logger
	jobs      map[string]gocron.Job
	mu        sync.RWMutex
}

// NewJobScheduler creates a scheduler with the periodic jobs registered
func NewJobScheduler(sync SyncRunner, locks LockSweeper, opts Options, log *zap.Logger) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	js := &JobScheduler{
		scheduler: scheduler,
		sync:      sync,
		locks:     locks,
		log:       log.Named("scheduler"),
		jobs:      make(map[string]gocron.Job),
	}
	if err := js.registerJobs(opts); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	js.log.Info("starting background job scheduler")
	js.scheduler.Start()
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	js.log.Info("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs(opts Options) error {
	if opts.SweepInterval > 0 {
		if err := js.AddJob("edit-lock-sweep", opts.SweepInterval, js.sweepLocks); err != nil {
			return err
		}
	}
	if opts.SyncEnabled && opts.SyncInterval > 0 {
		if err := js.AddJob("ledger-sync", opts.SyncInterval, js.runSync); err != nil {
			return err
		}
	}
	js.log.Info("registered background jobs", zap.Int("count", len(js.jobs)))
	return nil
}

func (js *JobScheduler) runSync() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	result := js.sync.Run(ctx)
	if result.Status != models.SyncStatusSuccess {
		js.log.Warn("scheduled ledger sync did not fully succeed",
			zap.String("status", result.Status), zap.Strings("errors", result.Errors))
	}
}

func (js *JobScheduler) sweepLocks() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := js.locks.CleanupExpiredLocks(ctx); err != nil {
		js.log.Warn("scheduled lock sweep failed", zap.Error(err))
	}
}

// AddJob adds a singleton job; a run still in progress delays the next one
func (js *JobScheduler) AddJob(name string, interval time.Duration, taskFn interface{}, params ...interface{}) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(taskFn, params...),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", name, err)
	}

	js.jobs[name] = job
	return nil
}

// RemoveJob removes a job from the scheduler
func (js *JobScheduler) RemoveJob(name string) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if job, exists := js.jobs[name]; exists {
		err := js.scheduler.RemoveJob(job.ID())
		delete(js.jobs, name)
		return err
	}
	return nil
}

// JobStatus describes one scheduled job
type JobStatus struct {
	Name    string    `json:"name"`
	LastRun time.Time `json:"last_run,omitempty"`
	NextRun time.Time `json:"next_run,omitempty"`
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() []JobStatus {
	js.mu.RLock()
	defer js.mu.RUnlock()

	out := make([]JobStatus, 0, len(js.jobs))
	for name, job := range js.jobs {
		status := JobStatus{Name: name}
		if last, err := job.LastRun(); err == nil {
			status.LastRun = last
		}
		if next, err := job.NextRun(); err == nil {
			status.NextRun = next
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
