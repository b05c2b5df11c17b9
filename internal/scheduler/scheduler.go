package scheduler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/PulseLoom/PulseLoom/internal/store"
)

// JobCategory selects the semaphore that caps concurrent runs.
type JobCategory string

const (
	CategoryLLM     JobCategory = "llm"
	CategoryIngest  JobCategory = "ingest"
	CategoryDefault JobCategory = "default"
)

// JobRunner executes one dispatched job run. The tick is the wall-clock
// instant the job fired, so period sweeps can derive the period just closed.
type JobRunner func(ctx context.Context, tick time.Time) error

// Job is a schedulable unit of work.
type Job struct {
	Name     string
	Cron     *CronExpr
	Category JobCategory
	Run      JobRunner
}

// Config holds scheduler settings.
type Config struct {
	Enabled        bool
	TickInterval   time.Duration
	MaxConcLLM     int
	MaxConcIngest  int
	MaxConcDefault int
	LockPath       string
}

// DefaultConfig returns scheduler defaults.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Enabled:        false,
		TickInterval:   60 * time.Second,
		MaxConcLLM:     2,
		MaxConcIngest:  2,
		MaxConcDefault: 5,
		LockPath:       filepath.Join(home, ".pulseloom", "scheduler.lock"),
	}
}

// Scheduler manages job registration, tick dispatch, and concurrency
// control. Job runs are recorded in the store's scheduled_jobs table.
type Scheduler struct {
	cfg        Config
	store      *store.Store
	jobs       map[string]*Job
	mu         sync.RWMutex
	semaphores map[JobCategory]*Semaphore
	lock       *FileLock
}

// New creates a Scheduler. The store may be nil; job runs then go
// unrecorded.
func New(cfg Config, st *store.Store) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 60 * time.Second
	}
	if cfg.MaxConcLLM <= 0 {
		cfg.MaxConcLLM = 2
	}
	if cfg.MaxConcIngest <= 0 {
		cfg.MaxConcIngest = 2
	}
	if cfg.MaxConcDefault <= 0 {
		cfg.MaxConcDefault = 5
	}
	if cfg.LockPath == "" {
		cfg.LockPath = DefaultConfig().LockPath
	}

	return &Scheduler{
		cfg:   cfg,
		store: st,
		jobs:  make(map[string]*Job),
		semaphores: map[JobCategory]*Semaphore{
			CategoryLLM:     NewSemaphore(cfg.MaxConcLLM),
			CategoryIngest:  NewSemaphore(cfg.MaxConcIngest),
			CategoryDefault: NewSemaphore(cfg.MaxConcDefault),
		},
		lock: NewFileLock(cfg.LockPath),
	}
}

// Register adds a job to the scheduler.
func (s *Scheduler) Register(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = job
	slog.Info("Scheduler job registered", "name", job.Name, "category", job.Category)
}

// Unregister removes a job by name.
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
}

// Jobs returns the registered jobs sorted by name.
func (s *Scheduler) Jobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run starts the scheduler tick loop. Blocks until context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("Scheduler started", "tick", s.cfg.TickInterval, "jobs", len(s.jobs))
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return ctx.Err()
		case t := <-ticker.C:
			s.tick(ctx, t)
		}
	}
}

// tick acquires the global file lock, then dispatches any matching jobs.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	acquired, err := s.lock.TryLock()
	if err != nil {
		slog.Warn("Scheduler lock error", "error", err)
		return
	}
	if !acquired {
		slog.Debug("Scheduler tick skipped: lock held by another process")
		return
	}
	defer s.lock.Unlock()

	s.markTick(ctx, now)
	if s.paused(ctx) {
		slog.Info("Scheduler paused, skipping dispatch")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if !job.Cron.Matches(now) {
			continue
		}
		s.dispatch(ctx, job, now)
	}
}

// markTick persists the tick instant under the scheduler_last_tick_at
// setting so liveness is visible from the database.
func (s *Scheduler) markTick(ctx context.Context, now time.Time) {
	if s.store == nil {
		return
	}
	_ = s.store.SetSetting(ctx, "scheduler_last_tick_at", now.UTC().Format(time.RFC3339))
}

// paused reports whether the scheduler_paused setting is "true". An
// absent key or a nil store means not paused.
func (s *Scheduler) paused(ctx context.Context) bool {
	if s.store == nil {
		return false
	}
	val, err := s.store.GetSetting(ctx, "scheduler_paused")
	if err != nil {
		return false
	}
	return val == "true"
}

// dispatch runs the job asynchronously if a semaphore slot is available.
func (s *Scheduler) dispatch(ctx context.Context, job *Job, now time.Time) {
	sem := s.semaphores[job.Category]
	if sem == nil {
		sem = s.semaphores[CategoryDefault]
	}

	if !sem.TryAcquire() {
		slog.Warn("Scheduler job skipped: concurrency limit", "job", job.Name, "category", job.Category)
		s.recordRun(ctx, job.Name, "skipped_concurrency")
		return
	}

	slog.Info("Scheduler dispatching job", "job", job.Name, "tick", now.Format(time.RFC3339))

	go func() {
		defer sem.Release()
		if err := job.Run(ctx, now); err != nil {
			slog.Warn("Scheduler job failed", "job", job.Name, "error", err)
			s.recordRun(ctx, job.Name, "failed")
			return
		}
		s.recordRun(ctx, job.Name, "completed")
	}()
}

// recordRun persists the run status to the scheduled_jobs table
// (best-effort).
func (s *Scheduler) recordRun(ctx context.Context, name, status string) {
	if s.store == nil {
		return
	}
	if err := s.store.UpsertScheduledJobRun(ctx, name, status); err != nil {
		slog.Warn("Scheduler job record failed", "job", name, "error", err)
	}
}
