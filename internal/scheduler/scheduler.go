package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is the function signature for scheduled jobs
type JobFunc func(ctx context.Context)

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler runs named maintenance jobs (retention sweeps) on cron schedules.
// A job still running when its next activation comes up is skipped.
type Scheduler struct {
	cron   *cron.Cron
	jobs   map[string]cron.EntryID // name -> entryID
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new scheduler
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		jobs:   make(map[string]cron.EntryID),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Validate checks a schedule without adding a job.
func Validate(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// Start begins the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started")
}

// Stop cancels the context handed to running jobs and returns a context that is done
// once they have returned
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}

// AddJob schedules job under name, replacing any job with the same name
func (s *Scheduler) AddJob(name, schedule string, job JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}

	wrappedJob := func() {
		start := time.Now()
		slog.Debug("running scheduled job", "job", name)
		job(s.ctx)
		slog.Debug("scheduled job finished", "job", name, "duration", time.Since(start))
	}

	entryID, err := s.cron.AddFunc(schedule, wrappedJob)
	if err != nil {
		return err
	}

	s.jobs[name] = entryID
	slog.Debug("added scheduled job", "job", name, "schedule", schedule)

	return nil
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		slog.Debug("removed scheduled job", "job", name)
	}
}

// HasJob checks if a job with the given name is scheduled
func (s *Scheduler) HasJob(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.jobs[name]
	return exists
}

// JobCount returns the number of scheduled jobs
func (s *Scheduler) JobCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.jobs)
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
}

// ListJobs returns information about all scheduled jobs
func (s *Scheduler) ListJobs() map[string]JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]JobInfo, len(s.jobs))
	for name, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		result[name] = JobInfo{
			Name:    name,
			NextRun: entry.Next,
		}
	}
	return result
}
