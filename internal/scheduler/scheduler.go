// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs periodic maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJobTimeout bounds a job run when the job sets no timeout.
const DefaultJobTimeout = 5 * time.Minute

// ErrJobNotFound is returned for an unknown job name.
var ErrJobNotFound = errors.New("job not found")

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is a named unit of periodic work.
type Job struct {
	Name        string
	Description string
	Schedule    string
	Timeout     time.Duration
	Run         func(ctx context.Context) error
}

// JobInfo is the public view of a registered job.
type JobInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Schedule    string    `json:"schedule"`
	LastRun     time.Time `json:"lastRun"`
	NextRun     time.Time `json:"nextRun"`
	LastError   string    `json:"lastError,omitempty"`
}

type registeredJob struct {
	job     Job
	entryID cron.EntryID

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// Scheduler handles scheduled maintenance tasks.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*registeredJob
}

// New creates a new scheduler instance. Overlapping runs of the same job
// are skipped.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
		jobs:   make(map[string]*registeredJob),
	}
}

// Add registers job on its schedule.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("job needs a name and a run function")
	}
	if _, err := parser.Parse(job.Schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", job.Schedule, job.Name, err)
	}
	if job.Timeout <= 0 {
		job.Timeout = DefaultJobTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}

	rj := &registeredJob{job: job}
	id, err := s.cron.AddFunc(job.Schedule, func() {
		_ = s.run(context.Background(), rj)
	})
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", job.Name, err)
	}
	rj.entryID = id
	s.jobs[job.Name] = rj

	s.logger.Debug("registered scheduled job", "name", job.Name, "schedule", job.Schedule)
	return nil
}

// Start begins running registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop gracefully stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// TriggerNow runs the named job immediately and returns its error.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) error {
	s.mu.RLock()
	rj, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	s.logger.Info("manually triggering job", "name", name)
	return s.run(ctx, rj)
}

// List returns all registered jobs sorted by name.
func (s *Scheduler) List() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]JobInfo, 0, len(s.jobs))
	for _, rj := range s.jobs {
		entry := s.cron.Entry(rj.entryID)

		rj.mu.Lock()
		info := JobInfo{
			Name:        rj.job.Name,
			Description: rj.job.Description,
			Schedule:    rj.job.Schedule,
			LastRun:     rj.lastRun,
			NextRun:     entry.Next,
		}
		if rj.lastErr != nil {
			info.LastError = rj.lastErr.Error()
		}
		rj.mu.Unlock()

		result = append(result, info)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

func (s *Scheduler) run(parent context.Context, rj *registeredJob) error {
	ctx, cancel := context.WithTimeout(parent, rj.job.Timeout)
	defer cancel()

	start := time.Now()
	err := rj.job.Run(ctx)

	rj.mu.Lock()
	rj.lastRun = start
	rj.lastErr = err
	rj.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled job failed", "name", rj.job.Name, "error", err)
		return err
	}
	s.logger.Debug("scheduled job finished", "name", rj.job.Name, "duration", time.Since(start))
	return nil
}
