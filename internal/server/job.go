package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/pixelsum/internal/config"
	"github.com/cwbudde/pixelsum/internal/store"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Done reports whether the state is terminal.
func (s JobState) Done() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Job is one benchmark run.
type Job struct {
	ID     string         `json:"id"`
	State  JobState       `json:"state"`
	Config *config.Config `json:"config"`

	Case     int    `json:"case"`
	Cases    int    `json:"cases"`
	CaseName string `json:"caseName,omitempty"`
	Query    int    `json:"query"`
	Queries  int    `json:"queries"`
	Checks   int    `json:"checks"`
	Failed   int    `json:"failed"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Error     string     `json:"error,omitempty"`

	report *store.Report
}

// Elapsed is the run time so far, or the total once finished.
func (j *Job) Elapsed() time.Duration {
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cancels     map[string]context.CancelFunc
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelFunc),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job for cfg.
func (jm *JobManager) CreateJob(cfg *config.Config) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    cfg,
		Cases:     len(cfg.Scenarios),
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	c := *job
	return &c
}

// GetJob returns a snapshot of a job.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	c := *job
	return &c, true
}

// ListJobs returns snapshots of all jobs, oldest first.
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		c := *job
		jobs = append(jobs, &c)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			c := *job
			runningJobs = append(runningJobs, &c)
		}
	}
	return runningJobs
}

// setCancel stores the function that stops a running job.
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.cancels[id] = cancel
}

// Cancel stops a job. It returns false for unknown or finished jobs.
func (jm *JobManager) Cancel(id string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists || job.State.Done() {
		return false
	}
	if cancel, ok := jm.cancels[id]; ok {
		cancel()
		delete(jm.cancels, id)
		return true
	}

	// never started
	endTime := time.Now()
	job.State = StateCancelled
	job.EndTime = &endTime
	return true
}

func (jm *JobManager) finish(id string) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if cancel, ok := jm.cancels[id]; ok {
		cancel()
		delete(jm.cancels, id)
	}
}
