package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/pixelsum/internal/bench"
	"github.com/cwbudde/pixelsum/internal/store"
)

// progressInterval throttles progress broadcasts.
var progressInterval = 250 * time.Millisecond

// runJob executes a benchmark job. The report is saved to st when it is
// not nil; traces are written only for filesystem stores.
func runJob(ctx context.Context, jm *JobManager, st store.Store, jobID string) error {
	defer jm.finish(jobID)

	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.State.Done() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		markJobCancelled(jm, jobID)
		return err
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "name", job.Config.Name, "scenarios", len(job.Config.Scenarios))

	opts := bench.Options{
		ID: jobID,
		Progress: func(p bench.Progress) {
			jm.UpdateJob(jobID, func(j *Job) {
				j.Case = p.Case
				j.CaseName = p.CaseName
				j.Query = p.Query
				j.Queries = p.Queries
				j.Checks = p.Checks
				j.Failed = p.Failed
			})
		},
	}

	var trace *store.TraceWriter
	if fs, ok := st.(*store.FSStore); ok && job.Config.Trace {
		trace, err = store.NewTraceWriter(fs.BaseDir(), jobID)
		if err != nil {
			markJobFailed(jm, jobID, err)
			return err
		}
		opts.Trace = trace
	}

	progressDone := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitorProgress(ctx, jm, jobID, progressDone)
	}()

	report, err := bench.Run(ctx, job.Config, opts)
	close(progressDone)
	wg.Wait()

	if trace != nil {
		if cerr := trace.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close trace: %w", cerr)
		}
	}

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		markJobCancelled(jm, jobID)
		return err
	case err != nil:
		markJobFailed(jm, jobID, err)
		return err
	}

	if st != nil {
		if err := st.SaveReport(report); err != nil {
			markJobFailed(jm, jobID, err)
			return err
		}
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Case = j.Cases
		j.Checks = report.Checks()
		j.Failed = report.Failed()
		j.EndTime = &endTime
		j.report = report
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", report.Duration,
		"checks", report.Checks(),
		"failed", report.Failed(),
	)

	broadcastState(jm, jobID)
	return nil
}

// monitorProgress periodically broadcasts progress events while a job runs
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !broadcastState(jm, jobID) {
				return
			}
		}
	}
}

func broadcastState(jm *JobManager, jobID string) bool {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return false
	}
	jm.broadcaster.Broadcast(eventFor(job))
	return true
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	broadcastState(jm, jobID)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
	broadcastState(jm, jobID)
}
