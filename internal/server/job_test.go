package server

import (
	"context"
	"testing"
	"time"

	"github.com/cwbudde/pixelsum/internal/config"
)

func tinyConfig() *config.Config {
	return &config.Config{
		Name: "tiny",
		Scenarios: []config.Scenario{
			{Name: "SAT ones", Engine: "integral", Pattern: "ones", Width: 32, Height: 16},
		},
	}
}

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(tinyConfig())

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending {
		t.Errorf("Expected pending state, got %s", job.State)
	}
	if job.Cases != 1 {
		t.Errorf("Expected 1 case, got %d", job.Cases)
	}
	if job.StartTime.IsZero() {
		t.Error("StartTime should be set")
	}
}

func TestJobManager_GetJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(tinyConfig())

	got, exists := jm.GetJob(job.ID)
	if !exists {
		t.Fatal("Job should exist")
	}
	if got.ID != job.ID {
		t.Errorf("Expected ID %s, got %s", job.ID, got.ID)
	}

	// snapshots are independent of the stored job
	got.State = StateFailed
	again, _ := jm.GetJob(job.ID)
	if again.State != StatePending {
		t.Errorf("Stored job changed through snapshot: %s", again.State)
	}

	if _, exists := jm.GetJob("nonexistent"); exists {
		t.Error("Nonexistent job should not exist")
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()
	first := jm.CreateJob(tinyConfig())
	time.Sleep(time.Millisecond)
	second := jm.CreateJob(tinyConfig())

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID || jobs[1].ID != second.ID {
		t.Error("Jobs should be listed oldest first")
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(tinyConfig())

	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Checks = 12
	})
	if err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning || updated.Checks != 12 {
		t.Errorf("Update not applied: %+v", updated)
	}
	if len(jm.GetRunningJobs()) != 1 {
		t.Error("Expected one running job")
	}

	if err := jm.UpdateJob("nonexistent", func(j *Job) {}); err == nil {
		t.Error("Update of nonexistent job should fail")
	}
}

func TestJobManager_Cancel(t *testing.T) {
	jm := NewJobManager()

	pending := jm.CreateJob(tinyConfig())
	if !jm.Cancel(pending.ID) {
		t.Fatal("Pending job should be cancellable")
	}
	got, _ := jm.GetJob(pending.ID)
	if got.State != StateCancelled || got.EndTime == nil {
		t.Errorf("Expected cancelled job with end time, got %+v", got)
	}
	if jm.Cancel(pending.ID) {
		t.Error("Finished job should not be cancellable")
	}

	running := jm.CreateJob(tinyConfig())
	ctx, cancel := context.WithCancel(context.Background())
	jm.setCancel(running.ID, cancel)
	if !jm.Cancel(running.ID) {
		t.Fatal("Running job should be cancellable")
	}
	if ctx.Err() == nil {
		t.Error("Cancel should cancel the job context")
	}

	if jm.Cancel("nonexistent") {
		t.Error("Unknown job should not be cancellable")
	}
}

func TestJobManager_ThreadSafety(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(tinyConfig())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(iteration int) {
			jm.UpdateJob(job.ID, func(j *Job) {
				j.Query = iteration
			})
			jm.ListJobs()
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	if _, exists := jm.GetJob(job.ID); !exists {
		t.Error("Job should still exist after concurrent updates")
	}
}

func TestJobState_Done(t *testing.T) {
	for state, want := range map[JobState]bool{
		StatePending:   false,
		StateRunning:   false,
		StateCompleted: true,
		StateFailed:    true,
		StateCancelled: true,
	} {
		if state.Done() != want {
			t.Errorf("%s.Done() = %v, want %v", state, !want, want)
		}
	}
}
