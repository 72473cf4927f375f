package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"
)

// JobManager tracks cancel functions for background runs by run ID.
type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]job
}

type job struct {
	kind      string
	startedAt time.Time
	cancel    context.CancelFunc
}

// RunningJob describes a registered background run.
type RunningJob struct {
	RunID     string    `json:"runId"`
	Kind      string    `json:"kind"`
	StartedAt time.Time `json:"startedAt"`
}

func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]job)}
}

// Register stores a cancel function for a run that is starting.
func (jm *JobManager) Register(runID, kind string, cancel context.CancelFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.jobs[runID] = job{kind: kind, startedAt: time.Now().UTC(), cancel: cancel}
}

// Cancel invokes the cancel function for a run. It returns false if the run is not registered.
func (jm *JobManager) Cancel(runID string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	j, ok := jm.jobs[runID]
	if !ok {
		return false
	}
	j.cancel()
	delete(jm.jobs, runID)
	return true
}

// Unregister removes a run once it completes.
func (jm *JobManager) Unregister(runID string) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	delete(jm.jobs, runID)
}

// IsRunning reports whether a run is registered.
func (jm *JobManager) IsRunning(runID string) bool {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	_, ok := jm.jobs[runID]
	return ok
}

// Running lists registered runs, oldest first.
func (jm *JobManager) Running() []RunningJob {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	out := make([]RunningJob, 0, len(jm.jobs))
	for id, j := range jm.jobs {
		out = append(out, RunningJob{RunID: id, Kind: j.kind, StartedAt: j.startedAt})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	return out
}
