package handlers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-registry/internal/logging"
	"media-registry/internal/metrics"
)

var log = logging.With("jobs")

type JobType string

const (
	JobScan  JobType = "scan"
	JobBatch JobType = "batch"
)

type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// finishedRetention is how long a finished job stays queryable.
const finishedRetention = time.Hour

var (
	errJobNotFound = errors.New("job not found")
	errJobFinished = errors.New("job already finished")
)

// Job is a snapshot of one background scan or batch.
type Job struct {
	ID        string     `json:"id"`
	Type      JobType    `json:"type"`
	State     JobState   `json:"state"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Error     string     `json:"error,omitempty"`
	Progress  any        `json:"progress,omitempty"`
	Result    any        `json:"result,omitempty"`
}

// JobFunc does the work of a job. It reports progress through update and
// returns its result, which is kept even when err is non-nil.
type JobFunc func(ctx context.Context, update func(progress any)) (result any, err error)

type job struct {
	Job
	cancel context.CancelFunc
	done   chan struct{}
}

// Jobs tracks background work started over HTTP. Each job runs in its own
// goroutine under a context that Cancel or Shutdown cancels.
type Jobs struct {
	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup

	base      context.Context
	cancelAll context.CancelFunc
}

func NewJobs() *Jobs {
	base, cancel := context.WithCancel(context.Background())
	return &Jobs{
		jobs:      make(map[string]*job),
		base:      base,
		cancelAll: cancel,
	}
}

// Start runs fn in the background and returns the job's initial snapshot.
func (j *Jobs) Start(typ JobType, fn JobFunc) Job {
	ctx, cancel := context.WithCancel(j.base)
	jb := &job{
		Job: Job{
			ID:        uuid.NewString(),
			Type:      typ,
			State:     JobRunning,
			StartedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	j.mu.Lock()
	j.pruneLocked(time.Now())
	j.jobs[jb.ID] = jb
	snapshot := jb.Job
	j.mu.Unlock()

	metrics.JobsRunning.WithLabelValues(string(typ)).Inc()
	j.wg.Add(1)
	go j.run(ctx, jb, fn)

	log.Info("Started %s job %s", typ, jb.ID)
	return snapshot
}

func (j *Jobs) run(ctx context.Context, jb *job, fn JobFunc) {
	defer j.wg.Done()
	defer close(jb.done)
	defer jb.cancel()
	defer metrics.JobsRunning.WithLabelValues(string(jb.Type)).Dec()

	update := func(progress any) {
		j.mu.Lock()
		jb.Progress = progress
		j.mu.Unlock()
	}

	result, err := fn(ctx, update)

	j.mu.Lock()
	now := time.Now()
	jb.EndedAt = &now
	jb.Result = result
	switch {
	case err == nil:
		jb.State = JobCompleted
	case ctx.Err() != nil:
		jb.State = JobCancelled
		jb.Error = err.Error()
	default:
		jb.State = JobFailed
		jb.Error = err.Error()
	}
	state := jb.State
	j.mu.Unlock()

	metrics.JobsTotal.WithLabelValues(string(jb.Type), string(state)).Inc()
	if err != nil {
		log.Warn("%s job %s %s after %v: %v", jb.Type, jb.ID, state, now.Sub(jb.StartedAt).Round(time.Millisecond), err)
	} else {
		log.Info("%s job %s completed in %v", jb.Type, jb.ID, now.Sub(jb.StartedAt).Round(time.Millisecond))
	}
}

// Get returns a snapshot of the job.
func (j *Jobs) Get(id string) (Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	jb, ok := j.jobs[id]
	if !ok {
		return Job{}, errJobNotFound
	}
	return jb.Job, nil
}

// List returns snapshots of every retained job, newest first.
func (j *Jobs) List() []Job {
	j.mu.Lock()
	out := make([]Job, 0, len(j.jobs))
	for _, jb := range j.jobs {
		out = append(out, jb.Job)
	}
	j.mu.Unlock()

	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.After(out[b].StartedAt) })
	return out
}

// Cancel asks a running job to stop. Work already committed stays; the
// job's state changes once its goroutine returns.
func (j *Jobs) Cancel(id string) (Job, error) {
	j.mu.Lock()
	jb, ok := j.jobs[id]
	if !ok {
		j.mu.Unlock()
		return Job{}, errJobNotFound
	}
	if jb.State != JobRunning {
		snapshot := jb.Job
		j.mu.Unlock()
		return snapshot, errJobFinished
	}
	snapshot := jb.Job
	j.mu.Unlock()

	jb.cancel()
	log.Info("Cancellation requested for %s job %s", jb.Type, id)
	return snapshot, nil
}

// Wait blocks until the job finishes or ctx is done.
func (j *Jobs) Wait(ctx context.Context, id string) (Job, error) {
	j.mu.Lock()
	jb, ok := j.jobs[id]
	j.mu.Unlock()
	if !ok {
		return Job{}, errJobNotFound
	}

	select {
	case <-jb.done:
		return j.Get(id)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Shutdown cancels every running job and waits for them to finish.
func (j *Jobs) Shutdown(ctx context.Context) error {
	j.cancelAll()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Jobs) pruneLocked(now time.Time) {
	for id, jb := range j.jobs {
		if jb.EndedAt != nil && now.Sub(*jb.EndedAt) > finishedRetention {
			delete(j.jobs, id)
		}
	}
}
