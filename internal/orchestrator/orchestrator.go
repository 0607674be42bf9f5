// Package orchestrator drives a queue of drawing jobs against the generation
// API without tripping its rate limit: at most BatchSize renders go out at
// once, and every batch after the first waits out a fixed cooldown while the
// queued jobs show a live countdown.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/superfun/draw-backend/internal/generation"
)

const (
	DefaultBatchSize = 5
	DefaultCooldown  = 65 * time.Second
)

type JobStatus string

const (
	StatusPending  JobStatus = "pending"
	StatusWaiting  JobStatus = "waiting"
	StatusRunning  JobStatus = "running"
	StatusDone     JobStatus = "done"
	StatusFailed   JobStatus = "failed"
	StatusSkipped  JobStatus = "skipped" // not submitted: balance exhausted
	StatusCanceled JobStatus = "canceled"
)

// Job is one queued render. Status, Err and Result are owned by the
// orchestrator while Run is in flight; callbacks receive the job after each
// change.
type Job struct {
	ID      string
	Request generation.Request

	mu       sync.Mutex
	status   JobStatus
	err      error
	result   *generation.Result
	canceled bool
}

func NewJob(req generation.Request) *Job {
	return &Job{ID: uuid.NewString(), Request: req, status: StatusPending}
}

func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) Result() *generation.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Cancel withdraws a job that has not been dispatched yet. An in-flight
// render is not retracted; its result is simply dropped on arrival.
func (j *Job) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.canceled = true
	if j.status == StatusPending || j.status == StatusWaiting {
		j.status = StatusCanceled
	}
}

func (j *Job) isCanceled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.canceled
}

func (j *Job) set(status JobStatus, result *generation.Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.canceled {
		return
	}
	j.status = status
	j.result = result
	j.err = err
}

// Orchestrator submits jobs in rate-limited batches. Submit and Balance are
// required; the callbacks and the tick source are optional.
type Orchestrator struct {
	BatchSize int
	Cooldown  time.Duration

	// Submit performs one render. Called concurrently, once per job.
	Submit func(ctx context.Context, job *Job) (*generation.Result, error)
	// Balance reports the remaining token balance before each submission. An
	// error counts as unknown state and the job is not submitted.
	Balance func(ctx context.Context) (int64, error)

	// OnUpdate fires after every job status change.
	OnUpdate func(job *Job)
	// OnCountdown fires once per second for each job waiting out a cooldown.
	OnCountdown func(job *Job, secondsLeft int)

	// tick abstracts the cooldown clock so tests run instantly.
	Tick func(d time.Duration) <-chan time.Time
}

// ErrBalanceExhausted is stored on jobs skipped because no tokens remain.
// Callers use it to route the user to the top-up flow.
var ErrBalanceExhausted = errBalanceExhausted{}

type errBalanceExhausted struct{}

func (errBalanceExhausted) Error() string { return "token balance exhausted" }

// Run works through jobs in order and returns once every dispatched render
// has finished. One job's failure never touches its siblings; per-job
// outcomes live on the jobs themselves. The returned error is non-nil only
// when ctx is canceled mid-queue.
func (o *Orchestrator) Run(ctx context.Context, jobs []*Job) error {
	batchSize := o.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	cooldown := o.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	tick := o.Tick
	if tick == nil {
		tick = time.After
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for start := 0; start < len(jobs); start += batchSize {
		end := start + batchSize
		if end > len(jobs) {
			end = len(jobs)
		}

		for _, job := range jobs[start:end] {
			o.dispatch(ctx, job, &wg)
		}

		rest := jobs[end:]
		if len(rest) == 0 {
			break
		}
		for _, job := range rest {
			if !job.isCanceled() {
				job.set(StatusWaiting, nil, nil)
				o.update(job)
			}
		}

		for left := int(cooldown / time.Second); left > 0; left-- {
			for _, job := range rest {
				if o.OnCountdown != nil && job.Status() == StatusWaiting {
					o.OnCountdown(job, left)
				}
			}
			select {
			case <-ctx.Done():
				for _, job := range rest {
					job.Cancel()
					o.update(job)
				}
				return ctx.Err()
			case <-tick(time.Second):
			}
		}
	}

	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, job *Job, wg *sync.WaitGroup) {
	if job.isCanceled() {
		return
	}

	balance, err := o.Balance(ctx)
	if err != nil {
		job.set(StatusFailed, nil, err)
		o.update(job)
		return
	}
	if balance <= 0 {
		job.set(StatusSkipped, nil, ErrBalanceExhausted)
		o.update(job)
		return
	}

	job.set(StatusRunning, nil, nil)
	o.update(job)

	wg.Add(1)
	go func() {
		defer wg.Done()
		result, err := o.Submit(ctx, job)
		if err != nil {
			job.set(StatusFailed, nil, err)
		} else {
			job.set(StatusDone, result, nil)
		}
		o.update(job)
	}()
}

func (o *Orchestrator) update(job *Job) {
	if o.OnUpdate != nil {
		o.OnUpdate(job)
	}
}
