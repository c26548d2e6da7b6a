// Package submission runs long remote-submission jobs on a fixed pool of
// background workers fed by a single FIFO queue. At most one job per target
// is queued or running at a time.
package submission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/relval/internal/metrics"
)

// Config configures a Pool.
type Config struct {
	// Workers is the number of background workers.
	// Default: 2
	Workers int
}

// DefaultConfig returns a config with default values.
func DefaultConfig() Config {
	return Config{Workers: 2}
}

func (c *Config) validate() {
	if c.Workers < 1 {
		c.Workers = 2
	}
}

// Func is the body of a job.
type Func func(ctx context.Context) error

// Job is one queued unit of work bound to a target identifier.
type Job struct {
	ID       string
	Target   string
	Name     string
	Enqueued time.Time

	run Func
}

// WorkerStatus is a snapshot of one worker. Job is empty when idle.
type WorkerStatus struct {
	Worker         int     `json:"worker"`
	Job            string  `json:"job,omitempty"`
	Target         string  `json:"target,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

type running struct {
	job   *Job
	start time.Time
}

// Pool is a fixed set of workers draining a shared queue.
type Pool struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Job
	current []*running
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewPool creates a pool. Workers start with Start. logger and m may be nil.
func NewPool(config Config, logger *slog.Logger, m *metrics.Metrics) *Pool {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		config:  config,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		current: make([]*running, config.Workers),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers. Jobs run on a context detached from ctx
// cancellation, so a dequeued job always runs to completion. Calling Start
// again has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	jobCtx := context.WithoutCancel(ctx)
	for i := range p.current {
		p.wg.Add(1)
		go p.worker(jobCtx, i)
	}
	p.logger.Info("submission pool started", "workers", len(p.current))
}

// Stop stops accepting jobs and waits until the queued and running jobs
// have finished.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	pending := len(p.queue)
	started := p.started
	p.cond.Broadcast()
	p.mu.Unlock()

	if !started && pending > 0 {
		p.logger.Warn("submission pool stopped before start, dropping jobs", "pending", pending)
		p.mu.Lock()
		p.queue = nil
		p.metrics.SetQueueDepth(0)
		p.mu.Unlock()
	}
	p.wg.Wait()
	p.logger.Info("submission pool stopped")
}

// Submit enqueues fn for target. It fails when a job for target is already
// queued or running, or when the pool is stopped.
func (p *Pool) Submit(target, name string, fn Func) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return "", ErrStopped
	}
	for _, job := range p.queue {
		if job.Target == target {
			return "", fmt.Errorf("%w: %s", ErrAlreadyQueued, target)
		}
	}
	for _, r := range p.current {
		if r != nil && r.job.Target == target {
			return "", fmt.Errorf("%w: %s", ErrAlreadyRunning, target)
		}
	}

	job := &Job{
		ID:       uuid.NewString(),
		Target:   target,
		Name:     name,
		Enqueued: p.now(),
		run:      fn,
	}
	p.queue = append(p.queue, job)
	p.metrics.SetQueueDepth(len(p.queue))
	p.cond.Signal()
	p.logger.Info("job queued", "job", name, "target", target, "id", job.ID, "depth", len(p.queue))
	return job.ID, nil
}

// Status returns one snapshot per worker.
func (p *Pool) Status() []WorkerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	out := make([]WorkerStatus, len(p.current))
	for i, r := range p.current {
		out[i] = WorkerStatus{Worker: i}
		if r != nil {
			out[i].Job = r.job.Name
			out[i].Target = r.job.Target
			out[i].ElapsedSeconds = now.Sub(r.start).Seconds()
		}
	}
	return out
}

// QueueDepth returns the number of waiting jobs.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Pending returns the waiting jobs in queue order.
func (p *Pool) Pending() []Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Job, len(p.queue))
	for i, job := range p.queue {
		out[i] = Job{ID: job.ID, Target: job.Target, Name: job.Name, Enqueued: job.Enqueued}
	}
	return out
}

func (p *Pool) worker(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		job, ok := p.next(n)
		if !ok {
			return
		}
		p.run(ctx, n, job)

		p.mu.Lock()
		p.current[n] = nil
		p.mu.Unlock()
	}
}

// next blocks until a job is available and marks it current for worker n.
// It returns false once the pool is stopped and the queue is drained.
func (p *Pool) next(n int) (*Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.stopped {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}
	job := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.current[n] = &running{job: job, start: p.now()}
	p.metrics.SetQueueDepth(len(p.queue))
	return job, true
}

func (p *Pool) run(ctx context.Context, n int, job *Job) {
	logger := p.logger.With("worker", n, "job", job.Name, "target", job.Target, "id", job.ID)
	start := time.Now()
	outcome := metrics.OutcomeOK

	p.metrics.WorkerBusy(1)
	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.OutcomePanic
			logger.Error("job panicked", "panic", r)
		}
		p.metrics.WorkerBusy(-1)
		p.metrics.JobFinished(outcome)
	}()

	logger.Info("job started", "waited", start.Sub(job.Enqueued))
	if err := job.run(ctx); err != nil {
		outcome = metrics.OutcomeError
		logger.Error("job failed", "error", err, "duration", time.Since(start))
		return
	}
	logger.Info("job finished", "duration", time.Since(start))
}
