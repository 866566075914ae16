package workerpool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/earthring/chunkstream/internal/noise"
	"github.com/earthring/chunkstream/internal/performance"
)

const (
	// MaxDefaultSize caps DefaultSize on machines with many cores.
	MaxDefaultSize = 8

	// DefaultSeedTimeout bounds how long SetSeed waits for each worker.
	DefaultSeedTimeout = 5 * time.Second

	seedBacklog = 16
)

// Job is a unit of work. Payload is owned by the job; workers never share
// memory with callers.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HandlerFunc runs one job on a worker. The engine belongs to that worker
// alone and is only touched from the worker's goroutine and seed messages.
type HandlerFunc func(ctx context.Context, engine *noise.Engine, job Job) (json.RawMessage, error)

// Option configures a Pool.
type Option func(*Pool)

// WithHandler registers the handler for a job type.
func WithHandler(jobType string, fn HandlerFunc) Option {
	return func(p *Pool) {
		p.handlers[jobType] = fn
	}
}

// WithSeedTimeout overrides the per-worker seed acknowledgement timeout.
func WithSeedTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.seedTimeout = d
		}
	}
}

// WithProfiler records per-job timings.
func WithProfiler(profiler *performance.Profiler) Option {
	return func(p *Pool) {
		p.profiler = profiler
	}
}

// DefaultSize is the hardware parallelism capped at MaxDefaultSize.
func DefaultSize() int {
	return max(1, min(runtime.NumCPU(), MaxDefaultSize))
}

// Pool bounds concurrent job execution to a fixed set of workers. Dispatch is
// FIFO: the oldest queued job goes to the first worker that becomes idle.
// Jobs have no execution timeout; a stuck handler holds its worker but the
// rest of the pool keeps serving.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc

	handlers    map[string]HandlerFunc
	seedTimeout time.Duration
	profiler    *performance.Profiler

	// mu guards everything below: the dispatch/release critical section.
	mu           sync.Mutex
	size         int
	workers      map[int]*worker
	idle         []*worker
	queue        []*task
	seed         any
	hasSeed      bool
	nextTaskID   uint64
	nextWorkerID int
	terminated   bool
}

// worker receives at most one task at a time: a task is only sent to a
// worker taken off the idle list, so tasks never blocks. Seed requests have
// their own channel and are applied between tasks.
type worker struct {
	id     int
	engine *noise.Engine
	tasks  chan *task
	seeds  chan *seedRequest
	exited chan struct{}

	// replaced is set before exited closes when the worker crashed and a
	// replacement was spawned; replaceErr is the replacement's seeding error.
	replaced   atomic.Bool
	replaceErr error
}

type seedRequest struct {
	value any
	ack   chan error
}

type task struct {
	id   uint64
	job  Job
	done chan result
}

type result struct {
	payload json.RawMessage
	err     error
}

// New spawns size workers. All of them start unseeded.
func New(size int, opts ...Option) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		ctx:         ctx,
		cancel:      cancel,
		handlers:    make(map[string]HandlerFunc),
		seedTimeout: DefaultSeedTimeout,
		size:        size,
		workers:     make(map[int]*worker, size),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.mu.Lock()
	for i := 0; i < size; i++ {
		w := p.spawnLocked(noise.NewEngine())
		p.idle = append(p.idle, w)
	}
	p.mu.Unlock()

	log.Printf("[Pool] started %d workers", size)
	return p
}

// spawnLocked starts a worker goroutine around engine. Callers hold p.mu and
// decide when the worker becomes idle.
func (p *Pool) spawnLocked(engine *noise.Engine) *worker {
	w := &worker{
		id:     p.nextWorkerID,
		engine: engine,
		tasks:  make(chan *task, 1),
		seeds:  make(chan *seedRequest, seedBacklog),
		exited: make(chan struct{}),
	}
	p.nextWorkerID++
	p.workers[w.id] = w
	go p.run(w)
	return w
}

// SetSeed broadcasts the seed to every worker and waits for each one to
// acknowledge, up to the seed timeout per worker. A slow or dead worker does
// not stop the others from being seeded; all failures come back together in
// a *SeedError. Workers spawned later are seeded with this value before they
// accept jobs.
func (p *Pool) SetSeed(ctx context.Context, value any) error {
	if _, err := noise.ResolveSeed(value); err != nil {
		return fmt.Errorf("invalid seed: %w", err)
	}

	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return ErrTerminated
	}
	p.seed = value
	p.hasSeed = true
	targets := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		targets = append(targets, w)
	}
	p.mu.Unlock()

	failures := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, w := range targets {
		wg.Add(1)
		go func(i int, w *worker) {
			defer wg.Done()
			failures[i] = p.seedWorker(ctx, w, value)
		}(i, w)
	}
	wg.Wait()

	var seedErr SeedError
	for i, err := range failures {
		if err != nil {
			seedErr.Failures = append(seedErr.Failures, WorkerError{WorkerID: targets[i].id, Err: err})
		}
	}
	if len(seedErr.Failures) > 0 {
		log.Printf("[Pool] %v", &seedErr)
		return &seedErr
	}
	return nil
}

func (p *Pool) seedWorker(ctx context.Context, w *worker, value any) error {
	timer := time.NewTimer(p.seedTimeout)
	defer timer.Stop()

	req := &seedRequest{value: value, ack: make(chan error, 1)}
	select {
	case w.seeds <- req:
	case <-w.exited:
		return exitedErr(w)
	case <-timer.C:
		return ErrSeedTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.ack:
		return err
	case <-w.exited:
		return exitedErr(w)
	case <-timer.C:
		return ErrSeedTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exitedErr reports the seed outcome for a worker that has stopped. A crashed
// worker's replacement is seeded with the pool's current seed when spawned,
// so it only fails if that seeding did.
func exitedErr(w *worker) error {
	if w.replaced.Load() {
		return w.replaceErr
	}
	return ErrWorkerExited
}

// Execute runs job on exactly one worker and returns its reply. The job is
// dispatched immediately if a worker is idle, otherwise it waits in FIFO
// order. A worker-side failure returns a *JobError; the worker goes back to
// the idle set either way.
func (p *Pool) Execute(ctx context.Context, job Job) (json.RawMessage, error) {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return nil, ErrTerminated
	}
	p.nextTaskID++
	t := &task{id: p.nextTaskID, job: job, done: make(chan result, 1)}
	var target *worker
	if len(p.idle) > 0 {
		target = p.idle[0]
		p.idle = p.idle[1:]
	} else {
		p.queue = append(p.queue, t)
	}
	p.mu.Unlock()

	if target != nil {
		target.tasks <- t
	}

	select {
	case res := <-t.done:
		return res.payload, res.err
	case <-ctx.Done():
		p.dequeue(t)
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrTerminated
	}
}

// dequeue drops an abandoned task that has not reached a worker yet.
func (p *Pool) dequeue(t *task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, queued := range p.queue {
		if queued == t {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}

// run serves w until the pool stops or w crashes. Queued tasks handed back
// by release run here directly.
func (p *Pool) run(w *worker) {
	defer close(w.exited)
	for {
		select {
		case <-p.ctx.Done():
			return
		case req := <-w.seeds:
			req.ack <- w.engine.Seed(req.value)
		case t := <-w.tasks:
			for t != nil {
				p.applySeeds(w)
				res, crashed := p.runTask(w, t)
				next, replacement := p.release(w, crashed)
				t.done <- res
				if crashed {
					if next != nil {
						replacement.tasks <- next
					}
					return
				}
				t = next
			}
		}
	}
}

// applySeeds acknowledges every seed request that arrived while w was busy.
func (p *Pool) applySeeds(w *worker) {
	for {
		select {
		case req := <-w.seeds:
			req.ack <- w.engine.Seed(req.value)
		default:
			return
		}
	}
}

// runTask executes one task. A panicking handler is treated as a worker crash.
func (p *Pool) runTask(w *worker, t *task) (res result, crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Pool] worker %d crashed on job %d (%s): %v", w.id, t.id, t.job.Type, r)
			res = result{err: &JobError{TaskID: t.id, Type: t.job.Type, WorkerID: w.id, Err: fmt.Errorf("worker crashed: %v", r)}}
			crashed = true
		}
	}()

	handler, ok := p.handlers[t.job.Type]
	if !ok {
		return result{err: &JobError{TaskID: t.id, Type: t.job.Type, WorkerID: w.id, Err: fmt.Errorf("no handler for job type %q", t.job.Type)}}, false
	}

	defer p.profiler.Track("pool." + t.job.Type)()
	payload, err := handler(p.ctx, w.engine, t.job)
	if err != nil {
		return result{err: &JobError{TaskID: t.id, Type: t.job.Type, WorkerID: w.id, Err: err}}, false
	}
	return result{payload: payload}, false
}

// release pops the next queued task for w or returns w to the idle set.
// After a crash w is retired and a freshly seeded replacement takes its
// place; the caller hands next to that replacement. Nothing is sent on a
// channel while p.mu is held.
func (p *Pool) release(w *worker, crashed bool) (next *task, replacement *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated {
		return nil, nil
	}

	if crashed {
		delete(p.workers, w.id)
		engine := noise.NewEngine()
		if p.hasSeed {
			if err := engine.Seed(p.seed); err != nil {
				log.Printf("[Pool] failed to seed replacement for worker %d: %v", w.id, err)
				w.replaceErr = err
			}
		}
		w.replaced.Store(true)
		replacement = p.spawnLocked(engine)
		log.Printf("[Pool] replaced crashed worker %d with worker %d (seeded=%t)", w.id, replacement.id, engine.Seeded())
		w = replacement
	}

	if len(p.queue) > 0 {
		next = p.queue[0]
		p.queue = p.queue[1:]
		return next, replacement
	}
	p.idle = append(p.idle, w)
	return nil, replacement
}

// Terminate stops every worker and discards queued and in-flight work. Their
// results are never delivered; blocked Execute calls return ErrTerminated.
func (p *Pool) Terminate() {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	dropped := len(p.queue)
	p.queue = nil
	p.idle = nil
	p.workers = make(map[int]*worker)
	p.mu.Unlock()

	p.cancel()
	log.Printf("[Pool] terminated (%d queued jobs discarded)", dropped)
}

// Size is the configured number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Available is the number of idle workers.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Pending is the number of jobs waiting for a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Seeded reports whether SetSeed has been called.
func (p *Pool) Seeded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasSeed
}
