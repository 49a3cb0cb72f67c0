// Package queue implements the TranslationQueue (spec §4.2): a
// priority-aware, bounded-concurrency dispatcher that hands translation
// jobs to a per-job TranslationHandler (RealtimeTranslator or
// HistoryTranslator) and reports completion/failure with timing.
//
// The teacher's worker pool (internal/agent/agent.go) bounds
// concurrency with a raw `chan struct{}` of fixed size used as a
// semaphore. That shape doesn't carry a weight or a queue depth
// observable on its own, so concurrency here is bounded instead with
// golang.org/x/sync/semaphore (Acquire before a job leaves the waiting
// list, Release when it finishes); the Snapshot's active/queued split
// comes from the queue's own active counter and waiting-list length.
package queue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/christian-lee/lecturecast/internal/errkind"
	"github.com/christian-lee/lecturecast/internal/metrics"
)

// Priority orders dispatch: High jobs are always dispatched ahead of
// Normal, Normal ahead of Low, FIFO within a tier (§4.2).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// DeltaFunc streams incremental output from a handler (used by
// RealtimeTranslator's token-by-token deltas); it may be nil.
type DeltaFunc func(delta string)

// Job is one unit of translation work.
type Job struct {
	SegmentID       string
	Text            string
	SourceLang      string
	TargetLang      string
	Purpose         string // "realtime" | "history"
	Priority        Priority
	CorrelationID   string
	ReasoningEffort string
	EnqueuedAt      time.Time
	OnDelta         DeltaFunc
}

// Result is a completed (or failed) job.
type Result struct {
	Job            Job
	Translated     string
	Err            error
	FirstPaintMs   int64
	CompleteMs     int64
}

// Handler performs the actual translation call for a job.
type Handler interface {
	Handle(ctx context.Context, job Job, onDelta DeltaFunc) (string, error)
}

// HandlerFor resolves which Handler should run a given job, e.g. by
// segment_id prefix per §4.11 (history_*/paragraph_* -> history
// translator, else realtime translator).
type HandlerFor func(Job) (Handler, bool)

// Config configures queue limits (§4.2).
type Config struct {
	MaxQueue       int
	MaxConcurrency int
	RequestTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxQueue <= 0 {
		c.MaxQueue = 100
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// Snapshot is the observability contract from §4.2.
type Snapshot struct {
	Active          int
	Queued          int
	Completed       int64
	Errors          int64
	AvgProcessingMs float64
}

// Queue is the TranslationQueue.
type Queue struct {
	cfg        Config
	handlerFor HandlerFor
	sem        *semaphore.Weighted
	metrics    *metrics.Provider
	latency    *metrics.LatencyBuffer

	mu      sync.Mutex
	pending map[string]struct{} // segment ids queued or active
	waiting *list.List           // *Job, priority-ordered FIFO within tier
	active  int

	completed int64
	errored   int64

	notify  chan struct{}
	results chan Result

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Queue and starts its dispatch loop. handlerFor resolves
// the translator for each job; metricsProvider may be nil.
func New(ctx context.Context, cfg Config, handlerFor HandlerFor, metricsProvider *metrics.Provider) *Queue {
	cfg.setDefaults()
	qctx, cancel := context.WithCancel(ctx)
	q := &Queue{
		cfg:        cfg,
		handlerFor: handlerFor,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		metrics:    metricsProvider,
		latency:    metrics.NewLatencyBuffer(100),
		pending:    make(map[string]struct{}),
		waiting:    list.New(),
		notify:     make(chan struct{}, 1),
		results:    make(chan Result, cfg.MaxQueue),
		ctx:        qctx,
		cancel:     cancel,
	}
	go q.dispatchLoop()
	return q
}

// Results returns completed/failed jobs as they finish.
func (q *Queue) Results() <-chan Result {
	return q.results
}

// Enqueue admits a job. Returns errkind.QueueFull at capacity and
// errkind.Duplicate if segment_id is already queued or active (§4.2).
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.pending[job.SegmentID]; dup {
		return errkind.New(errkind.Duplicate, job.SegmentID)
	}
	if q.waiting.Len()+q.active >= q.cfg.MaxQueue {
		return errkind.New(errkind.QueueFull, job.SegmentID)
	}

	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	q.pending[job.SegmentID] = struct{}{}
	q.insertPriorityOrdered(&job)
	q.metrics.RecordQueueQueuedDelta(q.ctx, 1)

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// insertPriorityOrdered inserts before the first element of lower
// priority, preserving FIFO order within a tier. Caller holds q.mu.
func (q *Queue) insertPriorityOrdered(job *Job) {
	for e := q.waiting.Front(); e != nil; e = e.Next() {
		if e.Value.(*Job).Priority < job.Priority {
			q.waiting.InsertBefore(job, e)
			return
		}
	}
	q.waiting.PushBack(job)
}

// Snapshot reports the current observability contract (§4.2).
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Snapshot{
		Active:          q.active,
		Queued:          q.waiting.Len(),
		Completed:       q.completed,
		Errors:          q.errored,
		AvgProcessingMs: q.latency.Average(),
	}
}

// Close stops the dispatch loop and cancels the context that in-flight
// jobs run under; jobs still waiting are never dispatched.
func (q *Queue) Close() {
	q.cancel()
}

func (q *Queue) dispatchLoop() {
	for {
		if err := q.sem.Acquire(q.ctx, 1); err != nil {
			return
		}

		job := q.popNext()
		if job == nil {
			q.sem.Release(1)
			select {
			case <-q.ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}

		q.mu.Lock()
		q.active++
		q.metrics.RecordQueueQueuedDelta(q.ctx, -1)
		q.metrics.RecordQueueActiveDelta(q.ctx, 1)
		q.mu.Unlock()

		go q.runJob(*job)
	}
}

func (q *Queue) popNext() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.waiting.Front()
	if front == nil {
		return nil
	}
	q.waiting.Remove(front)
	return front.Value.(*Job)
}

func (q *Queue) runJob(job Job) {
	defer q.sem.Release(1)

	ctx, cancel := context.WithTimeout(q.ctx, q.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	res := Result{Job: job}

	handler, ok := q.handlerFor(job)
	if !ok {
		res.Err = errkind.New(errkind.InvalidState, "no handler registered for job purpose "+job.Purpose)
	} else {
		firstPaint := int64(0)
		wrapped := func(delta string) {
			if firstPaint == 0 {
				firstPaint = time.Since(start).Milliseconds()
			}
			if job.OnDelta != nil {
				job.OnDelta(delta)
			}
		}
		text, err := handler.Handle(ctx, job, wrapped)
		res.Translated = text
		res.Err = err
		res.FirstPaintMs = firstPaint
	}
	res.CompleteMs = time.Since(start).Milliseconds()

	q.mu.Lock()
	delete(q.pending, job.SegmentID)
	q.active--
	if res.Err != nil {
		q.errored++
	} else {
		q.completed++
	}
	q.latency.Add(time.Since(start))
	q.mu.Unlock()

	q.metrics.RecordQueueActiveDelta(q.ctx, -1)
	if res.Err != nil {
		q.metrics.RecordQueueError(q.ctx)
	} else {
		q.metrics.RecordQueueCompleted(q.ctx, float64(res.CompleteMs))
	}

	select {
	case q.results <- res:
	case <-q.ctx.Done():
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
