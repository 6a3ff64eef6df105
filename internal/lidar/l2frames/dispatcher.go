package l2frames

import (
	"sync"
	"sync/atomic"
)

// SweepJob pairs a completed sweep with the output settings that were in
// force when it was cut. Later config changes do not reach queued jobs.
type SweepJob struct {
	Sweep     *Sweep
	Builder   GridBuilder
	Organized bool
}

// SweepHandler consumes a completed sweep on the dispatcher's worker.
type SweepHandler func(SweepJob)

// SweepDispatcher hands completed sweeps to a single worker goroutine so
// that grid building and projection stay off the ingest path. Only one
// handler invocation runs at a time.
//
// When the queue is full the sweep is dropped and counted: the stream is
// live and a late sweep is worth less than the next one. Blocking mode
// waits instead, which suits offline replay.
type SweepDispatcher struct {
	handler SweepHandler
	block   bool

	ch   chan SweepJob
	done chan struct{}

	mu     sync.RWMutex // guards closed against concurrent Dispatch
	closed bool

	delivered atomic.Int64
	dropped   atomic.Int64
}

// DispatcherOption configures a SweepDispatcher.
type DispatcherOption func(*SweepDispatcher)

// WithBlocking makes Dispatch wait for queue space instead of dropping.
func WithBlocking() DispatcherOption {
	return func(d *SweepDispatcher) { d.block = true }
}

// NewSweepDispatcher starts a worker that calls handler for every queued
// sweep. queueSize below 1 is treated as 1.
func NewSweepDispatcher(queueSize int, handler SweepHandler, opts ...DispatcherOption) *SweepDispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	d := &SweepDispatcher{
		handler: handler,
		ch:      make(chan SweepJob, queueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.worker()
	return d
}

func (d *SweepDispatcher) worker() {
	defer close(d.done)
	for job := range d.ch {
		d.handler(job)
		d.delivered.Add(1)
	}
}

// Dispatch queues a job and reports whether it was accepted. Jobs without
// a sweep and jobs dispatched after Close are ignored.
func (d *SweepDispatcher) Dispatch(job SweepJob) bool {
	s := job.Sweep
	if s == nil {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	if d.block {
		d.ch <- job
		return true
	}

	select {
	case d.ch <- job:
		return true
	default:
		n := d.dropped.Add(1)
		opsf("dropped sweep %d (%d records): queue full, %d dropped so far", s.Seq, s.Len(), n)
		return false
	}
}

// Close stops accepting sweeps, waits for queued sweeps to be handled and
// stops the worker. It is safe to call more than once.
func (d *SweepDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	<-d.done
}

// Delivered returns the number of sweeps handled so far.
func (d *SweepDispatcher) Delivered() int64 {
	return d.delivered.Load()
}

// Dropped returns the number of sweeps discarded because the queue was full.
func (d *SweepDispatcher) Dropped() int64 {
	return d.dropped.Load()
}
