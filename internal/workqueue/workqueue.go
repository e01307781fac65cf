// Package workqueue runs deferred work on a small fixed pool of goroutines.
//
// A Work item is a single slot: scheduling it while it is already queued is
// a no-op, and scheduling it while it runs queues exactly one more run after
// the current one returns. A Work item never runs on two workers at once.
package workqueue

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 2

// Queue owns the worker goroutines.
type Queue struct {
	mu     sync.Mutex
	wake   *sync.Cond // workers wait here for items
	idle   *sync.Cond // Flush waits here
	items  []*Work
	busy   int
	closed bool
	g      errgroup.Group
}

// New starts a queue with the given number of workers.
func New(workers int) *Queue {
	if workers < 1 {
		workers = DefaultWorkers
	}
	q := &Queue{}
	q.wake = sync.NewCond(&q.mu)
	q.idle = sync.NewCond(&q.mu)
	for i := 0; i < workers; i++ {
		q.g.Go(func() error {
			q.worker()
			return nil
		})
	}
	return q
}

// NewWork creates an idle work item bound to this queue.
func (q *Queue) NewWork(fn func()) *Work {
	w := &Work{q: q, fn: fn}
	w.done = sync.NewCond(&q.mu)
	return w
}

func (q *Queue) worker() {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.wake.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		w := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		w.queued = false
		w.running = true
		q.busy++
		q.mu.Unlock()

		w.fn()

		q.mu.Lock()
		w.running = false
		if w.again {
			w.again = false
			q.enqueue(w)
		}
		q.busy--
		w.done.Broadcast()
		if q.busy == 0 && len(q.items) == 0 {
			q.idle.Broadcast()
		}
		q.mu.Unlock()
	}
}

// enqueue must be called with q.mu held.
func (q *Queue) enqueue(w *Work) {
	w.queued = true
	q.items = append(q.items, w)
	q.wake.Signal()
}

// remove must be called with q.mu held.
func (q *Queue) remove(w *Work) {
	for i, it := range q.items {
		if it == w {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	w.queued = false
	if q.busy == 0 && len(q.items) == 0 {
		q.idle.Broadcast()
	}
}

// Flush blocks until no work is queued or running.
func (q *Queue) Flush() {
	q.mu.Lock()
	for q.busy > 0 || len(q.items) > 0 {
		q.idle.Wait()
	}
	q.mu.Unlock()
}

// Close runs the remaining queued work, then stops the workers.
// Scheduling after Close is a no-op.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.wake.Broadcast()
	q.mu.Unlock()
	q.g.Wait()
}

// Work is a single-slot deferred work item.
type Work struct {
	q       *Queue
	fn      func()
	done    *sync.Cond
	queued  bool
	running bool
	again   bool // scheduled while running
}

// Schedule queues the work. It never blocks. It returns false when the
// request was coalesced into an already outstanding run, or the queue is
// closed.
func (w *Work) Schedule() bool {
	q := w.q
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case q.closed, w.queued, w.again:
		return false
	case w.running:
		w.again = true
		return true
	}
	q.enqueue(w)
	return true
}

// Pending reports whether a run is queued and has not started.
func (w *Work) Pending() bool {
	w.q.mu.Lock()
	defer w.q.mu.Unlock()
	return w.queued || w.again
}

// CancelAndWait drops any queued run and blocks until a running one has
// returned. It reports whether a queued run was dropped.
func (w *Work) CancelAndWait() bool {
	q := w.q
	q.mu.Lock()
	defer q.mu.Unlock()

	var cancelled bool
	for {
		if w.queued {
			q.remove(w)
			cancelled = true
		}
		if w.again {
			w.again = false
			cancelled = true
		}
		if !w.running {
			return cancelled
		}
		w.done.Wait()
	}
}
