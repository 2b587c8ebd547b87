// Package parallel provides the goroutine pool that executes software
// device dispatches.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// minChunk is the smallest number of work items handed to one task.
const minChunk = 64

// WorkerPool is a fixed set of goroutines executing dispatch work.
//
// Each worker pulls from its own queue and steals from the others when idle,
// which balances dispatches whose items have very different costs (orbits of
// different lengths, points that escape early).
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex // guards enqueueing against Close
	running    atomic.Bool
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case work := <-own:
				work()
			}
		}
	}
}

// drain executes work still queued when the pool closes.
func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// For runs fn(i) for every i in [0, n) and returns when all calls have
// completed. Items are grouped into contiguous chunks sized for the worker
// count, never smaller than 64 items.
func (p *WorkerPool) For(n int, fn func(i int)) {
	p.ForChunk(n, max(n/(p.workers*4), minChunk), fn)
}

// ForChunk is For with an explicit chunk size. A chunk of 1 spreads
// expensive items (whole orbit segments) one per task. If the pool is
// closed, the items run on the caller's goroutine.
func (p *WorkerPool) ForChunk(n, chunk int, fn func(i int)) {
	if n <= 0 {
		return
	}
	chunk = max(chunk, 1)

	// Close waits for the write lock, so every task enqueued under the read
	// lock is in a queue before done closes and gets drained.
	p.mu.RLock()
	if !p.running.Load() {
		p.mu.RUnlock()
		for i := range n {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	task := 0
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		p.workQueues[task%p.workers] <- func() {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				fn(i)
			}
		}
		task++
	}
	p.mu.RUnlock()
	wg.Wait()
}

// Close stops the workers after their queued work completes.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	close(p.done)
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
