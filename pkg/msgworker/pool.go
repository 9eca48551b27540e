// Package msgworker is a sharded worker pool for event processing. Jobs for
// the same source always land on the same worker, so per-chat ordering holds
// while different chats run in parallel.
package msgworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Job is one unit of event work, keyed by the chat it belongs to.
type Job struct {
	Source  string
	Handler func(ctx context.Context) error
}

// PoolStats is a live snapshot of the pool.
type PoolStats struct {
	NumWorkers      int           `json:"numWorkers"`
	QueueSize       int           `json:"queueSize"`
	ActiveWorkers   int           `json:"activeWorkers"`
	TotalDispatched int64         `json:"totalDispatched"`
	TotalProcessed  int64         `json:"totalProcessed"`
	TotalDropped    int64         `json:"totalDropped"`
	TotalErrors     int64         `json:"totalErrors"`
	Workers         []WorkerStats `json:"workers"`
}

type WorkerStats struct {
	WorkerID      int   `json:"workerId"`
	QueueDepth    int   `json:"queueDepth"`
	IsProcessing  bool  `json:"isProcessing"`
	JobsProcessed int64 `json:"jobsProcessed"`
}

type Pool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64
}

type worker struct {
	id            int
	jobQueue      chan Job
	ctx           context.Context
	cancel        context.CancelFunc
	isProcessing  int32
	jobsProcessed int64
	pool          *Pool
}

func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 250
	}
	return &Pool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{
			id:       i,
			jobQueue: make(chan Job, p.queueSize),
			ctx:      workerCtx,
			cancel:   cancel,
			pool:     p,
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(&p.wg)
	}
	logrus.Infof("[WORKER] pool started with %d workers, queue size %d", p.numWorkers, p.queueSize)
}

// TryDispatch enqueues a job on its shard without blocking. False means the
// shard queue was full or the pool already stopped; the caller decides
// whether dropping is acceptable.
func (p *Pool) TryDispatch(job Job) bool {
	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	shard := p.shardFor(job.Source)
	atomic.AddInt64(&p.totalDispatched, 1)

	sent := func() (ok bool) {
		// The queue may be closed by Stop between the flag check and the
		// send; a send on a closed channel panics.
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].jobQueue <- job:
			return true
		default:
			return false
		}
	}()
	if sent {
		return true
	}

	atomic.AddInt64(&p.totalDropped, 1)
	logrus.Warnf("[WORKER] shard %d queue full, dropping job for %s", shard, job.Source)
	return false
}

// Dispatch enqueues and ignores backpressure.
func (p *Pool) Dispatch(job Job) {
	_ = p.TryDispatch(job)
}

// Stop shuts the pool down. Queued jobs are drained before the workers
// exit.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		logrus.Info("[WORKER] stopping pool")

		for _, w := range p.workers {
			w.cancel()
			close(w.jobQueue)
		}
		p.wg.Wait()

		logrus.Info("[WORKER] all workers stopped")
	})
}

func (p *Pool) shardFor(source string) int {
	h := fnv.New32a()
	h.Write([]byte(source))
	return int(h.Sum32() % uint32(p.numWorkers))
}

func (p *Pool) Stats() PoolStats {
	workers := make([]WorkerStats, len(p.workers))
	active := 0
	for i, w := range p.workers {
		processing := atomic.LoadInt32(&w.isProcessing) == 1
		if processing {
			active++
		}
		workers[i] = WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.jobQueue),
			IsProcessing:  processing,
			JobsProcessed: atomic.LoadInt64(&w.jobsProcessed),
		}
	}
	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   active,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		Workers:         workers,
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	logrus.Debugf("[WORKER] worker %d started", w.id)

	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				logrus.Debugf("[WORKER] worker %d shutting down", w.id)
				return
			}
			w.process(job)

		case <-w.ctx.Done():
			logrus.Debugf("[WORKER] worker %d cancelled, draining queue", w.id)
			w.drainQueue()
			return
		}
	}
}

func (w *worker) process(job Job) {
	atomic.StoreInt32(&w.isProcessing, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
			logrus.Errorf("[WORKER] worker %d panic for %s: %v", w.id, job.Source, r)
		}
		atomic.StoreInt32(&w.isProcessing, 0)
		atomic.AddInt64(&w.jobsProcessed, 1)
		atomic.AddInt64(&w.pool.totalProcessed, 1)
	}()

	if err := job.Handler(w.ctx); err != nil {
		atomic.AddInt64(&w.pool.totalErrors, 1)
		logrus.WithError(err).Errorf("[WORKER] worker %d job failed for %s", w.id, job.Source)
	}
}

// drainQueue runs the jobs still queued when the worker is told to stop, so
// accepted work is never lost on shutdown.
func (w *worker) drainQueue() {
	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				return
			}
			w.process(job)
		default:
			return
		}
	}
}
