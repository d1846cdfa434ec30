package keyworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Job is one unit of work. Jobs sharing a Key run on the same worker, in
// dispatch order.
type Job struct {
	Key     string
	Handler func(ctx context.Context) error
}

// PoolStats is a point-in-time view of the pool.
type PoolStats struct {
	NumWorkers      int           `json:"num_workers"`
	QueueSize       int           `json:"queue_size"`
	ActiveWorkers   int           `json:"active_workers"`
	TotalDispatched int64         `json:"total_dispatched"`
	TotalProcessed  int64         `json:"total_processed"`
	TotalDropped    int64         `json:"total_dropped"`
	TotalErrors     int64         `json:"total_errors"`
	WorkerStats     []WorkerStats `json:"worker_stats"`
}

type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsProcessing  bool  `json:"is_processing"`
	JobsProcessed int64 `json:"jobs_processed"`
}

// Pool shards jobs over a fixed set of workers by FNV hash of the key.
type Pool struct {
	name       string
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	stopOnce   sync.Once
	started    atomic.Bool
	stopped    atomic.Bool

	totalDispatched atomic.Int64
	totalProcessed  atomic.Int64
	totalDropped    atomic.Int64
	totalErrors     atomic.Int64
}

type worker struct {
	id            int
	jobQueue      chan Job
	ctx           context.Context
	cancel        context.CancelFunc
	isProcessing  atomic.Bool
	jobsProcessed atomic.Int64
	pool          *Pool
}

// NewPool defaults to 4 workers with a queue of 100 jobs each. name is used
// as the log tag.
func NewPool(name string, numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if name == "" {
		name = "KEY_WORKER_POOL"
	}
	return &Pool{
		name:       name,
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	if p.started.Swap(true) {
		return
	}
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

	logrus.Infof("[%s] Started with %d workers, queue size: %d", p.name, p.numWorkers, p.queueSize)
}

// TryDispatch enqueues the job without blocking and reports whether it was
// accepted. Jobs are refused before Start, after Stop and on a full queue.
func (p *Pool) TryDispatch(job Job) bool {
	if !p.started.Load() || p.stopped.Load() {
		p.totalDropped.Add(1)
		return false
	}

	shard := p.shardFor(job.Key)
	p.totalDispatched.Add(1)

	sent := func() (ok bool) {
		// Stop may close the queue concurrently.
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

	p.totalDropped.Add(1)
	logrus.Warnf("[%s] Worker %d queue full (or stopped), dropping job for %s", p.name, shard, job.Key)
	return false
}

// Stop cancels the workers, runs what is left in their queues and waits.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		if !p.started.Load() {
			return
		}
		logrus.Infof("[%s] Stopping workers...", p.name)

		for _, w := range p.workers {
			w.cancel()
			close(w.jobQueue)
		}
		p.wg.Wait()

		logrus.Infof("[%s] All workers stopped", p.name)
	})
}

func (p *Pool) shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.numWorkers))
}

func (p *Pool) Stats() PoolStats {
	stats := PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		TotalDispatched: p.totalDispatched.Load(),
		TotalProcessed:  p.totalProcessed.Load(),
		TotalDropped:    p.totalDropped.Load(),
		TotalErrors:     p.totalErrors.Load(),
		WorkerStats:     make([]WorkerStats, 0, len(p.workers)),
	}
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		processing := w.isProcessing.Load()
		if processing {
			stats.ActiveWorkers++
		}
		stats.WorkerStats = append(stats.WorkerStats, WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.jobQueue),
			IsProcessing:  processing,
			JobsProcessed: w.jobsProcessed.Load(),
		})
	}
	return stats
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	logrus.Debugf("[%s] Worker %d started", w.pool.name, w.id)

	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				logrus.Debugf("[%s] Worker %d shutting down", w.pool.name, w.id)
				return
			}
			w.execute(job)
		case <-w.ctx.Done():
			logrus.Debugf("[%s] Worker %d context cancelled, draining queue...", w.pool.name, w.id)
			w.drainQueue()
			return
		}
	}
}

func (w *worker) execute(job Job) {
	w.isProcessing.Store(true)
	defer func() {
		if r := recover(); r != nil {
			w.pool.totalErrors.Add(1)
			logrus.Errorf("[%s] Worker %d panic for %s: %v", w.pool.name, w.id, job.Key, r)
		}
		w.isProcessing.Store(false)
		w.jobsProcessed.Add(1)
		w.pool.totalProcessed.Add(1)
	}()

	if err := job.Handler(w.ctx); err != nil {
		w.pool.totalErrors.Add(1)
		logrus.WithError(err).Errorf("[%s] Worker %d job failed for %s", w.pool.name, w.id, job.Key)
	}
}

func (w *worker) drainQueue() {
	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				return
			}
			w.execute(job)
		default:
			return
		}
	}
}
