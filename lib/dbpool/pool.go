package dbpool

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dbpool/lib/affinity"
	"github.com/ValentinKolb/dbpool/lib/common"
	"github.com/ValentinKolb/dbpool/lib/db"
	"github.com/ValentinKolb/dbpool/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("dbpool")

// --------------------------------------------------------------------------
// Pool
// --------------------------------------------------------------------------

// Server is the context the pool runs in
type Server struct {
	// Config holds the tuning parameters for the topology planner
	Config common.PoolConfig
	// Affinity provides the available cores, the current core and pinning
	Affinity affinity.Affinity
}

// Pool executes blocking storage reads on a fixed set of worker threads.
//
// Callers submit commands with Get, GetBatch and Seek. A command is routed to
// the queue of the core the caller runs on and executed by one of the workers
// serving that queue. Queues are bounded, a full queue blocks the caller.
//
// Thread-safety: All methods are safe for concurrent use.
type Pool struct {
	plan     Plan
	cfg      common.PoolConfig
	affinity affinity.Affinity
	queues   []chan *command

	// mu serialises spawning and closing, the submission path never takes it
	mu      sync.Mutex
	workers []*worker
	wg      sync.WaitGroup

	closed  atomic.Bool
	closing chan struct{} // closed by Close
	done    chan struct{} // closed when all workers exited and queues are swept
	senders atomic.Int64  // submissions between the closed check and the enqueue

	busy      atomic.Int64
	queuedMax atomic.Int64
	metrics   *poolMetrics
}

// New plans the topology for the available cores, allocates the queues and
// starts the workers.
func New(server Server) (*Pool, error) {
	if server.Affinity == nil {
		return nil, fmt.Errorf("dbpool: server context without affinity")
	}

	cfg := server.Config
	plan := Configure(server.Affinity.Cores(), cfg)

	p := &Pool{
		plan:     plan,
		cfg:      cfg,
		affinity: server.Affinity,
		queues:   make([]chan *command, plan.Queues()),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	for q, size := range plan.QueueSizes {
		p.queues[q] = make(chan *command, size)
	}
	p.metrics = newPoolMetrics(p)

	p.mu.Lock()
	for w := 0; w < plan.Workers; w++ {
		p.spawn(w)
	}
	p.mu.Unlock()

	go p.reap()

	Logger.Infof("dbpool: started %d workers on %d queues (sizes %v, affinity %t)",
		plan.Workers, plan.Queues(), plan.QueueSizes, cfg.Affinity)
	return p, nil
}

// spawn starts worker w. Must be called with mu held.
func (p *Pool) spawn(w int) {
	group := p.plan.GroupOf(w)
	wk := &worker{
		id:    w,
		group: group,
		queue: p.queues[group],
		pool:  p,
	}
	// pinning only makes sense if queues map to disjoint core groups
	if p.plan.Queues() > 1 {
		wk.cores = p.plan.CoresOf(group)
	}

	p.workers = append(p.workers, wk)
	p.wg.Add(1)
	go wk.run()
}

// Plan returns the topology the pool was built with
func (p *Pool) Plan() Plan {
	return p.plan
}

// --------------------------------------------------------------------------
// Shutdown
// --------------------------------------------------------------------------

// Close stops accepting commands. Workers execute what is already queued and
// then exit, a storage call in progress runs to completion. Close does not
// wait, use Shutdown for that. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return
	}
	p.closed.Store(true)
	close(p.closing)
	Logger.Debugf("dbpool: closing, %d workers", len(p.workers))
}

// Shutdown closes the pool and waits until every worker exited. The storage
// engine must not be closed before Shutdown returned. Idempotent.
func (p *Pool) Shutdown() {
	p.Close()
	<-p.done
}

// Done is closed once the pool is fully shut down
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// reap waits for all workers and fails commands that were enqueued after the
// last worker of their queue drained it.
func (p *Pool) reap() {
	p.wg.Wait()

	// a submission that passed the closed check is either enqueued or returns
	// on closing, both happen without blocking
	for p.senders.Load() > 0 {
		runtime.Gosched()
	}

	var swept int
	for _, q := range p.queues {
	drain:
		for {
			select {
			case cmd := <-q:
				cmd.fail(ErrDispatchClosed)
				swept++
			default:
				break drain
			}
		}
	}
	if swept > 0 {
		Logger.Debugf("dbpool: failed %d commands enqueued during shutdown", swept)
	}

	for i, q := range p.queues {
		if n := len(q); n != 0 {
			Logger.Errorf("dbpool: queue %d not empty after shutdown (%d commands)", i, n)
		}
	}

	Logger.Debugf("dbpool: all workers terminated")
	close(p.done)
}

// --------------------------------------------------------------------------
// Submission
// --------------------------------------------------------------------------

// Get looks up a single key. A missing key returns db.ErrNotFound, a storage
// error is returned unchanged. The handle must be released by the caller.
func (p *Pool) Get(ctx context.Context, m db.Map, key []byte) (*db.Handle, error) {
	if m == nil || len(key) == 0 {
		return nil, ErrInvalidCommand
	}

	results, err := p.execute(ctx, newKeyCommand(ctx, m, key))
	if err != nil {
		return nil, err
	}
	r := results[0]
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Handle, nil
}

// GetBatch looks up all keys. The results have the same length and order as
// keys, every result carries either a handle or its own error (db.ErrNotFound
// or a storage error). The handles must be released by the caller.
func (p *Pool) GetBatch(ctx context.Context, m db.Map, keys [][]byte) ([]db.Result, error) {
	if m == nil || len(keys) == 0 {
		return nil, ErrInvalidCommand
	}
	for _, k := range keys {
		if len(k) == 0 {
			return nil, ErrInvalidCommand
		}
	}

	return p.execute(ctx, newGetCommand(ctx, m, keys))
}

// execute submits a get command and waits for its results
func (p *Pool) execute(ctx context.Context, cmd *command) ([]db.Result, error) {
	if err := p.submit(ctx, cmd); err != nil {
		return nil, err
	}
	defer p.metrics.duration.UpdateDuration(cmd.enqueued)

	return cmd.get.res.await(ctx, func(results []db.Result) {
		disposeResults(results)
		p.metrics.dropped.Inc()
	})
}

// Seek creates an iterator over m and positions it on a worker. Forward starts
// at the first key >= from, Reverse at the last key <= from, a nil from starts
// at the first or last key. The iterator must be closed by the caller.
func (p *Pool) Seek(ctx context.Context, m db.Map, dir db.Direction, from []byte) (db.Iterator, error) {
	if m == nil {
		return nil, ErrInvalidCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// no iterator (and no engine lease) for a closed pool, the engine may
	// already be gone
	if p.closed.Load() {
		return nil, ErrDispatchClosed
	}

	state, err := m.NewIterator()
	if err != nil {
		return nil, err
	}

	cmd := newSeekCommand(ctx, m, state, dir, from)
	if err := p.submit(ctx, cmd); err != nil {
		_ = state.Close()
		return nil, err
	}
	defer p.metrics.duration.UpdateDuration(cmd.enqueued)

	it, err := cmd.seek.res.await(ctx, func(it db.Iterator) {
		disposeIterator(it)
		p.metrics.dropped.Inc()
	})
	if err != nil {
		return nil, err
	}
	if err := it.Error(); err != nil {
		_ = it.Close()
		return nil, err
	}
	return it, nil
}

// submit routes cmd to a queue and enqueues it, blocking while the queue is
// full. On error the command was not enqueued.
func (p *Pool) submit(ctx context.Context, cmd *command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.senders.Add(1)
	defer p.senders.Add(-1)
	if p.closed.Load() {
		return ErrDispatchClosed
	}

	qi := p.selectQueue()
	q := p.queues[qi]
	if len(q) == cap(q) {
		Logger.Debugf("dbpool: queue %d is full (capacity %d), submission blocks", qi, cap(q))
		p.metrics.queueFull.Inc()
	}

	cmd.enqueued = time.Now()
	select {
	case q <- cmd:
	case <-p.closing:
		return ErrDispatchClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	p.metrics.submitted(cmd)
	if p.cfg.Diagnostics {
		p.observeDepth(int64(len(q)))
	}
	return nil
}

// selectQueue maps the core of the calling thread to a queue. Without a
// known core, or for a core outside the table, queue 0 is used.
func (p *Pool) selectQueue() int {
	if len(p.queues) == 1 {
		return 0
	}
	core, ok := p.affinity.Current()
	if !ok {
		return 0
	}
	return p.plan.QueueOf(core)
}

// observeDepth raises the high water mark of queued commands
func (p *Pool) observeDepth(depth int64) {
	for {
		cur := p.queuedMax.Load()
		if depth <= cur || p.queuedMax.CompareAndSwap(cur, depth) {
			return
		}
	}
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Stats is a snapshot of the pool state
type Stats struct {
	Workers     int                    `json:"workers" yaml:"workers"`
	Terminated  int                    `json:"terminated" yaml:"terminated"`
	Busy        int64                  `json:"busy" yaml:"busy"`
	QueueSizes  []int                  `json:"queue_sizes" yaml:"queue_sizes"`
	QueueDepths []int                  `json:"queue_depths" yaml:"queue_depths"`
	QueuedMax   int64                  `json:"queued_max" yaml:"queued_max"`
	Balance     util.DistributionStats `json:"worker_balance" yaml:"worker_balance"`
	Commands    uint64                 `json:"commands" yaml:"commands"`
	Canceled    uint64                 `json:"canceled" yaml:"canceled"`
	Dropped     uint64                 `json:"dropped" yaml:"dropped"`
	QueueFull   uint64                 `json:"queue_full" yaml:"queue_full"`
	Panics      uint64                 `json:"panics" yaml:"panics"`
	Closed      bool                   `json:"closed" yaml:"closed"`
}

// Stats returns a snapshot of the pool state. QueuedMax is only maintained
// with PoolConfig.Diagnostics.
func (p *Pool) Stats() Stats {
	s := Stats{
		Workers:     p.plan.Workers,
		Busy:        p.busy.Load(),
		QueueSizes:  append([]int(nil), p.plan.QueueSizes...),
		QueueDepths: make([]int, len(p.queues)),
		QueuedMax:   p.queuedMax.Load(),
		Commands:    p.metrics.gets.Get() + p.metrics.batches.Get() + p.metrics.seeks.Get(),
		Canceled:    p.metrics.canceled.Get(),
		Dropped:     p.metrics.dropped.Get(),
		QueueFull:   p.metrics.queueFull.Get(),
		Panics:      p.metrics.panics.Get(),
		Closed:      p.closed.Load(),
	}
	for i, q := range p.queues {
		s.QueueDepths[i] = len(q)
	}

	perQueue := make([]int, p.plan.Queues())
	for q := range perQueue {
		perQueue[q] = p.plan.WorkersOf(q)
	}
	s.Balance = util.NewDistributionStats(perQueue)

	p.mu.Lock()
	for _, w := range p.workers {
		if w.state.Load() == stateTerminated {
			s.Terminated++
		}
	}
	p.mu.Unlock()
	return s
}
