package dbpool

import (
	"fmt"
	"github.com/ValentinKolb/dbpool/lib/db"
	"runtime"
	"runtime/debug"
	"sync/atomic"
)

// worker states
const (
	stateInit int32 = iota
	stateReady
	stateBusy
	stateTerminated
)

// worker runs on its own locked OS thread and executes the commands of one
// queue. Several workers may serve the same queue.
type worker struct {
	id    int
	group int
	cores []int // cores to pin to, empty = no pinning
	queue chan *command
	pool  *Pool
	state atomic.Int32
}

// run is the worker loop: receive, execute, repeat until the pool closes.
// On close the queue is drained before the worker exits.
func (w *worker) run() {
	defer w.pool.wg.Done()
	defer w.state.Store(stateTerminated)

	// the thread is never unlocked, it terminates together with the worker
	// so a pinned affinity mask never leaks to other goroutines
	runtime.LockOSThread()

	if len(w.cores) > 0 {
		if err := w.pool.affinity.Pin(w.cores); err != nil {
			Logger.Warningf("dbpool: worker %d: pinning to cores %v failed: %v", w.id, w.cores, err)
		}
	}

	w.state.Store(stateReady)
	Logger.Debugf("dbpool: worker %d ready (queue %d, cores %v)", w.id, w.group, w.cores)

	for {
		select {
		case cmd := <-w.queue:
			w.handle(cmd)
		case <-w.pool.closing:
			w.drain()
			Logger.Debugf("dbpool: worker %d terminated", w.id)
			return
		}
	}
}

// drain executes the commands still queued without blocking
func (w *worker) drain() {
	for {
		select {
		case cmd := <-w.queue:
			w.handle(cmd)
		default:
			return
		}
	}
}

// handle executes one command. A panic in the storage call fails the command
// with ErrDispatchLost, the worker keeps running.
func (w *worker) handle(cmd *command) {
	w.state.Store(stateBusy)
	w.pool.busy.Add(1)
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("dbpool: worker %d: panic in %s command: %v\n%s", w.id, cmd.kind, r, debug.Stack())
			w.pool.metrics.panics.Inc()
			cmd.fail(ErrDispatchLost)
		}
		w.pool.busy.Add(-1)
		w.state.Store(stateReady)
	}()

	switch cmd.kind {
	case cmdGet:
		w.get(cmd.get)
	case cmdIter:
		w.seek(cmd.seek)
	default:
		panic(fmt.Sprintf("unknown command kind %d", cmd.kind))
	}
}

// get executes a point or batch lookup
func (w *worker) get(c *getCmd) {
	if c.res.canceled() {
		w.pool.metrics.canceled.Inc()
		c.res.drop(errCanceled)
		return
	}

	var results []db.Result
	if len(c.keys) == 1 {
		h, err := c.m.Get(c.keys[0])
		results = []db.Result{{Handle: h, Err: err}}
	} else {
		results = c.m.GetBatch(c.keys)
		if len(results) != len(c.keys) {
			db.ReleaseAll(results)
			panic(fmt.Sprintf("map %q returned %d results for %d keys", c.m.Name(), len(results), len(c.keys)))
		}
	}

	if !c.res.send(results) {
		db.ReleaseAll(results)
		w.pool.metrics.dropped.Inc()
	}
}

// seek positions the iterator of the command
func (w *worker) seek(c *seekCmd) {
	if c.res.canceled() {
		w.pool.metrics.canceled.Inc()
		_ = c.state.Close()
		c.res.drop(errCanceled)
		return
	}

	c.state.Seek(c.dir, c.from)

	if !c.res.send(c.state) {
		_ = c.state.Close()
		w.pool.metrics.dropped.Inc()
	}
}
