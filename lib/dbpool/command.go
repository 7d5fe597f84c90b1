package dbpool

import (
	"context"
	"github.com/ValentinKolb/dbpool/lib/db"
	"sync/atomic"
	"time"
)

// --------------------------------------------------------------------------
// One-shot reply
// --------------------------------------------------------------------------

const (
	replyPending int32 = iota
	replySent
	replyDropped
	replyAbandoned
)

// reply is a one-shot channel from a worker to the waiting caller. Exactly one
// of send, drop and abandon wins, the state makes the race explicit:
//
//	pending -> sent       worker delivered a value
//	pending -> dropped    worker gave up, err holds the reason
//	pending -> abandoned  caller stopped waiting
type reply[T any] struct {
	ctx   context.Context
	ch    chan T
	state atomic.Int32
	err   error // written before ch is closed
}

func newReply[T any](ctx context.Context) *reply[T] {
	return &reply[T]{ctx: ctx, ch: make(chan T, 1)}
}

// canceled reports whether nobody waits for the reply anymore
func (r *reply[T]) canceled() bool {
	return r.state.Load() == replyAbandoned || r.ctx.Err() != nil
}

// send delivers v. It returns false if the caller abandoned the reply, the
// worker then still owns v and must dispose of it.
func (r *reply[T]) send(v T) bool {
	if !r.state.CompareAndSwap(replyPending, replySent) {
		return false
	}
	r.ch <- v
	return true
}

// drop closes the reply without a value
func (r *reply[T]) drop(err error) {
	if !r.state.CompareAndSwap(replyPending, replyDropped) {
		return
	}
	r.err = err
	close(r.ch)
}

// abandon is called by the caller when it stops waiting. If the worker already
// sent a value it is returned and the caller must dispose of it.
func (r *reply[T]) abandon() (T, bool) {
	var zero T
	if r.state.CompareAndSwap(replyPending, replyAbandoned) {
		return zero, false
	}
	if r.state.Load() != replySent {
		return zero, false
	}
	// send pushes right after winning the state, the buffer never blocks it
	return <-r.ch, true
}

// await waits for the reply. If ctx is done first the reply is abandoned and a
// value that raced in is passed to dispose.
func (r *reply[T]) await(ctx context.Context, dispose func(T)) (T, error) {
	var zero T
	select {
	case v, ok := <-r.ch:
		if ok {
			return v, nil
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, r.err
	case <-ctx.Done():
		if v, ok := r.abandon(); ok {
			dispose(v)
		}
		return zero, ctx.Err()
	}
}

// --------------------------------------------------------------------------
// Command
// --------------------------------------------------------------------------

type kind uint8

const (
	cmdGet kind = iota
	cmdIter
)

func (k kind) String() string {
	switch k {
	case cmdGet:
		return "get"
	case cmdIter:
		return "iter"
	default:
		return "unknown"
	}
}

// command is the unit of work of the pool. It is built by the caller right
// before submission, consumed once by a worker and never reused.
type command struct {
	kind     kind
	get      *getCmd
	seek     *seekCmd
	enqueued time.Time
}

// getCmd is a point lookup (one key) or a batched lookup (several keys)
type getCmd struct {
	m      db.Map
	keys   [][]byte
	inline [1][]byte // backs keys for single key lookups
	res    *reply[[]db.Result]
}

// seekCmd initialises an iterator created by the caller
type seekCmd struct {
	m     db.Map
	state db.Iterator
	dir   db.Direction
	from  []byte
	res   *reply[db.Iterator]
}

// newKeyCommand builds a point lookup, the key is stored inline
func newKeyCommand(ctx context.Context, m db.Map, key []byte) *command {
	g := &getCmd{m: m, res: newReply[[]db.Result](ctx)}
	g.inline[0] = key
	g.keys = g.inline[:]
	return &command{kind: cmdGet, get: g}
}

// newGetCommand builds a lookup over keys, which must not be modified until
// the command is answered
func newGetCommand(ctx context.Context, m db.Map, keys [][]byte) *command {
	return &command{kind: cmdGet, get: &getCmd{
		m:    m,
		keys: keys,
		res:  newReply[[]db.Result](ctx),
	}}
}

func newSeekCommand(ctx context.Context, m db.Map, state db.Iterator, dir db.Direction, from []byte) *command {
	return &command{kind: cmdIter, seek: &seekCmd{
		m:     m,
		state: state,
		dir:   dir,
		from:  from,
		res:   newReply[db.Iterator](ctx),
	}}
}

// keyCount returns the number of keys for metrics and logs
func (c *command) keyCount() int {
	if c.kind == cmdGet {
		return len(c.get.keys)
	}
	return 0
}

// fail drops the reply with err. Only the worker (or the sweep after all
// workers exited) calls fail, so an iterator that was not sent is still owned
// by the pool and is closed here.
func (c *command) fail(err error) {
	switch c.kind {
	case cmdGet:
		c.get.res.drop(err)
	case cmdIter:
		if c.seek.res.state.Load() != replySent {
			_ = c.seek.state.Close()
		}
		c.seek.res.drop(err)
	}
}

// disposeResults releases the handles of an undelivered batch
func disposeResults(results []db.Result) {
	db.ReleaseAll(results)
}

// disposeIterator closes an undelivered iterator
func disposeIterator(it db.Iterator) {
	_ = it.Close()
}
