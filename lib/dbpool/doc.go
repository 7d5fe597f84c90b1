// Package dbpool implements the dispatch pool: a fixed set of worker threads
// that execute blocking storage reads (point lookups, batched lookups and
// iterator seeks) on behalf of many concurrent callers.
//
// Storage reads may block on disk I/O. Running them on the caller's goroutine
// would tie up an OS thread of the Go scheduler for every read in flight. The
// pool instead moves them to a bounded number of dedicated threads and hands
// the results back through one-shot reply channels.
//
// Key Components:
//
//   - Topology Planner (Configure): Computes the number of workers, the number
//     and capacity of the queues and a table mapping every core to a queue.
//     All inputs are clamped (WorkerLimit, QueueLimit), planning never fails.
//
//   - Queues: One bounded channel per core group. The number of queues and
//     their capacities never change after New.
//
//   - Worker: A goroutine locked to its OS thread and, with more than one
//     queue, pinned to the cores of its group. It receives commands from its
//     queue and executes them until the pool is closed and the queue drained.
//
//   - Command: A get (one or more keys) or a seek (iterator initialisation)
//     together with the target map and a one-shot reply.
//
//   - Pool: The facade. Get, GetBatch and Seek build a command, pick the queue
//     of the caller's current core (queue 0 if unknown) and wait for the reply.
//
// Backpressure:
//
//	A full queue blocks the submitting goroutine until a worker frees a slot
//	or the caller's context is done. Commands are never dropped because a
//	queue is full. Every observed full queue is counted in
//	dbpool_queue_full_total and logged at debug level.
//
// Cancellation:
//
//	If the caller's context is done before a worker picks up the command, the
//	worker skips the storage call. If the context is done while the storage
//	call runs, the call completes and its result is released by whichever side
//	sees it last. There is no cancellation in the middle of a storage call.
//
// Lifetime of results:
//
//	Handles and iterators returned by the pool may reference memory owned by
//	the storage engine. The engine must therefore only be closed after
//	Shutdown returned: at that point every worker exited and every command is
//	answered. Package store implements this ordering.
//
// Failure handling:
//
//	A panic in a storage call is recovered by the worker. The command fails
//	with ErrDispatchLost, the panic is logged and counted and the worker keeps
//	serving its queue, so a single bad command never strands the commands
//	queued behind it.
package dbpool
