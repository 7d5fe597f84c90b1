package dbpool

import "errors"

var (
	// ErrDispatchClosed is returned for submissions after (or during) Close
	ErrDispatchClosed = errors.New("dbpool: dispatch closed")

	// ErrDispatchLost is returned if a command was dropped without a result,
	// e.g. because the storage call panicked
	ErrDispatchLost = errors.New("dbpool: dispatch lost")

	// ErrInvalidCommand is returned before enqueue for a nil map, an empty key
	// list or an empty key
	ErrInvalidCommand = errors.New("dbpool: invalid command")

	// errCanceled is the drop reason for commands abandoned before execution.
	// The caller has already returned its context error, so it is never seen.
	errCanceled = errors.New("dbpool: command canceled")
)
