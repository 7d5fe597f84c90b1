package dbpool

import (
	"github.com/ValentinKolb/dbpool/lib/common"
)

// --------------------------------------------------------------------------
// Limits
// --------------------------------------------------------------------------

// Limit is an inclusive range a configured value is clamped to
type Limit struct {
	Min, Max int
}

func (l Limit) clamp(v int) int {
	return max(l.Min, min(l.Max, v))
}

var (
	// WorkerLimit bounds the total number of worker threads
	WorkerLimit = Limit{Min: 1, Max: 1024}
	// QueueLimit bounds the capacity of a single queue
	QueueLimit = Limit{Min: 1, Max: 2048}
)

// --------------------------------------------------------------------------
// Plan
// --------------------------------------------------------------------------

// Plan is the output of the topology planner. It is immutable once built.
type Plan struct {
	// Workers is the total number of worker threads
	Workers int `json:"workers" yaml:"workers"`
	// QueueSizes holds the capacity of every queue, one entry per queue
	QueueSizes []int `json:"queue_sizes" yaml:"queue_sizes"`
	// Topology maps a core id to a queue. Ids outside the table use queue 0.
	Topology []int `json:"topology" yaml:"topology"`
	// Cores are the available core ids the plan was built for
	Cores []int `json:"cores" yaml:"cores"`
}

// Configure computes worker count, queue capacities and the core to queue
// table for the given available cores. It never fails: every input is clamped.
//
//   - workers: cfg.Workers, or len(cores) * cfg.WorkersPerCore, within WorkerLimit
//   - queues: 1 without affinity, else cfg.Queues or one per core, at most
//     min(len(cores), workers) so every queue has at least one worker
//   - worker w serves queue w % queues
//   - capacity: cfg.QueueSize, or workers of the queue * cfg.QueueMultiplier,
//     within QueueLimit
//   - the i-th of n available cores is assigned queue i*queues/n, which gives
//     contiguous groups whose sizes differ by at most one
func Configure(cores []int, cfg common.PoolConfig) Plan {
	n := len(cores)

	perCore := cfg.WorkersPerCore
	if perCore <= 0 {
		perCore = common.DefaultWorkersPerCore
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = max(1, n) * perCore
	}
	workers = WorkerLimit.clamp(workers)

	queues := 1
	if cfg.Affinity && n > 0 {
		queues = cfg.Queues
		if queues <= 0 {
			queues = n
		}
		queues = max(1, min(queues, n, workers))
	}

	multiplier := cfg.QueueMultiplier
	if multiplier <= 0 {
		multiplier = common.DefaultQueueMultiplier
	}
	sizes := make([]int, queues)
	for q := range sizes {
		size := cfg.QueueSize
		if size <= 0 {
			size = workersInGroup(workers, queues, q) * multiplier
		}
		sizes[q] = QueueLimit.clamp(size)
	}

	var table []int
	if n > 0 {
		maxID := 0
		for _, id := range cores {
			maxID = max(maxID, id)
		}
		table = make([]int, maxID+1)
		for i, id := range cores {
			if id >= 0 {
				table[id] = i * queues / n
			}
		}
	}

	return Plan{
		Workers:    workers,
		QueueSizes: sizes,
		Topology:   table,
		Cores:      append([]int(nil), cores...),
	}
}

// workersInGroup returns the number of workers w in [0, workers) with w % queues == q
func workersInGroup(workers, queues, q int) int {
	n := workers / queues
	if q < workers%queues {
		n++
	}
	return n
}

// Queues returns the number of queues
func (p Plan) Queues() int {
	return len(p.QueueSizes)
}

// QueueOf returns the queue for a core id, falling back to queue 0
func (p Plan) QueueOf(core int) int {
	if core < 0 || core >= len(p.Topology) {
		return 0
	}
	q := p.Topology[core]
	if q < 0 || q >= p.Queues() {
		return 0
	}
	return q
}

// GroupOf returns the queue served by a worker
func (p Plan) GroupOf(worker int) int {
	return worker % p.Queues()
}

// CoresOf returns the available cores assigned to a queue
func (p Plan) CoresOf(queue int) []int {
	var out []int
	for _, id := range p.Cores {
		if id >= 0 && p.QueueOf(id) == queue {
			out = append(out, id)
		}
	}
	return out
}

// WorkersOf returns the number of workers serving a queue
func (p Plan) WorkersOf(queue int) int {
	return workersInGroup(p.Workers, p.Queues(), queue)
}
