package dbpool

import (
	"github.com/ValentinKolb/dbpool/lib/common"
	"github.com/stretchr/testify/assert"
	"testing"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name     string
		cores    []int
		cfg      common.PoolConfig
		workers  int
		sizes    []int
		topology []int
	}{
		{
			name:     "Defaults",
			cores:    seq(4),
			cfg:      common.DefaultPoolConfig(),
			workers:  8,
			sizes:    []int{8, 8, 8, 8},
			topology: []int{0, 1, 2, 3},
		},
		{
			name:     "NoAffinity",
			cores:    seq(4),
			cfg:      common.PoolConfig{},
			workers:  8,
			sizes:    []int{32},
			topology: []int{0, 0, 0, 0},
		},
		{
			name:     "FewerWorkersThanCores",
			cores:    seq(4),
			cfg:      common.PoolConfig{Workers: 3, Affinity: true},
			workers:  3,
			sizes:    []int{4, 4, 4},
			topology: []int{0, 0, 1, 2},
		},
		{
			name:     "ExplicitQueues",
			cores:    seq(4),
			cfg:      common.PoolConfig{Queues: 2, Affinity: true},
			workers:  8,
			sizes:    []int{16, 16},
			topology: []int{0, 0, 1, 1},
		},
		{
			name:     "UnevenGroups",
			cores:    seq(2),
			cfg:      common.PoolConfig{Workers: 5, Affinity: true},
			workers:  5,
			sizes:    []int{12, 8},
			topology: []int{0, 1},
		},
		{
			name:     "TooManyQueues",
			cores:    seq(2),
			cfg:      common.PoolConfig{Queues: 16, Affinity: true},
			workers:  4,
			sizes:    []int{8, 8},
			topology: []int{0, 1},
		},
		{
			name:     "SparseCoreIDs",
			cores:    []int{0, 2, 5, 7},
			cfg:      common.PoolConfig{Workers: 4, Queues: 2, Affinity: true},
			workers:  4,
			sizes:    []int{8, 8},
			topology: []int{0, 0, 0, 0, 0, 1, 0, 1},
		},
		{
			name:     "WorkerLimit",
			cores:    seq(2),
			cfg:      common.PoolConfig{Workers: 5000},
			workers:  1024,
			sizes:    []int{2048},
			topology: []int{0, 0},
		},
		{
			name:     "QueueLimit",
			cores:    seq(1),
			cfg:      common.PoolConfig{Workers: 1, QueueSize: 100000},
			workers:  1,
			sizes:    []int{2048},
			topology: []int{0},
		},
		{
			name:     "ExplicitQueueSize",
			cores:    seq(2),
			cfg:      common.PoolConfig{Workers: 2, QueueSize: 4, Affinity: true},
			workers:  2,
			sizes:    []int{4, 4},
			topology: []int{0, 1},
		},
		{
			name:     "NoCores",
			cores:    nil,
			cfg:      common.PoolConfig{Affinity: true},
			workers:  2,
			sizes:    []int{8},
			topology: nil,
		},
		{
			name:     "NegativeInputs",
			cores:    seq(1),
			cfg:      common.PoolConfig{Workers: -3, WorkersPerCore: -1, Queues: -1, QueueSize: -5, QueueMultiplier: -2},
			workers:  2,
			sizes:    []int{8},
			topology: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Configure(tt.cores, tt.cfg)
			assert.Equal(t, tt.workers, plan.Workers)
			assert.Equal(t, tt.sizes, plan.QueueSizes)
			assert.Equal(t, tt.topology, plan.Topology)
			assert.Equal(t, len(tt.sizes), plan.Queues())
		})
	}
}

func TestConfigureBalanced(t *testing.T) {
	for n := 1; n <= 64; n++ {
		for queues := 1; queues <= n; queues++ {
			plan := Configure(seq(n), common.PoolConfig{Workers: n, Queues: queues, Affinity: true})

			// every core in exactly one group, group sizes differ by at most one
			counts := make([]int, plan.Queues())
			for _, q := range plan.Topology {
				counts[q]++
			}
			lo, hi := n, 0
			for _, c := range counts {
				lo, hi = min(lo, c), max(hi, c)
			}
			if hi-lo > 1 || lo == 0 {
				t.Fatalf("n=%d queues=%d: unbalanced groups %v", n, queues, counts)
			}

			// every queue has at least one worker
			for q := 0; q < plan.Queues(); q++ {
				if plan.WorkersOf(q) == 0 {
					t.Fatalf("n=%d queues=%d: queue %d without workers", n, queues, q)
				}
			}
		}
	}
}

func TestPlanLookups(t *testing.T) {
	plan := Configure([]int{0, 2, 5, 7}, common.PoolConfig{Workers: 4, Queues: 2, Affinity: true})

	assert.Equal(t, 0, plan.QueueOf(2))
	assert.Equal(t, 1, plan.QueueOf(5))
	assert.Equal(t, 0, plan.QueueOf(-1), "negative core falls back to 0")
	assert.Equal(t, 0, plan.QueueOf(8), "core outside the table falls back to 0")

	assert.Equal(t, []int{0, 2}, plan.CoresOf(0))
	assert.Equal(t, []int{5, 7}, plan.CoresOf(1))

	assert.Equal(t, 0, plan.GroupOf(0))
	assert.Equal(t, 1, plan.GroupOf(1))
	assert.Equal(t, 0, plan.GroupOf(2))
	assert.Equal(t, 2, plan.WorkersOf(1))
}
