//go:generate mockgen -destination=mocks/mock_affinity.go -package=mocks github.com/ValentinKolb/dbpool/lib/affinity Affinity

package affinity

// Affinity is the CPU topology capability used by the dispatch pool.
//
// Implementations must be safe for concurrent use. Current is called on the
// submission hot path for every command and should not allocate.
type Affinity interface {
	// Cores returns the ids of the cores available to this process in
	// ascending order. An empty result means the topology is unknown.
	Cores() []int

	// Current returns the id of the core the calling thread runs on. The
	// boolean is false if the core cannot be determined.
	Current() (core int, ok bool)

	// Pin restricts the calling OS thread to the given cores. The caller must
	// have locked its goroutine to the thread with runtime.LockOSThread.
	Pin(cores []int) error
}

// System returns the Affinity implementation of the running platform
func System() Affinity {
	return newSystem()
}

// --------------------------------------------------------------------------
// None (topology unknown)
// --------------------------------------------------------------------------

type none struct {
	cores []int
}

// None returns an Affinity that reports n cores (0..n-1), never knows the
// current core and pins nothing. It is used when pinning is disabled and by
// tests that need a fixed topology.
func None(n int) Affinity {
	if n < 0 {
		n = 0
	}
	cores := make([]int, n)
	for i := range cores {
		cores[i] = i
	}
	return &none{cores: cores}
}

func (n *none) Cores() []int {
	out := make([]int, len(n.cores))
	copy(out, n.cores)
	return out
}

func (n *none) Current() (int, bool) { return 0, false }

func (n *none) Pin([]int) error { return nil }
