//go:build linux

package affinity

import (
	"fmt"
	"golang.org/x/sys/unix"
	"unsafe"
)

// maxCores bounds the core ids scanned in a CPU set (size of unix.CPUSet)
const maxCores = len(unix.CPUSet{}) * int(unsafe.Sizeof(unix.CPUSet{}[0])) * 8

type linuxAffinity struct {
	cores []int
}

func newSystem() Affinity {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return &linuxAffinity{}
	}

	cores := make([]int, 0, set.Count())
	for id := 0; id < maxCores; id++ {
		if set.IsSet(id) {
			cores = append(cores, id)
		}
	}
	return &linuxAffinity{cores: cores}
}

func (a *linuxAffinity) Cores() []int {
	out := make([]int, len(a.cores))
	copy(out, a.cores)
	return out
}

// Current uses getcpu(2) directly, the result is only a hint since the thread
// may migrate right after the call.
func (a *linuxAffinity) Current() (int, bool) {
	var cpu uint32
	_, _, errno := unix.RawSyscall(unix.SYS_GETCPU, uintptr(unsafe.Pointer(&cpu)), 0, 0)
	if errno != 0 {
		return 0, false
	}
	return int(cpu), true
}

// Pin sets the affinity mask of the calling thread (tid 0) to the given cores
func (a *linuxAffinity) Pin(cores []int) error {
	if len(cores) == 0 {
		return nil
	}

	var set unix.CPUSet
	set.Zero()
	for _, id := range cores {
		if id < 0 || id >= maxCores {
			return fmt.Errorf("affinity: core %d out of range", id)
		}
		set.Set(id)
	}

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity %v: %w", cores, err)
	}
	return nil
}
