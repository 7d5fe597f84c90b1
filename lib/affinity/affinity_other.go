//go:build !linux

package affinity

import "runtime"

// newSystem reports runtime.NumCPU cores without current core information,
// pinning is not supported on this platform.
func newSystem() Affinity {
	return None(runtime.NumCPU())
}
