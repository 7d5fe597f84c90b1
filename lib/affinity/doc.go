// Package affinity exposes the small part of the CPU topology the dispatch pool
// needs: which cores are available, which core the calling thread runs on and
// how to pin a worker thread to a group of cores.
//
// On Linux the implementation uses sched_getaffinity(2), getcpu(2) and
// sched_setaffinity(2) through golang.org/x/sys/unix. Other platforms fall back
// to None, which reports runtime.NumCPU cores and never knows the current core.
// Callers treat every failure as "topology unknown" and route work to the
// default queue instead.
package affinity
