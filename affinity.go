package qfqrl

import (
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCPU locks the calling goroutine to its current OS thread and
// pins that thread to cpu, per spec §5's "dedicated dispatcher thread
// pinned to a configured CPU". A negative cpu disables pinning (used in
// tests, and off-Linux where SchedSetaffinity is unavailable). It
// returns an unpin function the caller defers.
//
// Grounded on the CPU-affinity helper pattern in the rate-limiting
// worker pool of the pack (setCPUAffinity): zero a unix.CPUSet, set the
// one target bit, call unix.SchedSetaffinity(0, ...) for the calling
// thread, and log rather than fail if the platform refuses.
func pinToCPU(cpu int, logger *slog.Logger) func() {
	runtime.LockOSThread()
	if cpu < 0 {
		return runtime.UnlockOSThread
	}

	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		logger.Warn("dispatcher failed to pin to CPU", "cpu", cpu, "err", err)
	}

	return runtime.UnlockOSThread
}

// yieldDispatcher cooperatively yields the dispatcher's OS thread,
// mirroring the kernel spinner's periodic schedule() call (spec §5).
func yieldDispatcher() {
	runtime.Gosched()
}
