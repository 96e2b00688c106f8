package qfqrl

import (
	"sync"
	"time"
)

// ClassStats accumulates the per-class counters spec §6 requires for
// statistics export: basic byte/packet counters, a smoothed rate
// estimator, and the inner queue length (read directly off the class,
// not duplicated here).
type ClassStats struct {
	mu sync.Mutex

	Packets uint64
	Bytes   uint64
	Drops   uint64

	// rateEWMA is bytes/sec, smoothed with a fixed decay on every send,
	// following the same exponential-moving-average shape the teacher's
	// CoDel control law uses for its own smoothed estimates (codel.go).
	rateEWMA   float64
	lastSend   time.Time
	lastDeqLen int
}

const rateEWMADecay = 0.25

// recordDequeue is called once per packet as it leaves the class's inner
// queue, before transmission; it only stores the length in lastDeqLen.
// recordSent takes the length as its own argument and does not read
// lastDeqLen.
func (s *ClassStats) recordDequeue(length int) {
	s.mu.Lock()
	s.lastDeqLen = length
	s.mu.Unlock()
}

// recordSent is called once the packet has actually been handed to the
// Transmitter, updating byte/packet counters and the smoothed rate.
func (s *ClassStats) recordSent(length int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Packets++
	s.Bytes += uint64(length)

	if s.lastSend.IsZero() {
		s.lastSend = now
		return
	}
	elapsed := now.Sub(s.lastSend).Seconds()
	s.lastSend = now
	if elapsed <= 0 {
		return
	}
	instant := float64(length) / elapsed
	s.rateEWMA = rateEWMADecay*instant + (1-rateEWMADecay)*s.rateEWMA
}

func (s *ClassStats) recordDrop() {
	s.mu.Lock()
	s.Drops++
	s.mu.Unlock()
}

// Snapshot is a point-in-time copy of ClassStats suitable for a host's
// stats-copy callback.
type Snapshot struct {
	Packets  uint64
	Bytes    uint64
	Drops    uint64
	RateEWMA float64
	QueueLen int
}

func (s *ClassStats) snapshot(queueLen int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Packets:  s.Packets,
		Bytes:    s.Bytes,
		Drops:    s.Drops,
		RateEWMA: s.rateEWMA,
		QueueLen: queueLen,
	}
}

// Stats returns a point-in-time snapshot of class id's counters, or
// false if no such class exists.
func (s *Scheduler) Stats(id ClassID) (Snapshot, bool) {
	s.treeMu.Lock()
	c, ok := s.classes[id]
	s.treeMu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return c.stats.snapshot(c.queue.Len()), true
}

// DropOne implements spec §7's memory-pressure drop sweep (qfq_drop): it
// asks every backlogged class's inner queue, walking groups lowest-index
// first, to drop one packet, stopping at the first class that actually had
// one to drop. If that drop empties the class's queue, the class is
// deactivated exactly as UpdateClass/DeleteClass would — see
// classlifecycle.go's applyDropOne, which this routes to through the
// dispatcher's command queue since both the traversal and the deactivation
// it may trigger touch groups, bitmaps, and wsumActive (spec §5).
func (s *Scheduler) DropOne() (ClassID, bool) {
	cmd := &classCommand{kind: cmdDrop}
	s.submit(cmd)
	return cmd.dropID, cmd.dropOK
}
