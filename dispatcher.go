package qfqrl

import "time"

const (
	// yieldEveryIterations mirrors the kernel spinner's "call schedule()
	// every 100k iterations" to avoid starving RCU grace periods —
	// here, to avoid starving the Go scheduler's own housekeeping.
	yieldEveryIterations = 100_000

	// idleYieldEveryIterations is the tighter spin bound used while the
	// scheduler is fully idle (no backlog, no pending activations).
	idleYieldEveryIterations = 10_000
)

// runDispatcher is the single dedicated dispatcher goroutine: it pins
// itself to the configured CPU, then busy-loops draining activations,
// dequeuing, and transmitting, until Stop() closes closeSignal.
//
// Grounded on the teacher's simlink.go backgroundUplink/backgroundDownlink
// (closed-channel-checked loop, sync.WaitGroup lifecycle) and on the
// kernel's qfq_spinner for the algorithmic shape.
func (s *Scheduler) runDispatcher() {
	defer s.wg.Done()

	unpin := pinToCPU(*s.cfg.SpinCPU, s.cfg.Logger)
	defer unpin()

	iterations := 0
	idleSpins := 0
	for {
		select {
		case <-s.closeSignal:
			return
		default:
		}

		s.drainCommands()
		s.drainActivations()

		pkt, class, ok := s.dequeueOne()
		if ok {
			s.cfg.Transmitter.Transmit(pkt)
			class.stats.recordSent(pkt.Len, time.Now())
			idleSpins = 0
		} else if s.backlog == 0 && s.workBitmap.empty() {
			idleSpins++
			if idleSpins >= idleYieldEveryIterations {
				idleSpins = 0
				yieldDispatcher()
			}
			continue
		}

		iterations++
		if iterations >= yieldEveryIterations {
			iterations = 0
			yieldDispatcher()
		}
	}
}

// dequeueOne implements spec §4.6's dequeue() exactly. It is the only
// place packets leave the scheduler; Scheduler.Dequeue (the host-facing
// hook) never calls this directly.
func (s *Scheduler) dequeueOne() (Packet, *Class, bool) {
	s.updateSystemTime(time.Now())

	if s.bitmaps[ER] == 0 {
		return Packet{}, nil, false
	}

	gi, _ := lowestSet(s.bitmaps[ER])
	g := s.groups[gi]
	c := g.head()
	if c == nil {
		// Should not happen: a group only sets its ER/IR/EB/IB bit
		// while it holds at least one class.
		s.bitmaps.clear(ER, gi)
		return Packet{}, nil, false
	}

	pkt, ok := c.queue.Dequeue()
	if !ok {
		return Packet{}, nil, false
	}
	nextLen := c.queue.PeekLen()
	clQlen := c.queue.Len()

	s.chargeDequeue(pkt.Len)
	c.stats.recordDequeue(pkt.Len)

	oldV := s.V
	oldF := g.F

	needsGroupUpdate := s.updateClass(g, c, nextLen)
	if clQlen == 0 || c.disabled() {
		// Mirror updateClass's own eviction test exactly: it calls
		// g.removeFront() whenever nextLen == 0 *or* the class was
		// disabled mid-service, and either way the class no longer holds
		// a slot afterward, so wsumActive must drop with it. Gating this
		// on clQlen == 0 alone missed the disabled-with-packets-still-
		// queued case (spec boundary case S4): that class is evicted here
		// but never dequeued again, so its weight would otherwise stay
		// counted in wsumActive forever. Charge back exactly what was
		// credited at activation time, not OneFP/c.invW: c.invW may
		// already be the disabled sentinel.
		s.wsumActive -= c.activeWeight
		s.backlog--
	}
	if needsGroupUpdate {
		s.rescanGroupAfterDequeue(g, oldF)
	}

	s.updateEligible(oldV)
	return pkt, c, true
}

// updateClass implements spec §4.6 step 6 (qfq_update_class): it moves
// the served class's S to its old F, and either removes it (inner queue
// now empty, or weight was zeroed mid-service) or recomputes its F and
// reinserts it, possibly in the same slot. It returns whether the
// group's bitmap state needs to be recomputed as a result.
func (s *Scheduler) updateClass(g *group, c *Class, nextLen int) bool {
	c.S = c.F

	if nextLen == 0 {
		g.removeFront()
		return true
	}
	if c.disabled() {
		g.removeFront()
		return true
	}

	c.F = c.S + uint64(nextLen)*c.invW
	roundedS := roundDown(c.S, g.shift)
	if roundedS == g.S {
		return false
	}

	g.removeFront()
	s.insertIntoGroup(g, c, roundedS)
	return true
}

// rescanGroupAfterDequeue implements spec §4.6 step 7's continuation:
// after updateClass reports the group needs updating, rescan it for a
// new head, recompute its bitmap bit (or clear it if now empty), and run
// the unblock cascade against the group's pre-update F.
func (s *Scheduler) rescanGroupAfterDequeue(g *group, oldF uint64) {
	head := g.scan()
	if head == nil {
		s.bitmaps.clear(ER, g.index)
	} else {
		roundedS := roundDown(head.S, g.shift)
		if g.S != roundedS {
			g.S = roundedS
			g.F = roundedS + (2 << g.shift)
			s.bitmaps.clear(ER, g.index)
			state := s.calcState(g)
			s.bitmaps.set(state, g.index)
		}
	}

	s.unblockGroups(g.index, oldF)
}
