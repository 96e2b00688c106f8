package qfqrl

import "time"

// updateSystemTime implements spec §4.3's virtual-time advancement. V is
// advanced based on wall-clock elapsed time, not per packet: every
// dequeued packet instead accumulates into vDiffSum/tDiffSum (see
// chargeDequeue in dispatcher.go), and this function lazily applies that
// backlog whenever it's called. Its only caller is the top of
// dequeueOne; the activation drain path does not call it.
func (s *Scheduler) updateSystemTime(now time.Time) {
	oldV := s.V
	elapsed := now.Sub(s.vLastInit)
	if elapsed <= 0 {
		return
	}
	t := uint64(elapsed)

	var vDiff uint64
	switch {
	case s.tDiffSum > 0 && t >= s.tDiffSum:
		vDiff = s.vDiffSum
		t -= s.tDiffSum
		s.vDiffSum = 0
		s.tDiffSum = 0
		if s.bitmaps[ER] == 0 {
			vDiff += s.drainFor(t)
		}
	case s.tDiffSum > 0:
		vDiff = s.vDiffSum * t / s.tDiffSum
		s.vDiffSum -= vDiff
		s.tDiffSum -= t
	case s.bitmaps[ER] == 0:
		vDiff = s.drainFor(t)
	}

	s.V += vDiff
	s.vLastInit = now
	s.updateEligible(oldV)
}

// drainFor is the amount of virtual time to credit for t nanoseconds of
// link-idle time, at the drain rate scaled down when the active weight
// sum exceeds the nominal link speed.
func (s *Scheduler) drainFor(t uint64) uint64 {
	denom := uint64(LinkSpeed)
	if s.wsumActive > denom {
		denom = s.wsumActive
	}
	return DrainRate * t / denom
}

// chargeDequeue records the virtual-time and wall-clock cost of having
// just dequeued a packet of length L, to be applied the next time
// updateSystemTime runs (spec §4.6 step 5).
func (s *Scheduler) chargeDequeue(length int) {
	denom := uint64(LinkSpeed)
	if s.wsumActive > denom {
		denom = s.wsumActive
	}
	s.vDiffSum += uint64(length) * OneFP / denom
	s.tDiffSum += uint64(length) * nsecPerSec / (125000 * LinkSpeed)
}

// updateEligible promotes ineligible groups to eligible whenever any of
// IR or IB is non-empty, per spec §4.3.
func (s *Scheduler) updateEligible(oldV uint64) {
	if s.bitmaps[IR]|s.bitmaps[IB] != 0 {
		s.makeEligible(oldV)
	}
}

// makeEligible implements spec §4.3's eligibility promotion: whenever V
// crosses into a new "v-slot" (a coarser unit than any group's own slot
// grid), every group whose index bit falls within the newly-crossed
// range moves IR->ER and IB->EB.
func (s *Scheduler) makeEligible(oldV uint64) {
	vslot := s.V >> MinSlotShift
	oldVslot := oldV >> MinSlotShift
	if vslot == oldVslot {
		return
	}

	h := highestSet(vslot ^ oldVslot)
	var mask uint32
	if h >= 31 {
		mask = ^uint32(0)
	} else {
		mask = (uint32(1) << uint(h+1)) - 1
	}
	s.bitmaps.moveGroups(mask, IR, ER)
	s.bitmaps.moveGroups(mask, IB, EB)
}

// calcState implements spec §4.3's group state classification for a
// group whose S and F have just been (re)assigned.
func (s *Scheduler) calcState(g *group) groupState {
	state := groupState(0)
	if gt(g.S, s.V) {
		state = IR // bit 0 set: not eligible
	}

	mask := maskFrom(s.bitmaps[ER], g.index)
	if mask != 0 {
		next := s.groups[mustLowest(mask)]
		if gt(g.F, next.F) {
			state |= EB // bit 1 set: blocked
		}
	}
	return state
}

// unblockGroups implements spec §4.3's unblock cascade: after a served
// group's F moves forward, every group that was only blocked because of
// the old F may now be unblockable.
//
// Per the Open Question resolution in spec §9/DESIGN.md, this always
// runs after a group's F advances — the kernel's "goto skip_unblock"
// shortcut (skip this when the group's rounded S didn't change) is not
// reproduced.
func (s *Scheduler) unblockGroups(index int, oldF uint64) {
	mask := maskFrom(s.bitmaps[ER], index+1)
	if mask != 0 {
		next := s.groups[mustLowest(mask)]
		if !gt(next.F, oldF) {
			return
		}
	}

	low := (uint32(1) << uint(index)) - 1
	s.bitmaps.moveGroups(low, EB, ER)
	s.bitmaps.moveGroups(low, IB, IR)
}
