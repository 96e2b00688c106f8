package qfqrl

// Class lifecycle operations (spec §4.4). Every mutation that touches
// groups, bitmaps, S/F, or wsumActive is dispatcher-exclusive per spec
// §5, so CreateClass/UpdateClass/DeleteClass are routed through the same
// command queue the dispatcher goroutine drains every loop iteration —
// unless the scheduler hasn't been started yet, in which case there is
// no dispatcher to race with and the caller's goroutine may apply the
// change directly.

type commandKind int

const (
	cmdCreate commandKind = iota
	cmdUpdate
	cmdDelete
	cmdDrop
)

type classCommand struct {
	kind   commandKind
	id     ClassID
	weight uint32
	lmax   uint64
	queue  InnerQueue
	resp   chan error

	// dropID/dropOK carry cmdDrop's result back to the submitting
	// goroutine. They're written by the dispatcher (or the caller itself,
	// pre-Start) before resp is signaled, and read by the caller only
	// after receiving on resp, so the channel handoff is what makes the
	// write visible — no separate lock needed.
	dropID ClassID
	dropOK bool
}

func (s *Scheduler) submit(cmd *classCommand) error {
	if !s.started {
		return s.apply(cmd)
	}
	cmd.resp = make(chan error, 1)
	s.cmdCh() <- cmd
	return <-cmd.resp
}

// drainCommands is called only by the dispatcher, once per loop
// iteration alongside drainActivations.
func (s *Scheduler) drainCommands() {
	ch := s.cmdCh()
	for {
		select {
		case cmd := <-ch:
			cmd.resp <- s.apply(cmd)
		default:
			return
		}
	}
}

func (s *Scheduler) apply(cmd *classCommand) error {
	switch cmd.kind {
	case cmdCreate:
		return s.applyCreate(cmd.id, cmd.weight, cmd.lmax, cmd.queue)
	case cmdUpdate:
		return s.applyUpdate(cmd.id, cmd.weight, cmd.lmax)
	case cmdDelete:
		return s.applyDelete(cmd.id)
	case cmdDrop:
		cmd.dropID, cmd.dropOK = s.applyDropOne()
		return nil
	default:
		return nil
	}
}

// CreateClass admits a new class with the given weight and lmax. Fails
// with ErrInvalidWeight, ErrInvalidLmax, ErrWsumExceeded, or
// ErrClassExists without mutating any state.
func (s *Scheduler) CreateClass(id ClassID, weight uint32, lmax uint64, queue InnerQueue) error {
	if queue == nil {
		queue = newFIFOQueue()
	}
	return s.submit(&classCommand{kind: cmdCreate, id: id, weight: weight, lmax: lmax, queue: queue})
}

// UpdateClass changes a class's weight and/or lmax, per spec §4.4's
// policy: if the class is backlogged, active, and its group changes, it
// is deactivated, relocated, and (if the new weight is non-zero)
// reactivated with its current head packet length. A weight->0
// transition on a class holding a slot leaves it there until its next
// dequeue, which evicts it; a 0->weight transition alone reactivates.
func (s *Scheduler) UpdateClass(id ClassID, weight uint32, lmax uint64) error {
	return s.submit(&classCommand{kind: cmdUpdate, id: id, weight: weight, lmax: lmax})
}

// DeleteClass removes a class. Fails with ErrClassBusy while
// filterCnt > 0, or ErrClassNotFound.
func (s *Scheduler) DeleteClass(id ClassID) error {
	return s.submit(&classCommand{kind: cmdDelete, id: id})
}

func (s *Scheduler) applyCreate(id ClassID, weight uint32, lmax uint64, queue InnerQueue) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	if err := validateLmax(lmax); err != nil {
		return err
	}

	s.treeMu.Lock()
	defer s.treeMu.Unlock()

	if _, exists := s.classes[id]; exists {
		return ErrClassExists
	}
	if s.wsum+uint64(weight) > MaxWSum {
		return ErrWsumExceeded
	}

	c := newClass(id, weight, lmax, queue)
	c.grp = s.groups[calcIndex(c.invW, c.lmax)]
	s.wsum += uint64(weight)
	s.classes[id] = c
	return nil
}

func (s *Scheduler) applyUpdate(id ClassID, weight uint32, lmax uint64) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	if err := validateLmax(lmax); err != nil {
		return err
	}

	s.treeMu.Lock()
	c, ok := s.classes[id]
	if !ok {
		s.treeMu.Unlock()
		return ErrClassNotFound
	}

	oldWeight := c.weight
	wasDisabled := c.disabled()
	newDelta := int64(weight) - int64(oldWeight)
	if int64(s.wsum)+newDelta > int64(MaxWSum) {
		s.treeMu.Unlock()
		return ErrWsumExceeded
	}
	s.wsum = uint64(int64(s.wsum) + newDelta)
	s.treeMu.Unlock()

	oldGroup := c.grp
	// A class is "active" in the §4.4 sense whenever it currently holds a
	// group slot: check group membership directly rather than re-deriving
	// it from queue state, since disabling a class leaves it in its slot
	// lazily (spec boundary case S4).
	wasActive := s.classOccupiesSlot(c)

	c.setWeightAndLmax(weight, lmax)
	newGroup := s.groups[calcIndex(c.invW, c.lmax)]
	nowDisabled := c.disabled()

	switch {
	case wasActive && nowDisabled:
		// Weight->0 while mid-service: per S4, the slot is vacated lazily
		// on this class's next dequeue, which also charges activeWeight
		// back out of wsumActive then. Leave c.grp pointed at the group
		// it's still physically linked into.

	case wasActive && newGroup != oldGroup:
		headLen := c.queue.PeekLen()
		s.deactivateClassLocked(c)
		c.grp = newGroup
		if headLen > 0 {
			s.reactivate(c, headLen)
		}

	case !wasActive && wasDisabled && !nowDisabled && c.queue.Len() > 0:
		c.grp = newGroup
		if headLen := c.queue.PeekLen(); headLen > 0 {
			s.reactivate(c, headLen)
		}

	default:
		c.grp = newGroup
	}

	return nil
}

func (s *Scheduler) reactivate(c *Class, headLen int) {
	s.activate(c, headLen)
	w := OneFP / c.invW
	c.activeWeight = w
	s.wsumActive += w
	s.backlog++
}

func (s *Scheduler) applyDelete(id ClassID) error {
	s.treeMu.Lock()
	c, ok := s.classes[id]
	if !ok {
		s.treeMu.Unlock()
		return ErrClassNotFound
	}
	if c.filterCnt > 0 {
		s.treeMu.Unlock()
		return ErrClassBusy
	}

	if s.classOccupiesSlot(c) {
		s.deactivateClassLocked(c)
	}
	s.wsum -= uint64(c.weight)
	delete(s.classes, id)
	s.treeMu.Unlock()

	c.queue.Reset()
	c.refCnt--
	return nil
}

// applyDropOne implements spec §7's memory-pressure drop sweep (qfq_drop):
// walk groups lowest-index first, and within each group its slots in
// physical array order, dropping one packet from the first backlogged
// class with one to drop. This mirrors qfq_drop's own traversal
// (sch_qfq.c: "for i <= QFQ_MAX_INDEX, for j < QFQ_MAX_SLOTS,
// hlist_for_each_entry") exactly; ranging s.classes (a map) here would
// give a randomized traversal order across calls, not the deterministic
// one spec'd and documented. A drop that empties the class's queue must
// also deactivate it — leaving it counted in wsumActive and occupying a
// slot with nothing left to serve would violate the "backlogged means
// queue non-empty and holds a slot" invariant (spec §3), and would leave
// dequeueOne unable to ever advance past that group's now-perpetually-
// empty front slot.
func (s *Scheduler) applyDropOne() (ClassID, bool) {
	s.treeMu.Lock()
	defer s.treeMu.Unlock()

	for _, g := range s.groups {
		for _, head := range g.slots {
			for c := head; c != nil; c = c.slotNext {
				n := c.queue.Drop()
				if n == 0 {
					continue
				}
				c.stats.recordDrop()
				if c.queue.Len() == 0 && s.classOccupiesSlot(c) {
					s.deactivateClassLocked(c)
				}
				return c.ID, true
			}
		}
	}
	return 0, false
}

// classOccupiesSlot reports whether c currently holds a group slot.
func (s *Scheduler) classOccupiesSlot(c *Class) bool {
	return c.inSlot
}

// deactivateClassLocked implements spec §4.4's "deactivate" step used by
// Update and Delete: it removes c from its group (charging it nothing
// further by pinning F to S) and fixes up the group's bitmap membership,
// including the cascade described for qfq_deactivate_class.
func (s *Scheduler) deactivateClassLocked(c *Class) {
	g := c.grp
	c.F = c.S
	g.remove(c)

	s.wsumActive -= c.activeWeight
	s.backlog--

	if g.empty() {
		s.bitmaps.clear(IR, g.index)
		s.bitmaps.clear(EB, g.index)
		s.bitmaps.clear(IB, g.index)

		if s.bitmaps.bit(ER, g.index) && maskFrom(s.bitmaps[ER], g.index+1) == 0 {
			mask := maskFrom(s.bitmaps[ER], 0) &^ (^uint32(0) << uint(g.index))
			var full uint32
			if mask != 0 {
				full = ^((uint32(1) << uint(highestSet(uint64(mask)))) - 1)
			} else {
				full = ^uint32(0)
			}
			s.bitmaps.moveGroups(full, EB, ER)
			s.bitmaps.moveGroups(full, IB, IR)
		}
		s.bitmaps.clear(ER, g.index)
	} else if g.head() == nil {
		head := g.scan()
		if head != nil {
			roundedS := roundDown(head.S, g.shift)
			if g.S != roundedS {
				s.bitmaps.clear(ER, g.index)
				s.bitmaps.clear(IR, g.index)
				s.bitmaps.clear(EB, g.index)
				s.bitmaps.clear(IB, g.index)
				g.S = roundedS
				g.F = roundedS + (2 << g.shift)
				state := s.calcState(g)
				s.bitmaps.set(state, g.index)
			}
		}
	}

	s.updateEligible(s.V)
}
