package qfqrl

// ClassID is an opaque identifier for a flow-class, unique within a
// scheduler.
type ClassID uint32

// Class is one flow-class competing for the output link. All of its
// scheduling-relevant fields (S, F, grp, invW, lmax) are written only by
// the dispatcher goroutine; see spec §5's ownership model.
type Class struct {
	ID ClassID

	weight uint32
	invW   uint64 // ONE_FP / weight; disabledInvW sentinel when weight==0
	lmax   uint64

	// S, F are the class's virtual start and finish times.
	S, F uint64

	grp *group

	queue InnerQueue

	filterCnt int32
	refCnt    int32

	// activeWeight is the weight value (ONE_FP/invW) that was added to
	// wsumActive when this class last transitioned idle->backlogged. It
	// is charged back verbatim when the class leaves the active set,
	// rather than recomputed from invW at that later point: invW may
	// already have been overwritten to the disabled sentinel by an
	// UpdateClass that zeroed the weight mid-service (spec boundary case
	// S4), and ONE_FP/disabledInvW is not the class's real prior weight.
	activeWeight uint64

	stats ClassStats

	// Slot linkage: intrusive doubly-linked list node used while the
	// class occupies a group slot. The physical slot a class occupies
	// is always recomputed from c.S (spec §4.2 "remove(c)"), never
	// cached, so rotating a group's front never invalidates it.
	slotPrev, slotNext *Class
	inSlot             bool
}

func newClass(id ClassID, weight uint32, lmax uint64, queue InnerQueue) *Class {
	c := &Class{
		ID:     id,
		queue:  queue,
		refCnt: 1,
	}
	c.setWeightAndLmax(weight, lmax)
	return c
}

func (c *Class) setWeightAndLmax(weight uint32, lmax uint64) {
	c.weight = weight
	c.lmax = lmax
	if weight == 0 {
		c.invW = disabledInvW
		return
	}
	c.invW = OneFP / uint64(weight)
}

func (c *Class) disabled() bool {
	return c.invW == disabledInvW
}

// calcIndex implements spec §4.4's calc_index: it maps a class's
// (inv_w, lmax) to the group it belongs to. The mapping is fixed while
// weight and lmax are unchanged.
func calcIndex(invW, lmax uint64) int {
	if invW == disabledInvW {
		return 0
	}

	slotSize := lmax * invW
	sizeMap := slotSize >> MinSlotShift
	if sizeMap == 0 {
		return 0
	}

	index := highestSet(sizeMap) + 1
	// If slotSize lands exactly on the boundary for this index (an exact
	// power of two), the kernel's "- !(slot_size - (1 << (index +
	// MinSlotShift - 1)))" decrements by one; expressed directly as a
	// power-of-two check.
	boundary := uint64(1) << uint(index+MinSlotShift-1)
	if slotSize == boundary {
		index--
	}

	if index < 0 {
		index = 0
	}
	if index > MaxIndex {
		index = MaxIndex
	}
	return index
}

// validateWeight checks weight is in [1, 2^MaxWShift], per spec §4.4/§7.
// A zero weight is valid as a "disable" request, handled by the caller
// separately from this bounds check.
func validateWeight(weight uint32) error {
	if weight == 0 {
		return nil
	}
	if uint64(weight) > MaxWeight {
		return ErrInvalidWeight
	}
	return nil
}

// validateLmax checks lmax is in (0, 2^MTUShift], per spec §4.4/§7.
func validateLmax(lmax uint64) error {
	if lmax == 0 || lmax > LMax {
		return ErrInvalidLmax
	}
	return nil
}
