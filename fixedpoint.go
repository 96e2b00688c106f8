package qfqrl

// Fixed-point scale used for virtual timestamps, weights and rates.
const (
	FracBits = 30
	OneFP    = uint64(1) << FracBits

	MTUShift = 11
	LMax     = uint64(1) << MTUShift

	MaxIndex  = 19
	MaxWShift = 16
	MaxWeight = uint64(1) << MaxWShift
	MaxWSum   = 2 * MaxWeight

	MaxSlots = 32

	// MinSlotShift is the slot shift of the finest-grained group (index 0).
	MinSlotShift = FracBits + MTUShift - MaxIndex

	// LinkSpeed is the target link rate in Mbps, with framing overhead
	// already subtracted from a nominal 10GbE link.
	LinkSpeed = 9800

	nsecPerSec = 1_000_000_000

	// DrainRate is the fixed-point amount of virtual time to add per
	// nanosecond of link-idle time.
	DrainRate = uint64(LinkSpeed) * 125000 * OneFP / nsecPerSec

	// disabledInvW is the sentinel inv_w value marking a class whose weight
	// has been set to zero: disabled but not deleted.
	disabledInvW = OneFP + 1
)

// roundDown clears the low shift bits of t, snapping it to the resolution
// of a group's slot grid.
func roundDown(t uint64, shift uint) uint64 {
	return t &^ ((uint64(1) << shift) - 1)
}

// gt is the wraparound-safe "a is later than b" predicate used for every
// virtual-time comparison: timestamps live in a 64-bit space that wraps,
// so ordinary unsigned comparison is not safe once the difference between
// two timestamps exceeds 2^63.
func gt(a, b uint64) bool {
	return int64(a-b) > 0
}

// slotShift returns the slot shift for group index i: groups with a
// larger index hold classes with a coarser L/w ratio and therefore use a
// coarser slot resolution.
func slotShift(index int) uint {
	return uint(MTUShift + FracBits - (MaxIndex - index))
}
