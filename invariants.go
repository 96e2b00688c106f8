package qfqrl

import (
	"fmt"
	"sync"
	"time"
)

// slotOverflowLimiter rate-limits the SlotOverflow diagnostic so a
// misbehaving class can't flood the log, mirroring the kernel's
// printk_ratelimited.
type slotOverflowLimiter struct {
	mu   sync.Mutex
	last time.Time
}

const slotOverflowLogInterval = time.Second

func (l *slotOverflowLimiter) allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.last) < slotOverflowLogInterval {
		return false
	}
	l.last = now
	return true
}

var globalSlotOverflowLimiter slotOverflowLimiter

// reportSlotOverflow handles a computed slot index >= MaxSlots: an
// invariant violation that a correct calcIndex should make unreachable.
// Per spec §7/§9, production code clamps to slot 31 and logs
// rate-limited; with Config.Strict set (intended for tests) it panics
// instead, treating the condition as a test-time assertion failure
// rather than a silently tolerated one.
func (s *Scheduler) reportSlotOverflow(g *group, c *Class, roundedS uint64) {
	if s.cfg.Strict {
		panic(fmt.Sprintf(
			"qfqrl: slot overflow: group=%d class=%d V=%d roundedS=%d g.S=%d shift=%d",
			g.index, c.ID, s.V, roundedS, g.S, g.shift))
	}

	if globalSlotOverflowLimiter.allow(time.Now()) {
		s.cfg.Logger.Error("slot overflow clamped",
			"group", g.index,
			"class", c.ID,
			"V", s.V,
			"roundedS", roundedS,
			"group_S", g.S,
			"slot_shift", g.shift,
		)
	}
}
