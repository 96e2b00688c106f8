package qfqrl

import (
	"sync"
	"sync/atomic"
)

// activation is the record posted by a producer on a class's 0->1
// backlog transition and consumed by the dispatcher, which is the only
// goroutine allowed to act on it.
type activation struct {
	class *Class
	len   int
}

// executor models one producer's local activation queue (spec §5: "each
// producer CPU has its own activation queue protected by a per-CPU
// lock"). The ring buffer is the teacher's ringbuffer.go container,
// instantiated for this new element type.
type executor struct {
	mu    sync.Mutex
	queue ringBuffer[activation]
}

func newExecutor() *executor {
	return &executor{queue: newRingBuffer[activation](64)}
}

func (e *executor) push(a activation) {
	e.mu.Lock()
	e.queue.pushBack(a)
	e.mu.Unlock()
}

// drain moves every queued activation into dst and empties the queue.
func (e *executor) drain(dst *[]activation) {
	e.mu.Lock()
	for !e.queue.empty() {
		*dst = append(*dst, e.queue.popFront())
	}
	e.mu.Unlock()
}

// atomicBitmap is the shared work_bitmap word from spec §5: producers
// set their executor's bit; the dispatcher atomically tests-and-clears
// it before draining that executor's queue.
type atomicBitmap struct {
	word atomic.Uint64
}

func (b *atomicBitmap) set(bit int) {
	b.word.Or(uint64(1) << uint(bit))
}

func (b *atomicBitmap) testAndClear(bit int) bool {
	mask := uint64(1) << uint(bit)
	old := b.word.And(^mask)
	return old&mask != 0
}

func (b *atomicBitmap) empty() bool {
	return b.word.Load() == 0
}

// postActivation appends an activation record to executorID's local
// queue and sets its bit in the global work_bitmap. A full memory fence
// is not modeled explicitly in Go: the mutex acquired by push()
// establishes the same happens-before ordering the spec's explicit fence
// exists for (the record is written inside the mutex critical section,
// the atomic Or runs after it completes, and the dispatcher takes the
// same mutex in drain() before reading the queue).
func (s *Scheduler) postActivation(executorID int, c *Class, pktLen int) {
	if executorID < 0 || executorID >= len(s.executors) {
		executorID = 0
	}
	s.executors[executorID].push(activation{class: c, len: pktLen})
	s.workBitmap.set(executorID)
}

// drainActivations is called only by the dispatcher. It atomically
// claims every executor with pending work and activates each of their
// queued classes. Per the "L2 idempotent enqueue" law, a record for a
// class that already holds a slot is skipped: producers post on an
// observed 0->1 queue length, but the dispatcher's dequeue and peek of
// a class's queue are separate calls, so a producer can see length 1
// while the class is still active.
func (s *Scheduler) drainActivations() {
	if s.workBitmap.empty() {
		return
	}

	var pending []activation
	for i := range s.executors {
		if !s.workBitmap.testAndClear(i) {
			continue
		}
		s.executors[i].drain(&pending)
	}

	for _, a := range pending {
		if a.class.inSlot {
			continue
		}
		s.activate(a.class, a.len)
		w := OneFP / a.class.invW
		a.class.activeWeight = w
		s.wsumActive += w
		s.backlog++
	}
}

// activate runs spec §4.5's Activate(class, len), handling a class's
// idle-to-backlogged transition. Only the dispatcher calls this.
func (s *Scheduler) activate(c *Class, pktLen int) {
	g := c.grp
	s.updateStart(c)

	c.F = c.S + uint64(pktLen)*c.invW
	roundedS := roundDown(c.S, g.shift)

	if g.fullSlots != 0 {
		if !gt(g.S, c.S) {
			s.insertIntoGroup(g, c, roundedS)
			return
		}
		g.rotate(roundedS)
		s.bitmaps.clear(IR, g.index)
		s.bitmaps.clear(IB, g.index)
	}

	g.S = roundedS
	g.F = roundedS + (2 << g.shift)
	state := s.calcState(g)
	s.bitmaps.set(state, g.index)

	s.insertIntoGroup(g, c, roundedS)
}

func (s *Scheduler) insertIntoGroup(g *group, c *Class, roundedS uint64) {
	_, overflowed := g.insert(c, roundedS)
	if overflowed {
		s.reportSlotOverflow(g, c, roundedS)
	}
}

// updateStart implements spec §4.5's update_start: it decides whether a
// class's previous F is still a usable start time or has gone stale,
// and if stale, picks the earliest S that won't violate ER ordering.
func (s *Scheduler) updateStart(c *Class) {
	g := c.grp
	limit := roundDown(s.V, g.shift) + (1 << g.shift)
	roundedF := roundDown(c.F, g.shift)

	if gt(c.F, s.V) && !gt(roundedF, limit) {
		c.S = c.F
		return
	}

	mask := maskFrom(s.bitmaps[ER], g.index)
	if mask != 0 {
		next := s.groups[mustLowest(mask)]
		if gt(roundedF, next.F) {
			if gt(limit, next.F) {
				c.S = next.F
			} else {
				c.S = limit
			}
			return
		}
	}
	c.S = s.V
}

func mustLowest(bitmap uint32) int {
	i, _ := lowestSet(bitmap)
	return i
}
