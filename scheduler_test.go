package qfqrl

import (
	"testing"

	"github.com/sivasankariit/qfq-rl/internal/require"
)

// newTestScheduler builds a scheduler without starting its dispatcher
// goroutine: tests drive dequeueOne/drainActivations directly, on the
// test's own goroutine, for determinism.
func newTestScheduler(t *testing.T) *Scheduler {
	noPin := -1
	s := NewScheduler(Config{SpinCPU: &noPin, Executors: 1})
	t.Cleanup(func() {
		if s.started {
			s.Stop()
		}
	})
	return s
}

func (s *Scheduler) mustCreate(t *testing.T, id ClassID, weight uint32) {
	t.Helper()
	require.NoError(t, s.CreateClass(id, weight, 2048, newFIFOQueue()))
}

func drainAll(s *Scheduler, maxIterations int) map[ClassID]int {
	served := make(map[ClassID]int)
	for i := 0; i < maxIterations; i++ {
		s.drainActivations()
		pkt, class, ok := s.dequeueOne()
		if !ok {
			if s.backlog == 0 {
				break
			}
			continue
		}
		served[class.ID] += pkt.Len
	}
	return served
}

// TestFairnessAmongThreeClasses is scenario S1: classes {A:1, B:2, C:1},
// lmax=2048, 1000 packets of length 1500 each. After draining, A and C
// (equal weight) should be served within one packet of each other, and B
// (double weight) should be served roughly twice as much.
func TestFairnessAmongThreeClasses(t *testing.T) {
	s := newTestScheduler(t)
	s.mustCreate(t, 1, 1) // A
	s.mustCreate(t, 2, 2) // B
	s.mustCreate(t, 3, 1) // C

	const packets = 1000
	const length = 1500

	for _, id := range []ClassID{1, 2, 3} {
		s.classifier.BindPriority(uint8(id), id)
		for i := 0; i < packets; i++ {
			require.NoError(t, s.Enqueue(0, Packet{Conn: ConnKey{Src: uint64(id)}, Priority: uint8(id), Len: length}))
		}
	}

	served := drainAll(s, 4*packets+10)

	if diff := served[1] - served[3]; diff > length || diff < -length {
		t.Fatalf("equal-weight classes A and C should be served within one packet: A=%d C=%d", served[1], served[3])
	}
	want := 2 * served[1]
	if got := served[2]; got < want-length || got > want+length {
		t.Fatalf("double-weight class B should serve roughly twice A: A=%d B=%d", served[1], got)
	}
}

// TestSingleClassFirstDequeue is scenario S2: a single backlogged class's
// first dequeue charges packet_len*ONE_FP/max(LINK_SPEED, w) of virtual
// time into vDiffSum (V itself only absorbs it on a later
// updateSystemTime), and leaves ER empty, since the class's only packet
// has been dequeued and its group is no longer backlogged.
func TestSingleClassFirstDequeue(t *testing.T) {
	s := newTestScheduler(t)
	s.mustCreate(t, 1, 1)
	s.classifier.BindPriority(1, 1)

	const length = 1500
	require.NoError(t, s.Enqueue(0, Packet{Priority: 1, Len: length}))
	s.drainActivations()

	c := s.classes[1]
	wantV := uint64(length) * OneFP / LinkSpeed

	pkt, class, ok := s.dequeueOne()
	require.True(t, ok, "expected a packet")
	require.Equal(t, length, pkt.Len)
	require.Equal(t, ClassID(1), class.ID)
	require.Equal(t, wantV, s.vDiffSum)

	// The class's queue is now empty, so its group no longer appears in
	// any bitmap (P5): draining emptied the only group that was ever set.
	if s.bitmaps[ER] != 0 {
		t.Fatalf("ER should be empty once the only backlogged group's class drains, got %b", s.bitmaps[ER])
	}
	_ = c
}

// TestDisableClassMidServiceVacatesSlotLazily is scenario S4: disabling a
// class (weight -> 0) while it's still backlogged and holding a slot does
// not immediately evict it; the slot is vacated and wsumActive corrected
// on its next dequeue, after which only the remaining classes are served.
func TestDisableClassMidServiceVacatesSlotLazily(t *testing.T) {
	s := newTestScheduler(t)
	s.mustCreate(t, 1, 1) // A
	s.mustCreate(t, 2, 1) // B
	s.classifier.BindPriority(1, 1)
	s.classifier.BindPriority(2, 2)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Enqueue(0, Packet{Conn: ConnKey{Src: 1}, Priority: 1, Len: 1000}))
		require.NoError(t, s.Enqueue(0, Packet{Conn: ConnKey{Src: 2}, Priority: 2, Len: 1000}))
	}
	s.drainActivations()

	a := s.classes[1]
	require.True(t, a.inSlot, "A should occupy a slot once backlogged")

	before := s.wsumActive
	require.NoError(t, s.UpdateClass(1, 0, 2048))
	require.Equal(t, before, s.wsumActive) // lazy: unchanged until A's next dequeue
	require.True(t, a.disabled(), "A should be disabled immediately")
	require.True(t, a.inSlot, "A should still occupy its slot until served once more")

	// A's next dequeue should evict it and correct wsumActive by exactly
	// its former weight contribution.
	for {
		s.drainActivations()
		_, class, ok := s.dequeueOne()
		if !ok {
			t.Fatal("expected more packets before queues drained")
		}
		if class.ID == 1 {
			break
		}
	}
	// A's weight is 1, and OneFP/invW credited exactly that at activation.
	if s.wsumActive != before-1 {
		t.Fatalf("wsumActive after A's eviction = %d, want %d", s.wsumActive, before-1)
	}
	require.False(t, a.inSlot, "A should have been evicted from its slot")

	// Every subsequent dequeue should serve only B.
	served := drainAll(s, 20)
	if served[1] != 0 {
		t.Fatalf("disabled class A should never be served again, got %d bytes", served[1])
	}
	if served[2] == 0 {
		t.Fatal("B should keep being served")
	}
}

// TestDeleteClassWithFiltersBoundReturnsBusy is scenario S5.
func TestDeleteClassWithFiltersBoundReturnsBusy(t *testing.T) {
	s := newTestScheduler(t)
	s.mustCreate(t, 1, 1)
	s.classes[1].filterCnt = 1

	err := s.DeleteClass(1)
	require.ErrorIs(t, err, ErrClassBusy)
	if _, ok := s.classes[1]; !ok {
		t.Fatal("class should still exist after a rejected delete")
	}
}

// TestDropOneEmptyingAClassDeactivatesIt covers spec §7's memory-pressure
// drop sweep: dropping a class's last queued packet must evict it from its
// slot and correct wsumActive, the same as a natural dequeue would.
func TestDropOneEmptyingAClassDeactivatesIt(t *testing.T) {
	s := newTestScheduler(t)
	s.mustCreate(t, 1, 1)
	s.classifier.BindPriority(1, 1)
	require.NoError(t, s.Enqueue(0, Packet{Priority: 1, Len: 1000}))
	s.drainActivations()

	a := s.classes[1]
	require.True(t, a.inSlot, "class should occupy a slot once backlogged")
	before := s.wsumActive

	id, ok := s.DropOne()
	require.True(t, ok, "expected a packet to drop")
	require.Equal(t, ClassID(1), id)

	require.False(t, a.inSlot, "class should be evicted once its last packet is dropped")
	if s.wsumActive != before-1 {
		t.Fatalf("wsumActive after drop-induced eviction = %d, want %d", s.wsumActive, before-1)
	}
	require.Equal(t, uint64(1), a.stats.Drops)
}

// TestDropOneLeavesNonEmptyClassActive covers the case where the dropped
// packet wasn't the class's last: no deactivation should happen.
func TestDropOneLeavesNonEmptyClassActive(t *testing.T) {
	s := newTestScheduler(t)
	s.mustCreate(t, 1, 1)
	s.classifier.BindPriority(1, 1)
	require.NoError(t, s.Enqueue(0, Packet{Priority: 1, Len: 1000}))
	require.NoError(t, s.Enqueue(0, Packet{Priority: 1, Len: 1000}))
	s.drainActivations()

	a := s.classes[1]
	before := s.wsumActive

	id, ok := s.DropOne()
	require.True(t, ok, "expected a packet to drop")
	require.Equal(t, ClassID(1), id)

	require.True(t, a.inSlot, "class should remain active with one packet left")
	require.Equal(t, before, s.wsumActive)
}

// TestDropOneVisitsLowestGroupIndexFirst covers the sweep's traversal
// order: qfq_drop walks groups lowest-index-first, not class-index or map
// iteration order, so with two classes in different groups the one in the
// lower-indexed group must always be the one dropped from, deterministically
// across repeated calls.
func TestDropOneVisitsLowestGroupIndexFirst(t *testing.T) {
	s := newTestScheduler(t)
	s.mustCreate(t, 1, 1)    // A: small weight, lands in a higher-indexed group
	s.mustCreate(t, 2, 1000) // B: large weight, lands in a lower-indexed group
	s.classifier.BindPriority(1, 1)
	s.classifier.BindPriority(2, 2)

	require.NoError(t, s.Enqueue(0, Packet{Conn: ConnKey{Src: 1}, Priority: 1, Len: 1000}))
	require.NoError(t, s.Enqueue(0, Packet{Conn: ConnKey{Src: 2}, Priority: 2, Len: 1000}))
	s.drainActivations()

	a, b := s.classes[1], s.classes[2]
	if a.grp.index <= b.grp.index {
		t.Fatalf("test setup invalid: A's group index %d should exceed B's %d", a.grp.index, b.grp.index)
	}

	id, ok := s.DropOne()
	require.True(t, ok, "expected a packet to drop")
	require.Equal(t, ClassID(2), id)
}

func TestDropOneReportsNothingWhenAllQueuesEmpty(t *testing.T) {
	s := newTestScheduler(t)
	s.mustCreate(t, 1, 1)

	_, ok := s.DropOne()
	require.False(t, ok, "expected no packet to drop when all queues are empty")
}

func TestDeleteClassNotFound(t *testing.T) {
	s := newTestScheduler(t)
	err := s.DeleteClass(99)
	require.ErrorIs(t, err, ErrClassNotFound)
}

func TestCreateClassRejectsInvalidWeight(t *testing.T) {
	s := newTestScheduler(t)
	err := s.CreateClass(1, uint32(MaxWeight)+1, 2048, newFIFOQueue())
	require.ErrorIs(t, err, ErrInvalidWeight)
}

func TestCreateClassRejectsDuplicateID(t *testing.T) {
	s := newTestScheduler(t)
	s.mustCreate(t, 1, 1)
	err := s.CreateClass(1, 1, 2048, newFIFOQueue())
	require.ErrorIs(t, err, ErrClassExists)
}

func TestCreateClassRejectsWsumExceeded(t *testing.T) {
	s := newTestScheduler(t)
	err := s.CreateClass(1, uint32(MaxWeight), 2048, newFIFOQueue())
	require.NoError(t, err)
	err = s.CreateClass(2, uint32(MaxWeight), 2048, newFIFOQueue())
	require.NoError(t, err)
	err = s.CreateClass(3, 1, 2048, newFIFOQueue())
	require.ErrorIs(t, err, ErrWsumExceeded)
}

// TestHostDequeueIsAlwaysANoOp covers spec §6's external interface
// contract: the host-facing Dequeue hook never returns a real packet.
func TestHostDequeueIsAlwaysANoOp(t *testing.T) {
	s := newTestScheduler(t)
	s.mustCreate(t, 1, 1)
	s.classifier.BindPriority(1, 1)
	require.NoError(t, s.Enqueue(0, Packet{Priority: 1, Len: 100}))

	pkt, ok := s.Dequeue()
	require.False(t, ok, "host Dequeue should always report nothing")
	require.Equal(t, Packet{}, pkt)
}

// Packet drops are silent to the caller per spec §7: Enqueue returns nil
// and only the drop counter moves.
func TestEnqueueDropsUnclassifiedPacket(t *testing.T) {
	s := newTestScheduler(t)
	err := s.Enqueue(0, Packet{Priority: 77, Len: 100})
	require.NoError(t, err)
	require.Equal(t, uint64(1), s.Drops())
}

func TestEnqueueDropsForUnknownClass(t *testing.T) {
	s := newTestScheduler(t)
	s.classifier.BindPriority(1, 5) // no class 5 exists
	err := s.Enqueue(0, Packet{Priority: 1, Len: 100})
	require.NoError(t, err)
	require.Equal(t, uint64(1), s.Drops())
}
