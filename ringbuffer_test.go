package qfqrl

import "testing"

func TestRingBufferPushPopOrder(t *testing.T) {
	rb := newRingBuffer[int](2)
	total := 10

	for i := 0; i < total; i++ {
		rb.pushBack(i)
	}

	for i := 0; i < total; i++ {
		got := rb.popFront()
		if got != i {
			t.Fatalf("popFront()=%d, want %d", got, i)
		}
	}
}

func TestRingBufferWrapAndGrowth(t *testing.T) {
	rb := newRingBuffer[int](4)

	for _, v := range []int{0, 1, 2} {
		rb.pushBack(v)
	}

	if got := rb.popFront(); got != 0 {
		t.Fatalf("popFront()=%d, want 0", got)
	}

	for _, v := range []int{3, 4, 5} {
		rb.pushBack(v)
	}

	want := []int{1, 2, 3, 4, 5}
	for _, v := range want {
		got := rb.popFront()
		if got != v {
			t.Fatalf("popFront()=%d, want %d", got, v)
		}
	}
}

func TestRingBufferPeekAndEmptyAndLen(t *testing.T) {
	rb := newRingBuffer[string](1)

	if !rb.empty() {
		t.Fatalf("empty()=false, want true")
	}

	rb.pushBack("hello")

	if rb.empty() {
		t.Fatalf("empty()=true, want false")
	}
	if got := rb.len(); got != 1 {
		t.Fatalf("len()=%d, want 1", got)
	}

	if got := rb.peek(); got != "hello" {
		t.Fatalf("peek()=%q, want %q", got, "hello")
	}

	if got := rb.popFront(); got != "hello" {
		t.Fatalf("popFront()=%q, want %q", got, "hello")
	}

	if !rb.empty() {
		t.Fatalf("empty()=false, want true after popFront")
	}
}

func TestRingBufferGrowthPreservesOrderAcrossWrap(t *testing.T) {
	rb := newRingBuffer[int](2)
	next := 0
	for i := 0; i < 100; i++ {
		rb.pushBack(i)
		if i%3 == 0 && !rb.empty() {
			// Interleave pops to force head/tail to wrap repeatedly
			// while the buffer is still growing.
			if got := rb.popFront(); got != next {
				t.Fatalf("popFront()=%d, want %d", got, next)
			}
			next++
		}
	}
	for !rb.empty() {
		if got := rb.popFront(); got != next {
			t.Fatalf("popFront()=%d, want %d", got, next)
		}
		next++
	}
	if next != 100 {
		t.Fatalf("popped %d values, want 100", next)
	}
}
