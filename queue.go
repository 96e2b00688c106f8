package qfqrl

import "sync"

// Packet is the minimal shape the scheduler core needs from a host
// packet: enough to classify it, charge virtual time for it, and hand it
// to a Transmitter. A host integration is expected to carry its own
// richer packet type and adapt it to this one at the qdisc boundary.
type Packet struct {
	Conn     ConnKey
	Priority uint8
	Len      int
	Payload  []byte
}

// InnerQueue is the contract every class's inner queueing object must
// satisfy: the scheduler core treats it as an external collaborator (see
// spec §1, "per-class inner FIFO queues") and never reaches into its
// internals. A host framework may plug in a richer AQM-capable queue; the
// default fifoQueue below is intentionally dumb.
type InnerQueue interface {
	// Enqueue appends p. It returns false if the queue refused the
	// packet (EnqueueDrop).
	Enqueue(p Packet) bool
	// Dequeue removes and returns the head packet.
	Dequeue() (Packet, bool)
	// PeekLen returns the length of the head packet, or 0 if empty.
	PeekLen() int
	// Len returns the number of packets currently queued.
	Len() int
	// Drop removes and discards one packet (used by the drop sweep under
	// memory pressure), reporting its length or 0 if the queue was
	// empty or does not support dropping.
	Drop() int
	// Reset discards all queued packets.
	Reset()
}

// fifoQueue is the default InnerQueue: a plain, unbounded FIFO with no
// active queue management. Per spec, AQM inside class queues is
// explicitly out of scope for the scheduler core; this is the simplest
// implementation that satisfies the contract.
//
// Adapted from the teacher's codelQueue (codel.go): the mutex-guarded
// slice and closed flag are kept, the CoDel control law is not.
type fifoQueue struct {
	mu     sync.Mutex
	ring   ringBuffer[Packet]
	closed bool
}

func newFIFOQueue() *fifoQueue {
	return &fifoQueue{ring: newRingBuffer[Packet](16)}
}

func (q *fifoQueue) Enqueue(p Packet) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.ring.pushBack(p)
	return true
}

func (q *fifoQueue) Dequeue() (Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring.empty() {
		return Packet{}, false
	}
	return q.ring.popFront(), true
}

func (q *fifoQueue) PeekLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring.empty() {
		return 0
	}
	return q.ring.peek().Len
}

func (q *fifoQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.len()
}

func (q *fifoQueue) Drop() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring.empty() {
		return 0
	}
	return q.ring.popFront().Len
}

func (q *fifoQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ring = newRingBuffer[Packet](16)
}
