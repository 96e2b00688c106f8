package qfqrl

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Transmitter is the network-device transmit path: deliberately out of
// scope as a subsystem per spec §1, but the dispatcher loop needs a
// concrete collaborator to hand dequeued packets to directly.
type Transmitter interface {
	Transmit(p Packet)
}

// DiscardTransmitter is the Config default: it drops every packet handed
// to it. Useful for tests that only care about scheduling decisions, not
// delivery.
type DiscardTransmitter struct{}

func (DiscardTransmitter) Transmit(Packet) {}

// FuncTransmitter adapts a plain function to the Transmitter interface.
type FuncTransmitter func(p Packet)

func (f FuncTransmitter) Transmit(p Packet) { f(p) }

// RateLimitedTransmitter caps the aggregate byte rate leaving the
// dispatcher before handing packets to an underlying Transmitter,
// modeling a downstream link slower than the dispatcher can otherwise
// drive it. Built on golang.org/x/time/rate, the same token-bucket
// limiter the teacher's ratelink.go wraps for its simulated links.
//
// Transmit blocks the dispatcher goroutine until the limiter admits the
// packet: this is intentional back-pressure, not a bug — the scheduler's
// virtual-time bookkeeping already assumes a single dedicated worker, so
// stalling it here simply slows dispatch to the configured link rate
// rather than dropping packets the way an unbounded queue would.
type RateLimitedTransmitter struct {
	limiter *rate.Limiter
	next    Transmitter
	logger  *slog.Logger
}

// NewRateLimitedTransmitter builds a transmitter capped at bandwidth
// bits/sec with the given burst allowance in bytes, forwarding admitted
// packets to next.
func NewRateLimitedTransmitter(bandwidthBitsPerSec, burstBytes int, next Transmitter, logger *slog.Logger) *RateLimitedTransmitter {
	bytesPerSecond := rate.Limit(float64(bandwidthBitsPerSec) / 8.0)
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimitedTransmitter{
		limiter: rate.NewLimiter(bytesPerSecond, burstBytes),
		next:    next,
		logger:  logger,
	}
}

func (t *RateLimitedTransmitter) Transmit(p Packet) {
	if err := t.limiter.WaitN(context.Background(), p.Len); err != nil {
		t.logger.Error("rate limiter wait failed", "class", p.Conn, "len", p.Len, "err", err)
		return
	}
	t.next.Transmit(p)
}

// Reserve reports how long a packet of size n bytes would currently have
// to wait, without consuming a reservation. Exposed for callers that
// want to inspect throttle state (e.g. to answer the host's Dequeue
// no-op hook with a meaningful "not yet" signal) without driving
// Transmit itself.
func (t *RateLimitedTransmitter) Reserve(now time.Time, n int) time.Duration {
	r := t.limiter.ReserveN(now, n)
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d
}
