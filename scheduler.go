package qfqrl

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the scheduler-wide settings that spec §6 calls module
// parameters and link parameters.
type Config struct {
	// SpinCPU is the CPU the dispatcher goroutine pins itself to, the
	// spin_cpu module parameter from spec §6. nil selects the package
	// default pin target; a non-nil negative value disables pinning
	// (useful off-target and in tests). A plain int field can't carry
	// this distinction, since CPU 0 is itself a legitimate pin target
	// and would be indistinguishable from "unset".
	SpinCPU *int

	// Strict makes a computed slot index >= 32 panic instead of
	// clamping and logging — spec §9's Open Question resolution: treat
	// the overflow as a test-time assertion failure. Production
	// deployments should leave this false.
	Strict bool

	// Logger receives drop accounting and rate-limited diagnostics.
	// Defaults to slog.Default(), mirroring the teacher's Simnet.Logger.
	Logger *slog.Logger

	// Transmitter is the external network-device transmit path the
	// dispatcher hands dequeued packets to directly.
	Transmitter Transmitter

	// Executors is the number of per-producer activation queues to
	// provision, modeling one per possible producer CPU.
	Executors int
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Transmitter == nil {
		c.Transmitter = DiscardTransmitter{}
	}
	if c.Executors <= 0 {
		c.Executors = 1
	}
	if c.SpinCPU == nil {
		cpu := defaultSpinCPU
		c.SpinCPU = &cpu
	}
}

// defaultSpinCPU is the dispatcher's pin target when Config.SpinCPU is
// left nil.
const defaultSpinCPU = 2

// Scheduler is the QFQ-RL scheduler core: the group/slot store, the four
// eligibility bitmaps, the virtual-time engine, the class index, the
// per-executor activation queues and the dispatcher loop that owns all of
// it.
//
// Ownership, per spec §5: V, vDiffSum, tDiffSum, the bitmaps, groups,
// slot lists and every class's S/F/grp/invW/lmax/backlog membership are
// written only by the dispatcher goroutine. wsum and the class index are
// guarded by treeMu, taken by configuration paths (CreateClass,
// UpdateClass, DeleteClass) and read by the dispatcher only through
// values already baked into *Class.
type Scheduler struct {
	cfg Config

	// treeMu guards wsum and classes; configuration-path state.
	treeMu  sync.Mutex
	classes map[ClassID]*Class
	wsum    uint64

	// Dispatcher-exclusive state.
	groups     [MaxIndex + 1]*group
	bitmaps    stateBitmaps
	V          uint64
	vDiffSum   uint64
	tDiffSum   uint64
	vLastInit  time.Time
	wsumActive uint64
	backlog    int

	classifier *Classifier

	executors  []*executor
	workBitmap atomicBitmap

	closeSignal chan struct{}
	wg          sync.WaitGroup
	started     bool

	// commands carries CreateClass/UpdateClass/DeleteClass requests into
	// the dispatcher goroutine, since applying them touches groups,
	// bitmaps, and wsumActive (see classlifecycle.go).
	commands chan *classCommand

	// drops is the scheduler-wide ClassifyDrop+EnqueueDrop counter.
	drops atomic.Uint64
}

// Drops returns the total number of packets silently dropped at Enqueue,
// across both ClassifyDrop and EnqueueDrop causes.
func (s *Scheduler) Drops() uint64 {
	return s.drops.Load()
}

func (s *Scheduler) cmdCh() chan *classCommand {
	return s.commands
}

// NewScheduler builds a scheduler with MaxIndex+1 groups preallocated and
// an empty class index. Call Start to launch the dispatcher goroutine.
func NewScheduler(cfg Config) *Scheduler {
	cfg.setDefaults()

	s := &Scheduler{
		cfg:         cfg,
		classes:     make(map[ClassID]*Class),
		classifier:  newClassifier(),
		closeSignal: make(chan struct{}),
		commands:    make(chan *classCommand, 256),
	}
	for i := range s.groups {
		s.groups[i] = newGroup(i)
	}
	s.executors = make([]*executor, cfg.Executors)
	for i := range s.executors {
		s.executors[i] = newExecutor()
	}
	return s
}

// Start launches the dispatcher goroutine. Per the Open Question
// resolution in spec §9, v_last_updated (here vLastInit, tracked via
// time.Since) is initialized to now, at start time, not lazily on first
// dequeue.
func (s *Scheduler) Start() {
	if s.started {
		return
	}
	s.started = true
	s.vLastInit = time.Now()
	s.wg.Add(1)
	go s.runDispatcher()
}

// Stop cooperatively halts the dispatcher: a shutdown flag (closeSignal)
// is set and the dispatcher exits at its next loop iteration. Outstanding
// activation records are drained and freed.
func (s *Scheduler) Stop() {
	if !s.started {
		return
	}
	close(s.closeSignal)
	s.wg.Wait()
	var pending []activation
	for i, e := range s.executors {
		s.workBitmap.testAndClear(i)
		e.drain(&pending)
	}
	s.started = false
}

// Enqueue is the host-facing entry point: classify, push to the class's
// inner queue, and on a 0->1 transition post an activation record.
// Activation is never performed inline here — only the dispatcher calls
// Activate.
//
// Per spec §7, packet drops (ClassifyDrop, EnqueueDrop) are silent to the
// caller — accounted in s.drops and logged, but never returned as an
// error — while every other error kind surfaces directly.
func (s *Scheduler) Enqueue(executorID int, p Packet) error {
	classID, ok := s.classifier.Classify(p)
	if !ok {
		s.cfg.Logger.Warn("dropping packet: classify failed", "reason", dropClassify)
		s.drops.Add(1)
		return nil
	}

	s.treeMu.Lock()
	c, ok := s.classes[classID]
	s.treeMu.Unlock()
	if !ok {
		s.cfg.Logger.Warn("dropping packet: class not found", "class", classID)
		s.drops.Add(1)
		return nil
	}

	if !c.queue.Enqueue(p) {
		s.cfg.Logger.Warn("dropping packet: inner queue refused", "class", classID, "reason", dropEnqueueFailed)
		c.stats.recordDrop()
		s.drops.Add(1)
		return nil
	}

	if c.queue.Len() == 1 && !c.disabled() {
		s.postActivation(executorID, c, p.Len)
	}
	return nil
}

// Dequeue is the host qdisc contract's dequeue hook. Per spec §6 it is
// always a no-op that only signals throttle state: the dispatcher
// performs the real dequeue internally and submits packets directly to
// the Transmitter.
func (s *Scheduler) Dequeue() (Packet, bool) {
	return Packet{}, false
}

// Backlog reports the scheduler's qlen: the number of currently activated
// classes, not the number of queued packets (spec §4.6/SPEC_FULL.md
// "qlen accounting").
func (s *Scheduler) Backlog() int {
	return s.backlog
}

// WsumActive returns the sum of weights of every class whose inner queue
// is currently non-empty (invariant P3).
func (s *Scheduler) WsumActive() uint64 {
	return s.wsumActive
}
