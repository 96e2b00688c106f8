package qfqrl

import "errors"

// Error kinds from spec §7. These are returned from configuration and
// lifecycle operations; packet drops (ClassifyDrop, EnqueueDrop) are never
// returned to a caller and are instead accounted in statistics and logged.
var (
	// ErrInvalidWeight is returned when a class's weight exceeds
	// 2^MaxWShift. A zero weight is accepted as a request to disable the
	// class.
	ErrInvalidWeight = errors.New("qfqrl: invalid weight")

	// ErrInvalidLmax is returned when a class's lmax is zero or exceeds
	// 2^MTUShift.
	ErrInvalidLmax = errors.New("qfqrl: invalid lmax")

	// ErrWsumExceeded is returned when admitting or updating a class
	// would push the total admitted weight above 2*2^MaxWShift.
	ErrWsumExceeded = errors.New("qfqrl: weight sum exceeded")

	// ErrClassBusy is returned when deleting a class that still has
	// filters bound to it.
	ErrClassBusy = errors.New("qfqrl: class busy")

	// ErrClassNotFound is returned by class lookups for an unknown
	// classid.
	ErrClassNotFound = errors.New("qfqrl: class not found")

	// ErrClassExists is returned by CreateClass when the classid is
	// already registered.
	ErrClassExists = errors.New("qfqrl: class already exists")
)

// dropReason is a ClassifyDrop/EnqueueDrop accounting tag, logged and
// counted but never surfaced to callers. Modeled on the teacher's
// DropReason/OnDrop pattern (router.go). It implements error, but
// Enqueue only passes it to the logger and always returns nil for a drop.
type dropReason string

const (
	dropClassify      dropReason = "no class matched or filter shot"
	dropEnqueueFailed dropReason = "inner queue refused packet"
)

func (r dropReason) Error() string { return string(r) }
