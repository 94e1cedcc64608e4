package h5mobaku

import "errors"

// Sentinel error families. Callers test with errors.Is. The store façade
// wraps the failures it classifies itself (unknown mesh keys, a missing
// meshid_list or cmph_data object, unparseable or pre-epoch datetimes,
// writes on a read-only
// store, integrity failures on open) against one of these; errors that it
// passes through from the internal packages, such as
// matrix.ErrOutOfBounds, are not wrapped.
var (
	// ErrNotFound covers an unknown mesh key, a missing store object, or a
	// virtual-mapping source that does not exist.
	ErrNotFound = errors.New("h5mobaku: not found")
	// ErrInvalidInput covers unparseable datetimes, datetimes before the
	// store epoch, malformed CSV records/headers, and out-of-range fields.
	ErrInvalidInput = errors.New("h5mobaku: invalid input")
	// ErrReadOnly covers a write attempted against a read-only handle.
	ErrReadOnly = errors.New("h5mobaku: store is read-only")
	// ErrResourceExhausted names the resource-failure family (buffer
	// allocation, enqueue on a closed queue). No function in this module
	// returns it; workqueue.ErrClosed is returned unwrapped.
	ErrResourceExhausted = errors.New("h5mobaku: resource exhausted")
	// ErrCorrupt covers an I3 integrity-check failure on open: the
	// universe list and the minimal perfect hash disagree.
	ErrCorrupt = errors.New("h5mobaku: store integrity check failed")
)
