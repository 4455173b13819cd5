package kokia

import "errors"

// Error taxonomy (spec.md §7). Every kind except ErrFatal is recovered
// locally by the component that hits it; the event handler always
// completes. Callers that want to distinguish a kind use errors.Is.
var (
	// ErrUnreadableMemory: a read crossed into an unmapped/protected region.
	ErrUnreadableMemory = errors.New("kokia: unreadable memory")

	// ErrMissingDebugInfo: a needed descriptor is absent.
	ErrMissingDebugInfo = errors.New("kokia: missing debug info")

	// ErrOptimizedOut: a location expression evaluated to empty.
	ErrOptimizedOut = errors.New("kokia: optimized out")

	// ErrAbiMismatch: the poll-result sum type could not be identified.
	ErrAbiMismatch = errors.New("kokia: abi mismatch decoding poll result")

	// ErrScopeDesync: observed and actual stack diverged; always handled
	// internally via resync and never surfaced past the event handler.
	ErrScopeDesync = errors.New("kokia: poll scope desync")

	// ErrBudgetExceeded: a decoder cap was hit; output was truncated.
	ErrBudgetExceeded = errors.New("kokia: decode budget exceeded")

	// ErrNotAGenerator: the Layout Analyzer was asked to resolve a type
	// that is not a generator (state-machine) shape.
	ErrNotAGenerator = errors.New("kokia: not a generator type")

	// ErrUnsupportedOpcode: the Location Evaluator hit a location
	// expression opcode it does not implement.
	ErrUnsupportedOpcode = errors.New("kokia: unsupported location opcode")

	// ErrSkipType: the type is on the Layout Analyzer's deny-list (e.g. a
	// compiler-synthesized combinator/trampoline type transparent to the
	// task graph per spec.md §9's intermediate-frames design note).
	ErrSkipType = errors.New("kokia: type intentionally not tracked")

	// ErrFatal is reserved for programmer errors inside the core itself;
	// it is never produced by observing the debugged process. The core
	// still returns it rather than panicking.
	ErrFatal = errors.New("kokia: internal invariant violation")
)
