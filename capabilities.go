package kokia

import "time"

// ThreadID identifies an OS thread in the debugged process.
type ThreadID uint64

// Addr is an address in the debugged process's address space.
type Addr uint64

// TypeRef is an opaque handle to a type description in the debug-info
// oracle. It is only meaningful to the DebugInfoOracle that produced it.
type TypeRef interface{}

// Registers is a live snapshot of a thread's general-purpose registers,
// keyed by the DWARF register number for the target ABI. Register
// numbering is the process backend's/unwinder's concern; the core
// indexes this map by argRegisterFor's result and by the base-register
// operands (DW_OP_breg*) of location expressions.
type Registers struct {
	PC      Addr
	FrameBase Addr
	Values  map[int]uint64
}

// Frame is one entry in a physical call stack, as produced by the
// Unwinder. FrameBase is whatever the unwinder considers the DWARF frame
// base for that frame (CFA or similar). Regs carries the register set the
// unwinder recovered for that specific frame (e.g. via CFI), not the live
// CPU state; reading an ancestor frame's self-argument requires this,
// since only the innermost frame's registers are still live in the CPU.
type Frame struct {
	PC        Addr
	FrameBase Addr
	Regs      Registers
}

// ProcessBackend is the subset of process-control capabilities the core
// consumes. It never owns the debuggee; it is a thin capability set
// supplied by the external process-control layer (spec.md §6).
type ProcessBackend interface {
	ReadMemory(addr Addr, length int) ([]byte, error)
	ReadRegisters(thread ThreadID) (Registers, error)
	InstallBreakpoint(addr Addr) error
	EnumerateReturnSites(funcLo, funcHi Addr) ([]Addr, error)
	CurrentPC(thread ThreadID) (Addr, error)
}

// DebugInfoOracle is the subset of debug-info capabilities the core
// consumes.
type DebugInfoOracle interface {
	TypeForSymbol(namePattern string) (TypeRef, error)
	FunctionRange(pc Addr) (lo, hi Addr, ok bool)
	PCToSource(pc Addr) (file string, line int, ok bool)
	VariablesInScope(pc Addr) ([]ScopedVariable, error)
	ResolveGenerator(t TypeRef) (*GeneratorDescriptor, error)

	// GeneratorTypeName returns the declared name of the generator type
	// whose poll function contains pc, e.g. the DWARF name of the self
	// parameter's pointee. Callers need this before they can look up the
	// TypeRef itself, since TypeForSymbol takes the name as input.
	GeneratorTypeName(pc Addr) (name string, ok bool)

	// SymbolForAddress resolves a raw address (a function pointer, or a
	// vtable entry in a dynamic-dispatch pointer pair) to a symbolic
	// name, when debug info can recover one. Used by the Value Decoder
	// for best-effort pointer/vtable symbolization (spec.md §4.3); never
	// required for correctness, only for a friendlier display value.
	SymbolForAddress(addr Addr) (name string, ok bool)
}

// ScopedVariable is one entry of the debug-info oracle's answer to
// "what's in scope at this PC".
type ScopedVariable struct {
	Name     string
	Location LocationExpr
	Type     TypeRef
}

// Unwinder is the subset of stack-unwinding capabilities the core
// consumes.
type Unwinder interface {
	Frames(thread ThreadID) ([]Frame, error)
	IsGeneratorPoll(pc Addr) bool
}

// Capabilities bundles the three external collaborator sets a Session
// is constructed with. Kept as one small struct (rather than a single
// mega-interface) so test doubles can supply only what a given test
// needs.
type Capabilities struct {
	Process   ProcessBackend
	DebugInfo DebugInfoOracle
	Unwind    Unwinder
}

// ReadReason annotates why a decoder or evaluator is reading memory, for
// budget accounting and logging.
type ReadReason string

const (
	ReadReasonDiscriminant ReadReason = "discriminant"
	ReadReasonField        ReadReason = "field"
	ReadReasonPollResult   ReadReason = "poll-result"
)

// now is a seam for tests; production code always uses time.Now.
var now = time.Now
