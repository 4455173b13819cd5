package kokia

import "errors"

// Some generator types we never want to track as tasks at all: a
// compiler-synthesized combinator used by the concurrency runtime's own
// plumbing (e.g. a timer/select trampoline) would otherwise flood the
// registry with noise no user asked to see. Rather than decode it at a
// reduced level and still pay registry/edge bookkeeping, we reject it
// outright as soon as the Layout Analyzer identifies it.

// SkippedGeneratorError reports that a generator type was rejected from
// tracking by the decode policy's explicit "dl:skip" level, not by a
// failure. Types on Config.DenyList are rejected earlier, by the Layout
// Analyzer's ErrSkipType.
type SkippedGeneratorError struct {
	Err      error
	TypeName string
}

func (sge *SkippedGeneratorError) Error() string {
	return sge.Err.Error()
}

// checkSkipPolicy rejects a generator type outright when the decode
// policy maps it to DecodeLevelSkip, sparing the Task Registry and Edge
// Store any bookkeeping for it.
func checkSkipPolicy(policy *DecodePolicy, typeName string) error {
	if policy == nil {
		return nil
	}
	if policy.LevelFor(typeName) == DecodeLevelSkip {
		return &SkippedGeneratorError{
			Err:      errors.New("rejecting tracking for skipped generator type: " + typeName),
			TypeName: typeName,
		}
	}
	return nil
}
