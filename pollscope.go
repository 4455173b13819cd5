package kokia

// PollScope is the per-OS-thread nesting of currently-running polls
// (spec.md §3/§4.6): an ordered sequence of TaskKeys, bottom = outermost
// polled, top = currently running.
type PollScope struct {
	stack []TaskKey
}

func newPollScope() *PollScope {
	return &PollScope{}
}

func (ps *PollScope) push(key TaskKey) {
	ps.stack = append(ps.stack, key)
}

// pop removes the top entry and reports whether it matches expected,
// mirroring the teacher's region-stack pop-and-verify pattern.
func (ps *PollScope) pop(expected TaskKey) (popped TaskKey, mismatch bool, ok bool) {
	n := len(ps.stack)
	if n == 0 {
		return TaskKey{}, true, false
	}
	top := ps.stack[n-1]
	ps.stack = ps.stack[:n-1]
	return top, top != expected, true
}

func (ps *PollScope) top() (TaskKey, bool) {
	n := len(ps.stack)
	if n == 0 {
		return TaskKey{}, false
	}
	return ps.stack[n-1], true
}

func (ps *PollScope) depth() int { return len(ps.stack) }

// snapshot returns the scope innermost-first, matching
// logical-backtrace's required ordering (spec.md §6).
func (ps *PollScope) snapshot() []TaskKey {
	out := make([]TaskKey, len(ps.stack))
	for i, k := range ps.stack {
		out[len(ps.stack)-1-i] = k
	}
	return out
}

// popAll forcibly empties the scope, e.g. on thread_exit equivalent
// cleanup, mirroring popAllRegionStack in the teacher.
func (ps *PollScope) popAll() []TaskKey {
	popped := append([]TaskKey(nil), ps.stack...)
	ps.stack = ps.stack[:0]
	return popped
}

// longestCommonPrefix returns the length of the shared prefix between
// the current stack and actual (outermost-first), used by resync
// (spec.md §4.6 step 3).
func (ps *PollScope) longestCommonPrefix(actual []TaskKey) int {
	n := len(ps.stack)
	if len(actual) < n {
		n = len(actual)
	}
	i := 0
	for i < n && ps.stack[i] == actual[i] {
		i++
	}
	return i
}

// resyncTo replaces the scope's contents with actual (outermost-first),
// returning the divergent tail that was popped (each treated as an
// unobserved exit, not marked completed, per spec.md §4.6 step 3).
func (ps *PollScope) resyncTo(actual []TaskKey) (poppedTail []TaskKey) {
	lcp := ps.longestCommonPrefix(actual)
	poppedTail = append([]TaskKey(nil), ps.stack[lcp:]...)
	ps.stack = append(ps.stack[:lcp:lcp], actual[lcp:]...)
	return poppedTail
}
