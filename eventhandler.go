package kokia

import (
	"errors"

	"go.uber.org/zap"
)

// InverseEntry and InverseExit are the inverse counterparts of PollEntry
// and PollExit, fed to the handler during time-travel replay (spec.md
// §6.1).
type InverseEntry struct {
	Thread ThreadID
	Task   TaskId
}

type InverseExit struct {
	Thread       ThreadID
	Task         TaskId
	WasCompleted bool
}

// PollEntry is the event raised when a generator-poll function is
// entered (spec.md §6).
type PollEntry struct {
	Thread ThreadID
	PC     Addr
	Regs   Registers
}

// PollExit is the event raised when a generator-poll function returns
// (spec.md §6). ReturnValue is the raw bytes of the poll result.
type PollExit struct {
	Thread      ThreadID
	PC          Addr
	Regs        Registers
	ReturnValue []byte
}

// ThreadStop is raised whenever a thread stops for any reason, driving
// an unconditional resync (spec.md §4.6).
type ThreadStop struct {
	Thread ThreadID
}

// argRegisterFor returns the DWARF register number carrying the first
// argument for the configured ABI. Only "sysv-amd64" and "arm64" are
// known here; any other ABI name falls back to register 0, and
// Config.Validate does not reject it.
func argRegisterFor(abi string) int {
	switch abi {
	case "sysv-amd64":
		return 5 // rdi, per the System V AMD64 calling convention.
	case "arm64":
		return 0 // x0
	default:
		return 0
	}
}

// handlePollEntry implements spec.md §4.7 on-poll-entry.
func (s *Session) handlePollEntry(e PollEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	argReg := argRegisterFor(s.cfg.ABI)
	selfAddr, ok := e.Regs.Values[argReg]
	if !ok {
		return ErrAbiMismatch
	}
	taskID := TaskId(selfAddr)

	snapshot, typeHash, typeName, gen, genErr := s.readGeneratorShape(taskID, e.PC)
	if errors.Is(genErr, ErrSkipType) {
		// The Layout Analyzer's deny list makes this generator type fully
		// transparent (spec.md §9): never mint a TaskKey, never edge it
		// to a parent, never push it onto the Poll Scope.
		s.metrics.incr(MetricSkippedTypes)
		return nil
	}
	if genErr == nil && typeName != "" {
		if err := checkSkipPolicy(s.policy, typeName); err != nil {
			s.metrics.incr(MetricSkippedTypes)
			return nil
		}
	}

	key := s.registry.resolveKey(taskID, typeHash, snapshot, now())
	isNewTask := !s.registry.contains(key)

	parent, hasParent := s.inferParent(e.Thread, e.PC)

	var callsite CallsiteId
	if hasParent {
		parentInfo, _ := s.registry.get(parent)
		var suspendIdx int64 = -1
		if parentInfo != nil && parentInfo.Discriminant != nil {
			suspendIdx = *parentInfo.Discriminant
		}
		file, line, _ := s.caps.DebugInfo.PCToSource(e.PC)
		callsite = newCallsiteId(parent, suspendIdx, file, line)
	}

	s.registry.upsert(key, func(ti *TaskInfo) {
		ti.LastSeen = now()
		ti.LastEntryPC = e.PC
		ti.LastThread = e.Thread
		if typeName != "" {
			ti.TypeName = typeName
		}
		if genErr == nil && gen != nil {
			if d, ok := s.readDiscriminant(taskID, gen); ok {
				ti.Discriminant = &d
			}
		}
		if !hasParent {
			ti.IsRoot = true
		}
	})
	if isNewTask {
		s.metrics.incr(MetricTasksCreated)
	}

	if hasParent {
		edgeID := newEdgeId(parent, key, callsite)
		_, edgeExisted := s.edges.byID[edgeID]
		s.edges.upsert(parent, key, callsite, now())
		if !edgeExisted {
			s.metrics.incr(MetricEdgesCreated)
		}
	}

	scope := s.scopeFor(e.Thread)
	scope.push(key)

	if lo, hi, ok := s.caps.DebugInfo.FunctionRange(e.PC); ok {
		s.installExitBreakpointsOnce(lo, hi)
	}

	s.log.Debug("poll-entry",
		zap.Uint64("thread", uint64(e.Thread)),
		zap.Uint64("task", uint64(taskID)),
		zap.Bool("has-parent", hasParent),
	)
	return nil
}

// handlePollExit implements spec.md §4.7 on-poll-exit.
func (s *Session) handlePollExit(e PollExit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	argReg := argRegisterFor(s.cfg.ABI)
	selfAddr, ok := e.Regs.Values[argReg]
	if !ok {
		return ErrAbiMismatch
	}
	taskID := TaskId(selfAddr)

	scope := s.scopeFor(e.Thread)
	expectedKey, hasExpected := s.registry.resolveKeyIfKnown(taskID)

	if !hasExpected {
		// An exit for a task we never matched to an entry: don't guess
		// which scope frame this corresponds to, let resync reconcile
		// against the live unwinder stack instead.
		s.resyncThread(e.Thread)
		return nil
	}

	_, mismatch, popped := scope.pop(expectedKey)
	if !popped || mismatch {
		s.resyncThread(e.Thread)
	}

	key := expectedKey

	ready, isReady := s.decodePollResult(e.ReturnValue, key)
	if isReady && ready {
		s.registry.markCompleted(key)
		s.metrics.incr(MetricTasksCompleted)
		if id, ok := s.edges.latestOpenEdgeForChild(key); ok {
			s.edges.markCompleted(id)
		}
		s.log.Debug("poll-exit ready", zap.Uint64("task", uint64(taskID)))
	}
	return nil
}

// handleThreadStop implements spec.md §4.7 on-thread-stop.
func (s *Session) handleThreadStop(e ThreadStop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resyncThread(e.Thread)
}

// resyncThread implements the resync procedure of spec.md §4.6. Caller
// must hold s.mu.
func (s *Session) resyncThread(thread ThreadID) {
	s.metrics.incr(MetricResyncs)

	frames, err := s.caps.Unwind.Frames(thread)
	if err != nil {
		s.log.Warn("resync: unwind failed", zap.Uint64("thread", uint64(thread)), zap.Error(err))
		return
	}

	argReg := argRegisterFor(s.cfg.ABI)
	actual := make([]TaskKey, 0, len(frames))
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		if !s.caps.Unwind.IsGeneratorPoll(f.PC) {
			continue
		}
		selfAddr, ok := f.Regs.Values[argReg]
		if !ok {
			continue
		}
		if key, ok := s.registry.resolveKeyIfKnown(TaskId(selfAddr)); ok {
			actual = append(actual, key)
		}
	}

	scope := s.scopeFor(thread)
	poppedTail := scope.resyncTo(actual)
	if len(poppedTail) > 0 {
		s.metrics.incr(MetricScopeMismatches)
		s.log.Warn("poll scope resynced", zap.Uint64("thread", uint64(thread)), zap.Int("divergent", len(poppedTail)))
	}
}

// inferParent implements the priority chain of spec.md §4.7 step 2.
func (s *Session) inferParent(thread ThreadID, pc Addr) (TaskKey, bool) {
	if s.cfg.ParentInference == "unwinder" {
		if key, ok := s.inferParentViaUnwinder(thread, pc); ok {
			return key, true
		}
	}
	if key, ok := s.scopeFor(thread).top(); ok {
		return key, true
	}
	return TaskKey{}, false
}

func (s *Session) inferParentViaUnwinder(thread ThreadID, pc Addr) (TaskKey, bool) {
	frames, err := s.caps.Unwind.Frames(thread)
	if err != nil {
		return TaskKey{}, false
	}
	argReg := argRegisterFor(s.cfg.ABI)
	for _, f := range frames {
		if f.PC == pc {
			continue
		}
		if !s.caps.Unwind.IsGeneratorPoll(f.PC) {
			continue
		}
		selfAddr, ok := f.Regs.Values[argReg]
		if !ok {
			continue
		}
		if key, ok := s.registry.resolveKeyIfKnown(TaskId(selfAddr)); ok {
			return key, true
		}
	}
	return TaskKey{}, false
}

// readGeneratorShape resolves the generator's type and layout and hashes
// a bounded memory prefix for identity purposes (spec.md §4.4). Any
// failure degrades gracefully per spec.md §4.7 "Failure semantics".
func (s *Session) readGeneratorShape(id TaskId, pc Addr) (snapshot uint64, typeHash uint64, typeName string, gen *GeneratorDescriptor, err error) {
	name, nok := s.caps.DebugInfo.GeneratorTypeName(pc)
	if !nok {
		return 0, 0, "", nil, ErrMissingDebugInfo
	}

	t, terr := s.caps.DebugInfo.TypeForSymbol(name)
	if terr != nil {
		return 0, 0, "", nil, terr
	}

	prefix, rerr := s.caps.Process.ReadMemory(Addr(id), snapshotPrefixLen)
	if rerr != nil {
		return 0, 0, "", nil, ErrUnreadableMemory
	}
	snapshot = snapshotHash(prefix)

	gen, gerr := s.layout.Resolve(t, name)
	if gerr != nil {
		return snapshot, 0, "", nil, gerr
	}
	typeName = gen.TypeName
	typeHash = typeHashOf(typeName)
	return snapshot, typeHash, typeName, gen, nil
}

// readDiscriminant reads the tag member described by gen's Discriminant
// field out of task's storage.
func (s *Session) readDiscriminant(id TaskId, gen *GeneratorDescriptor) (int64, bool) {
	d := gen.Discriminant
	b, err := s.caps.Process.ReadMemory(Addr(id)+Addr(d.Offset), int(d.Size))
	if err != nil {
		return 0, false
	}
	if d.Signed {
		return decodeSignedLE(b), true
	}
	return int64(decodeUnsignedLE(b)), true
}

// decodePollResult interprets the poll return value as the two-variant
// pending/ready sum (spec.md §4.7 step 2 of on-poll-exit). The
// convention here follows the teacher's tolerant-decode style: an empty
// or too-short payload is treated as "still pending" rather than an
// error, since many ABIs elide a zero discriminant.
func (s *Session) decodePollResult(raw []byte, key TaskKey) (ready bool, ok bool) {
	if len(raw) == 0 {
		return false, true
	}
	tag := raw[0]
	return tag != 0, true
}

func (s *Session) scopeFor(thread ThreadID) *PollScope {
	ps, ok := s.scopes[thread]
	if !ok {
		ps = newPollScope()
		s.scopes[thread] = ps
	}
	return ps
}

func (s *Session) installExitBreakpointsOnce(lo, hi Addr) {
	key := uint64(lo)<<32 | uint64(hi&0xffffffff)
	if s.installedBreakpoints[key] {
		return
	}
	sites, err := s.caps.Process.EnumerateReturnSites(lo, hi)
	if err != nil {
		s.log.Warn("enumerate return sites failed", zap.Error(err))
		return
	}
	for _, addr := range sites {
		if err := s.caps.Process.InstallBreakpoint(addr); err != nil {
			s.log.Warn("install exit breakpoint failed", zap.Uint64("addr", uint64(addr)), zap.Error(err))
		}
	}
	s.installedBreakpoints[key] = true
}

// HandleInversePollEntry implements spec.md §6.1: it undoes a prior
// forward poll-entry for time-travel replay.
func (s *Session) HandleInversePollEntry(e InverseEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.registry.resolveKeyIfKnown(e.Task)
	if !ok {
		return
	}
	scope := s.scopeFor(e.Thread)
	scope.pop(key)
}

// HandleInversePollExit implements spec.md §6.1: it restores the
// pre-exit completion state.
func (s *Session) HandleInversePollExit(e InverseExit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.registry.resolveKeyIfKnown(e.Task)
	if !ok {
		return
	}
	scope := s.scopeFor(e.Thread)
	scope.push(key)

	if !e.WasCompleted {
		s.registry.unmarkCompleted(key)
		// The forward exit completed at most one edge into key; undo the
		// most recently seen completed one.
		var latest *Edge
		for _, id := range s.edges.byChild[key] {
			if ed := s.edges.byID[id]; ed.Completed && (latest == nil || ed.LastSeen.After(latest.LastSeen)) {
				latest = ed
			}
		}
		if latest != nil {
			s.edges.unmarkCompleted(latest.ID)
		}
	}
}
