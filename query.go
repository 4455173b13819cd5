package kokia

// decodeValue renders loc (typed as typ) through s.decoder, narrowing
// the decode budget via any attached DecodePolicy keyed on typ's own
// declared name (SPEC_FULL.md §4.9, decode_policy.go). With no policy
// attached, LevelFor's nil-receiver default leaves the base limits
// untouched.
func (s *Session) decodeValue(loc Location, typ TypeRef, mem MemoryReader) string {
	limits := limitsForLevel(s.cfg.limits(), s.policy.LevelFor(typeNameOf(typ)))
	return s.decoder.DecodeWithLimits(loc, typ, mem, limits)
}

// LogicalBacktrace returns the thread's active Poll Scope, innermost
// first, or an empty slice if the thread has no active poll (spec.md
// §6).
func (s *Session) LogicalBacktrace(thread ThreadID) []TaskId {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope, ok := s.scopes[thread]
	if !ok {
		return nil
	}
	keys := scope.snapshot()
	out := make([]TaskId, len(keys))
	for i, k := range keys {
		out[i] = k.ID
	}
	return out
}

// TaskList returns a snapshot of every TaskInfo the Registry currently
// holds (spec.md §6).
func (s *Session) TaskList() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.snapshot()
}

// Edges returns the Edges matching the given filters; a nil pointer
// means "any" for that filter (spec.md §6).
func (s *Session) Edges(parent, child *TaskKey, completed *bool) []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edges.query(parent, child, completed)
}

// Where returns the (file, line, suspend-index) of a task's last known
// entry point, if known (spec.md §6).
func (s *Session) Where(task TaskKey) (file string, line int, suspendIndex int64, ok bool) {
	s.mu.Lock()
	ti, found := s.registry.get(task)
	var pc Addr
	if found {
		pc = ti.LastEntryPC
	}
	s.mu.Unlock()

	if !found {
		return "", 0, 0, false
	}

	f, l, lok := s.caps.DebugInfo.PCToSource(pc)
	idx := int64(-1)
	if ti.Discriminant != nil {
		idx = *ti.Discriminant
	}
	return f, l, idx, lok
}

// LocalVariable is one entry of LocalsHere's merged result.
type LocalVariable struct {
	Name          string // debug-info name, wins per P7
	SecondaryName string // raw generator field name, when it differs
	Display       string
}

// LocalsHere describes the current stop point on thread: variables in
// the current frame (§4.2/§4.3), merged with the active generator
// variant's fields at the same address. Debug-info names take
// precedence; the generator field name is attached as a secondary label
// only when it differs (spec.md §6, P7).
func (s *Session) LocalsHere(thread ThreadID) ([]LocalVariable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, err := s.caps.Process.CurrentPC(thread)
	if err != nil {
		return nil, ErrUnreadableMemory
	}
	regs, err := s.caps.Process.ReadRegisters(thread)
	if err != nil {
		return nil, ErrUnreadableMemory
	}

	scopedVars, err := s.caps.DebugInfo.VariablesInScope(pc)
	if err != nil {
		return nil, ErrMissingDebugInfo
	}

	mem := func(addr Addr, length int) ([]byte, error) {
		return s.caps.Process.ReadMemory(addr, length)
	}

	byAddr := make(map[Addr]int)
	// byName holds debug-info variables with no live location in this
	// frame (empty expression, or evaluation failure). A variable that
	// only lives inside the generator's captured state across an .await
	// has no frame address to key on, so it can only be reunited with
	// its generator-variant field by name (spec.md scenario 7, P7).
	byName := make(map[string]int)
	out := make([]LocalVariable, 0, len(scopedVars))

	for _, sv := range scopedVars {
		loc, err := s.locEval.Evaluate(sv.Location, pc, regs, mem)
		var display string
		if err != nil {
			display = "<optimized out>"
			s.metrics.incr(MetricOptimizedOut)
		} else {
			display = s.decodeValue(loc, sv.Type, mem)
		}
		lv := LocalVariable{Name: sv.Name, Display: display}
		out = append(out, lv)
		switch loc.Kind {
		case LocationAddress:
			byAddr[loc.Address] = len(out) - 1
		case LocationEmpty:
			byName[sv.Name] = len(out) - 1
		}
	}

	scope, hasScope := s.scopes[thread]
	if !hasScope || scope.depth() == 0 {
		return out, nil
	}
	top, ok := scope.top()
	if !ok {
		return out, nil
	}
	ti, ok := s.registry.get(top)
	if !ok || ti.Discriminant == nil {
		return out, nil
	}

	selfAddr := Addr(top.ID)
	t, terr := s.caps.DebugInfo.TypeForSymbol(ti.TypeName)
	if terr != nil {
		return out, nil
	}
	gen, gerr := s.layout.Resolve(t, ti.TypeName)
	if gerr != nil {
		return out, nil
	}
	variant, ok := gen.VariantFor(*ti.Discriminant)
	if !ok {
		return out, nil
	}

	for _, f := range variant.Fields {
		fieldAddr := selfAddr + Addr(f.Offset)
		loc := Location{Kind: LocationAddress, Address: fieldAddr, Size: int(f.Size)}

		if idx, ok := byAddr[fieldAddr]; ok {
			if out[idx].Name != f.RawName {
				out[idx].SecondaryName = f.RawName
			}
			continue
		}
		if idx, ok := byName[f.NormalizedName]; ok {
			out[idx].Display = s.decodeValue(loc, f.Type, mem)
			continue
		}

		display := s.decodeValue(loc, f.Type, mem)
		out = append(out, LocalVariable{Name: f.NormalizedName, Display: display})
	}

	return out, nil
}
