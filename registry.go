package kokia

import "time"

// TaskInfo is the per-live-task record owned exclusively by the
// Registry (spec.md §3/§4.4).
type TaskInfo struct {
	Key TaskKey

	TypeName string // optional human-readable generator type name

	FirstSeen time.Time
	LastSeen  time.Time

	Discriminant    *int64 // current discriminant, if ever observed
	LastEntryPC     Addr   // last instruction pointer seen at entry
	LastThread      ThreadID

	IsRoot      bool
	IsCompleted bool
}

// Registry is the Task Registry (C4): it keeps the observed population
// of tasks, exclusively owning TaskInfo (spec.md §3 "Ownership").
type Registry struct {
	byKey map[TaskKey]*TaskInfo
	// byID indexes the most recent TaskKey seen for a given TaskId, so
	// that a bare address (as delivered by poll-entry events) can be
	// resolved to its current incarnation's key.
	byID map[TaskId]TaskKey
}

func newRegistry() *Registry {
	return &Registry{
		byKey: make(map[TaskKey]*TaskInfo),
		byID:  make(map[TaskId]TaskKey),
	}
}

// resolveKey implements the identity rule of spec.md §4.4: a new TaskId
// whose (type-hash, initial-snapshot-hash) differs from a completed prior
// record at the same address produces a new TaskKey; otherwise the prior
// key is reused.
func (r *Registry) resolveKey(id TaskId, typeHash uint64, snapshot uint64, at time.Time) TaskKey {
	prevKey, ok := r.byID[id]
	if !ok {
		key := TaskKey{ID: id, TypeHash: typeHash, FirstSeen: at, InitialSnapshot: snapshot}
		r.byID[id] = key
		return key
	}

	prev, ok := r.byKey[prevKey]
	if !ok {
		// Prior key was recorded but evicted (e.g. by gc); treat as fresh.
		key := TaskKey{ID: id, TypeHash: typeHash, FirstSeen: at, InitialSnapshot: snapshot}
		r.byID[id] = key
		return key
	}

	if !prev.IsCompleted {
		// Still-live task polled again at the same address: same key.
		return prevKey
	}

	if prevKey.TypeHash == typeHash && prevKey.InitialSnapshot == snapshot {
		// Benign re-entry of the very same lifetime's identity.
		return prevKey
	}

	// Address reuse by the allocator for a genuinely different task
	// (P5): mint a new key and let the old one age out via gc.
	key := TaskKey{ID: id, TypeHash: typeHash, FirstSeen: at, InitialSnapshot: snapshot}
	r.byID[id] = key
	return key
}

// resolveKeyIfKnown looks up the current TaskKey for id without minting
// a new one, used by exit/resync paths that must not fabricate identity
// for a task they never saw enter.
func (r *Registry) resolveKeyIfKnown(id TaskId) (TaskKey, bool) {
	key, ok := r.byID[id]
	return key, ok
}

// upsert creates or mutates the TaskInfo for key, applying mutator to it.
func (r *Registry) upsert(key TaskKey, mutator func(*TaskInfo)) *TaskInfo {
	ti, ok := r.byKey[key]
	if !ok {
		ti = &TaskInfo{Key: key, FirstSeen: key.FirstSeen}
		r.byKey[key] = ti
	}
	mutator(ti)
	return ti
}

func (r *Registry) get(key TaskKey) (*TaskInfo, bool) {
	ti, ok := r.byKey[key]
	return ti, ok
}

func (r *Registry) contains(key TaskKey) bool {
	_, ok := r.byKey[key]
	return ok
}

func (r *Registry) markRoot(key TaskKey) {
	r.upsert(key, func(ti *TaskInfo) { ti.IsRoot = true })
}

func (r *Registry) markCompleted(key TaskKey) {
	r.upsert(key, func(ti *TaskInfo) { ti.IsCompleted = true })
}

// unmarkCompleted restores the pre-completion state; used only by
// inverse (time-travel) events (spec.md §5).
func (r *Registry) unmarkCompleted(key TaskKey) {
	if ti, ok := r.byKey[key]; ok {
		ti.IsCompleted = false
	}
}

// gc discards completed tasks whose LastSeen is older than the cutoff
// (spec.md §4.4, §5 "Resource bounds").
func (r *Registry) gc(cutoff time.Time) {
	for key, ti := range r.byKey {
		if ti.IsCompleted && ti.LastSeen.Before(cutoff) {
			delete(r.byKey, key)
			if r.byID[key.ID] == key {
				delete(r.byID, key.ID)
			}
		}
	}
}

// snapshot returns a copy of every TaskInfo currently held, for
// task-list() (spec.md §6). Copies are shallow-value so callers cannot
// mutate Registry state through the returned slice.
func (r *Registry) snapshot() []TaskInfo {
	out := make([]TaskInfo, 0, len(r.byKey))
	for _, ti := range r.byKey {
		out = append(out, *ti)
	}
	return out
}
