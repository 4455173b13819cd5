package kokia

import "time"

// Edge is a first-class record of "parent has awaited child at callsite"
// (spec.md §3). Invariant: at most one Edge per (parent, child, callsite)
// triple; a parent may have multiple Edges to the same child across
// distinct callsites (branching combinators).
type Edge struct {
	ID        EdgeId
	Parent    TaskKey
	Child     TaskKey
	Callsite  CallsiteId
	FirstSeen time.Time
	LastSeen  time.Time
	Completed bool
}

// EdgeStore is the Edge Store (C5): it exclusively owns Edges (spec.md
// §3 "Ownership"). Edges are indexed by their ID and additionally by
// parent/child for the query() filters.
//
// The store does not enforce acyclicity structurally (spec.md §9): time
// travel replay can produce edges that look reversed if inverse events
// are mishandled, so acyclicity is left as a queryable property via
// hasCycle rather than rejected at upsert time.
type EdgeStore struct {
	byID     map[EdgeId]*Edge
	byParent map[TaskKey][]EdgeId
	byChild  map[TaskKey][]EdgeId
}

func newEdgeStore() *EdgeStore {
	return &EdgeStore{
		byID:     make(map[EdgeId]*Edge),
		byParent: make(map[TaskKey][]EdgeId),
		byChild:  make(map[TaskKey][]EdgeId),
	}
}

// upsert is idempotent per (parent, child, callsite): a reappearance of
// the same triple only advances last-seen (spec.md §4.5, R1).
func (s *EdgeStore) upsert(parent, child TaskKey, site CallsiteId, at time.Time) EdgeId {
	id := newEdgeId(parent, child, site)

	e, ok := s.byID[id]
	if !ok {
		e = &Edge{
			ID:        id,
			Parent:    parent,
			Child:     child,
			Callsite:  site,
			FirstSeen: at,
			LastSeen:  at,
		}
		s.byID[id] = e
		s.byParent[parent] = append(s.byParent[parent], id)
		s.byChild[child] = append(s.byChild[child], id)
		return id
	}

	e.LastSeen = at
	return id
}

// markCompleted sets Completed monotonically true in forward execution
// (spec.md §4.5). Under time-travel rewind, unmarkCompleted restores the
// prior value (spec.md §5).
func (s *EdgeStore) markCompleted(id EdgeId) {
	if e, ok := s.byID[id]; ok {
		e.Completed = true
	}
}

func (s *EdgeStore) unmarkCompleted(id EdgeId) {
	if e, ok := s.byID[id]; ok {
		e.Completed = false
	}
}

// latestOpenEdgeForChild returns the most recently upserted, not-yet
// completed edge terminating at child, used by on-poll-exit to decide
// which edge a Ready result should complete.
func (s *EdgeStore) latestOpenEdgeForChild(child TaskKey) (EdgeId, bool) {
	ids := s.byChild[child]
	var best EdgeId
	var bestTime time.Time
	found := false
	for _, id := range ids {
		e := s.byID[id]
		if e.Completed {
			continue
		}
		if !found || e.LastSeen.After(bestTime) {
			best = id
			bestTime = e.LastSeen
			found = true
		}
	}
	return best, found
}

// query implements edges(parent?, child?, completed?) (spec.md §6).
// A nil filter means "any".
func (s *EdgeStore) query(parent, child *TaskKey, completed *bool) []Edge {
	var candidates []EdgeId
	switch {
	case parent != nil:
		candidates = s.byParent[*parent]
	case child != nil:
		candidates = s.byChild[*child]
	default:
		candidates = make([]EdgeId, 0, len(s.byID))
		for id := range s.byID {
			candidates = append(candidates, id)
		}
	}

	out := make([]Edge, 0, len(candidates))
	for _, id := range candidates {
		e := s.byID[id]
		if parent != nil && e.Parent != *parent {
			continue
		}
		if child != nil && e.Child != *child {
			continue
		}
		if completed != nil && e.Completed != *completed {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// hasCycle reports whether the edge set, taken as a directed graph over
// TaskKeys, contains a cycle. Acyclicity is not enforced structurally
// (spec.md §9); this is an on-demand check a caller (e.g. a consistency
// test, or a REPL sanity command) can invoke.
func (s *EdgeStore) hasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[TaskKey]int)
	adj := make(map[TaskKey][]TaskKey)
	for _, e := range s.byID {
		adj[e.Parent] = append(adj[e.Parent], e.Child)
	}

	var visit func(TaskKey) bool
	visit = func(n TaskKey) bool {
		color[n] = gray
		for _, m := range adj[n] {
			switch color[m] {
			case gray:
				return true
			case white:
				if visit(m) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}

	for n := range adj {
		if color[n] == white {
			if visit(n) {
				return true
			}
		}
	}
	return false
}

// gc drops every edge whose parent or child is no longer in the registry, pruned
// alongside the Registry's own gc (spec.md §5 "Resource bounds").
func (s *EdgeStore) gc(reg *Registry) {
	for id, e := range s.byID {
		if reg.contains(e.Parent) && reg.contains(e.Child) {
			continue
		}
		delete(s.byID, id)
		s.byParent[e.Parent] = removeID(s.byParent[e.Parent], id)
		s.byChild[e.Child] = removeID(s.byChild[e.Child], id)
	}
}

func removeID(ids []EdgeId, target EdgeId) []EdgeId {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
