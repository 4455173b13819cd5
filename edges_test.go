package kokia

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_EdgeStore_Upsert_SameTripleOnlyAdvancesLastSeen(t *testing.T) {
	s := newEdgeStore()
	parent := TaskKey{ID: 1, TypeHash: 1}
	child := TaskKey{ID: 2, TypeHash: 2}
	site := CallsiteId(9)

	t0 := time.Now()
	id1 := s.upsert(parent, child, site, t0)
	id2 := s.upsert(parent, child, site, t0.Add(time.Second))

	assert.Equal(t, id1, id2)
	assert.Len(t, s.byID, 1)
	assert.Equal(t, t0.Add(time.Second), s.byID[id1].LastSeen)
	assert.Equal(t, t0, s.byID[id1].FirstSeen)
}

func Test_EdgeStore_MarkCompleted_IsMonotonicUnlessUnmarked(t *testing.T) {
	s := newEdgeStore()
	parent := TaskKey{ID: 1, TypeHash: 1}
	child := TaskKey{ID: 2, TypeHash: 2}
	id := s.upsert(parent, child, CallsiteId(1), time.Now())

	s.markCompleted(id)
	assert.True(t, s.byID[id].Completed)

	s.unmarkCompleted(id)
	assert.False(t, s.byID[id].Completed)
}

func Test_EdgeStore_LatestOpenEdgeForChild_PicksMostRecentNonCompleted(t *testing.T) {
	s := newEdgeStore()
	child := TaskKey{ID: 99, TypeHash: 1}

	p1 := TaskKey{ID: 1, TypeHash: 1}
	p2 := TaskKey{ID: 2, TypeHash: 1}

	t0 := time.Now()
	id1 := s.upsert(p1, child, CallsiteId(1), t0)
	id2 := s.upsert(p2, child, CallsiteId(2), t0.Add(time.Second))

	got, ok := s.latestOpenEdgeForChild(child)
	assert.True(t, ok)
	assert.Equal(t, id2, got)

	s.markCompleted(id2)
	got, ok = s.latestOpenEdgeForChild(child)
	assert.True(t, ok)
	assert.Equal(t, id1, got)
}

func Test_EdgeStore_Query_FiltersByParentChildCompleted(t *testing.T) {
	s := newEdgeStore()
	a := TaskKey{ID: 1, TypeHash: 1}
	b := TaskKey{ID: 2, TypeHash: 1}
	c := TaskKey{ID: 3, TypeHash: 1}

	s.upsert(a, b, CallsiteId(1), time.Now())
	id2 := s.upsert(b, c, CallsiteId(2), time.Now())
	s.markCompleted(id2)

	onlyParentA := s.query(&a, nil, nil)
	assert.Len(t, onlyParentA, 1)

	completed := true
	onlyCompleted := s.query(nil, nil, &completed)
	assert.Len(t, onlyCompleted, 1)
	assert.Equal(t, id2, onlyCompleted[0].ID)
}

func Test_EdgeStore_HasCycle_DetectsCycleButNotChain(t *testing.T) {
	s := newEdgeStore()
	a := TaskKey{ID: 1, TypeHash: 1}
	b := TaskKey{ID: 2, TypeHash: 1}
	c := TaskKey{ID: 3, TypeHash: 1}

	s.upsert(a, b, CallsiteId(1), time.Now())
	s.upsert(b, c, CallsiteId(2), time.Now())
	assert.False(t, s.hasCycle())

	s.upsert(c, a, CallsiteId(3), time.Now())
	assert.True(t, s.hasCycle())
}

func Test_EdgeStore_Gc_DropsEdgesReferencingGoneTasks(t *testing.T) {
	s := newEdgeStore()
	r := newRegistry()

	a := r.resolveKey(TaskId(1), 1, 1, time.Now())
	b := r.resolveKey(TaskId(2), 1, 1, time.Now())
	r.upsert(a, func(ti *TaskInfo) {})
	r.upsert(b, func(ti *TaskInfo) {})

	s.upsert(a, b, CallsiteId(1), time.Now())

	delete(r.byKey, b)
	s.gc(r)

	assert.Empty(t, s.byID)
}
