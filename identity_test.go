package kokia

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_SnapshotHash_StableForSamePrefix(t *testing.T) {
	data := []byte("abcdefgh01234567")
	assert.Equal(t, snapshotHash(data), snapshotHash(data))
}

func Test_SnapshotHash_OnlyHashesPrefix(t *testing.T) {
	short := make([]byte, snapshotPrefixLen)
	long := append(append([]byte{}, short...), []byte("trailing garbage that must not matter")...)
	assert.Equal(t, snapshotHash(short), snapshotHash(long))
}

func Test_SnapshotHash_DiffersOnDifferentBytes(t *testing.T) {
	a := []byte("aaaaaaaaaaaaaaaa")
	b := []byte("bbbbbbbbbbbbbbbb")
	assert.NotEqual(t, snapshotHash(a), snapshotHash(b))
}

func Test_TypeHashOf_StableAndDistinct(t *testing.T) {
	assert.Equal(t, typeHashOf("FooFuture"), typeHashOf("FooFuture"))
	assert.NotEqual(t, typeHashOf("FooFuture"), typeHashOf("BarFuture"))
}

func Test_NewCallsiteId_DistinctOnFileOrLine(t *testing.T) {
	parent := TaskKey{ID: 1, TypeHash: 2, FirstSeen: time.Now()}
	a := newCallsiteId(parent, 0, "foo.rs", 10)
	b := newCallsiteId(parent, 0, "foo.rs", 11)
	c := newCallsiteId(parent, 0, "bar.rs", 10)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func Test_NewEdgeId_DistinctFromReversedEndpoints(t *testing.T) {
	parent := TaskKey{ID: 1, TypeHash: 10}
	child := TaskKey{ID: 2, TypeHash: 20}
	site := CallsiteId(7)

	forward := newEdgeId(parent, child, site)
	reversed := newEdgeId(child, parent, site)
	assert.NotEqual(t, forward, reversed)
}

func Test_NewEdgeId_IdempotentForSameTriple(t *testing.T) {
	parent := TaskKey{ID: 1, TypeHash: 10}
	child := TaskKey{ID: 2, TypeHash: 20}
	site := CallsiteId(7)

	assert.Equal(t, newEdgeId(parent, child, site), newEdgeId(parent, child, site))
}
