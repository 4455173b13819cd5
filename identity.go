package kokia

import (
	"crypto/sha256"
	"encoding/binary"
	"time"
)

// TaskId is the address of the generator object being polled: the
// runtime identity of a polled generator for the duration of one
// lifetime (spec.md §3).
type TaskId Addr

// TaskKey augments a TaskId with type and snapshot hashes so that
// address reuse by the allocator produces a distinct identity rather
// than a phantom merge with a completed prior occupant (spec.md §3, P5).
type TaskKey struct {
	ID              TaskId
	TypeHash        uint64
	FirstSeen       time.Time
	InitialSnapshot uint64
}

// snapshotHash hashes the first N bytes of a generator object's memory
// at creation time, to disambiguate a reincarnation at the same address
// from the prior occupant even when both happen to share a type (e.g. a
// pool of homogeneous generator objects). Only a bounded prefix is
// hashed; this is an identity fingerprint, not a content digest.
const snapshotPrefixLen = 64

func snapshotHash(bytes []byte) uint64 {
	n := len(bytes)
	if n > snapshotPrefixLen {
		n = snapshotPrefixLen
	}
	sum := sha256.Sum256(bytes[:n])
	return binary.LittleEndian.Uint64(sum[:8])
}

// typeHashOf derives a stable hash for a TypeRef's name. The debug-info
// oracle's TypeRef values are not comparable across sessions, so identity
// is keyed on the resolved name instead.
func typeHashOf(typeName string) uint64 {
	sum := sha256.Sum256([]byte(typeName))
	return binary.LittleEndian.Uint64(sum[:8])
}

// CallsiteId is a stable hash of (parent TaskKey, parent's suspend-index
// at entry, source file, source line): spec.md §3.
type CallsiteId uint64

func newCallsiteId(parent TaskKey, suspendIndex int64, file string, line int) CallsiteId {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(parent.ID))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], parent.TypeHash)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(parent.FirstSeen.UnixNano()))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], parent.InitialSnapshot)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(suspendIndex))
	h.Write(buf[:])
	h.Write([]byte(file))
	binary.LittleEndian.PutUint64(buf[:], uint64(line))
	h.Write(buf[:])
	sum := h.Sum(nil)
	return CallsiteId(binary.LittleEndian.Uint64(sum[:8]))
}

// EdgeId identifies one (parent, child, callsite) triple in the Edge
// Store.
type EdgeId uint64

func newEdgeId(parent, child TaskKey, site CallsiteId) EdgeId {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(parent.ID))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], parent.TypeHash)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(parent.FirstSeen.UnixNano()))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], parent.InitialSnapshot)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(child.ID))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], child.TypeHash)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(child.FirstSeen.UnixNano()))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], child.InitialSnapshot)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(site))
	h.Write(buf[:])
	sum := h.Sum(nil)
	return EdgeId(binary.LittleEndian.Uint64(sum[:8]))
}
