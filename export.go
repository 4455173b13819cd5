package kokia

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"go.opentelemetry.io/otel/trace"
)

// PiiSettings toggles possibly-sensitive fields in the exported graph,
// the graph-export analogue of the teacher's PiiSettings (hostname/
// username redaction in a process span).
type PiiSettings struct {
	// IncludeArgValues, when false, omits the decoded discriminant value
	// from exported spans; only the task's identity and shape are kept.
	IncludeArgValues bool `yaml:"include_arg_values"`
}

// ExportedSpan is one read-only, best-effort projection of a task into
// OTel-shaped identity: it never feeds back into C4/C5 state (spec.md
// §4.10).
type ExportedSpan struct {
	TraceID      trace.TraceID
	SpanID       trace.SpanID
	ParentSpanID trace.SpanID
	Name         string
	Attributes   map[string]string
}

// deriveSpanIDs synthesizes a deterministic TraceID/SpanID pair for a
// task from the session's SessionID and the task's stable TaskKey
// fingerprint, exactly as the teacher derives TraceID/SpanID from a
// Trace2 SID via SHA-256 substring extraction (trace2sids.go): two
// independent processes reconstructing the same session will compute
// identical IDs without coordinating over a wire.
func deriveSpanIDs(sessionID [16]byte, key TaskKey) (tid trace.TraceID, spid trace.SpanID) {
	h := sha256.New()
	h.Write(sessionID[:])
	var buf [8]byte
	putUint64(buf[:], uint64(key.ID))
	h.Write(buf[:])
	putUint64(buf[:], key.TypeHash)
	h.Write(buf[:])
	sum := h.Sum(nil)

	copy(tid[:], sessionIDTraceSeed(sessionID)[:])
	copy(spid[:], sum[16:24])
	return tid, spid
}

// sessionIDTraceSeed hashes the SessionID alone so every task within the
// same session shares one TraceID, mirroring the teacher's use of
// hash(sid_0) as the shared TraceID for a whole command tree.
func sessionIDTraceSeed(sessionID [16]byte) [16]byte {
	sum := sha256.Sum256(sessionID[:])
	var out [16]byte
	copy(out[:], sum[0:16])
	return out
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// ExportSpans walks the Registry and Edge Store and produces one span
// per TaskKey (spec.md §4.10). The session lock is held only long
// enough to snapshot state; rendering happens outside it.
func (s *Session) ExportSpans() []ExportedSpan {
	s.mu.Lock()
	tasks := s.registry.snapshot()
	edgesByChild := make(map[TaskKey]Edge)
	for _, e := range s.edges.byID {
		edgesByChild[e.Child] = *e
	}
	s.mu.Unlock()

	spans := make([]ExportedSpan, 0, len(tasks))
	for _, ti := range tasks {
		tid, spid := deriveSpanIDs(s.id, ti.Key)

		var parentSpanID trace.SpanID
		attrs := map[string]string{
			string(KokiaTaskID):        strconv.FormatUint(uint64(ti.Key.ID), 16),
			string(KokiaTaskType):      ti.TypeName,
			string(KokiaTaskRoot):      strconv.FormatBool(ti.IsRoot),
			string(KokiaTaskCompleted): strconv.FormatBool(ti.IsCompleted),
			string(KokiaSessionID):     hex.EncodeToString(s.id[:]),
		}

		if e, ok := edgesByChild[ti.Key]; ok {
			_, parentSpanID = deriveSpanIDs(s.id, e.Parent)
			attrs[string(KokiaEdgeCallsite)] = strconv.FormatUint(uint64(e.Callsite), 16)
			attrs[string(KokiaEdgeCompleted)] = strconv.FormatBool(e.Completed)
		}

		if s.pii != nil && s.pii.IncludeArgValues && ti.Discriminant != nil {
			attrs[string(KokiaTaskDiscriminant)] = strconv.FormatInt(*ti.Discriminant, 10)
		}

		name := ti.TypeName
		if name == "" {
			name = "task"
		}

		spans = append(spans, ExportedSpan{
			TraceID:      tid,
			SpanID:       spid,
			ParentSpanID: parentSpanID,
			Name:         name,
			Attributes:   attrs,
		})
	}
	return spans
}
