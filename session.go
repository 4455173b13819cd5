package kokia

import (
	crand "crypto/rand"
	"sync"

	"go.uber.org/zap"
)

// Session is the Session Container (C8): one instance per debug
// session, created at attach and torn down at detach, holding no
// process-wide singleton state (spec.md §9 "session-scoped global
// state"). It owns the Task Registry (C4), Edge Store (C5), one Poll
// Scope per OS thread (C6), the Layout Analyzer's cache (C1), and the
// Value Decoder/Location Evaluator (C2/C3), wired to the three external
// capability sets (§6).
type Session struct {
	mu sync.Mutex

	id [16]byte // SessionID (spec.md §3.1); namespaces exported trace IDs only.

	cfg    Config
	policy *DecodePolicy
	pii    *PiiSettings

	registry *Registry
	edges    *EdgeStore
	scopes   map[ThreadID]*PollScope

	layout  *LayoutAnalyzer
	locEval *LocationEvaluator
	decoder *ValueDecoder

	installedBreakpoints map[uint64]bool

	caps    Capabilities
	log     *zap.Logger
	metrics *Metrics
}

// NewSession constructs a Session wired to the given capabilities
// (spec.md §4.8). cfg is validated by the caller (LoadConfig already
// does this); NewSession trusts it as-is.
func NewSession(cfg Config, caps Capabilities, logger *zap.Logger) *Session {
	metrics := newMetrics()
	decoder := newValueDecoder(cfg.limits()).
		withMetrics(metrics).
		withSymbolizer(caps.DebugInfo.SymbolForAddress)

	s := &Session{
		cfg:                  cfg,
		registry:             newRegistry(),
		edges:                newEdgeStore(),
		scopes:               make(map[ThreadID]*PollScope),
		layout:               newLayoutAnalyzer(caps.DebugInfo, cfg.DenyList),
		locEval:              newLocationEvaluator(),
		decoder:              decoder,
		installedBreakpoints: make(map[uint64]bool),
		caps:                 caps,
		log:                  logger,
		metrics:              metrics,
	}
	crand.Read(s.id[:])
	return s
}

// WithDecodePolicy attaches a per-generator-type decode policy (C9's
// DecodePolicy), narrowing the decoder's limits and rejecting skipped
// types outright.
func (s *Session) WithDecodePolicy(p *DecodePolicy) *Session {
	s.policy = p
	return s
}

// WithPiiSettings attaches graph-export redaction settings (C10).
func (s *Session) WithPiiSettings(p *PiiSettings) *Session {
	s.pii = p
	return s
}

// Close is a no-op hook reserved for future resource release, mirroring
// the teacher's Start/shutdown pairing (spec.md §4.8). kokia holds no
// external resources beyond what the caller-supplied Capabilities own,
// so there is nothing to release here today.
func (s *Session) Close() error {
	return nil
}

// HandlePollEntry dispatches a poll-entry event (spec.md §4.7). Any
// error degrades the individual event per spec.md's failure semantics;
// it is never treated as fatal to the session.
func (s *Session) HandlePollEntry(e PollEntry) error {
	if err := s.handlePollEntry(e); err != nil {
		s.log.Debug("poll-entry degraded", zap.Error(err))
		return err
	}
	return nil
}

// HandlePollExit dispatches a poll-exit event (spec.md §4.7).
func (s *Session) HandlePollExit(e PollExit) error {
	if err := s.handlePollExit(e); err != nil {
		s.log.Debug("poll-exit degraded", zap.Error(err))
		return err
	}
	return nil
}

// HandleThreadStop dispatches a thread-stop event (spec.md §4.7).
func (s *Session) HandleThreadStop(e ThreadStop) {
	s.handleThreadStop(e)
}

// Metrics returns a snapshot of the session's accumulated counters.
func (s *Session) Metrics() map[string]int64 {
	return s.metrics.toMap()
}
