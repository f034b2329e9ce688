// Package echo implements the echo/loop detection and mitigation engine.
//
// It watches recent output from autonomous producers (agents, message
// streams, reflectors), detects repetitive, near-duplicate, and circular
// patterns, and issues graduated intervention directives for an external
// enforcement layer to apply. Detection is periodic and best-effort: the
// monitor re-scans a sliding time window on every tick and carries no
// mutable pattern state across ticks.
package echo

import (
	"context"
	"time"
)

// ─── Samples & edges ─────────────────────────────────────────────────────────

// ProducerKind classifies where a content sample came from.
type ProducerKind string

const (
	// KindAgent is output recorded directly by an autonomous producer.
	KindAgent ProducerKind = "agent"
	// KindMessage is output observed in message/log streams.
	KindMessage ProducerKind = "message"
	// KindReflector is output derived through reflection pointers.
	KindReflector ProducerKind = "reflector"
)

// Kinds returns all producer kinds in scan order.
func Kinds() []ProducerKind {
	return []ProducerKind{KindAgent, KindMessage, KindReflector}
}

// IsValid returns true for a known producer kind.
func (k ProducerKind) IsValid() bool {
	switch k {
	case KindAgent, KindMessage, KindReflector:
		return true
	default:
		return false
	}
}

// ContentSample is one observed unit of generated text. Samples are
// produced by upstream systems and are read-only to this engine.
type ContentSample struct {
	ID         string       `json:"id"`
	ProducerID string       `json:"producer_id"`
	Kind       ProducerKind `json:"kind"`
	Text       string       `json:"text"`
	ObservedAt time.Time    `json:"observed_at"`
}

// Batch is the result of reading one sample source. Absence of the
// backing source is a first-class outcome, not an error: an unavailable
// source yields Available=false and no samples.
type Batch struct {
	Samples   []ContentSample `json:"samples"`
	Available bool            `json:"available"`
}

// ReflectionEdge is a directed "reflects-to" pointer between producers.
// Each producer has at most one current outgoing edge (last writer wins).
type ReflectionEdge struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	ObservedAt time.Time `json:"observed_at"`
}

// ─── Patterns & findings ─────────────────────────────────────────────────────

// Basis records how a pattern was detected.
type Basis string

const (
	// BasisExact means identical content hashes.
	BasisExact Basis = "exact"
	// BasisSimilarity means approximate edit-distance clustering.
	BasisSimilarity Basis = "similarity"
)

// Pattern is a transient group of repeating or near-duplicate samples,
// rebuilt from scratch each monitoring tick. Count always equals
// len(Occurrences), and every occurrence falls within the configured
// time window relative to LastSeen.
type Pattern struct {
	Representative string          `json:"representative"`
	Occurrences    []ContentSample `json:"occurrences"`
	Count          int             `json:"count"`
	FirstSeen      time.Time       `json:"first_seen"`
	LastSeen       time.Time       `json:"last_seen"`
	Basis          Basis           `json:"basis"`
	// Degenerate marks patterns built from empty text, which hash to a
	// sentinel value and carry no semantic content.
	Degenerate bool `json:"degenerate,omitempty"`
}

// FindingKind classifies an echo finding.
type FindingKind string

const (
	// FindingRepetition is exact repeated content from one producer.
	FindingRepetition FindingKind = "repetition"
	// FindingSimilarity is near-duplicate content from one producer.
	FindingSimilarity FindingKind = "similarity"
	// FindingCycle is a loop in the reflection graph.
	FindingCycle FindingKind = "cycle"
)

// Finding is one detected echo pattern. Depth is the occurrence count
// for repetition/similarity findings and the cycle length for cycles.
type Finding struct {
	Kind     FindingKind `json:"kind"`
	Subjects []string    `json:"subjects"`
	Depth    int         `json:"depth"`
	Summary  string      `json:"summary"`
	Basis    Basis       `json:"basis,omitempty"`
	Pattern  *Pattern    `json:"pattern,omitempty"`
}

// Report aggregates one monitoring tick's findings. MaxDepth drives
// escalation severity.
type Report struct {
	Timestamp         time.Time `json:"timestamp"`
	TotalFindings     int       `json:"total_findings"`
	MaxDepth          int       `json:"max_depth"`
	AffectedProducers []string  `json:"affected_producers"`
	Findings          []Finding `json:"findings"`
}

// ─── Interventions ───────────────────────────────────────────────────────────

// Strategy names one of the five mitigation strategies.
type Strategy string

const (
	// StrategyEscalate forwards the finding to the external critical path.
	StrategyEscalate Strategy = "escalate"
	// StrategyImposeSilence withholds the producer's output for a duration.
	StrategyImposeSilence Strategy = "impose_silence"
	// StrategyInvertReflection directs the target to reverse its outgoing edge.
	StrategyInvertReflection Strategy = "invert_reflection"
	// StrategyShiftContext signals the producer to change topic/context.
	StrategyShiftContext Strategy = "shift_context"
	// StrategyInjectRandomness perturbs the producer's next generation.
	StrategyInjectRandomness Strategy = "inject_randomness"
)

// Priority ranks how urgently a decision should be enforced.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
)

// Directive is a write-once instruction for the external enforcement
// layer. Directives are keyed by (TargetID, Strategy); the latest write
// for a key wins.
type Directive struct {
	TargetID   string            `json:"target_id"`
	Strategy   Strategy          `json:"strategy"`
	Parameters map[string]string `json:"parameters,omitempty"`
	IssuedAt   time.Time         `json:"issued_at"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
}

// CooloffFlag prevents a producer from being treated as healthy until
// Until passes. Cooloff is cumulative protection, independent of which
// strategy fired.
type CooloffFlag struct {
	ProducerID string    `json:"producer_id"`
	Reason     string    `json:"reason"`
	FlaggedAt  time.Time `json:"flagged_at"`
	Until      time.Time `json:"until"`
}

// AuditEntry is one persisted monitoring tick report.
type AuditEntry struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Report    Report    `json:"report"`
}

// ─── Storage & sink interfaces ───────────────────────────────────────────────
//
// The engine owns its consumer-side interfaces; internal/store,
// internal/source and internal/escalation provide the implementations.

// SampleStore reads recent content samples for one producer kind. A
// missing or absent backing source yields Batch.Available=false, never
// an error.
type SampleStore interface {
	Recent(ctx context.Context, kind ProducerKind, since time.Time) (Batch, error)
}

// EdgeStore reads the current reflection edge set — at most one outgoing
// edge per producer, latest only.
type EdgeStore interface {
	CurrentEdges(ctx context.Context) ([]ReflectionEdge, error)
}

// DirectiveWriter persists intervention directives.
type DirectiveWriter interface {
	PutDirective(ctx context.Context, d Directive) error
}

// CooloffWriter persists cooloff flags, refreshing any existing flag for
// the producer.
type CooloffWriter interface {
	PutCooloff(ctx context.Context, f CooloffFlag) error
}

// AuditLog appends tick reports to capped rolling storage.
type AuditLog interface {
	AppendAudit(ctx context.Context, r Report) error
}

// Sink is the external critical-path hand-off. Delivery is fire-and-
// forget: failures are logged and counted by the caller, never retried
// synchronously.
type Sink interface {
	ForwardCritical(ctx context.Context, r Report) error
}
