package echo

import (
	"fmt"
	"log"

	"github.com/google/uuid"
)

// Decision is the output of the intervention policy for one finding.
type Decision struct {
	Strategy   Strategy          `json:"strategy"`
	Priority   Priority          `json:"priority"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Policy maps a finding to a mitigation strategy. Rules are evaluated in
// a fixed order and the first match wins:
//
//  1. depth >  MaxEchoDepth          -> escalate (critical)
//  2. depth >= 4                     -> impose_silence
//  3. kind == cycle                  -> invert_reflection
//  4. basis == similarity            -> shift_context
//  5. anything else                  -> inject_randomness
//
// A finding at exactly MaxEchoDepth is still silenced, not escalated;
// the external critical path is reserved for echoes that kept deepening
// past the cap. The chosen strategy name never depends on time or
// randomness; only the inject_randomness parameters carry a fresh seed.
type Policy struct {
	// MaxEchoDepth is the depth beyond which findings escalate to the
	// external critical path.
	MaxEchoDepth int
	// SilenceSeconds is how long impose_silence withholds a producer.
	SilenceSeconds int
}

// NewPolicy creates a Policy with the given escalation depth and silence
// duration (in whole seconds).
func NewPolicy(maxEchoDepth, silenceSeconds int) *Policy {
	return &Policy{MaxEchoDepth: maxEchoDepth, SilenceSeconds: silenceSeconds}
}

// SelectStrategy applies the ordered rules to one finding.
func (p *Policy) SelectStrategy(f Finding) Decision {
	switch {
	case f.Depth > p.MaxEchoDepth:
		return Decision{
			Strategy: StrategyEscalate,
			Priority: PriorityCritical,
			Parameters: map[string]string{
				"reason": f.Summary,
				"depth":  fmt.Sprintf("%d", f.Depth),
			},
		}
	case f.Depth >= 4:
		return Decision{
			Strategy: StrategyImposeSilence,
			Priority: PriorityHigh,
			Parameters: map[string]string{
				"duration_seconds": fmt.Sprintf("%d", p.SilenceSeconds),
				"reason":           f.Summary,
			},
		}
	case f.Kind == FindingCycle:
		return Decision{
			Strategy:   StrategyInvertReflection,
			Priority:   PriorityHigh,
			Parameters: map[string]string{"reason": f.Summary},
		}
	case f.Basis == BasisSimilarity:
		return Decision{
			Strategy:   StrategyShiftContext,
			Priority:   PriorityNormal,
			Parameters: map[string]string{"reason": f.Summary},
		}
	default:
		return injectRandomness(f)
	}
}

// FallbackDecision is the guard for findings the policy cannot map —
// unreachable given the default rule, but a policy defect must degrade
// to the mildest intervention rather than drop the finding.
func FallbackDecision(f Finding) Decision {
	log.Printf("WARNING: policy defect: no strategy for finding kind=%s depth=%d; falling back to inject_randomness", f.Kind, f.Depth)
	return injectRandomness(f)
}

func injectRandomness(f Finding) Decision {
	return Decision{
		Strategy: StrategyInjectRandomness,
		Priority: PriorityNormal,
		Parameters: map[string]string{
			"seed":   uuid.NewString(),
			"reason": f.Summary,
		},
	}
}
