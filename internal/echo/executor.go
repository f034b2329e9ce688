package echo

import (
	"context"
	"log"
	"time"
)

// Executor applies policy decisions: it writes intervention directives
// and cooloff flags to durable storage and forwards critical findings to
// the escalation sink. Directive writes are idempotent per
// (target, strategy), so replays and out-of-order delivery downstream
// are tolerable.
type Executor struct {
	policy     *Policy
	directives DirectiveWriter
	cooloffs   CooloffWriter
	sink       Sink

	silence time.Duration
	cooloff time.Duration

	// now is a hook for tests; defaults to time.Now.
	now func() time.Time
}

// NewExecutor wires an Executor. sink may be nil when no escalation
// path is configured; escalate decisions then degrade to a logged
// warning.
func NewExecutor(policy *Policy, directives DirectiveWriter, cooloffs CooloffWriter, sink Sink, silence, cooloff time.Duration) *Executor {
	return &Executor{
		policy:     policy,
		directives: directives,
		cooloffs:   cooloffs,
		sink:       sink,
		silence:    silence,
		cooloff:    cooloff,
		now:        time.Now,
	}
}

// ApplyResult summarizes one tick's intervention side effects.
type ApplyResult struct {
	Directives  int `json:"directives"`
	Cooloffs    int `json:"cooloffs"`
	Escalations int `json:"escalations"`
	Errors      int `json:"errors"`
}

// Apply runs the policy over every finding in the report and executes
// the chosen strategies. Storage errors are logged and counted in the
// result (and in state), never returned: intervention is best-effort and
// one failed write must not block the remaining findings.
func (e *Executor) Apply(ctx context.Context, r Report, st *State) ApplyResult {
	var res ApplyResult
	now := e.now()

	var critical []Finding
	for _, f := range r.Findings {
		decision := e.policy.SelectStrategy(f)
		if decision.Strategy == "" {
			st.recordPolicyDefect()
			decision = FallbackDecision(f)
		}

		target := primaryTarget(f)
		if target != "" {
			d := Directive{
				TargetID:   target,
				Strategy:   decision.Strategy,
				Parameters: decision.Parameters,
				IssuedAt:   now,
			}
			if decision.Strategy == StrategyImposeSilence {
				until := now.Add(e.silence)
				d.ExpiresAt = &until
			}
			if err := e.directives.PutDirective(ctx, d); err != nil {
				log.Printf("WARNING: echo executor: put directive %s/%s: %v", target, decision.Strategy, err)
				st.recordWriteError()
				res.Errors++
			} else {
				res.Directives++
			}
		}

		// Every producer involved in a finding gets a refreshed cooloff,
		// regardless of which strategy fired.
		until := now.Add(e.cooloff)
		for _, subject := range f.Subjects {
			flag := CooloffFlag{
				ProducerID: subject,
				Reason:     f.Summary,
				FlaggedAt:  now,
				Until:      until,
			}
			if err := e.cooloffs.PutCooloff(ctx, flag); err != nil {
				log.Printf("WARNING: echo executor: put cooloff %s: %v", subject, err)
				st.recordWriteError()
				res.Errors++
			} else {
				res.Cooloffs++
			}
			st.recordIntervention(subject, decision.Strategy, now)
		}

		if decision.Strategy == StrategyEscalate {
			critical = append(critical, f)
		}
	}

	if len(critical) > 0 {
		res.Escalations = len(critical)
		sub := Report{
			Timestamp:         r.Timestamp,
			TotalFindings:     len(critical),
			MaxDepth:          r.MaxDepth,
			AffectedProducers: subjectsOf(critical),
			Findings:          critical,
		}
		if e.sink == nil {
			log.Printf("WARNING: echo executor: %d critical findings but no escalation sink configured", len(critical))
		} else if err := e.sink.ForwardCritical(ctx, sub); err != nil {
			// Fire-and-forget: escalation delivery is best-effort.
			log.Printf("WARNING: echo executor: forward critical: %v", err)
			st.recordSinkError()
			res.Errors++
		}
	}

	return res
}

// primaryTarget picks the producer a directive is addressed to. For
// cycles that is the lexicographically smallest member, so the same
// cycle always yields the same target no matter where the walk started.
func primaryTarget(f Finding) string {
	if len(f.Subjects) == 0 {
		return ""
	}
	if f.Kind != FindingCycle {
		return f.Subjects[0]
	}
	min := f.Subjects[0]
	for _, s := range f.Subjects[1:] {
		if s < min {
			min = s
		}
	}
	return min
}

func subjectsOf(findings []Finding) []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range findings {
		for _, s := range f.Subjects {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
