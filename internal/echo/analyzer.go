package echo

import (
	"sort"
	"time"
)

// Analyzer merges the three detectors' findings into one severity-ranked
// report per monitoring tick. It is pure: no I/O, no clocks, no
// randomness — the same finding list always yields the same report.
type Analyzer struct{}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// RepetitionFinding converts an exact-repetition pattern into a finding.
// Depth is the occurrence count.
func RepetitionFinding(producerID string, p Pattern) Finding {
	pat := p
	return Finding{
		Kind:     FindingRepetition,
		Subjects: []string{producerID},
		Depth:    p.Count,
		Summary:  summarizePattern(producerID, p),
		Basis:    BasisExact,
		Pattern:  &pat,
	}
}

// SimilarityFinding converts a near-duplicate cluster into a finding.
// Depth is the cluster size.
func SimilarityFinding(producerID string, p Pattern) Finding {
	pat := p
	return Finding{
		Kind:     FindingSimilarity,
		Subjects: []string{producerID},
		Depth:    p.Count,
		Summary:  summarizePattern(producerID, p),
		Basis:    BasisSimilarity,
		Pattern:  &pat,
	}
}

// CycleFinding converts a reflection cycle into a finding. Depth is the
// cycle length and every member is a subject.
func CycleFinding(c Cycle) Finding {
	return Finding{
		Kind:     FindingCycle,
		Subjects: append([]string(nil), c.Members...),
		Depth:    c.Length,
		Summary:  summarizeCycle(c),
	}
}

// Analyze builds the tick report: total findings, the maximum depth
// across findings (which drives escalation severity), and the sorted,
// de-duplicated set of affected producer ids. Findings are ordered by
// depth descending with deterministic tie-breaks so repeated analysis of
// the same input is byte-identical.
func (a *Analyzer) Analyze(ts time.Time, findings []Finding) Report {
	ordered := make([]Finding, len(findings))
	copy(ordered, findings)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Depth != ordered[j].Depth {
			return ordered[i].Depth > ordered[j].Depth
		}
		if ordered[i].Kind != ordered[j].Kind {
			return ordered[i].Kind < ordered[j].Kind
		}
		return ordered[i].Summary < ordered[j].Summary
	})

	maxDepth := 0
	producerSet := map[string]bool{}
	for _, f := range ordered {
		if f.Depth > maxDepth {
			maxDepth = f.Depth
		}
		for _, s := range f.Subjects {
			producerSet[s] = true
		}
	}
	producers := make([]string, 0, len(producerSet))
	for p := range producerSet {
		producers = append(producers, p)
	}
	sort.Strings(producers)

	return Report{
		Timestamp:         ts,
		TotalFindings:     len(ordered),
		MaxDepth:          maxDepth,
		AffectedProducers: producers,
		Findings:          ordered,
	}
}
