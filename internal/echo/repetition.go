package echo

import (
	"fmt"
	"sort"
	"time"
)

// RepetitionDetector finds exact repeated content from a single producer
// within a sliding time window by grouping samples on their content hash.
type RepetitionDetector struct {
	// MinRepetitions is the smallest group size worth reporting.
	MinRepetitions int
	// Window bounds how far occurrences may trail the newest one.
	Window time.Duration
}

// NewRepetitionDetector creates a detector with the given thresholds.
func NewRepetitionDetector(minRepetitions int, window time.Duration) *RepetitionDetector {
	return &RepetitionDetector{MinRepetitions: minRepetitions, Window: window}
}

// Detect groups one producer's samples by content hash and returns a
// Pattern for every group meeting the repetition threshold, ranked by
// count descending. Empty text groups under a sentinel hash and is
// reported with Degenerate=true.
func (d *RepetitionDetector) Detect(samples []ContentSample) []Pattern {
	if len(samples) == 0 {
		return nil
	}

	groups := make(map[string][]ContentSample)
	for _, s := range samples {
		h := ContentHash(s.Text)
		groups[h] = append(groups[h], s)
	}

	var patterns []Pattern
	for hash, group := range groups {
		if len(group) < d.MinRepetitions {
			continue
		}
		p := buildPattern(group, BasisExact)
		p.Degenerate = IsDegenerateHash(hash)
		// Drop occurrences that fall outside the window relative to the
		// newest one; the group may span more history than one window.
		p = trimToWindow(p, d.Window)
		if p.Count < d.MinRepetitions {
			continue
		}
		patterns = append(patterns, p)
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].Representative < patterns[j].Representative
	})
	return patterns
}

// buildPattern assembles a Pattern from a non-empty occurrence group,
// ordering occurrences chronologically and deriving first/last seen.
func buildPattern(group []ContentSample, basis Basis) Pattern {
	occ := make([]ContentSample, len(group))
	copy(occ, group)
	sort.Slice(occ, func(i, j int) bool {
		if !occ[i].ObservedAt.Equal(occ[j].ObservedAt) {
			return occ[i].ObservedAt.Before(occ[j].ObservedAt)
		}
		return occ[i].ID < occ[j].ID
	})
	return Pattern{
		Representative: occ[0].Text,
		Occurrences:    occ,
		Count:          len(occ),
		FirstSeen:      occ[0].ObservedAt,
		LastSeen:       occ[len(occ)-1].ObservedAt,
		Basis:          basis,
	}
}

// trimToWindow drops occurrences observed more than window before the
// pattern's last occurrence, keeping Count == len(Occurrences).
func trimToWindow(p Pattern, window time.Duration) Pattern {
	if window <= 0 || len(p.Occurrences) == 0 {
		return p
	}
	cutoff := p.LastSeen.Add(-window)
	kept := p.Occurrences[:0:0]
	for _, s := range p.Occurrences {
		if !s.ObservedAt.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	p.Occurrences = kept
	p.Count = len(kept)
	if len(kept) > 0 {
		p.Representative = kept[0].Text
		p.FirstSeen = kept[0].ObservedAt
		p.LastSeen = kept[len(kept)-1].ObservedAt
	}
	return p
}

// summarizePattern renders a short human-readable description used in
// finding summaries and audit entries.
func summarizePattern(producerID string, p Pattern) string {
	text := p.Representative
	if len(text) > 60 {
		text = text[:57] + "..."
	}
	if p.Degenerate {
		return fmt.Sprintf("%s repeated empty output %d times", producerID, p.Count)
	}
	return fmt.Sprintf("%s repeated %q %d times (%s)", producerID, text, p.Count, p.Basis)
}
