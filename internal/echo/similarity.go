package echo

import (
	"sort"
	"time"

	"github.com/agext/levenshtein"
)

// SimilarityDetector clusters one producer's near-duplicate samples with
// a greedy single pass over chronologically ordered samples.
//
// The pairwise comparison is intentionally O(n²) per producer per tick:
// the time window bounds n to tens of samples. If upstream volume grows,
// shrink the window or raise the threshold — do not change the
// algorithm's asymptotic class.
type SimilarityDetector struct {
	// Threshold is the minimum normalized similarity for two samples to
	// share a cluster.
	Threshold float64
	// MinRepetitions is the smallest cluster size worth reporting.
	MinRepetitions int
	// Window bounds how far occurrences may trail the newest one.
	Window time.Duration
}

// NewSimilarityDetector creates a detector with the given thresholds.
func NewSimilarityDetector(threshold float64, minRepetitions int, window time.Duration) *SimilarityDetector {
	return &SimilarityDetector{Threshold: threshold, MinRepetitions: minRepetitions, Window: window}
}

// Similarity returns the normalized edit-distance similarity of two
// strings: 1 - levenshtein(a,b) / max(len(a), len(b)). Two empty strings
// are 100% similar by this definition; Detect excludes empty-text samples
// up front so that degenerate case never forms a cluster here (empty
// output is the repetition detector's job).
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.Distance(a, b, nil)
	return 1 - float64(dist)/float64(maxLen)
}

// Detect clusters samples greedily: samples are visited in chronological
// order, and each unclustered sample seeds a cluster that absorbs every
// later unclustered sample whose similarity to the seed meets the
// threshold. Clusters smaller than MinRepetitions are discarded.
func (d *SimilarityDetector) Detect(samples []ContentSample) []Pattern {
	ordered := make([]ContentSample, 0, len(samples))
	for _, s := range samples {
		if ContentHash(s.Text) == emptyContentHash {
			continue
		}
		ordered = append(ordered, s)
	}
	if len(ordered) < d.MinRepetitions {
		return nil
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].ObservedAt.Equal(ordered[j].ObservedAt) {
			return ordered[i].ObservedAt.Before(ordered[j].ObservedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	clustered := make([]bool, len(ordered))
	var patterns []Pattern
	for i := range ordered {
		if clustered[i] {
			continue
		}
		cluster := []ContentSample{ordered[i]}
		clustered[i] = true
		for j := i + 1; j < len(ordered); j++ {
			if clustered[j] {
				continue
			}
			if Similarity(ordered[i].Text, ordered[j].Text) >= d.Threshold {
				cluster = append(cluster, ordered[j])
				clustered[j] = true
			}
		}
		if len(cluster) < d.MinRepetitions {
			continue
		}
		p := trimToWindow(buildPattern(cluster, BasisSimilarity), d.Window)
		if p.Count >= d.MinRepetitions {
			patterns = append(patterns, p)
		}
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].Representative < patterns[j].Representative
	})
	return patterns
}
