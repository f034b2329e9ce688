package echo

import (
	"fmt"
	"sort"
	"strings"
)

// CycleDetector finds loops in the reflection graph. The edge set holds
// at most one outgoing edge per producer (last writer wins), so every
// walk is a simple chain until it terminates, exceeds the depth cap, or
// bends back on itself.
type CycleDetector struct {
	// MaxWalkDepth caps how many edges a single walk may follow.
	MaxWalkDepth int
}

// NewCycleDetector creates a detector with the given walk depth cap.
func NewCycleDetector(maxWalkDepth int) *CycleDetector {
	return &CycleDetector{MaxWalkDepth: maxWalkDepth}
}

// Cycle is one discovered reflection loop. Members are in walk order
// starting from the first repeated node; Length == len(Members).
type Cycle struct {
	Members []string `json:"members"`
	Length  int      `json:"length"`
}

// Detect walks outgoing edges from every unvisited producer. When a walk
// revisits a node already on its current path, the sub-path from that
// node back to itself is a cycle. All members of a discovered cycle are
// marked visited so the same cycle is never re-reported from a different
// starting node. Cycles are returned in deterministic order (by smallest
// member id).
func (d *CycleDetector) Detect(edges []ReflectionEdge) []Cycle {
	next := make(map[string]string, len(edges))
	starts := make([]string, 0, len(edges))
	for _, e := range edges {
		if e.From == "" || e.To == "" {
			continue
		}
		next[e.From] = e.To
		starts = append(starts, e.From)
	}
	sort.Strings(starts)

	visited := make(map[string]bool, len(next))
	var cycles []Cycle
	for _, start := range starts {
		if visited[start] {
			continue
		}
		onPath := map[string]int{}
		path := []string{}
		node := start
		for depth := 0; depth <= d.MaxWalkDepth; depth++ {
			if visited[node] {
				break
			}
			if at, seen := onPath[node]; seen {
				members := append([]string(nil), path[at:]...)
				for _, m := range members {
					visited[m] = true
				}
				cycles = append(cycles, Cycle{Members: members, Length: len(members)})
				break
			}
			onPath[node] = len(path)
			path = append(path, node)
			to, ok := next[node]
			if !ok {
				break
			}
			node = to
		}
		// Dead-end walks still mark their path visited: nodes on a chain
		// that leads out of a cycle (or nowhere) can never start one.
		for _, n := range path {
			if !visited[n] {
				visited[n] = true
			}
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return smallestMember(cycles[i]) < smallestMember(cycles[j])
	})
	return cycles
}

func smallestMember(c Cycle) string {
	min := ""
	for i, m := range c.Members {
		if i == 0 || m < min {
			min = m
		}
	}
	return min
}

// summarizeCycle renders the loop as "a -> b -> c -> a".
func summarizeCycle(c Cycle) string {
	if len(c.Members) == 0 {
		return "empty cycle"
	}
	return fmt.Sprintf("reflection cycle: %s -> %s", strings.Join(c.Members, " -> "), c.Members[0])
}
