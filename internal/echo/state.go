package echo

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ProducerTrack is the per-producer slice of monitor state: how often a
// producer has appeared in findings and what was last done about it.
type ProducerTrack struct {
	ProducerID   string    `json:"producer_id"`
	FindingCount int       `json:"finding_count"`
	LastFinding  time.Time `json:"last_finding"`
	LastStrategy Strategy  `json:"last_strategy,omitempty"`
}

// Counters are the monitor's cumulative health counters. External health
// checks watch LastSuccess: no successful tick for N intervals means the
// monitor is stalled, even though no single error is fatal.
type Counters struct {
	Ticks           uint64    `json:"ticks"`
	SuccessfulTicks uint64    `json:"successful_ticks"`
	FailedTicks     uint64    `json:"failed_ticks"`
	SkippedTicks    uint64    `json:"skipped_ticks"`
	SourceErrors    uint64    `json:"source_errors"`
	SinkErrors      uint64    `json:"sink_errors"`
	WriteErrors     uint64    `json:"write_errors"`
	PolicyDefects   uint64    `json:"policy_defects"`
	TotalFindings   uint64    `json:"total_findings"`
	LastSuccess     time.Time `json:"last_success"`
}

// State is the monitor's explicit mutable state: cumulative counters and
// a bounded LRU of per-producer trackers. It is owned by the monitor and
// passed by handle, never a package-level global, so independent monitor
// instances and tests stay isolated. All methods are safe for concurrent
// use (the loop goroutine writes while status tools read).
type State struct {
	mu       sync.Mutex
	counters Counters
	trackers *lru.Cache[string, *ProducerTrack]
}

// NewState creates a State tracking at most maxProducers producers.
func NewState(maxProducers int) (*State, error) {
	if maxProducers < 1 {
		maxProducers = 1
	}
	trackers, err := lru.New[string, *ProducerTrack](maxProducers)
	if err != nil {
		return nil, err
	}
	return &State{trackers: trackers}, nil
}

func (s *State) recordTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Ticks++
}

func (s *State) recordSuccess(at time.Time, findings int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.SuccessfulTicks++
	s.counters.TotalFindings += uint64(findings)
	s.counters.LastSuccess = at
}

func (s *State) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.FailedTicks++
}

func (s *State) recordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.SkippedTicks++
}

func (s *State) recordSourceError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.SourceErrors++
}

func (s *State) recordSinkError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.SinkErrors++
}

func (s *State) recordWriteError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.WriteErrors++
}

func (s *State) recordPolicyDefect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.PolicyDefects++
}

// recordIntervention updates (or creates) the tracker for one producer.
func (s *State) recordIntervention(producerID string, strategy Strategy, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	track, ok := s.trackers.Get(producerID)
	if !ok {
		track = &ProducerTrack{ProducerID: producerID}
		s.trackers.Add(producerID, track)
	}
	track.FindingCount++
	track.LastFinding = at
	track.LastStrategy = strategy
}

// Counters returns a copy of the cumulative counters.
func (s *State) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// Trackers returns copies of all currently tracked producers, oldest
// first (LRU order).
func (s *State) Trackers() []ProducerTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.trackers.Keys()
	out := make([]ProducerTrack, 0, len(keys))
	for _, k := range keys {
		if t, ok := s.trackers.Peek(k); ok {
			out = append(out, *t)
		}
	}
	return out
}
