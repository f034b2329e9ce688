package echo

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config holds the tuning knobs for one monitor instance.
type Config struct {
	// CheckInterval is the tick period.
	CheckInterval time.Duration
	// MinRepetitions is the smallest repetition/similarity group reported.
	MinRepetitions int
	// SimilarityThreshold is the clustering cutoff in [0,1].
	SimilarityThreshold float64
	// TimeWindow is how far back each tick scans.
	TimeWindow time.Duration
	// MaxEchoDepth is the depth beyond which findings escalate.
	MaxEchoDepth int
	// SilenceDuration is the impose_silence directive lifetime.
	SilenceDuration time.Duration
	// CooloffDuration is the cooloff flag lifetime.
	CooloffDuration time.Duration
	// MaxCycleWalkDepth caps reflection-graph walks.
	MaxCycleWalkDepth int
	// MaxTrackedProducers bounds the in-memory producer tracker LRU.
	MaxTrackedProducers int
	// DrainTimeout bounds how long shutdown waits for an in-flight tick.
	DrainTimeout time.Duration
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		CheckInterval:       5 * time.Second,
		MinRepetitions:      3,
		SimilarityThreshold: 0.85,
		TimeWindow:          5 * time.Minute,
		MaxEchoDepth:        5,
		SilenceDuration:     120 * time.Second,
		CooloffDuration:     5 * time.Minute,
		MaxCycleWalkDepth:   10,
		MaxTrackedProducers: 512,
		DrainTimeout:        30 * time.Second,
	}
}

// Deps are the monitor's external collaborators. Sink may be nil.
type Deps struct {
	Samples    SampleStore
	Edges      EdgeStore
	Directives DirectiveWriter
	Cooloffs   CooloffWriter
	Audit      AuditLog
	Sink       Sink
}

// Monitor is the periodic echo-detection loop. Each tick cycles through
// Scanning -> Analyzing -> Intervening and back to idle; a failure
// anywhere in a tick is caught, logged and counted, and the next tick
// proceeds as if nothing happened. Nothing propagates out of Run except
// on shutdown.
type Monitor struct {
	cfg  Config
	deps Deps

	repetition *RepetitionDetector
	similarity *SimilarityDetector
	cycles     *CycleDetector
	analyzer   *Analyzer
	executor   *Executor

	state   *State
	ticking atomic.Bool
	wg      sync.WaitGroup

	// now is a hook for tests; defaults to time.Now.
	now func() time.Time
}

// NewMonitor wires a Monitor from configuration and collaborators.
func NewMonitor(cfg Config, deps Deps) (*Monitor, error) {
	if deps.Samples == nil || deps.Edges == nil || deps.Directives == nil || deps.Cooloffs == nil || deps.Audit == nil {
		return nil, fmt.Errorf("echo: monitor requires samples, edges, directives, cooloffs and audit collaborators")
	}
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("echo: check interval must be positive, got %v", cfg.CheckInterval)
	}
	state, err := NewState(cfg.MaxTrackedProducers)
	if err != nil {
		return nil, fmt.Errorf("echo: init state: %w", err)
	}
	policy := NewPolicy(cfg.MaxEchoDepth, int(cfg.SilenceDuration.Seconds()))
	return &Monitor{
		cfg:        cfg,
		deps:       deps,
		repetition: NewRepetitionDetector(cfg.MinRepetitions, cfg.TimeWindow),
		similarity: NewSimilarityDetector(cfg.SimilarityThreshold, cfg.MinRepetitions, cfg.TimeWindow),
		cycles:     NewCycleDetector(cfg.MaxCycleWalkDepth),
		analyzer:   NewAnalyzer(),
		executor:   NewExecutor(policy, deps.Directives, deps.Cooloffs, deps.Sink, cfg.SilenceDuration, cfg.CooloffDuration),
		state:      state,
		now:        time.Now,
	}, nil
}

// State exposes the monitor's counters and trackers for health surfaces.
func (m *Monitor) State() *State {
	return m.state
}

// Config returns the monitor's configuration.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Run drives the monitoring loop until ctx is cancelled. Ticks run in
// their own goroutine; if a tick outlives the interval the next firing
// is skipped rather than overlapped. On shutdown the in-flight tick gets
// up to DrainTimeout to finish before Run returns anyway.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return m.drain()
		case <-ticker.C:
			if !m.ticking.CompareAndSwap(false, true) {
				m.state.recordSkip()
				continue
			}
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				defer m.ticking.Store(false)
				if _, err := m.Tick(ctx); err != nil {
					log.Printf("WARNING: echo monitor: tick failed: %v", err)
				}
			}()
		}
	}
}

// drain waits up to DrainTimeout for the in-flight tick, then gives up.
func (m *Monitor) drain() error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	timeout := m.cfg.DrainTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("echo: shutdown abandoned an in-flight tick after %v", timeout)
	}
}

// Tick performs one full Scanning -> Analyzing -> Intervening pass and
// returns the tick's report. Errors and panics are contained here: a
// returned error means the tick produced nothing, never that the loop
// should stop.
func (m *Monitor) Tick(ctx context.Context) (report Report, err error) {
	m.state.recordTick()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("echo: tick panic: %v", r)
		}
		if err != nil {
			m.state.recordFailure()
		}
	}()

	now := m.now()

	// Scanning. Sources are read concurrently; a failing source is
	// skipped for this tick and counted, the others still contribute.
	samples, edges := m.scan(ctx, now.Add(-m.cfg.TimeWindow))

	// The three detectors are read-only and independent, so they run
	// concurrently; analysis waits for all of them.
	byProducer := groupByProducer(samples)
	producers := make([]string, 0, len(byProducer))
	for id := range byProducer {
		producers = append(producers, id)
	}
	sort.Strings(producers)

	var (
		mu       sync.Mutex
		findings []Finding
	)
	add := func(fs ...Finding) {
		mu.Lock()
		findings = append(findings, fs...)
		mu.Unlock()
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, id := range producers {
			for _, p := range m.repetition.Detect(byProducer[id]) {
				add(RepetitionFinding(id, p))
			}
		}
		return nil
	})
	g.Go(func() error {
		for _, id := range producers {
			for _, p := range m.similarity.Detect(byProducer[id]) {
				add(SimilarityFinding(id, p))
			}
		}
		return nil
	})
	g.Go(func() error {
		for _, c := range m.cycles.Detect(edges) {
			add(CycleFinding(c))
		}
		return nil
	})
	_ = g.Wait() // detectors never return errors; the group is for fan-out

	// Analyzing.
	report = m.analyzer.Analyze(now, findings)

	// Intervening runs strictly after analysis. Empty reports skip both
	// intervention and audit so the rolling log holds real findings.
	if report.TotalFindings > 0 {
		m.executor.Apply(ctx, report, m.state)
		if auditErr := m.deps.Audit.AppendAudit(ctx, report); auditErr != nil {
			log.Printf("WARNING: echo monitor: append audit: %v", auditErr)
			m.state.recordWriteError()
		}
	}

	m.state.recordSuccess(now, report.TotalFindings)
	return report, nil
}

// scan reads all sample sources and the reflection edge set. Transient
// source failures and unavailable sources reduce the scan, never abort
// it.
func (m *Monitor) scan(ctx context.Context, since time.Time) ([]ContentSample, []ReflectionEdge) {
	var (
		mu      sync.Mutex
		samples []ContentSample
		edges   []ReflectionEdge
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range Kinds() {
		g.Go(func() error {
			batch, err := m.deps.Samples.Recent(gctx, kind, since)
			if err != nil {
				log.Printf("WARNING: echo monitor: %s source unreadable, skipping this tick: %v", kind, err)
				m.state.recordSourceError()
				return nil
			}
			if !batch.Available {
				return nil
			}
			mu.Lock()
			samples = append(samples, batch.Samples...)
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		current, err := m.deps.Edges.CurrentEdges(gctx)
		if err != nil {
			log.Printf("WARNING: echo monitor: edge source unreadable, skipping this tick: %v", err)
			m.state.recordSourceError()
			return nil
		}
		mu.Lock()
		edges = current
		mu.Unlock()
		return nil
	})
	_ = g.Wait()

	return samples, edges
}

func groupByProducer(samples []ContentSample) map[string][]ContentSample {
	groups := make(map[string][]ContentSample)
	for _, s := range samples {
		if s.ProducerID == "" {
			continue
		}
		groups[s.ProducerID] = append(groups[s.ProducerID], s)
	}
	return groups
}
