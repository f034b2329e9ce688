package echo

import (
	"context"
	"errors"
	"testing"
	"time"
)

// ─── Fakes ───────────────────────────────────────────────────────────────────

type fakeDirectiveWriter struct {
	directives []Directive
	err        error
}

func (f *fakeDirectiveWriter) PutDirective(_ context.Context, d Directive) error {
	if f.err != nil {
		return f.err
	}
	f.directives = append(f.directives, d)
	return nil
}

type fakeCooloffWriter struct {
	flags []CooloffFlag
	err   error
}

func (f *fakeCooloffWriter) PutCooloff(_ context.Context, flag CooloffFlag) error {
	if f.err != nil {
		return f.err
	}
	f.flags = append(f.flags, flag)
	return nil
}

type fakeSink struct {
	reports []Report
	err     error
}

func (f *fakeSink) ForwardCritical(_ context.Context, r Report) error {
	if f.err != nil {
		return f.err
	}
	f.reports = append(f.reports, r)
	return nil
}

func newTestExecutor(t *testing.T, dw *fakeDirectiveWriter, cw *fakeCooloffWriter, sink Sink) (*Executor, *State) {
	t.Helper()
	e := NewExecutor(NewPolicy(5, 120), dw, cw, sink, 2*time.Minute, 5*time.Minute)
	e.now = func() time.Time { return testBase }
	st, err := NewState(16)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return e, st
}

func reportOf(findings ...Finding) Report {
	a := NewAnalyzer()
	return a.Analyze(testBase, findings)
}

// ─── Executor ────────────────────────────────────────────────────────────────

func TestExecutor_WritesDirectiveAndCooloff(t *testing.T) {
	dw := &fakeDirectiveWriter{}
	cw := &fakeCooloffWriter{}
	e, st := newTestExecutor(t, dw, cw, &fakeSink{})

	res := e.Apply(context.Background(), reportOf(repFinding("p1", 3)), st)
	if res.Directives != 1 || res.Cooloffs != 1 || res.Errors != 0 {
		t.Fatalf("result = %+v, want 1 directive, 1 cooloff, 0 errors", res)
	}
	d := dw.directives[0]
	if d.TargetID != "p1" {
		t.Errorf("TargetID = %q, want p1", d.TargetID)
	}
	if d.Strategy != StrategyInjectRandomness {
		t.Errorf("Strategy = %s, want inject_randomness for shallow repetition", d.Strategy)
	}
	if d.ExpiresAt != nil {
		t.Error("only impose_silence directives carry an expiry")
	}
	flag := cw.flags[0]
	if flag.ProducerID != "p1" {
		t.Errorf("cooloff producer = %q, want p1", flag.ProducerID)
	}
	if !flag.Until.Equal(testBase.Add(5 * time.Minute)) {
		t.Errorf("cooloff Until = %v, want now+cooloff", flag.Until)
	}
}

func TestExecutor_SilenceDirectiveCarriesExpiry(t *testing.T) {
	dw := &fakeDirectiveWriter{}
	e, st := newTestExecutor(t, dw, &fakeCooloffWriter{}, &fakeSink{})

	e.Apply(context.Background(), reportOf(repFinding("p1", 4)), st)
	d := dw.directives[0]
	if d.Strategy != StrategyImposeSilence {
		t.Fatalf("Strategy = %s, want impose_silence at depth 4", d.Strategy)
	}
	if d.ExpiresAt == nil {
		t.Fatal("impose_silence directive should expire")
	}
	if !d.ExpiresAt.Equal(testBase.Add(2 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want now+silence", *d.ExpiresAt)
	}
}

func TestExecutor_CycleTargetsSmallestMember(t *testing.T) {
	dw := &fakeDirectiveWriter{}
	cw := &fakeCooloffWriter{}
	e, st := newTestExecutor(t, dw, cw, &fakeSink{})

	cycle := CycleFinding(Cycle{Members: []string{"charlie", "alpha", "bravo"}, Length: 3})
	e.Apply(context.Background(), reportOf(cycle), st)

	if dw.directives[0].TargetID != "alpha" {
		t.Errorf("TargetID = %q, want the lexicographically smallest member", dw.directives[0].TargetID)
	}
	if len(cw.flags) != 3 {
		t.Errorf("cooloffs = %d, want one per cycle member", len(cw.flags))
	}
}

func TestExecutor_ForwardsCriticalFindings(t *testing.T) {
	sink := &fakeSink{}
	e, st := newTestExecutor(t, &fakeDirectiveWriter{}, &fakeCooloffWriter{}, sink)

	res := e.Apply(context.Background(), reportOf(repFinding("p1", 6), repFinding("p2", 3)), st)
	if res.Escalations != 1 {
		t.Fatalf("Escalations = %d, want 1", res.Escalations)
	}
	if len(sink.reports) != 1 {
		t.Fatalf("forwarded reports = %d, want 1", len(sink.reports))
	}
	sub := sink.reports[0]
	if sub.TotalFindings != 1 {
		t.Errorf("sub-report TotalFindings = %d, want only the critical finding", sub.TotalFindings)
	}
	if len(sub.AffectedProducers) != 1 || sub.AffectedProducers[0] != "p1" {
		t.Errorf("sub-report producers = %v, want [p1]", sub.AffectedProducers)
	}
}

func TestExecutor_SinkFailureIsCountedNotReturned(t *testing.T) {
	sink := &fakeSink{err: errors.New("webhook down")}
	e, st := newTestExecutor(t, &fakeDirectiveWriter{}, &fakeCooloffWriter{}, sink)

	res := e.Apply(context.Background(), reportOf(repFinding("p1", 6)), st)
	if res.Errors != 1 {
		t.Errorf("Errors = %d, want 1", res.Errors)
	}
	if got := st.Counters().SinkErrors; got != 1 {
		t.Errorf("SinkErrors = %d, want 1", got)
	}
	if res.Directives != 1 {
		t.Errorf("Directives = %d, want 1 (sink failure must not block writes)", res.Directives)
	}
}

func TestExecutor_NilSinkDegradesToWarning(t *testing.T) {
	e, st := newTestExecutor(t, &fakeDirectiveWriter{}, &fakeCooloffWriter{}, nil)

	res := e.Apply(context.Background(), reportOf(repFinding("p1", 6)), st)
	if res.Errors != 0 {
		t.Errorf("Errors = %d, want 0 (missing sink is a config choice, not a failure)", res.Errors)
	}
}

func TestExecutor_WriteFailuresDoNotBlockRemainingFindings(t *testing.T) {
	dw := &fakeDirectiveWriter{err: errors.New("disk full")}
	cw := &fakeCooloffWriter{}
	e, st := newTestExecutor(t, dw, cw, &fakeSink{})

	res := e.Apply(context.Background(), reportOf(repFinding("p1", 3), repFinding("p2", 3)), st)
	if res.Directives != 0 || res.Errors != 2 {
		t.Errorf("result = %+v, want 0 directives and 2 errors", res)
	}
	if len(cw.flags) != 2 {
		t.Errorf("cooloffs = %d, want 2 (cooloffs still written)", len(cw.flags))
	}
	if got := st.Counters().WriteErrors; got != 2 {
		t.Errorf("WriteErrors = %d, want 2", got)
	}
}

func TestExecutor_TracksInterventionsPerProducer(t *testing.T) {
	e, st := newTestExecutor(t, &fakeDirectiveWriter{}, &fakeCooloffWriter{}, &fakeSink{})

	e.Apply(context.Background(), reportOf(repFinding("p1", 3)), st)
	e.Apply(context.Background(), reportOf(repFinding("p1", 4)), st)

	trackers := st.Trackers()
	if len(trackers) != 1 {
		t.Fatalf("trackers = %d, want 1", len(trackers))
	}
	track := trackers[0]
	if track.FindingCount != 2 {
		t.Errorf("FindingCount = %d, want 2", track.FindingCount)
	}
	if track.LastStrategy != StrategyImposeSilence {
		t.Errorf("LastStrategy = %s, want the most recent strategy", track.LastStrategy)
	}
}
