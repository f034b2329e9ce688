package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aviarylabs/echoward/internal/echo"
	"github.com/aviarylabs/echoward/internal/store"
)

var testBase = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// ─── Adapter ─────────────────────────────────────────────────────────────────

func TestAdapter_UnregisteredKindIsUnavailable(t *testing.T) {
	a := NewAdapter()

	batch, err := a.Recent(context.Background(), echo.KindAgent, testBase)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if batch.Available {
		t.Error("a kind with no source should report unavailable, not error")
	}
}

func TestAdapter_RoutesByKind(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "m.jsonl", `{"id":"m1","producer_id":"p1","text":"hi","observed_at":"2026-08-01T12:00:00Z"}`)
	a := NewAdapter(NewFileSource(dir))

	batch, err := a.Recent(context.Background(), echo.KindMessage, testBase.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if !batch.Available || len(batch.Samples) != 1 {
		t.Errorf("batch = %+v, want one message sample", batch)
	}
}

// ─── StoreSource ─────────────────────────────────────────────────────────────

func TestStoreSource_ReadsOneKind(t *testing.T) {
	st, err := store.New(store.Config{DataDir: t.TempDir(), MaxAuditEntries: 10})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	for _, s := range []echo.ContentSample{
		{ID: "a1", ProducerID: "p1", Kind: echo.KindAgent, Text: "agent", ObservedAt: testBase},
		{ID: "r1", ProducerID: "p2", Kind: echo.KindReflector, Text: "reflector", ObservedAt: testBase},
	} {
		if err := st.PutSample(ctx, s); err != nil {
			t.Fatalf("PutSample: %v", err)
		}
	}

	src := NewStoreSource(st, echo.KindAgent)
	if src.Kind() != echo.KindAgent {
		t.Errorf("Kind = %s, want agent", src.Kind())
	}
	batch, err := src.Recent(ctx, testBase.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if !batch.Available {
		t.Error("an opened store is always available")
	}
	if len(batch.Samples) != 1 || batch.Samples[0].ID != "a1" {
		t.Errorf("samples = %+v, want only the agent sample", batch.Samples)
	}
}

// ─── FileSource ──────────────────────────────────────────────────────────────

func writeLog(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content+"\n"), 0600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newFileSource(t *testing.T, dir string) *FileSource {
	t.Helper()
	f := NewFileSource(dir)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestFileSource_MissingDirIsUnavailable(t *testing.T) {
	f := newFileSource(t, filepath.Join(t.TempDir(), "does-not-exist"))

	batch, err := f.Recent(context.Background(), testBase)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if batch.Available {
		t.Error("missing log dir should be unavailable, not an error")
	}
}

func TestFileSource_ParsesRecords(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "stream.jsonl",
		`{"id":"m1","producer_id":"p1","text":"first","observed_at":"2026-08-01T12:00:00Z"}`+"\n"+
			`{"id":"m2","producer_id":"p1","text":"second","observed_at":"2026-08-01T12:00:01Z"}`)
	f := newFileSource(t, dir)

	batch, err := f.Recent(context.Background(), testBase.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(batch.Samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(batch.Samples))
	}
	s := batch.Samples[0]
	if s.Kind != echo.KindMessage {
		t.Errorf("Kind = %s, want message", s.Kind)
	}
	if s.ProducerID != "p1" || s.Text != "first" {
		t.Errorf("sample = %+v", s)
	}
}

func TestFileSource_SinceFiltersOldRecords(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "stream.jsonl",
		`{"id":"old","producer_id":"p1","text":"old","observed_at":"2026-08-01T10:00:00Z"}`+"\n"+
			`{"id":"new","producer_id":"p1","text":"new","observed_at":"2026-08-01T12:00:00Z"}`)
	f := newFileSource(t, dir)

	batch, err := f.Recent(context.Background(), testBase.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(batch.Samples) != 1 || batch.Samples[0].ID != "new" {
		t.Errorf("samples = %+v, want only the record at/after since", batch.Samples)
	}
}

func TestFileSource_MalformedLinesSkipped(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "stream.jsonl",
		`not json at all`+"\n"+
			`{"producer_id":"","text":"no producer"}`+"\n"+
			`{"id":"ok","producer_id":"p1","text":"good","observed_at":"2026-08-01T12:00:00Z"}`)
	f := newFileSource(t, dir)

	batch, err := f.Recent(context.Background(), testBase.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(batch.Samples) != 1 || batch.Samples[0].ID != "ok" {
		t.Errorf("samples = %+v, want only the well-formed record", batch.Samples)
	}
}

func TestFileSource_SyntheticIDsAreStable(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "stream.jsonl",
		`{"producer_id":"p1","text":"no id","observed_at":"2026-08-01T12:00:00Z"}`)
	f := newFileSource(t, dir)
	ctx := context.Background()

	first, err := f.Recent(ctx, testBase.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	second, err := f.Recent(ctx, testBase.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(first.Samples) != 1 || len(second.Samples) != 1 {
		t.Fatalf("samples = %d/%d, want 1/1", len(first.Samples), len(second.Samples))
	}
	if first.Samples[0].ID != second.Samples[0].ID {
		t.Errorf("synthetic ids differ across reads: %q vs %q", first.Samples[0].ID, second.Samples[0].ID)
	}
	if first.Samples[0].ID == "" {
		t.Error("synthetic id should not be empty")
	}
}

func TestFileSource_IgnoresNonJSONLFiles(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "notes.txt", `{"id":"x","producer_id":"p1","text":"wrong extension"}`)
	f := newFileSource(t, dir)

	batch, err := f.Recent(context.Background(), testBase.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(batch.Samples) != 0 {
		t.Errorf("samples = %d, want 0", len(batch.Samples))
	}
}

func TestFileSource_PicksUpChangedFile(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "stream.jsonl",
		`{"id":"m1","producer_id":"p1","text":"first","observed_at":"2026-08-01T12:00:00Z"}`)
	f := newFileSource(t, dir)
	ctx := context.Background()

	if _, err := f.Recent(ctx, testBase.Add(-time.Minute)); err != nil {
		t.Fatalf("Recent: %v", err)
	}

	writeLog(t, dir, "stream.jsonl",
		`{"id":"m1","producer_id":"p1","text":"first","observed_at":"2026-08-01T12:00:00Z"}`+"\n"+
			`{"id":"m2","producer_id":"p1","text":"second","observed_at":"2026-08-01T12:00:01Z"}`)

	// The fsnotify event or the stat fallback invalidates the cache;
	// either way the new record shows up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		batch, err := f.Recent(ctx, testBase.Add(-time.Minute))
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		if len(batch.Samples) == 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("samples = %d, want 2 after rewrite", len(batch.Samples))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
