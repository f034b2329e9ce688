package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aviarylabs/echoward/internal/echo"
	"github.com/fsnotify/fsnotify"
)

// logLine is the wire format of one message-log record.
type logLine struct {
	ID         string    `json:"id,omitempty"`
	ProducerID string    `json:"producer_id"`
	Text       string    `json:"text"`
	ObservedAt time.Time `json:"observed_at"`
}

type fileCache struct {
	modTime time.Time
	size    int64
	samples []echo.ContentSample
}

// FileSource reads message-stream samples from a directory of .jsonl
// files, one JSON record per line. Parsed files are cached and
// invalidated by fsnotify events, with a stat-based fallback when the
// watcher cannot be established. A missing directory means the source
// is unavailable, not broken.
type FileSource struct {
	dir string

	mu      sync.Mutex
	cache   map[string]fileCache
	watcher *fsnotify.Watcher
	closed  bool
}

// NewFileSource creates a FileSource over dir. The directory does not
// need to exist yet; the watcher is established lazily once it does.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir, cache: make(map[string]fileCache)}
}

// Kind returns KindMessage; log streams are always message samples.
func (f *FileSource) Kind() echo.ProducerKind {
	return echo.KindMessage
}

// Close stops the directory watcher.
func (f *FileSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.watcher != nil {
		err := f.watcher.Close()
		f.watcher = nil
		return err
	}
	return nil
}

// Recent scans the log directory for samples observed at or after
// since. Unreadable or malformed files are skipped with a warning; one
// bad file never hides the rest of the stream.
func (f *FileSource) Recent(ctx context.Context, since time.Time) (echo.Batch, error) {
	if _, err := os.Stat(f.dir); err != nil {
		if os.IsNotExist(err) {
			return echo.Batch{Available: false}, nil
		}
		return echo.Batch{}, fmt.Errorf("source: stat log dir: %w", err)
	}
	f.ensureWatcher()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return echo.Batch{}, fmt.Errorf("source: read log dir: %w", err)
	}

	var out []echo.ContentSample
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		select {
		case <-ctx.Done():
			return echo.Batch{}, ctx.Err()
		default:
		}
		path := filepath.Join(f.dir, entry.Name())
		samples, err := f.fileSamples(path)
		if err != nil {
			log.Printf("WARNING: message log %s unreadable, skipping: %v", path, err)
			continue
		}
		for _, s := range samples {
			if !s.ObservedAt.Before(since) {
				out = append(out, s)
			}
		}
	}
	return echo.Batch{Samples: out, Available: true}, nil
}

// ensureWatcher starts the fsnotify watcher once the directory exists.
// Watch failures are tolerated: the stat fallback in fileSamples keeps
// the cache correct, just with more stat calls.
func (f *FileSource) ensureWatcher() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher != nil || f.closed {
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("WARNING: message log watcher unavailable: %v", err)
		return
	}
	if err := w.Add(f.dir); err != nil {
		log.Printf("WARNING: watch %s: %v", f.dir, err)
		w.Close()
		return
	}
	f.watcher = w
	go f.consumeEvents(w)
}

func (f *FileSource) consumeEvents(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			f.mu.Lock()
			delete(f.cache, ev.Name)
			f.mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Printf("WARNING: message log watcher: %v", err)
		}
	}
}

// fileSamples returns the parsed samples of one file, from cache when
// the file hasn't changed since the last parse.
func (f *FileSource) fileSamples(path string) ([]echo.ContentSample, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	cached, ok := f.cache[path]
	f.mu.Unlock()
	if ok && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached.samples, nil
	}

	samples, err := parseJSONL(path)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.cache[path] = fileCache{modTime: info.ModTime(), size: info.Size(), samples: samples}
	f.mu.Unlock()
	return samples, nil
}

func parseJSONL(path string) ([]echo.ContentSample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var samples []echo.ContentSample
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec logLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			log.Printf("WARNING: %s:%d: malformed log line skipped: %v", path, lineNo, err)
			continue
		}
		if rec.ProducerID == "" {
			continue
		}
		id := rec.ID
		if id == "" {
			// Lines without ids get a stable synthetic one so re-reads of
			// the same file don't look like new samples.
			id = fmt.Sprintf("%s#%d", filepath.Base(path), lineNo)
		}
		samples = append(samples, echo.ContentSample{
			ID:         id,
			ProducerID: rec.ProducerID,
			Kind:       echo.KindMessage,
			Text:       rec.Text,
			ObservedAt: rec.ObservedAt,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}
