// Package source adapts the durable stores and log files into the
// monitor's sample-reading interface.
//
// Each producer kind is served by its own Source. Absence of a backing
// source (a kind nobody registered, a log directory that doesn't exist
// yet) is reported as Batch.Available=false — a first-class, testable
// outcome — while genuinely broken reads return errors the monitor
// counts and skips for the tick.
package source

import (
	"context"
	"time"

	"github.com/aviarylabs/echoward/internal/echo"
	"github.com/aviarylabs/echoward/internal/store"
)

// Source reads recent samples for one producer kind.
type Source interface {
	Kind() echo.ProducerKind
	Recent(ctx context.Context, since time.Time) (echo.Batch, error)
}

// Adapter multiplexes per-kind sources behind echo.SampleStore.
type Adapter struct {
	sources map[echo.ProducerKind]Source
}

// NewAdapter builds an Adapter from the given sources. Registering two
// sources for the same kind keeps the last one.
func NewAdapter(sources ...Source) *Adapter {
	m := make(map[echo.ProducerKind]Source, len(sources))
	for _, src := range sources {
		m[src.Kind()] = src
	}
	return &Adapter{sources: m}
}

// Recent reads one kind's samples. A kind with no registered source is
// unavailable, not an error.
func (a *Adapter) Recent(ctx context.Context, kind echo.ProducerKind, since time.Time) (echo.Batch, error) {
	src, ok := a.sources[kind]
	if !ok {
		return echo.Batch{Available: false}, nil
	}
	return src.Recent(ctx, since)
}

// StoreSource serves one kind out of the SQLite store.
type StoreSource struct {
	store *store.Store
	kind  echo.ProducerKind
}

// NewStoreSource creates a store-backed source for the given kind.
func NewStoreSource(s *store.Store, kind echo.ProducerKind) *StoreSource {
	return &StoreSource{store: s, kind: kind}
}

// Kind returns the producer kind this source serves.
func (s *StoreSource) Kind() echo.ProducerKind {
	return s.kind
}

// Recent reads the kind's samples from the store. The store is always
// "available" once opened; read failures are real errors.
func (s *StoreSource) Recent(ctx context.Context, since time.Time) (echo.Batch, error) {
	samples, err := s.store.RecentSamples(ctx, s.kind, since)
	if err != nil {
		return echo.Batch{}, err
	}
	return echo.Batch{Samples: samples, Available: true}, nil
}
