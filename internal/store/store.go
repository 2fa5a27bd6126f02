// Package store persists evidence records. Every sink is append-only.
package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/triangulate/internal/config"
	"github.com/sells-group/triangulate/internal/model"
)

// Sink receives the evidence records of finished rows.
type Sink interface {
	Record(ctx context.Context, records []model.EvidenceRecord) error
	Close() error
}

// History exposes the sources already recorded for a row by earlier runs.
type History interface {
	KnownSources(ctx context.Context, rowID string) ([]string, error)
}

// Open creates the sink named by cfg.Driver and runs its migrations.
func Open(ctx context.Context, cfg config.SinkConfig) (Sink, error) {
	switch cfg.Driver {
	case "jsonl":
		return NewJSONL(cfg.Path)
	case "sqlite":
		s, err := NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case "none", "":
		return Nop{}, nil
	}
	return nil, eris.Wrapf(config.ErrConfiguration, "store: unknown sink driver %q", cfg.Driver)
}

// Nop discards records.
type Nop struct{}

func (Nop) Record(context.Context, []model.EvidenceRecord) error { return nil }
func (Nop) Close() error { return nil }

// Serialized wraps a sink so concurrent callers never interleave writes.
type Serialized struct {
	mu   sync.Mutex
	sink Sink
}

// Serialize returns s guarded by a write lock.
func Serialize(s Sink) *Serialized {
	return &Serialized{sink: s}
}

func (s *Serialized) Record(ctx context.Context, records []model.EvidenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink.Record(ctx, records)
}

func (s *Serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink.Close()
}

// KnownSources forwards to the wrapped sink when it keeps history.
func (s *Serialized) KnownSources(ctx context.Context, rowID string) ([]string, error) {
	h, ok := s.sink.(History)
	if !ok {
		return nil, nil
	}
	return h.KnownSources(ctx, rowID)
}

// encodedRecord holds the JSON columns shared by the SQL sinks.
type encodedRecord struct {
	changes []byte
	sources []byte
	notes   []byte
}

func encode(r model.EvidenceRecord) (encodedRecord, error) {
	var e encodedRecord
	var err error
	if e.changes, err = json.Marshal(r.Changes); err != nil {
		return e, eris.Wrapf(err, "store: marshal changes for %s", r.RowID)
	}
	sources := r.Sources
	if sources == nil {
		sources = []string{}
	}
	if e.sources, err = json.Marshal(sources); err != nil {
		return e, eris.Wrapf(err, "store: marshal sources for %s", r.RowID)
	}
	notes := r.Notes
	if notes == nil {
		notes = []string{}
	}
	if e.notes, err = json.Marshal(notes); err != nil {
		return e, eris.Wrapf(err, "store: marshal notes for %s", r.RowID)
	}
	return e, nil
}

// mergeSources decodes JSON source arrays into one sorted, deduplicated list.
func mergeSources(blobs [][]byte) ([]string, error) {
	set := make(map[string]struct{})
	for _, b := range blobs {
		var srcs []string
		if err := json.Unmarshal(b, &srcs); err != nil {
			return nil, eris.Wrap(err, "store: decode sources")
		}
		for _, s := range srcs {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
