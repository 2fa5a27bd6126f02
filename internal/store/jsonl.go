package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/triangulate/internal/model"
)

// JSONLSink appends one JSON object per record to a file. It keeps an
// in-memory index of the sources already recorded per row, loaded from
// the file on open, so it can serve as History.
type JSONLSink struct {
	mu      sync.Mutex
	f       *os.File
	sources map[string]map[string]struct{}
}

// NewJSONL opens (or creates) path for appending.
func NewJSONL(path string) (*JSONLSink, error) {
	sources, err := loadSources(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "jsonl: open %s", path)
	}
	if err := terminateLastLine(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &JSONLSink{f: f, sources: sources}, nil
}

// terminateLastLine appends a newline when the file ends mid-record so the
// next record starts on its own line.
func terminateLastLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return eris.Wrap(err, "jsonl: stat")
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return eris.Wrap(err, "jsonl: read tail")
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return eris.Wrap(err, "jsonl: terminate last line")
}

// loadSources indexes the sources of every record already in path. A
// line that does not decode, such as one cut short by a crash, is
// skipped.
func loadSources(path string) (map[string]map[string]struct{}, error) {
	index := make(map[string]map[string]struct{})
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return index, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "jsonl: open %s", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var r struct {
			RowID   string   `json:"row_id"`
			Sources []string `json:"sources"`
		}
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			zap.L().Warn("jsonl: skipping malformed record", zap.String("path", path), zap.Int("line", line), zap.Error(err))
			continue
		}
		addSources(index, r.RowID, r.Sources)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "jsonl: read %s", path)
	}
	return index, nil
}

func addSources(index map[string]map[string]struct{}, rowID string, sources []string) {
	if len(sources) == 0 {
		return
	}
	set, ok := index[rowID]
	if !ok {
		set = make(map[string]struct{}, len(sources))
		index[rowID] = set
	}
	for _, s := range sources {
		set[s] = struct{}{}
	}
}

// KnownSources returns every source recorded for the row, sorted.
func (s *JSONLSink) KnownSources(_ context.Context, rowID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sources[rowID]
	if len(set) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(set))
	for src := range set {
		out = append(out, src)
	}
	sort.Strings(out)
	return out, nil
}

// Record writes the batch with a single write call so a batch is never
// split by another writer.
func (s *JSONLSink) Record(ctx context.Context, records []model.EvidenceRecord) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "jsonl: record")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return eris.Wrapf(err, "jsonl: encode %s", r.RowID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(buf.Bytes()); err != nil {
		return eris.Wrap(err, "jsonl: write")
	}
	if err := s.f.Sync(); err != nil {
		return eris.Wrap(err, "jsonl: sync")
	}
	for _, r := range records {
		addSources(s.sources, r.RowID, r.Sources)
	}
	return nil
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
