package bench

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/scottdavis/metatool/pkg/errors"
	"github.com/scottdavis/metatool/pkg/memory"
)

// Sink persists records. Records already in a sink are skipped when an
// evaluation is resumed.
type Sink interface {
	Append(ctx context.Context, r Record) error
	Records(ctx context.Context) ([]Record, error)
}

// JSONLSink appends records to a JSON lines file.
type JSONLSink struct {
	mu      sync.Mutex
	f       *os.File
	records []Record
}

var _ Sink = (*JSONLSink)(nil)

// OpenJSONL opens path for appending and loads the records it already holds.
// Unreadable lines, such as one cut short by a crash, are ignored.
func OpenJSONL(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to open results file"),
			errors.Fields{"path": path})
	}

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r Record
		if json.Unmarshal([]byte(line), &r) == nil {
			records = append(records, r)
		}
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to read results file"),
			errors.Fields{"path": path})
	}
	return &JSONLSink{f: f, records: records}, nil
}

func (s *JSONLSink) Append(ctx context.Context, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, errors.InvalidInput, "failed to marshal record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to write record")
	}
	s.records = append(s.records, r)
	return nil
}

func (s *JSONLSink) Records(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...), nil
}

// Close closes the file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// StoreSink keeps records in a memory.Store, so workers on several hosts can
// share one Redis-backed evaluation.
type StoreSink struct {
	store  memory.Store
	prefix string
}

var _ Sink = (*StoreSink)(nil)

// NewStoreSink stores records under "bench:<run>:".
func NewStoreSink(store memory.Store, run string) *StoreSink {
	return &StoreSink{store: store, prefix: "bench:" + run + ":"}
}

func (s *StoreSink) Append(ctx context.Context, r Record) error {
	return s.store.Store(ctx, s.prefix+r.Key(), r)
}

func (s *StoreSink) Records(ctx context.Context) ([]Record, error) {
	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var records []Record
	for _, key := range keys {
		if !strings.HasPrefix(key, s.prefix) {
			continue
		}
		var r Record
		if err := s.store.Retrieve(ctx, key, &r); err != nil {
			if memory.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
