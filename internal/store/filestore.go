package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// FileStore keeps the record collection in a single JSON file.
//
// Every write is a read-merge-write over the whole collection, which is only
// safe because the mutex serializes writers; readers share an RLock. The
// file itself is replaced atomically (write to a temp file, then rename) so
// a crash mid-write never leaves a truncated collection behind.
type FileStore struct {
	path string
	log  *slog.Logger
	mu   sync.RWMutex
}

// NewFileStore creates a file-backed store at the given path. The parent
// directory is created if missing; the file itself appears on first write.
func NewFileStore(path string, log *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store: file path is required")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	return &FileStore{path: path, log: log}, nil
}

// Create implements Store.
func (s *FileStore) Create(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range records {
		if existing.ScheduleID == rec.ScheduleID {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, rec.ScheduleID)
		}
	}
	records = append(records, rec)
	return s.persist(records)
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, scheduleID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.load()
	if err != nil {
		return Record{}, err
	}
	for _, rec := range records {
		if rec.ScheduleID == scheduleID {
			return rec, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, scheduleID)
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

// SetHandle implements Store.
func (s *FileStore) SetHandle(ctx context.Context, scheduleID, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(records, func(r Record) bool { return r.ScheduleID == scheduleID })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, scheduleID)
	}
	records[idx].Handle = handle
	return s.persist(records)
}

// Transition implements Store. The whole read-check-write cycle runs under
// the write lock, so a concurrent transition on the same record observes the
// first one's result instead of overwriting it.
func (s *FileStore) Transition(ctx context.Context, scheduleID string, from, to Status, at time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return Record{}, err
	}
	idx := slices.IndexFunc(records, func(r Record) bool { return r.ScheduleID == scheduleID })
	if idx < 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, scheduleID)
	}
	if records[idx].Status != from {
		return Record{}, fmt.Errorf("%w: %s is %s, expected %s",
			ErrIllegalTransition, scheduleID, records[idx].Status, from)
	}

	records[idx].Status = to
	switch to {
	case StatusSent:
		records[idx].SentAt = &at
	case StatusCancelled:
		records[idx].CancelledAt = &at
	}
	if err := s.persist(records); err != nil {
		return Record{}, err
	}
	s.log.DebugContext(ctx, "schedule status updated",
		slog.String("schedule_id", scheduleID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	return records[idx], nil
}

// load reads the collection; a missing file means an empty collection.
// Callers must hold at least the read lock.
func (s *FileStore) load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", s.path, err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", s.path, err)
	}
	return records, nil
}

// persist writes the collection atomically. Callers must hold the write lock.
func (s *FileStore) persist(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode records: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("store: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("store: replace %s: %w", s.path, err)
	}
	return nil
}
