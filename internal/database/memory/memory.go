// Package memory provides thread-safe in-process implementations of the database interfaces.
// It backs the CLI when no DATABASE_URL is configured and doubles as the test store.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// EncodingStore keeps enrolled encodings in memory with an HNSW index for nearest search.
type EncodingStore struct {
	mu        sync.RWMutex
	encodings []database.StoredEncoding // enrollment order
	nextID    int64
	index     *database.HNSWIndex
	now       func() time.Time

	// Error injection
	ListError        error
	GetError         error
	CountError       error
	FindNearestError error
	SaveError        error
	DeleteError      error
}

// NewEncodingStore creates an empty encoding store.
func NewEncodingStore() *EncodingStore {
	return &EncodingStore{
		nextID: 1,
		index:  database.NewHNSWIndex(),
		now:    time.Now,
	}
}

// EnableIndexPersistence makes SaveIndex write the HNSW graph to path.
// An existing up-to-date graph at path is reused.
func (s *EncodingStore) EnableIndexPersistence(path string) error {
	s.mu.RLock()
	encs := slices.Clone(s.encodings)
	s.mu.RUnlock()
	return s.index.LoadOrBuild(path, encs)
}

// SaveIndex saves the HNSW index to disk (if path configured)
func (s *EncodingStore) SaveIndex() error {
	return s.index.Save()
}

// IndexCount returns the number of encodings in the HNSW index.
func (s *EncodingStore) IndexCount() int {
	return s.index.Count()
}

// List returns all encodings in enrollment order
func (s *EncodingStore) List(ctx context.Context) ([]database.StoredEncoding, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.encodings), nil
}

// Get retrieves an employee's encoding
func (s *EncodingStore) Get(ctx context.Context, employeeID string) (*database.StoredEncoding, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.encodings {
		if e.EmployeeID == employeeID {
			c := clone(e)
			return &c, nil
		}
	}
	return nil, nil
}

// FindByName returns encodings whose normalized name matches
func (s *EncodingStore) FindByName(ctx context.Context, name string) ([]database.StoredEncoding, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	want := facematch.NormalizePersonName(name)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []database.StoredEncoding
	for _, e := range s.encodings {
		if facematch.NormalizePersonName(e.Name) == want {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

// Count returns the number of encodings
func (s *EncodingStore) Count(ctx context.Context) (int, error) {
	if s.CountError != nil {
		return 0, s.CountError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.encodings), nil
}

// FindNearest searches the HNSW index
func (s *EncodingStore) FindNearest(ctx context.Context, encoding []float32, limit int) ([]database.StoredEncoding, []float64, error) {
	if s.FindNearestError != nil {
		return nil, nil, s.FindNearestError
	}
	if limit <= 0 {
		return nil, nil, nil
	}
	return s.index.Search(encoding, limit)
}

// Save stores an encoding, replacing the employee's previous one
func (s *EncodingStore) Save(ctx context.Context, enc database.StoredEncoding) (int64, error) {
	if s.SaveError != nil {
		return 0, s.SaveError
	}
	if len(enc.Encoding) == 0 {
		return 0, database.ErrEmptyEncoding
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.encodings {
		if e.EmployeeID != enc.EmployeeID && len(e.Encoding) != len(enc.Encoding) {
			return 0, database.ErrDimensionMismatch
		}
	}

	enc = clone(enc)
	enc.ID = s.nextID
	s.nextID++
	if enc.CreatedAt.IsZero() {
		enc.CreatedAt = s.now()
	}

	replaced := false
	for i, e := range s.encodings {
		if e.EmployeeID == enc.EmployeeID {
			s.encodings[i] = enc
			replaced = true
			break
		}
	}
	if !replaced {
		s.encodings = append(s.encodings, enc)
	}

	if err := s.index.Build(cloneAll(s.encodings)); err != nil {
		return 0, err
	}
	return enc.ID, nil
}

// Delete removes an employee's encoding
func (s *EncodingStore) Delete(ctx context.Context, employeeID string) error {
	if s.DeleteError != nil {
		return s.DeleteError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.encodings, func(e database.StoredEncoding) bool {
		return e.EmployeeID == employeeID
	})
	if i < 0 {
		return database.ErrNotFound
	}
	s.encodings = slices.Delete(s.encodings, i, i+1)
	return s.index.Build(cloneAll(s.encodings))
}

func clone(e database.StoredEncoding) database.StoredEncoding {
	e.Encoding = slices.Clone(e.Encoding)
	return e
}

func cloneAll(encs []database.StoredEncoding) []database.StoredEncoding {
	out := make([]database.StoredEncoding, len(encs))
	for i, e := range encs {
		out[i] = clone(e)
	}
	return out
}

// AttendanceStore is an append-only in-memory attendance log.
type AttendanceStore struct {
	mu      sync.RWMutex
	records []database.AttendanceRecord

	// Error injection
	RecordError error
	ListError   error
}

// NewAttendanceStore creates an empty attendance log.
func NewAttendanceStore() *AttendanceStore {
	return &AttendanceStore{}
}

// Record appends a record
func (s *AttendanceStore) Record(ctx context.Context, rec database.AttendanceRecord) error {
	if s.RecordError != nil {
		return s.RecordError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// List returns matching records, newest first
func (s *AttendanceStore) List(ctx context.Context, filter database.AttendanceFilter) ([]database.AttendanceRecord, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []database.AttendanceRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if !filter.Matches(s.records[i]) {
			continue
		}
		out = append(out, s.records[i])
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// CountByEmployee returns record counts per employee
func (s *AttendanceStore) CountByEmployee(ctx context.Context) (map[string]int, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, r := range s.records {
		counts[r.EmployeeID]++
	}
	return counts, nil
}

// Len returns the number of stored records.
func (s *AttendanceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
