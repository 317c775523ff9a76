package database

import (
	"context"
	"errors"
)

var (
	// ErrDimensionMismatch is returned when an encoding does not match the dimension of the store.
	ErrDimensionMismatch = errors.New("encoding dimension mismatch")
	// ErrEmptyEncoding is returned when an encoding has no components.
	ErrEmptyEncoding = errors.New("encoding is empty")
	// ErrNotFound is returned when a requested employee encoding does not exist.
	ErrNotFound = errors.New("not found")
)

// EncodingReader provides read-only access to enrolled face encodings
type EncodingReader interface {
	// List returns all encodings in enrollment order
	List(ctx context.Context) ([]StoredEncoding, error)
	// Get retrieves the encoding of an employee, returns nil if not found
	Get(ctx context.Context, employeeID string) (*StoredEncoding, error)
	// FindByName returns encodings whose normalized name equals the normalized input
	FindByName(ctx context.Context, name string) ([]StoredEncoding, error)
	// Count returns the number of enrolled encodings
	Count(ctx context.Context) (int, error)
	// FindNearest returns up to limit encodings ordered by ascending Euclidean distance
	FindNearest(ctx context.Context, encoding []float32, limit int) ([]StoredEncoding, []float64, error)
}

// EncodingWriter provides write access to enrolled face encodings
type EncodingWriter interface {
	EncodingReader

	// Save stores an encoding, replacing any previous encoding of the same employee.
	// Returns the stored ID.
	Save(ctx context.Context, enc StoredEncoding) (int64, error)

	// Delete removes the encoding of an employee, ErrNotFound if there is none
	Delete(ctx context.Context, employeeID string) error
}

// AttendanceWriter persists attendance records
type AttendanceWriter interface {
	Record(ctx context.Context, rec AttendanceRecord) error
}

// AttendanceReader lists recorded attendance
type AttendanceReader interface {
	// List returns matching records, newest first
	List(ctx context.Context, filter AttendanceFilter) ([]AttendanceRecord, error)
	// CountByEmployee returns the number of records per employee ID
	CountByEmployee(ctx context.Context) (map[string]int, error)
}

// AttendanceStore combines attendance read and write access
type AttendanceStore interface {
	AttendanceReader
	AttendanceWriter
}

// IndexSaver is implemented by repositories that keep an on-disk HNSW index
type IndexSaver interface {
	// SaveIndex saves the current index to disk (if path configured)
	SaveIndex() error
}
