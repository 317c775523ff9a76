package database

import (
	"context"
	"errors"
	"fmt"
)

// MultiWriter fans an attendance record out to several writers.
// The first writer is the primary store; failures of the others are joined into the returned error
// but do not stop the remaining writers.
type MultiWriter struct {
	writers []AttendanceWriter
}

// NewMultiWriter creates a writer over the non-nil writers given.
func NewMultiWriter(writers ...AttendanceWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range writers {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Record writes rec to every writer.
func (m *MultiWriter) Record(ctx context.Context, rec AttendanceRecord) error {
	var errs []error
	for i, w := range m.writers {
		if err := w.Record(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("attendance writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of wrapped writers.
func (m *MultiWriter) Len() int {
	return len(m.writers)
}
