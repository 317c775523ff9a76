package mariadb

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceMirror writes attendance records to the HR attendance_log table.
type AttendanceMirror struct {
	pool *Pool
}

// NewAttendanceMirror creates a mirror writing through pool.
func NewAttendanceMirror(pool *Pool) *AttendanceMirror {
	return &AttendanceMirror{pool: pool}
}

// Record inserts rec, ignoring records already mirrored.
func (m *AttendanceMirror) Record(ctx context.Context, rec database.AttendanceRecord) error {
	query := `INSERT IGNORE INTO attendance_log
		(record_id, employee_id, full_name, camera_id, action, confidence, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := m.pool.db.ExecContext(ctx, query, rec.ID, rec.EmployeeID, rec.Name, rec.CameraID,
		rec.Action, rec.Confidence, rec.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("mirror attendance %s: %w", rec.ID, err)
	}
	return nil
}

// LastSeen returns when an employee was last logged, zero if never.
func (m *AttendanceMirror) LastSeen(ctx context.Context, employeeID string) (time.Time, error) {
	var last []byte
	err := m.pool.db.QueryRowContext(ctx,
		`SELECT MAX(logged_at) FROM attendance_log WHERE employee_id = ?`, employeeID,
	).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("query last seen: %w", err)
	}
	if len(last) == 0 {
		return time.Time{}, nil
	}
	// parseTime=true DSNs deliver RFC 3339, plain DSNs the MariaDB text format
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999"} {
		if t, err := time.Parse(layout, string(last)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse last seen %q", last)
}
