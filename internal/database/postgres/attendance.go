package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// AttendanceRepository stores attendance records in PostgreSQL.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// Record inserts a record. Re-recording the same ID is a no-op.
func (r *AttendanceRepository) Record(ctx context.Context, rec database.AttendanceRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attendance (id, employee_id, name, camera_id, action, confidence, distance, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.EmployeeID, rec.Name, rec.CameraID, rec.Action, rec.Confidence, rec.Distance, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("record attendance for %s: %w", rec.EmployeeID, err)
	}
	return nil
}

// List returns matching records, newest first.
func (r *AttendanceRepository) List(ctx context.Context, filter database.AttendanceFilter) ([]database.AttendanceRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		where = append(where, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if filter.CameraID != 0 {
		args = append(args, filter.CameraID)
		where = append(where, fmt.Sprintf("camera_id = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf("recorded_at >= $%d", len(args)))
	}

	query := `SELECT id, employee_id, name, camera_id, action, confidence, distance, recorded_at FROM attendance`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY recorded_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.EmployeeID, &rec.Name, &rec.CameraID, &rec.Action,
			&rec.Confidence, &rec.Distance, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}

// CountByEmployee returns the number of records per employee.
func (r *AttendanceRepository) CountByEmployee(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, "SELECT employee_id, COUNT(*) FROM attendance GROUP BY employee_id")
	if err != nil {
		return nil, fmt.Errorf("count attendance: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan attendance count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance counts: %w", err)
	}
	return counts, nil
}
