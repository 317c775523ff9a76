package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/pgvector/pgvector-go"
)

const encodingColumns = `id, employee_id, name, encoding, model, last_updated, training_images, created_at`

// EncodingRepository provides PostgreSQL-backed encoding storage with an optional in-memory HNSW index.
type EncodingRepository struct {
	pool        *Pool
	hnswIndex   *database.HNSWIndex
	hnswEnabled bool
	hnswMu      sync.RWMutex
}

// NewEncodingRepository creates a new PostgreSQL encoding repository.
func NewEncodingRepository(pool *Pool) *EncodingRepository {
	return &EncodingRepository{pool: pool}
}

// EnableHNSW builds (or loads from indexPath) the in-memory index used by FindNearest.
func (r *EncodingRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	encs, err := r.List(ctx)
	if err != nil {
		return err
	}

	idx := database.NewHNSWIndex()
	if err := idx.LoadOrBuild(indexPath, encs); err != nil {
		return fmt.Errorf("building HNSW index: %w", err)
	}

	r.hnswMu.Lock()
	r.hnswIndex = idx
	r.hnswEnabled = true
	r.hnswMu.Unlock()
	return nil
}

// HNSWCount returns the number of encodings in the HNSW index, 0 when disabled.
func (r *EncodingRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if !r.hnswEnabled {
		return 0
	}
	return r.hnswIndex.Count()
}

// SaveIndex saves the HNSW index to disk (if path configured)
func (r *EncodingRepository) SaveIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if !r.hnswEnabled {
		return nil
	}
	return r.hnswIndex.Save()
}

// rebuildHNSW refreshes the index after a write. Failures disable the index so
// FindNearest falls back to SQL.
func (r *EncodingRepository) rebuildHNSW(ctx context.Context) {
	r.hnswMu.RLock()
	enabled := r.hnswEnabled
	r.hnswMu.RUnlock()
	if !enabled {
		return
	}

	encs, err := r.List(ctx)
	if err == nil {
		r.hnswMu.Lock()
		err = r.hnswIndex.Build(encs)
		if err != nil {
			r.hnswEnabled = false
		}
		r.hnswMu.Unlock()
	}
	if err != nil {
		log.Printf("Warning: HNSW rebuild failed, using PostgreSQL search: %v", err)
	}
}

// List returns all encodings in enrollment order.
func (r *EncodingRepository) List(ctx context.Context) ([]database.StoredEncoding, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+encodingColumns+` FROM face_encodings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query encodings: %w", err)
	}
	defer rows.Close()
	return scanEncodings(rows)
}

// Get retrieves the encoding of an employee, nil if not found.
func (r *EncodingRepository) Get(ctx context.Context, employeeID string) (*database.StoredEncoding, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+encodingColumns+` FROM face_encodings WHERE employee_id = $1`, employeeID)
	enc, err := scanEncoding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &enc, nil
}

// FindByName matches names with the same normalization as facematch.NormalizePersonName.
func (r *EncodingRepository) FindByName(ctx context.Context, name string) ([]database.StoredEncoding, error) {
	query := `SELECT ` + encodingColumns + ` FROM face_encodings
		WHERE LOWER(REPLACE(unaccent(name), '-', ' ')) = $1
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, facematch.NormalizePersonName(name))
	if err != nil {
		return nil, fmt.Errorf("query encodings by name: %w", err)
	}
	defer rows.Close()
	return scanEncodings(rows)
}

// Count returns the number of enrolled encodings.
func (r *EncodingRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_encodings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count encodings: %w", err)
	}
	return count, nil
}

// FindNearest uses the HNSW index when enabled, otherwise pgvector's L2 operator.
func (r *EncodingRepository) FindNearest(ctx context.Context, encoding []float32, limit int) ([]database.StoredEncoding, []float64, error) {
	if limit <= 0 {
		return nil, nil, nil
	}

	r.hnswMu.RLock()
	idx, enabled := r.hnswIndex, r.hnswEnabled
	r.hnswMu.RUnlock()
	if enabled {
		return idx.Search(encoding, limit)
	}

	query := `SELECT ` + encodingColumns + `, encoding <-> $1 AS distance
		FROM face_encodings
		WHERE dim = $2
		ORDER BY distance, id
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(encoding), len(encoding), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query nearest encodings: %w", err)
	}
	defer rows.Close()

	var encs []database.StoredEncoding
	var dists []float64
	for rows.Next() {
		var dist float64
		enc, err := scanEncoding(rows, &dist)
		if err != nil {
			return nil, nil, err
		}
		encs = append(encs, enc)
		dists = append(dists, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate nearest encodings: %w", err)
	}
	return encs, dists, nil
}

// Save upserts the encoding of an employee and returns its ID.
func (r *EncodingRepository) Save(ctx context.Context, enc database.StoredEncoding) (int64, error) {
	if len(enc.Encoding) == 0 {
		return 0, database.ErrEmptyEncoding
	}

	var mismatched bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM face_encodings WHERE employee_id <> $1 AND dim <> $2)`,
		enc.EmployeeID, len(enc.Encoding),
	).Scan(&mismatched)
	if err != nil {
		return 0, fmt.Errorf("check encoding dimension: %w", err)
	}
	if mismatched {
		return 0, database.ErrDimensionMismatch
	}

	var lastUpdated sql.NullTime
	if !enc.LastUpdated.IsZero() {
		lastUpdated = sql.NullTime{Time: enc.LastUpdated, Valid: true}
	}

	var id int64
	err = r.pool.QueryRow(ctx, `
		INSERT INTO face_encodings (employee_id, name, encoding, dim, model, last_updated, training_images)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (employee_id) DO UPDATE SET
			name = EXCLUDED.name,
			encoding = EXCLUDED.encoding,
			dim = EXCLUDED.dim,
			model = EXCLUDED.model,
			last_updated = EXCLUDED.last_updated,
			training_images = EXCLUDED.training_images
		RETURNING id
	`, enc.EmployeeID, enc.Name, pgvector.NewVector(enc.Encoding), len(enc.Encoding),
		enc.Model, lastUpdated, enc.TrainingImages,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save encoding %s: %w", enc.EmployeeID, err)
	}

	r.rebuildHNSW(ctx)
	return id, nil
}

// Delete removes the encoding of an employee.
func (r *EncodingRepository) Delete(ctx context.Context, employeeID string) error {
	res, err := r.pool.Exec(ctx, "DELETE FROM face_encodings WHERE employee_id = $1", employeeID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}

	r.rebuildHNSW(ctx)
	return nil
}

// scanEncoding scans a single row into a StoredEncoding, with optional extra scan destinations.
func scanEncoding(scanner interface{ Scan(...any) error }, extraDest ...any) (database.StoredEncoding, error) {
	var enc database.StoredEncoding
	var vec pgvector.Vector
	var lastUpdated sql.NullTime

	dest := []any{&enc.ID, &enc.EmployeeID, &enc.Name, &vec, &enc.Model, &lastUpdated, &enc.TrainingImages, &enc.CreatedAt}
	dest = append(dest, extraDest...)
	if err := scanner.Scan(dest...); err != nil {
		return enc, fmt.Errorf("scan encoding: %w", err)
	}

	enc.Encoding = vec.Slice()
	if lastUpdated.Valid {
		enc.LastUpdated = lastUpdated.Time
	}
	return enc, nil
}

func scanEncodings(rows *sql.Rows) ([]database.StoredEncoding, error) {
	var encs []database.StoredEncoding
	for rows.Next() {
		enc, err := scanEncoding(rows)
		if err != nil {
			return nil, err
		}
		encs = append(encs, enc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate encodings: %w", err)
	}
	return encs, nil
}
