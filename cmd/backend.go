package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/memory"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
)

// backend bundles the stores selected by the environment.
type backend struct {
	name       string
	encodings  database.EncodingWriter
	attendance database.AttendanceStore
	recorder   database.AttendanceWriter // attendance plus the HR mirror when configured
	index      database.IndexSaver
	closers    []func() error
}

// openBackend connects to PostgreSQL when DATABASE_URL is set and uses memory stores otherwise.
// Configured encodings are seeded into an empty store.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{}

	if cfg.Database.URL != "" {
		fmt.Printf("Connecting to PostgreSQL database...\n")
		pool, err := postgres.Initialize(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		b.closers = append(b.closers, pool.Close)

		repo := postgres.NewEncodingRepository(pool)
		if err := seedEncodings(ctx, repo, cfg); err != nil {
			b.close()
			return nil, err
		}
		initEncodingHNSW(ctx, repo, cfg.Database.HNSWIndexPath)

		b.name = "postgres"
		b.encodings = repo
		b.index = repo
		b.attendance = postgres.NewAttendanceRepository(pool)
		fmt.Printf("Using PostgreSQL backend\n")
	} else {
		store := memory.NewEncodingStore()
		if err := seedEncodings(ctx, store, cfg); err != nil {
			return nil, err
		}
		if path := cfg.Database.HNSWIndexPath; path != "" {
			if err := store.EnableIndexPersistence(path); err != nil {
				fmt.Printf("Warning: failed to load HNSW index from %s: %v\n", path, err)
			}
		}

		b.name = "memory"
		b.encodings = store
		b.index = store
		b.attendance = memory.NewAttendanceStore()
	}

	b.recorder = b.attendance
	if dsn := cfg.HRDatabase.DSN; dsn != "" {
		mirror, closeFn, err := openHRMirror(ctx, dsn)
		if err != nil {
			fmt.Printf("Warning: HR attendance mirror disabled: %v\n", err)
		} else {
			b.closers = append(b.closers, closeFn)
			b.recorder = database.NewMultiWriter(b.attendance, mirror)
			fmt.Printf("Mirroring attendance to HR database (MariaDB)\n")
		}
	}

	return b, nil
}

func seedEncodings(ctx context.Context, w database.EncodingWriter, cfg *config.Config) error {
	if _, err := database.Seed(ctx, w, cfg.Encodings, cfg.Face.ModelType); err != nil {
		return fmt.Errorf("seeding encodings: %w", err)
	}
	return nil
}

func openHRMirror(ctx context.Context, dsn string) (*mariadb.AttendanceMirror, func() error, error) {
	pool, err := mariadb.NewPool(dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return mariadb.NewAttendanceMirror(pool), pool.Close, nil
}

// initEncodingHNSW builds or loads the encoding HNSW index for fast nearest search.
func initEncodingHNSW(ctx context.Context, repo *postgres.EncodingRepository, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading encoding HNSW index from %s...\n", indexPath)
	} else {
		fmt.Printf("Building in-memory HNSW index for face encodings...\n")
	}
	if err := repo.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build encoding HNSW index: %v\n", err)
		fmt.Printf("Face matching will use PostgreSQL queries (slower)\n")
	} else if indexPath != "" {
		fmt.Printf("Encoding HNSW index ready with %d encodings (persisted to %s)\n", repo.HNSWCount(), indexPath)
	} else {
		fmt.Printf("Encoding HNSW index built with %d encodings (in-memory only)\n", repo.HNSWCount())
	}
}

// saveIndex writes the HNSW index to disk when a path is configured.
func (b *backend) saveIndex() {
	if err := b.index.SaveIndex(); err != nil {
		fmt.Printf("Warning: failed to save HNSW index: %v\n", err)
	}
}

func (b *backend) close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
