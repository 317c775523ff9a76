//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := Initialize(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to initialize pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

func TestEncodingRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewEncodingRepository(pool)

	seeds := []database.StoredEncoding{
		{EmployeeID: "EMP001", Name: "John Smith", Encoding: []float32{0.1, 0.2, 0.3, 0.4}, TrainingImages: 5,
			LastUpdated: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)},
		{EmployeeID: "EMP002", Name: "Sarah Johnson", Encoding: []float32{0.5, 0.6, 0.7, 0.8}, TrainingImages: 7},
	}
	for _, s := range seeds {
		if _, err := repo.Save(ctx, s); err != nil {
			t.Fatalf("Failed to save %s: %v", s.EmployeeID, err)
		}
	}

	t.Run("GetAndList", func(t *testing.T) {
		got, err := repo.Get(ctx, "EMP001")
		if err != nil {
			t.Fatalf("Failed to get: %v", err)
		}
		if got == nil || got.Name != "John Smith" || len(got.Encoding) != 4 {
			t.Fatalf("Unexpected encoding %+v", got)
		}
		if got.LastUpdated.Year() != 2024 {
			t.Errorf("Expected last_updated 2024, got %v", got.LastUpdated)
		}

		missing, err := repo.Get(ctx, "EMP404")
		if err != nil || missing != nil {
			t.Errorf("Expected nil for missing employee, got %v, %v", missing, err)
		}

		all, err := repo.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 2 || all[0].EmployeeID != "EMP001" {
			t.Errorf("Unexpected list %+v", all)
		}
	})

	t.Run("FindNearestSQL", func(t *testing.T) {
		encs, dists, err := repo.FindNearest(ctx, []float32{0.1, 0.2, 0.3, 0.4}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(encs) != 2 || encs[0].EmployeeID != "EMP001" || dists[0] > 1e-6 {
			t.Errorf("Unexpected nearest %+v %v", encs, dists)
		}
	})

	t.Run("FindNearestHNSW", func(t *testing.T) {
		if err := repo.EnableHNSW(ctx, ""); err != nil {
			t.Fatal(err)
		}
		if repo.HNSWCount() != 2 {
			t.Errorf("Expected 2 indexed encodings, got %d", repo.HNSWCount())
		}
		encs, _, err := repo.FindNearest(ctx, []float32{0.5, 0.6, 0.7, 0.8}, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(encs) != 1 || encs[0].EmployeeID != "EMP002" {
			t.Errorf("Unexpected nearest %+v", encs)
		}
	})

	t.Run("FindByName", func(t *testing.T) {
		encs, err := repo.FindByName(ctx, "sarah-johnson")
		if err != nil {
			t.Fatal(err)
		}
		if len(encs) != 1 || encs[0].EmployeeID != "EMP002" {
			t.Errorf("Unexpected match %+v", encs)
		}
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := repo.Save(ctx, database.StoredEncoding{EmployeeID: "EMP003", Name: "Mike Davis", Encoding: []float32{1, 2}})
		if !errors.Is(err, database.ErrDimensionMismatch) {
			t.Errorf("Expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Delete(ctx, "EMP002"); err != nil {
			t.Fatal(err)
		}
		if err := repo.Delete(ctx, "EMP002"); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		count, _ := repo.Count(ctx)
		if count != 1 {
			t.Errorf("Expected 1 encoding, got %d", count)
		}
	})
}

func TestAttendanceRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewAttendanceRepository(pool)
	base := time.Date(2024, 12, 2, 8, 0, 0, 0, time.UTC)

	for i, emp := range []string{"EMP001", "EMP002", "EMP001"} {
		rec := database.AttendanceRecord{
			ID:         uuid.NewString(),
			EmployeeID: emp,
			Name:       emp,
			CameraID:   i%2 + 1,
			Action:     "check_in",
			Confidence: 0.95,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Record(ctx, rec); err != nil {
			t.Fatalf("Failed to record: %v", err)
		}
	}

	all, err := repo.List(ctx, database.AttendanceFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || !all[0].Timestamp.Equal(base.Add(2*time.Minute)) {
		t.Errorf("Expected newest first, got %+v", all)
	}

	filtered, err := repo.List(ctx, database.AttendanceFilter{EmployeeID: "EMP001", CameraID: 1, Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 2 {
		t.Errorf("Expected 2 records for EMP001 on camera 1, got %d", len(filtered))
	}

	counts, err := repo.CountByEmployee(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["EMP001"] != 2 || counts["EMP002"] != 1 {
		t.Errorf("Unexpected counts %v", counts)
	}
}
