package database_test

import (
	"context"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/memory"
)

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEncodingStore()
	seeds := []config.EncodingSeed{
		{EmployeeID: "EMP001", Name: "John Smith", Encoding: []float32{0.1, 0.2, 0.3, 0.4}, LastUpdated: "2024-12-01", TrainingImages: 5},
		{EmployeeID: "EMP002", Name: "Sarah Johnson", Encoding: []float32{0.5, 0.6, 0.7, 0.8}, LastUpdated: "2024-12-01", TrainingImages: 7},
	}

	n, err := database.Seed(ctx, store, seeds, "large")
	if err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 seeded encodings, got %d", n)
	}

	got, err := store.Get(ctx, "EMP002")
	if err != nil || got == nil {
		t.Fatalf("expected EMP002, got %v, %v", got, err)
	}
	if got.TrainingImages != 7 || got.Model != "large" || got.LastUpdated.Day() != 1 {
		t.Errorf("unexpected stored encoding %+v", got)
	}

	// Second seed is a no-op.
	n, err = database.Seed(ctx, store, seeds, "large")
	if err != nil || n != 0 {
		t.Errorf("expected no-op reseed, got %d, %v", n, err)
	}
}

func TestSeed_InvalidDate(t *testing.T) {
	store := memory.NewEncodingStore()
	seeds := []config.EncodingSeed{{EmployeeID: "EMP001", Encoding: []float32{1}, LastUpdated: "yesterday"}}

	if _, err := database.Seed(context.Background(), store, seeds, ""); err == nil {
		t.Fatal("expected error for invalid date")
	}
}
