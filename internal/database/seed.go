package database

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/config"
)

// Seed stores the configured encodings into an empty store.
// A store that already holds encodings is left untouched. Returns the number of encodings written.
func Seed(ctx context.Context, w EncodingWriter, seeds []config.EncodingSeed, model string) (int, error) {
	count, err := w.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting encodings: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	for _, s := range seeds {
		updated, err := s.LastUpdatedTime()
		if err != nil {
			return 0, err
		}
		if _, err := w.Save(ctx, StoredEncoding{
			EmployeeID:     s.EmployeeID,
			Name:           s.Name,
			Encoding:       s.Encoding,
			Model:          model,
			LastUpdated:    updated,
			TrainingImages: s.TrainingImages,
		}); err != nil {
			return 0, fmt.Errorf("seeding %s: %w", s.EmployeeID, err)
		}
	}
	return len(seeds), nil
}
