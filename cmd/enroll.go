package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <employee-id> <name> <encoding>",
	Short: "Enroll or retrain an employee face encoding",
	Long: `Store a face encoding for an employee, replacing any previous one.
The encoding is a comma-separated list of numbers with the same dimension as
the enrolled encodings.

Examples:
  face-attendance enroll EMP003 "Mike Davis" 0.2,0.4,0.6,0.8
  face-attendance enroll EMP002 "Sarah Johnson" 0.5,0.6,0.7,0.8 --training-images 9`,
	Args: cobra.ExactArgs(3),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Int("training-images", 1, "Number of images the encoding was trained on")
}

// parseEncoding parses "0.1,0.2,..." into a vector.
func parseEncoding(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	enc := make([]float32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid encoding value %q: %w", p, err)
		}
		enc = append(enc, float32(v))
	}
	if len(enc) == 0 {
		return nil, database.ErrEmptyEncoding
	}
	return enc, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	employeeID, name := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
	if employeeID == "" || name == "" {
		return fmt.Errorf("employee id and name must not be empty")
	}
	encoding, err := parseEncoding(args[2])
	if err != nil {
		return err
	}
	trainingImages := mustGetInt(cmd, "training-images")
	if trainingImages < 0 {
		return fmt.Errorf("--training-images must not be negative")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	fmt.Printf("Training face for %s (%s)\n", name, employeeID)
	id, err := b.encodings.Save(ctx, database.StoredEncoding{
		EmployeeID:     employeeID,
		Name:           name,
		Encoding:       encoding,
		Model:          cfg.Face.ModelType,
		LastUpdated:    time.Now().UTC().Truncate(24 * time.Hour),
		TrainingImages: trainingImages,
	})
	if err != nil {
		return fmt.Errorf("saving encoding: %w", err)
	}

	count, err := b.encodings.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting encodings: %w", err)
	}
	fmt.Printf("Face training completed for %s (id %d, %d dims, %d training images)\n", name, id, len(encoding), trainingImages)
	fmt.Printf("%d encodings enrolled (%s backend)\n", count, b.name)
	if b.name == "memory" {
		fmt.Println("Note: the in-memory store is discarded on exit, set DATABASE_URL to persist enrollments")
	}

	b.saveIndex()
	return nil
}
