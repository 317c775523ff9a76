package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/pipeline"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously process frames from all cameras",
	Long: `Process simulated frames from every camera with face recognition enabled
at the camera's processing_fps until interrupted.

Examples:
  face-attendance watch
  face-attendance watch --duration 10s`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Duration("duration", 0, "Stop after this long (0 runs until Ctrl+C)")
	addFaceOverrideFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	face, err := faceConfigFromFlags(cmd, cfg.Face)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := mustGetDuration(cmd, "duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	recognizer := recognition.NewRecognizer(recognition.NewSimulatedDetector(), b.encodings, b.recorder, face)

	cameras := cfg.EnabledCameras()
	fmt.Printf("Watching %d cameras, press Ctrl+C to stop\n", len(cameras))
	for _, c := range cameras {
		fmt.Printf("  [%d] %s at %d fps\n", c.ID, c.Name, c.ProcessingFPS)
	}

	var mu sync.Mutex
	err = pipeline.Watch(ctx, cameras, recognizer, pipeline.Options{
		OnRecord: func(rec database.AttendanceRecord) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Printf("%s camera %d ✓ Recognized: %s (%s) confidence %.2f\n",
				rec.Timestamp.Format(time.TimeOnly), rec.CameraID, rec.Name, rec.EmployeeID, rec.Confidence)
		},
		OnError: func(c config.CameraConfig, err error) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Printf("Warning: camera %d: %v\n", c.ID, err)
		},
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	stats := recognizer.Stats()
	fmt.Printf("\nStopped. Frames: %d, unchanged: %d, recognized: %d, unknown: %d, low quality: %d, outside area: %d\n",
		stats.Frames, stats.Unchanged, stats.Recognized, stats.Unknown, stats.LowQuality, stats.OutsideArea)
	b.saveIndex()
	return nil
}
