// Package pipeline drives the recognizer over the configured cameras.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// FrameProcessor turns one camera frame into an attendance record (or nil).
type FrameProcessor interface {
	ProcessFaceDetection(ctx context.Context, camera config.CameraConfig, frame []byte) (*database.AttendanceRecord, error)
}

// FrameSource provides the next frame of a camera.
type FrameSource func(ctx context.Context, camera config.CameraConfig) ([]byte, error)

// PlaceholderFrames returns a fixed label instead of real image data.
func PlaceholderFrames(ctx context.Context, camera config.CameraConfig) ([]byte, error) {
	return []byte(fmt.Sprintf("frame_data_%d", camera.ID)), nil
}

// ProgressInfo is reported after each camera of a Run.
type ProgressInfo struct {
	Current int
	Total   int
	Camera  config.CameraConfig
	Record  *database.AttendanceRecord
	Err     error
}

// Options configure a Run or Watch.
type Options struct {
	Frames     FrameSource        // defaults to PlaceholderFrames
	OnProgress func(ProgressInfo) // optional, called after each camera in Run
	OnRecord   func(database.AttendanceRecord)
	OnError    func(camera config.CameraConfig, err error)
}

func (o Options) frames() FrameSource {
	if o.Frames == nil {
		return PlaceholderFrames
	}
	return o.Frames
}

// Summary describes a completed Run.
type Summary struct {
	Processed  int
	Skipped    int
	Recognized int
	Unknown    int
	Records    []database.AttendanceRecord
	Errors     []error
}

// Run processes one frame per recognition-enabled camera, in configured order.
// Camera failures are collected in the summary. Only context cancellation stops the run.
func Run(ctx context.Context, cameras []config.CameraConfig, proc FrameProcessor, opts Options) (*Summary, error) {
	summary := &Summary{}
	frames := opts.frames()

	for i, camera := range cameras {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if !camera.FaceRecognitionEnabled {
			summary.Skipped++
			continue
		}

		rec, err := processOne(ctx, camera, frames, proc)
		summary.Processed++
		switch {
		case err != nil:
			summary.Errors = append(summary.Errors, err)
			if opts.OnError != nil {
				opts.OnError(camera, err)
			}
		case rec == nil:
			summary.Unknown++
		default:
			summary.Recognized++
			summary.Records = append(summary.Records, *rec)
			if opts.OnRecord != nil {
				opts.OnRecord(*rec)
			}
		}

		if opts.OnProgress != nil {
			opts.OnProgress(ProgressInfo{Current: i + 1, Total: len(cameras), Camera: camera, Record: rec, Err: err})
		}
	}

	return summary, nil
}

func processOne(ctx context.Context, camera config.CameraConfig, frames FrameSource, proc FrameProcessor) (*database.AttendanceRecord, error) {
	frame, err := frames(ctx, camera)
	if err != nil {
		return nil, fmt.Errorf("camera %d: read frame: %w", camera.ID, err)
	}
	rec, err := proc.ProcessFaceDetection(ctx, camera, frame)
	if err != nil {
		return rec, fmt.Errorf("camera %d: %w", camera.ID, err)
	}
	return rec, nil
}

// Watch processes frames of every enabled camera at its processing rate until ctx is done.
// Each camera runs in its own goroutine. Callbacks may be called concurrently.
func Watch(ctx context.Context, cameras []config.CameraConfig, proc FrameProcessor, opts Options) error {
	frames := opts.frames()

	var wg sync.WaitGroup
	started := 0
	for _, camera := range cameras {
		if !camera.FaceRecognitionEnabled {
			continue
		}
		interval := camera.FrameInterval()

		started++
		wg.Add(1)
		go func(camera config.CameraConfig, interval time.Duration) {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}

				rec, err := processOne(ctx, camera, frames, proc)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					if opts.OnError != nil {
						opts.OnError(camera, err)
					} else {
						log.Printf("Warning: %v", err)
					}
					continue
				}
				if rec != nil && opts.OnRecord != nil {
					opts.OnRecord(*rec)
				}
			}
		}(camera, interval)
	}

	if started == 0 {
		return fmt.Errorf("no cameras with face recognition enabled")
	}

	wg.Wait()
	return ctx.Err()
}
