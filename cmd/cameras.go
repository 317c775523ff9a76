package cmd

import (
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/spf13/cobra"
)

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List configured cameras",
	Args:  cobra.NoArgs,
	RunE:  runCameras,
}

func init() {
	rootCmd.AddCommand(camerasCmd)

	camerasCmd.Flags().Bool("enabled", false, "Only show cameras with face recognition enabled")
}

func runCameras(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cameras := cfg.Cameras
	if mustGetBool(cmd, "enabled") {
		cameras = cfg.EnabledCameras()
	}
	if len(cameras) == 0 {
		fmt.Println("No cameras configured")
		return nil
	}

	fmt.Printf("%-4s %-20s %-5s %-24s %s\n", "ID", "NAME", "FPS", "DETECTION AREA", "RECOGNITION")
	for _, c := range cameras {
		area := "full frame"
		if !c.DetectionArea.IsZero() {
			a := c.DetectionArea
			area = fmt.Sprintf("%dx%d at (%d,%d)", a.Width, a.Height, a.X, a.Y)
		}
		recognition := "disabled"
		if c.FaceRecognitionEnabled {
			recognition = "enabled"
		}
		fmt.Printf("%-4d %-20s %-5d %-24s %s\n", c.ID, c.Name, c.ProcessingFPS, area, recognition)
	}
	return nil
}
