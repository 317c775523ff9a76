package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-attendance",
	Short: "A simulated face-recognition attendance pipeline",
	Long: `Face Attendance matches faces seen by entrance cameras against enrolled
employee face encodings and logs attendance records.

Detection is simulated: every frame yields the same demo face. Encodings live
in memory unless DATABASE_URL points at PostgreSQL (pgvector). Attendance can
be mirrored into an HR MariaDB database via HR_DATABASE_URL.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
