package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "touch-guard",
	Short: "Warns you when you touch your face",
	Long: `touch-guard watches a camera feed and raises an alert when your hand
touches your face. It learns from a few dozen example frames per label
(hands away, hands on face) and classifies every new frame against them
with a k-nearest-neighbor vote over image embeddings.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().String("session", "", "Session name used to store examples (overrides SESSION_NAME)")
	rootCmd.PersistentFlags().String("camera-url", "", "Snapshot URL of the camera (overrides CAMERA_URL)")
	rootCmd.PersistentFlags().String("camera-dir", "", "Replay still images from a directory instead of a camera")
	rootCmd.PersistentFlags().String("examples-path", "", "Snapshot file for examples when no database is configured (overrides EXAMPLES_PATH)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
