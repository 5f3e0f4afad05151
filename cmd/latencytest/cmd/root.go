package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "latencytest",
	Short: "Round-trip audio latency measurement tool",
	Long: `latencytest plays a reference audio file through the speaker while
recording the microphone, cross-correlates the capture against the
reference, and reports the estimated playback-to-capture delay.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (TOML, default: built-in defaults)")
	rootCmd.AddCommand(runCmd)
}
