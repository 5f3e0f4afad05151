// Command latencytest measures round-trip audio latency: it plays a
// reference file through the speaker while recording the microphone,
// cross-correlates the two, and reports an estimated delay alongside an
// encoded stereo artifact for manual inspection.
package main

import (
	"os"

	"github.com/loqalabs/audiolatency/cmd/latencytest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
