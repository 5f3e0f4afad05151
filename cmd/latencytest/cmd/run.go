package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loqalabs/audiolatency/internal/codec"
	"github.com/loqalabs/audiolatency/internal/config"
	"github.com/loqalabs/audiolatency/internal/controller"
	"github.com/loqalabs/audiolatency/internal/eventsink"
	"github.com/loqalabs/audiolatency/internal/stream"
)

var (
	referencePath string
	outputPath    string
	workDir       string
	natsURL       string
	sampleRate    int
	channels      int
	preheatMs     int
	ringBufferMs  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one round-trip latency measurement",
	RunE:  runLatencyTest,
}

func init() {
	runCmd.Flags().StringVar(&referencePath, "reference", "", "path to the reference audio file (required)")
	runCmd.Flags().StringVar(&outputPath, "output", "latency_test.m4a", "path to write the encoded M4A artifact")
	runCmd.Flags().StringVar(&workDir, "work-dir", ".", "directory for intermediate files")
	runCmd.Flags().StringVar(&natsURL, "nats", "", "NATS URL for event publishing (default: log only)")
	runCmd.Flags().IntVar(&sampleRate, "sample-rate", 0, "override working sample rate (Hz)")
	runCmd.Flags().IntVar(&channels, "channels", 0, "override working channel count (1 or 2)")
	runCmd.Flags().IntVar(&preheatMs, "preheat-ms", -1, "override pre-heat silence duration (ms)")
	runCmd.Flags().IntVar(&ringBufferMs, "ring-buffer-ms", 0, "override ring buffer capacity (ms)")
	_ = runCmd.MarkFlagRequired("reference")
}

func runLatencyTest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg.WorkDir = workDir
	if sampleRate != 0 {
		cfg.SampleRate = sampleRate
	}
	if channels != 0 {
		cfg.Channels = channels
	}
	if preheatMs >= 0 {
		cfg.PreheatMs = preheatMs
	}
	if ringBufferMs != 0 {
		cfg.RingBufferMs = ringBufferMs
	}

	var sink eventsink.Sink = eventsink.LogSink{}
	if natsURL != "" {
		natsSink, err := eventsink.NewNATSSink(natsURL)
		if err != nil {
			return fmt.Errorf("connect event sink: %w", err)
		}
		defer natsSink.Close()
		sink = natsSink
	}

	backend := &stream.PortAudioBackend{}
	decoder := codec.FFmpegDecoder{}
	encoder := codec.FFmpegEncoder{}

	ctl := controller.New(cfg, backend, decoder, encoder, sink)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("🛑 received interrupt, stopping run...")
		ctl.Stop()
	}()

	ctx := context.Background()
	if err := ctl.Start(ctx, referencePath); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	log.Printf("🎙️  run %s started, reference=%s", ctl.RunID(), referencePath)

	if err := ctl.Wait(ctx, outputPath); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	log.Printf("✅ run %s finished, output=%s", ctl.RunID(), outputPath)
	return nil
}
