// Package controller implements the orchestrator (C9): the state machine
// that drives a single round-trip latency measurement run end to end,
// from decode through merge, detection, auto-gain, and encoding.
package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/audiolatency/internal/audioformat"
	"github.com/loqalabs/audiolatency/internal/autogain"
	"github.com/loqalabs/audiolatency/internal/codec"
	"github.com/loqalabs/audiolatency/internal/config"
	"github.com/loqalabs/audiolatency/internal/delay"
	"github.com/loqalabs/audiolatency/internal/engine"
	"github.com/loqalabs/audiolatency/internal/eventsink"
	"github.com/loqalabs/audiolatency/internal/formatring"
	"github.com/loqalabs/audiolatency/internal/merger"
	"github.com/loqalabs/audiolatency/internal/refbuffer"
	"github.com/loqalabs/audiolatency/internal/stream"
)

// State is the controller's lifecycle state.
type State int32

const (
	Idle State = iota
	Decoding
	Preloading
	OpeningStreams
	Running
	Merging
	Detecting
	Finishing
	Errored
)

// Error taxonomy.
var (
	ErrDecodeFailed       = errors.New("controller: decode failed")
	ErrPreloadFailed      = errors.New("controller: preload failed")
	ErrStreamOpenFailed   = errors.New("controller: stream open failed")
	ErrDriverRuntimeError = errors.New("controller: driver runtime error")
	ErrEncodeFailed       = errors.New("controller: encode failed (non-fatal)")
)

const errorTeardownDelay = 100 * time.Millisecond

// Controller orchestrates a single run. Not reusable across runs; build a
// new Controller per test.
type Controller struct {
	cfg     config.Config
	backend stream.Backend
	decoder codec.Decoder
	encoder codec.Encoder
	sink    eventsink.Sink
	runID   string

	state   atomic.Int32
	running atomic.Bool
	errOnce atomic.Bool
	errVal  atomic.Value // error
	stopOnce  sync.Once
	watchDone chan struct{}

	refBuf    *refbuffer.Buffer
	refRing   *formatring.Ring
	capRing   *formatring.Ring
	outEngine *engine.OutputEngine
	inEngine  *engine.InputEngine
	outStream stream.OutputStream
	inStream  stream.InputStream
	merge     *merger.Merger
	mergeDone chan error
}

// New builds a Controller for one run with the given configuration and
// collaborators; the reference audio file is passed to Start.
func New(cfg config.Config, backend stream.Backend, decoder codec.Decoder, encoder codec.Encoder, sink eventsink.Sink) *Controller {
	c := &Controller{
		cfg:     cfg,
		backend: backend,
		decoder: decoder,
		encoder: encoder,
		sink:    sink,
		runID:   uuid.NewString(),
	}
	c.state.Store(int32(Idle))
	return c
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// RunID returns this controller's run identifier.
func (c *Controller) RunID() string {
	return c.runID
}

// workingFormat is the (working_sr, working_ch, working_fmt) triple the
// decoder is asked to produce; output and input use the same sample
// rate/channels to guarantee merge alignment.
func (c *Controller) workingFormat(sc config.StreamConfig) audioformat.Format {
	return audioformat.Format{
		SampleRate: c.cfg.SampleRate,
		Channels:   c.cfg.Channels,
		Kind:       sc.Kind(),
	}
}

// Start runs the full start sequence: decode, preload, build
// rings, open streams, launch the merger. It returns once streams are
// running; Stop (called explicitly, or by watchSelfStop on reference
// exhaustion) ends the run.
func (c *Controller) Start(ctx context.Context, referencePath string) error {
	c.running.Store(true)

	c.state.Store(int32(Decoding))
	outFormat := c.workingFormat(c.cfg.Output)
	decoded, err := c.decoder.DecodeToPCM(ctx, referencePath, c.cfg.WorkDir, "reference_working.pcm", outFormat)
	if err != nil || decoded == "" {
		return c.fail(ErrDecodeFailed, err)
	}

	c.state.Store(int32(Preloading))
	refBuf, err := refbuffer.New(decoded, outFormat, c.cfg.PreheatMs)
	if err != nil {
		return c.fail(ErrPreloadFailed, err)
	}
	c.refBuf = refBuf

	capacityBytes := outFormat.BytesPerSecond() * c.cfg.RingBufferMs / 1000
	refRing, err := formatring.New(capacityBytes, outFormat, audioformat.Canonical)
	if err != nil {
		return c.fail(ErrPreloadFailed, err)
	}
	c.refRing = refRing

	inFormat := c.workingFormat(c.cfg.Input)
	inCapacityBytes := inFormat.BytesPerSecond() * c.cfg.RingBufferMs / 1000
	capRing, err := formatring.New(inCapacityBytes, inFormat, audioformat.Canonical)
	if err != nil {
		return c.fail(ErrPreloadFailed, err)
	}
	c.capRing = capRing

	c.outEngine = engine.NewOutputEngine(c.refBuf, c.refRing, outFormat)
	c.inEngine = engine.NewInputEngine(c.capRing)
	c.outEngine.SetErrorHandler(func(err error) { c.onDriverError(err) })
	c.inEngine.SetErrorHandler(func(err error) { c.onDriverError(err) })

	c.state.Store(int32(OpeningStreams))
	if err := c.backend.Initialize(); err != nil {
		return c.fail(ErrStreamOpenFailed, err)
	}

	var outStream stream.OutputStream
	var inStream stream.InputStream
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := c.backend.OpenOutputStream(c.cfg.OutputParams(), c.outEngine.Produce)
		if err != nil {
			return err
		}
		outStream = s
		return nil
	})
	g.Go(func() error {
		s, err := c.backend.OpenInputStream(c.cfg.InputParams(), c.inEngine.Consume)
		if err != nil {
			return err
		}
		inStream = s
		return nil
	})
	if err := g.Wait(); err != nil {
		if outStream != nil {
			_ = outStream.Close()
		}
		if inStream != nil {
			_ = inStream.Close()
		}
		return c.fail(ErrStreamOpenFailed, err)
	}
	c.outStream = outStream
	c.inStream = inStream
	c.outStream.SetErrorCallback(func(err error) { c.outEngine.ReportError(err) })
	c.inStream.SetErrorCallback(func(err error) { c.inEngine.ReportError(err) })

	c.state.Store(int32(Running))
	c.outEngine.Arm()
	c.inEngine.Arm()
	if err := c.outStream.Start(); err != nil {
		return c.fail(ErrStreamOpenFailed, err)
	}
	if err := c.inStream.Start(); err != nil {
		return c.fail(ErrStreamOpenFailed, err)
	}

	c.sink.OnConfig(c.runID, c.outStream.Negotiated().String(), c.inStream.Negotiated().String())

	startedAt := time.Now()
	preheat := time.Duration(c.cfg.PreheatMs) * time.Millisecond
	mergedPath := filepath.Join(c.cfg.WorkDir, merger.IntermediateFileName)
	c.merge = merger.New(c.refRing, c.capRing, startedAt, preheat, mergedPath)
	c.mergeDone = make(chan error, 1)

	c.state.Store(int32(Merging))
	go c.merge.Run(func(err error) { c.mergeDone <- err })

	c.watchDone = make(chan struct{})
	go c.watchSelfStop()

	return nil
}

// watchSelfStop joins a run that stopped itself: when the output engine
// signals Ended (reference exhausted), running becomes false automatically,
// but the controller must still be joined via Stop to release resources —
// this goroutine performs that join on the run's behalf once Ended is
// observed.
func (c *Controller) watchSelfStop() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.watchDone:
			return
		case <-ticker.C:
			if c.outEngine.State() == engine.Ended {
				c.Stop()
				return
			}
		}
	}
}

// onDriverError is the async error callback path for a fatal driver error:
// one-shot, stops both engines and the merger, and tears down streams off
// the real-time thread after a brief drain pause.
func (c *Controller) onDriverError(err error) {
	if c.errOnce.Swap(true) {
		return
	}
	c.errVal.Store(err)
	c.running.Store(false)
	if c.merge != nil {
		c.merge.SetErrorFlag()
	}
	go func() {
		time.Sleep(errorTeardownDelay)
		c.teardownStreams()
	}()
}

func (c *Controller) teardownStreams() {
	if c.outStream != nil {
		_ = c.outStream.Stop()
		_ = c.outStream.Close()
	}
	if c.inStream != nil {
		_ = c.inStream.Stop()
		_ = c.inStream.Close()
	}
}

// Wait blocks until the merger has finished (either because the reference
// was exhausted and Stop was called, or because an error occurred), then
// runs the post-processing pipeline (auto-gain, delay detection, encode)
// unless the error flag is set.
func (c *Controller) Wait(ctx context.Context, outM4APath string) error {
	mergeErr := <-c.mergeDone

	if c.errOnce.Load() {
		c.state.Store(int32(Errored))
		err, _ := c.errVal.Load().(error)
		c.sink.OnError(c.runID, errMessage(err), 1)
		return fmt.Errorf("%w: %v", ErrDriverRuntimeError, err)
	}
	if mergeErr != nil {
		c.state.Store(int32(Errored))
		c.sink.OnError(c.runID, mergeErr.Error(), 1)
		return mergeErr
	}

	c.state.Store(int32(Detecting))
	c.sink.OnDetecting(c.runID)

	mergedPath := filepath.Join(c.cfg.WorkDir, merger.IntermediateFileName)

	if _, err := autogain.ProcessFile(mergedPath); err != nil {
		c.state.Store(int32(Errored))
		c.sink.OnError(c.runID, err.Error(), 1)
		return err
	}

	raw, err := os.ReadFile(mergedPath)
	if err != nil {
		c.state.Store(int32(Errored))
		c.sink.OnError(c.runID, err.Error(), 1)
		return err
	}
	samples := decodeInt16StereoToFloat(raw)
	result := delay.DetectInterleaved(samples, c.cfg.SampleRate)

	c.state.Store(int32(Finishing))
	outFormat := audioformat.Format{SampleRate: c.cfg.SampleRate, Channels: 2, Kind: audioformat.Int16}
	encodeErr := c.encoder.EncodePCMToM4A(ctx, mergedPath, outM4APath, outFormat)
	rc := 0
	if encodeErr != nil {
		rc = 1
	}

	top3 := make([]eventsink.CandidatePair, 0, len(result.Top3))
	for _, cand := range result.Top3 {
		top3 = append(top3, eventsink.CandidatePair{
			DelayMs:     1000 * float64(cand.DelaySamples) / float64(c.cfg.SampleRate),
			Correlation: cand.NCC,
		})
	}
	c.sink.OnCompleted(c.runID, outM4APath, rc, result.DelayMs, top3)

	c.state.Store(int32(Idle))
	if encodeErr != nil {
		return fmt.Errorf("%w: %v", ErrEncodeFailed, encodeErr)
	}
	return nil
}

// Stop requests the run to end: running=false, join the merger, stop and
// close both streams. Safe to call any number of times.
func (c *Controller) Stop() {
	if c.watchDone != nil {
		c.stopOnce.Do(func() { close(c.watchDone) })
	}
	c.running.Store(false)
	if c.outEngine != nil {
		c.outEngine.Disarm()
	}
	if c.inEngine != nil {
		c.inEngine.Disarm()
	}
	if c.merge != nil {
		c.merge.Stop()
		c.merge.Wait()
	}
	c.teardownStreams()
}

func (c *Controller) fail(sentinel, cause error) error {
	c.state.Store(int32(Errored))
	msg := sentinel.Error()
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", sentinel, cause)
	}
	c.sink.OnError(c.runID, msg, 1)
	if cause != nil {
		return fmt.Errorf("%w: %v", sentinel, cause)
	}
	return sentinel
}

func errMessage(err error) string {
	if err == nil {
		return "unknown driver error"
	}
	return err.Error()
}

func decodeInt16StereoToFloat(raw []byte) []float32 {
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return out
}
