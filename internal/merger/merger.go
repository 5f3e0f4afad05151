// Package merger implements the cooperative merge/alignment worker (C6):
// after pre-heat elapses, it drains both format-aware ring buffers,
// resamples to the canonical 48kHz/mono/float32 form per side, and writes
// an interleaved stereo float32LE stream to the intermediate file.
package merger

import (
	"bufio"
	"encoding/binary"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/loqalabs/audiolatency/internal/formatring"
)

const (
	// CanonicalRate is the merger's working sample rate.
	CanonicalRate = 48000
	// ChunkMs is the steady-loop chunk duration.
	ChunkMs = 20
	// FramesPerChunk is ChunkMs worth of frames at CanonicalRate.
	FramesPerChunk = CanonicalRate * ChunkMs / 1000 // 960
	emptyBackoff   = 5 * time.Millisecond
	preheatPoll    = 100 * time.Millisecond
)

// IntermediateFileName is the canonical name of the merged PCM file.
const IntermediateFileName = "merged_lr_f32le.pcm"

// Merger runs the merge/alignment worker on its own goroutine.
type Merger struct {
	refRing     *formatring.Ring
	capRing     *formatring.Ring
	startedAt   time.Time
	preheat     time.Duration
	outPath     string
	running     atomic.Bool
	errored     atomic.Bool
	done        chan struct{}
	framesMerged atomic.Int64
}

// New constructs a merger reading from the reference-side and capture-side
// format rings (both already configured to output canonical mono float32),
// writing interleaved stereo float32LE frames to outPath.
func New(refRing, capRing *formatring.Ring, startedAt time.Time, preheat time.Duration, outPath string) *Merger {
	m := &Merger{
		refRing:   refRing,
		capRing:   capRing,
		startedAt: startedAt,
		preheat:   preheat,
		outPath:   outPath,
		done:      make(chan struct{}),
	}
	// Armed here rather than in Run, so a Stop issued before the Run
	// goroutine is scheduled is not overwritten.
	m.running.Store(true)
	return m
}

// SetErrorFlag lets the controller signal a fatal error from elsewhere
// (e.g. a driver runtime error); the merger checks this at the top of
// every iteration and at every sleep/backoff.
func (m *Merger) SetErrorFlag() {
	m.errored.Store(true)
}

// Stop requests the merger loop to exit at its next check point.
func (m *Merger) Stop() {
	m.running.Store(false)
}

// FramesMerged returns how many stereo frames have been written so far,
// mainly for diagnostics/tests.
func (m *Merger) FramesMerged() int64 {
	return m.framesMerged.Load()
}

// Run executes the merger loop; intended to be launched with `go m.Run(onDone)`.
// It blocks until the loop exits (running=false, an error flag, or pre-heat
// gate abandoned via Stop before release), flushing and closing the
// intermediate file on the way out. onDone, if set, is invoked with the
// terminal error (nil on a clean exit).
func (m *Merger) Run(onDone func(err error)) {
	defer close(m.done)

	f, err := os.Create(m.outPath)
	if err != nil {
		if onDone != nil {
			onDone(err)
		}
		return
	}
	w := bufio.NewWriterSize(f, 64*1024)

	runErr := m.loop(w)

	flushErr := w.Flush()
	closeErr := f.Close()
	if runErr == nil {
		runErr = flushErr
	}
	if runErr == nil {
		runErr = closeErr
	}
	if onDone != nil {
		onDone(runErr)
	}
}

// Wait blocks until Run has returned.
func (m *Merger) Wait() {
	<-m.done
}

func (m *Merger) loop(w *bufio.Writer) error {
	// Pre-heat gate: poll until elapsed >= preheat, or abandon on stop/error.
	for {
		if m.errored.Load() || !m.running.Load() {
			return nil
		}
		if time.Since(m.startedAt) >= m.preheat {
			break
		}
		time.Sleep(preheatPoll)
	}

	// Establish common t=0: both rings cleared from this (the merger's)
	// goroutine.
	m.refRing.Clear()
	m.capRing.Clear()

	leftScratch := make([]float32, FramesPerChunk)
	rightScratch := make([]float32, FramesPerChunk)
	leftLeftover := 0
	rightLeftover := 0
	interleaved := make([]byte, 0, FramesPerChunk*8)

	for {
		if m.errored.Load() {
			return nil
		}
		if !m.running.Load() {
			return nil
		}

		lGot := m.refRing.ReadConvert(leftScratch[leftLeftover:])
		availL := leftLeftover + lGot
		rGot := m.capRing.ReadConvert(rightScratch[rightLeftover:])
		availR := rightLeftover + rGot

		frames := availL
		if availR < frames {
			frames = availR
		}
		if frames == 0 {
			// Keep whatever one side produced as residue for the next round.
			leftLeftover = availL
			rightLeftover = availR
			time.Sleep(emptyBackoff)
			continue
		}

		interleaved = interleaved[:0]
		for i := 0; i < frames; i++ {
			interleaved = appendFloat32LE(interleaved, leftScratch[i])
			interleaved = appendFloat32LE(interleaved, rightScratch[i])
		}
		if _, err := w.Write(interleaved); err != nil {
			return err
		}
		m.framesMerged.Add(int64(frames))

		leftLeftover = availL - frames
		copy(leftScratch[:leftLeftover], leftScratch[frames:availL])
		rightLeftover = availR - frames
		copy(rightScratch[:rightLeftover], rightScratch[frames:availR])
	}
}

func appendFloat32LE(buf []byte, v float32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v))
	return append(buf, tmp[:]...)
}
