// Package engine implements the real-time driver callbacks: the output
// engine (C4), which pulls from the reference buffer and feeds the
// reference-side format ring, and the input engine (C5), which forwards
// captured frames into the capture-side format ring.
package engine

import (
	"sync/atomic"

	"github.com/loqalabs/audiolatency/internal/audioformat"
	"github.com/loqalabs/audiolatency/internal/formatring"
	"github.com/loqalabs/audiolatency/internal/refbuffer"
	"github.com/loqalabs/audiolatency/internal/stream"
)

// State is the output engine's lifecycle state.
type State int32

const (
	Idle State = iota
	Running
	Ended
	Errored
)

// OutputEngine drives the output stream's real-time callback (C4).
type OutputEngine struct {
	ref    *refbuffer.Buffer
	ring   *formatring.Ring
	format audioformat.Format

	state      atomic.Int32
	errOnce    atomic.Bool
	lastErr    atomic.Value // error
	onError    func(error)
}

// NewOutputEngine wires the output engine to its reference buffer, the
// reference-side format ring it feeds, and the negotiated output format
// (used to compute frame byte width).
func NewOutputEngine(ref *refbuffer.Buffer, ring *formatring.Ring, format audioformat.Format) *OutputEngine {
	e := &OutputEngine{ref: ref, ring: ring, format: format}
	e.state.Store(int32(Idle))
	return e
}

// SetErrorHandler installs the callback invoked on an asynchronous fatal
// error (one-shot; duplicate errors are discarded).
func (e *OutputEngine) SetErrorHandler(fn func(error)) {
	e.onError = fn
}

// Arm transitions the engine to Running, ready to be driven by the
// driver's callback.
func (e *OutputEngine) Arm() {
	e.state.Store(int32(Running))
}

// Disarm transitions the engine to Idle, so the next Produce call returns
// Stop (used by an explicit controller Stop rather than self-completion).
func (e *OutputEngine) Disarm() {
	e.state.Store(int32(Idle))
}

// State returns the current lifecycle state.
func (e *OutputEngine) State() State {
	return State(e.state.Load())
}

// Produce is the real-time output callback. It must not block,
// allocate on the steady path, or perform I/O.
func (e *OutputEngine) Produce(dst []byte, frameCount int) stream.Action {
	if State(e.state.Load()) != Running {
		zero(dst)
		return stream.Stop
	}

	frameBytes := e.format.FrameBytes()
	bytesNeeded := frameCount * frameBytes

	slice, done := e.ref.Take(bytesNeeded)
	n := copy(dst, slice)
	if n < len(dst) {
		zero(dst[n:])
	}
	if n > 0 {
		e.ring.WriteBytes(dst[:n])
	}

	if done {
		e.state.Store(int32(Ended))
		return stream.Stop
	}
	return stream.Continue
}

// ReportError handles an asynchronous fatal driver error: one-shot,
// CAS-guarded, and non-blocking. Teardown is the caller's responsibility,
// scheduled off the real-time thread.
func (e *OutputEngine) ReportError(err error) {
	if e.errOnce.Swap(true) {
		return
	}
	e.lastErr.Store(err)
	e.state.Store(int32(Errored))
	if e.onError != nil {
		e.onError(err)
	}
}

// Err returns the error that caused Errored state, if any.
func (e *OutputEngine) Err() error {
	if v := e.lastErr.Load(); v != nil {
		if err, ok := v.(error); ok {
			return err
		}
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
