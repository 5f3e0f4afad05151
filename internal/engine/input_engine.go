package engine

import (
	"sync/atomic"

	"github.com/loqalabs/audiolatency/internal/formatring"
	"github.com/loqalabs/audiolatency/internal/stream"
)

// InputEngine drives the input stream's real-time callback (C5). Simpler
// than OutputEngine: no self-completion, just forward-or-stop.
type InputEngine struct {
	ring    *formatring.Ring
	running atomic.Bool
	errOnce atomic.Bool
	lastErr atomic.Value
	onError func(error)
}

// NewInputEngine wires the input engine to the capture-side format ring it
// feeds.
func NewInputEngine(ring *formatring.Ring) *InputEngine {
	return &InputEngine{ring: ring}
}

// SetErrorHandler installs the callback invoked on an asynchronous fatal
// error (one-shot).
func (e *InputEngine) SetErrorHandler(fn func(error)) {
	e.onError = fn
}

// Arm marks the engine as running, ready to be driven by the driver.
func (e *InputEngine) Arm() {
	e.running.Store(true)
}

// Disarm stops the engine without an error (normal shutdown).
func (e *InputEngine) Disarm() {
	e.running.Store(false)
}

// Consume is the real-time capture callback.
func (e *InputEngine) Consume(src []byte, frameCount int) stream.Action {
	if !e.running.Load() {
		return stream.Stop
	}
	e.ring.WriteBytes(src)
	return stream.Continue
}

// ReportError handles an asynchronous fatal driver error, mirroring
// OutputEngine.ReportError.
func (e *InputEngine) ReportError(err error) {
	if e.errOnce.Swap(true) {
		return
	}
	e.lastErr.Store(err)
	e.running.Store(false)
	if e.onError != nil {
		e.onError(err)
	}
}

// Err returns the error that stopped the engine, if any.
func (e *InputEngine) Err() error {
	if v := e.lastErr.Load(); v != nil {
		if err, ok := v.(error); ok {
			return err
		}
	}
	return nil
}
