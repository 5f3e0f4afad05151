// Package stream abstracts the platform audio driver: a
// real-time output callback that produces frames, and a symmetric input
// callback that consumes them. The driver itself is an external
// collaborator; this package exposes only the narrow interface the engine
// needs, plus a real PortAudio-backed implementation and a mock for tests.
package stream

import (
	"errors"

	"github.com/loqalabs/audiolatency/internal/audioformat"
)

// Action is returned by a stream callback to tell the driver whether to
// keep calling back (Continue) or stop (Stop).
type Action int

const (
	Continue Action = iota
	Stop
)

// ErrNotInitialized is returned when a backend is used before Initialize.
var ErrNotInitialized = errors.New("stream: backend not initialized")

// ErrStreamOpenFailed wraps a driver rejection of the requested parameters.
var ErrStreamOpenFailed = errors.New("stream: open failed")

// Sharing selects exclusive vs. shared access to the audio device.
type Sharing int

const (
	Exclusive Sharing = iota
	Shared
)

// Perf selects whether the driver should request a low-latency hint.
type Perf int

const (
	LowLatency Perf = iota
	NoPerfHint
)

// OpenParams are the negotiated parameters requested of the driver when
// opening a stream.
type OpenParams struct {
	SampleRate  int
	Channels    int
	Format      audioformat.SampleKind
	Sharing     Sharing
	Perf        Perf
	BufferSize  int // requested frames per callback; 0 = let the driver choose
}

// Negotiated describes what the driver actually gave us after Open, which
// may differ from what was requested.
type Negotiated struct {
	SampleRate   int
	Channels     int
	Format       audioformat.SampleKind
	Sharing      Sharing
	Perf         Perf
	BurstFrames  int
	BufferFrames int
}

func (n Negotiated) String() string {
	mode := "exclusive"
	if n.Sharing == Shared {
		mode = "shared"
	}
	perf := "low_latency"
	if n.Perf == NoPerfHint {
		perf = "none"
	}
	return "SR=" + itoa(n.SampleRate) + " CH=" + itoa(n.Channels) + " FMT=" + n.Format.String() +
		" MODE=" + mode + " PERF=" + perf + " FPB=" + itoa(n.BurstFrames) + " BUF=" + itoa(n.BufferFrames)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// OutputCallback is invoked on the driver's real-time output thread; it
// must fill dst with frameCount frames in the negotiated format or return
// Stop. It must not block, allocate or perform I/O.
type OutputCallback func(dst []byte, frameCount int) Action

// InputCallback is the symmetric capture callback.
type InputCallback func(src []byte, frameCount int) Action

// ErrorCallback delivers an asynchronous fatal driver failure. Implementers
// must guarantee at most one call per stream (one-shot).
type ErrorCallback func(err error)

// OutputStream is the abstract output half of the driver.
type OutputStream interface {
	Negotiated() Negotiated
	Start() error
	Stop() error
	Close() error
	SetErrorCallback(cb ErrorCallback)
}

// InputStream is the abstract input half of the driver.
type InputStream interface {
	Negotiated() Negotiated
	Start() error
	Stop() error
	Close() error
	SetErrorCallback(cb ErrorCallback)
}

// Backend opens output/input streams against a concrete driver
// implementation (real hardware or a test double).
type Backend interface {
	Initialize() error
	Terminate() error
	OpenOutputStream(params OpenParams, cb OutputCallback) (OutputStream, error)
	OpenInputStream(params OpenParams, cb InputCallback) (InputStream, error)
}
