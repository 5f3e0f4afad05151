// Package audioformat describes the fixed-shape audio format triple shared
// by the ring buffers, the reference buffer and the engine callbacks.
package audioformat

import "fmt"

// SampleKind is the on-the-wire sample representation.
type SampleKind int

const (
	Int16 SampleKind = iota
	Float32
)

func (k SampleKind) String() string {
	switch k {
	case Int16:
		return "int16"
	case Float32:
		return "float32"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the byte width of a single sample of this kind.
func (k SampleKind) BytesPerSample() int {
	switch k {
	case Int16:
		return 2
	case Float32:
		return 4
	default:
		return 0
	}
}

// Format describes a PCM stream's sample rate, channel count, and sample
// encoding. Channels is always 1 or 2; frames are interleaved LRLR... when
// stereo.
type Format struct {
	SampleRate int
	Channels   int
	Kind       SampleKind
}

// FrameBytes returns the byte width of one frame (one sample per channel).
func (f Format) FrameBytes() int {
	return f.Channels * f.Kind.BytesPerSample()
}

// BytesPerSecond returns the steady-state byte rate of this format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameBytes()
}

// String renders the format the way the event sink's on_config string wants
// it: "SR=... CH=... FMT=...".
func (f Format) String() string {
	return fmt.Sprintf("SR=%d CH=%d FMT=%s", f.SampleRate, f.Channels, f.Kind)
}

// Valid reports whether the format is usable: positive sample rate, 1 or 2
// channels, a known sample kind.
func (f Format) Valid() bool {
	if f.SampleRate <= 0 {
		return false
	}
	if f.Channels != 1 && f.Channels != 2 {
		return false
	}
	return f.Kind == Int16 || f.Kind == Float32
}

// Canonical is the 48kHz/mono/float32 form both format-aware ring buffers
// output and the merger consumes.
var Canonical = Format{SampleRate: 48000, Channels: 1, Kind: Float32}
