// Package formatring implements the format-aware ring buffer (C2): a byte
// ring that stores samples in one format and yields them, via an internal
// resampler, in a possibly different format.
package formatring

import (
	"encoding/binary"
	"math"

	"github.com/loqalabs/audiolatency/internal/audioformat"
	"github.com/loqalabs/audiolatency/internal/resample"
	"github.com/loqalabs/audiolatency/internal/ringbuffer"
)

// Ring is a format-aware ring buffer: it stores bytes in one sample
// format/rate/channel-count and emits mono float32 samples at the canonical
// rate from ReadConvert, the only output form the merger needs. The input
// format it stores may be int16 or float32, mono or stereo, at any rate.
type Ring struct {
	in, out audioformat.Format
	raw     *ringbuffer.Ring
	rs      *resample.Resampler

	// scratch buffers reused across ReadConvert calls to avoid allocation
	// on the merger's hot path.
	byteScratch []byte
	monoScratch []float32
}

// New allocates a format-aware ring with the given byte capacity and format
// pair. out must be mono (the merger always reads mono per side); in may be
// mono or stereo.
func New(capacityBytes int, in, out audioformat.Format) (*Ring, error) {
	if out.Channels != 1 {
		return nil, errInvalidOutChannels
	}
	rs, err := resample.New(in.SampleRate, out.SampleRate)
	if err != nil {
		return nil, err
	}
	return &Ring{
		in:  in,
		out: out,
		raw: ringbuffer.New(capacityBytes),
		rs:  rs,
	}, nil
}

var errInvalidOutChannels = errOutChannels{}

type errOutChannels struct{}

func (errOutChannels) Error() string { return "formatring: output format must be mono" }

// WriteBytes forwards raw input-format bytes into the underlying ring,
// returning the number of bytes actually accepted.
func (r *Ring) WriteBytes(src []byte) int {
	return r.raw.Write(src)
}

// Available returns the number of raw input-format bytes currently
// buffered and not yet consumed by ReadConvert.
func (r *Ring) Available() int {
	return r.raw.Available()
}

// Clear drops buffered bytes and flushes the resampler's delay state.
func (r *Ring) Clear() {
	r.raw.Clear()
	r.rs.Reset()
}

// ReadConvert estimates the input bytes required to produce outFrames mono
// float32 samples, pulls them from the ring, downmixes stereo input to mono
// if needed, converts sample kind to float32, resamples, and writes the
// result (up to outFrames samples) into out. It returns the number of
// frames actually produced. If the ring is empty it returns zero without
// touching out.
func (r *Ring) ReadConvert(out []float32) int {
	if r.raw.Available() == 0 {
		return 0
	}

	neededInSamples := resample.RequiredInputSamples(len(out), r.in.SampleRate, r.out.SampleRate)
	neededInBytes := neededInSamples * r.in.FrameBytes()
	if cap(r.byteScratch) < neededInBytes {
		r.byteScratch = make([]byte, neededInBytes)
	}
	byteBuf := r.byteScratch[:neededInBytes]
	n := r.raw.Read(byteBuf)
	if n == 0 {
		return 0
	}
	byteBuf = byteBuf[:n]

	monoFrames := n / r.in.FrameBytes()
	if cap(r.monoScratch) < monoFrames {
		r.monoScratch = make([]float32, monoFrames)
	}
	mono := r.monoScratch[:monoFrames]
	decodeToMono(byteBuf, r.in, mono)

	return r.rs.Process(mono, out)
}

// decodeToMono converts interleaved bytes in the given format into mono
// float32 samples (averaging L/R when the source is stereo).
func decodeToMono(buf []byte, f audioformat.Format, out []float32) {
	frameBytes := f.FrameBytes()
	for i := 0; i < len(out); i++ {
		off := i * frameBytes
		if f.Channels == 1 {
			out[i] = decodeSample(buf[off:], f.Kind)
			continue
		}
		sampleBytes := f.Kind.BytesPerSample()
		l := decodeSample(buf[off:], f.Kind)
		rr := decodeSample(buf[off+sampleBytes:], f.Kind)
		out[i] = (l + rr) / 2
	}
}

func decodeSample(buf []byte, kind audioformat.SampleKind) float32 {
	switch kind {
	case audioformat.Int16:
		v := int16(binary.LittleEndian.Uint16(buf))
		return float32(v) / 32768.0
	case audioformat.Float32:
		bits := binary.LittleEndian.Uint32(buf)
		return math.Float32frombits(bits)
	default:
		return 0
	}
}
