package stream

import (
	"encoding/binary"
	"math"

	"github.com/loqalabs/audiolatency/internal/audioformat"
)

// writeSine fills dst with frameCount frames of a sine wave starting at
// wall-clock tStart seconds, in the given format, replicated across all
// channels. Used by the mock input stream's default generator.
func writeSine(dst []byte, format audioformat.Format, frameCount int, tStart, freqHz, sampleRate, amplitude float64) {
	frameBytes := format.FrameBytes()
	sampleBytes := format.Kind.BytesPerSample()
	for i := 0; i < frameCount; i++ {
		t := tStart + float64(i)/sampleRate
		v := amplitude * math.Sin(2*math.Pi*freqHz*t)
		off := i * frameBytes
		for ch := 0; ch < format.Channels; ch++ {
			writeSample(dst[off+ch*sampleBytes:], format.Kind, v)
		}
	}
}

func writeSample(dst []byte, kind audioformat.SampleKind, v float64) {
	switch kind {
	case audioformat.Int16:
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(dst, uint16(int16(v*32767)))
	case audioformat.Float32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
	}
}
