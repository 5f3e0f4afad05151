package merger

import (
	"encoding/binary"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loqalabs/audiolatency/internal/audioformat"
	"github.com/loqalabs/audiolatency/internal/formatring"
)

func canonicalFormat() audioformat.Format {
	return audioformat.Format{SampleRate: CanonicalRate, Channels: 1, Kind: audioformat.Float32}
}

func writeFloats(t *testing.T, ring *formatring.Ring, vals []float32) {
	t.Helper()
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	n := ring.WriteBytes(buf)
	require.Equal(t, len(buf), n)
}

func TestMergerWritesInterleavedStereoAfterPreheat(t *testing.T) {
	fmtCanon := canonicalFormat()
	refRing, err := formatring.New(1<<20, fmtCanon, audioformat.Canonical)
	require.NoError(t, err)
	capRing, err := formatring.New(1<<20, fmtCanon, audioformat.Canonical)
	require.NoError(t, err)

	// The merger clears both rings when the pre-heat gate releases, so the
	// test samples are written only once that clear has emptied these
	// placeholder samples.
	writeFloats(t, refRing, []float32{0})
	writeFloats(t, capRing, []float32{0})

	outPath := outFile(t)
	startedAt := time.Now().Add(-time.Hour) // preheat already elapsed
	m := New(refRing, capRing, startedAt, 0, outPath)

	done := make(chan error, 1)
	go m.Run(func(err error) { done <- err })

	require.Eventually(t, func() bool {
		return refRing.Available() == 0 && capRing.Available() == 0
	}, time.Second, time.Millisecond)

	// One extra sample per side: the resampler holds back its last input
	// sample until more input arrives, so frames+1 inputs yield frames outputs.
	frames := FramesPerChunk
	left := make([]float32, frames+1)
	right := make([]float32, frames+1)
	for i := range left {
		left[i] = 0.1
		right[i] = 0.2
	}
	writeFloats(t, refRing, left)
	writeFloats(t, capRing, right)

	require.Eventually(t, func() bool {
		return m.FramesMerged() >= int64(frames)
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("merger did not exit after Stop")
	}

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, frames*8, len(data))

	l0 := math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))
	r0 := math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))
	require.InDelta(t, 0.1, l0, 1e-6)
	require.InDelta(t, 0.2, r0, 1e-6)
}

func TestMergerHoldsDuringPreheat(t *testing.T) {
	fmtCanon := canonicalFormat()
	refRing, err := formatring.New(1<<20, fmtCanon, audioformat.Canonical)
	require.NoError(t, err)
	capRing, err := formatring.New(1<<20, fmtCanon, audioformat.Canonical)
	require.NoError(t, err)

	writeFloats(t, refRing, []float32{0.5})

	outPath := outFile(t)
	m := New(refRing, capRing, time.Now(), time.Hour, outPath)

	done := make(chan error, 1)
	go m.Run(func(err error) { done <- err })

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(0), m.FramesMerged())

	m.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("merger did not exit after Stop during preheat")
	}
}

func TestMergerSetErrorFlagAbortsLoop(t *testing.T) {
	fmtCanon := canonicalFormat()
	refRing, err := formatring.New(1<<20, fmtCanon, audioformat.Canonical)
	require.NoError(t, err)
	capRing, err := formatring.New(1<<20, fmtCanon, audioformat.Canonical)
	require.NoError(t, err)

	outPath := outFile(t)
	m := New(refRing, capRing, time.Now().Add(-time.Hour), 0, outPath)

	done := make(chan error, 1)
	go m.Run(func(err error) { done <- err })

	m.SetErrorFlag()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("merger did not exit after SetErrorFlag")
	}
}

func outFile(t *testing.T) string {
	t.Helper()
	return t.TempDir() + "/merged_lr_f32le.pcm"
}
