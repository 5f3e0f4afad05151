package autogain

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeStereoFloatFile(t *testing.T, left, right []float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "merged_lr_f32le.pcm")
	buf := make([]byte, len(left)*8)
	for i := range left {
		off := i * 8
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(left[i])))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(float32(right[i])))
	}
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func readInt16Stereo(t *testing.T, path string) (left, right []int16) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	frames := len(data) / 4
	left = make([]int16, frames)
	right = make([]int16, frames)
	for i := 0; i < frames; i++ {
		off := i * 4
		left[i] = int16(binary.LittleEndian.Uint16(data[off:]))
		right[i] = int16(binary.LittleEndian.Uint16(data[off+2:]))
	}
	return
}

func TestNoGainWhenLevelsComparable(t *testing.T) {
	n := 1000
	left := make([]float64, n)
	right := make([]float64, n)
	for i := range left {
		left[i] = 0.3
		right[i] = 0.25
	}
	path := writeStereoFloatFile(t, left, right)

	result, err := ProcessFile(path)
	require.NoError(t, err)
	require.False(t, result.GainApplied)

	_, right16 := readInt16Stereo(t, path)
	require.InDelta(t, 0.25*32767, float64(right16[0]), 2)
}

func TestQuietCaptureTriggersGain(t *testing.T) {
	n := 2000
	left := make([]float64, n)
	right := make([]float64, n)
	for i := range left {
		left[i] = 0.5
		right[i] = 0.05 // 10% of left, triggers gain (< 20% threshold)
	}
	path := writeStereoFloatFile(t, left, right)

	result, err := ProcessFile(path)
	require.NoError(t, err)
	require.True(t, result.GainApplied)
	require.LessOrEqual(t, result.Gain, 10.0+1e-9)

	left16, right16 := readInt16Stereo(t, path)
	rmsL := rmsOf(left16)
	rmsR := rmsOf(right16)
	require.GreaterOrEqual(t, rmsR, 0.5*rmsL)
	for _, v := range right16 {
		require.LessOrEqual(t, int(v), math.MaxInt16)
		require.GreaterOrEqual(t, int(v), math.MinInt16)
	}
}

func TestGainIsPeakLimitedNotJustRMS(t *testing.T) {
	n := 1000
	left := make([]float64, n)
	right := make([]float64, n)
	for i := range left {
		left[i] = 0.9
	}
	right[0] = 0.8 // one loud peak sample
	for i := 1; i < n; i++ {
		right[i] = 0.01 // otherwise very quiet
	}
	path := writeStereoFloatFile(t, left, right)

	result, err := ProcessFile(path)
	require.NoError(t, err)
	require.True(t, result.GainApplied)
	// gain_peak = 0.95/0.8 = 1.1875, much smaller than gain_rms would be.
	require.Less(t, result.Gain, 1.3)
}

func rmsOf(vals []int16) float64 {
	var sumSq float64
	for _, v := range vals {
		f := float64(v)
		sumSq += f * f
	}
	return math.Sqrt(sumSq / float64(len(vals)))
}
