package refbuffer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/audiolatency/internal/audioformat"
)

func TestTakeConcatenationEqualsSilenceThenPayload(t *testing.T) {
	format := audioformat.Format{SampleRate: 1000, Channels: 1, Kind: audioformat.Int16} // 2 bytes/sec/frame... frame=2 bytes
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	buf := NewFromBytes(payload, format, 10) // 10ms * 2000 bytes/sec /1000 = 20 bytes silence

	var got []byte
	for {
		slice, done := buf.Take(7)
		got = append(got, slice...)
		if done {
			break
		}
	}

	want := append(make([]byte, 20), payload...)
	assert.Equal(t, want, got)
}

func TestTakeIsMonotone(t *testing.T) {
	format := audioformat.Format{SampleRate: 48000, Channels: 1, Kind: audioformat.Float32}
	buf := NewFromBytes(make([]byte, 1000), format, 0)

	last := 0
	for {
		_, done := buf.Take(37)
		cur := buf.Cursor()
		assert.GreaterOrEqual(t, cur, last)
		last = cur
		if done {
			break
		}
	}
	assert.Equal(t, buf.Len(), last)
}

func TestTakeAfterDoneReturnsEmpty(t *testing.T) {
	format := audioformat.Format{SampleRate: 48000, Channels: 1, Kind: audioformat.Float32}
	buf := NewFromBytes(make([]byte, 10), format, 0)
	_, done := buf.Take(100)
	assert.True(t, done)

	slice, done2 := buf.Take(10)
	assert.True(t, done2)
	assert.Nil(t, slice)
}

func TestNewLoadsFileUnderCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.pcm")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	format := audioformat.Format{SampleRate: 48000, Channels: 1, Kind: audioformat.Float32}
	buf, err := New(path, format, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, buf.Len())
}

func TestNewRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.pcm")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	format := audioformat.Format{SampleRate: 48000, Channels: 1, Kind: audioformat.Float32}
	_, err := New(path, format, 0)
	assert.Error(t, err)
}
