// Package refbuffer implements the reference buffer (C3): an immutable,
// preheat-silence-prefixed copy of the reference PCM file with a monotonic
// read cursor.
package refbuffer

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/loqalabs/audiolatency/internal/audioformat"
)

// MaxPayloadBytes caps the reference file size accepted at construction time.
const MaxPayloadBytes = 50 * 1024 * 1024

// Buffer holds silence||payload bytes and a monotonic cursor into them.
type Buffer struct {
	data   []byte
	cursor atomic.Uint64
}

// New reads pcmPath (capped at MaxPayloadBytes), prepends
// preheatMs*format.BytesPerSecond()/1000 zero bytes, and returns the
// resulting buffer. preheatMs may be zero (no silent prefix).
func New(pcmPath string, format audioformat.Format, preheatMs int) (*Buffer, error) {
	info, err := os.Stat(pcmPath)
	if err != nil {
		return nil, fmt.Errorf("refbuffer: stat %s: %w", pcmPath, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("refbuffer: %s is empty", pcmPath)
	}
	if info.Size() > MaxPayloadBytes {
		return nil, fmt.Errorf("refbuffer: %s exceeds %d byte cap", pcmPath, MaxPayloadBytes)
	}

	payload, err := os.ReadFile(pcmPath)
	if err != nil {
		return nil, fmt.Errorf("refbuffer: read %s: %w", pcmPath, err)
	}

	silenceBytes := preheatMs * format.BytesPerSecond() / 1000
	// Align the silence region to a whole frame so the cursor always lands
	// on a frame boundary once it crosses into the payload.
	if fb := format.FrameBytes(); fb > 0 {
		silenceBytes -= silenceBytes % fb
	}

	data := make([]byte, silenceBytes+len(payload))
	copy(data[silenceBytes:], payload)

	return &Buffer{data: data}, nil
}

// NewFromBytes builds a buffer directly from payload bytes, bypassing the
// file-size cap; used by tests and by callers that already have decoded
// PCM in memory.
func NewFromBytes(payload []byte, format audioformat.Format, preheatMs int) *Buffer {
	silenceBytes := preheatMs * format.BytesPerSecond() / 1000
	if fb := format.FrameBytes(); fb > 0 {
		silenceBytes -= silenceBytes % fb
	}
	data := make([]byte, silenceBytes+len(payload))
	copy(data[silenceBytes:], payload)
	return &Buffer{data: data}
}

// Len returns the total buffer length (silence + payload).
func (b *Buffer) Len() int {
	return len(b.data)
}

// Take returns up to n bytes starting at the current cursor and advances
// the cursor by the number of bytes returned. done is true once the cursor
// reaches the end of the buffer. The cursor never rewinds.
func (b *Buffer) Take(n int) (slice []byte, done bool) {
	for {
		cur := b.cursor.Load()
		if cur >= uint64(len(b.data)) {
			return nil, true
		}
		end := cur + uint64(n)
		if end > uint64(len(b.data)) {
			end = uint64(len(b.data))
		}
		if b.cursor.CompareAndSwap(cur, end) {
			return b.data[cur:end], end >= uint64(len(b.data))
		}
		// Lost the race to another Take call; retry against the new cursor.
	}
}

// Cursor returns the current read position, mainly for diagnostics/tests.
func (b *Buffer) Cursor() int {
	return int(b.cursor.Load())
}
