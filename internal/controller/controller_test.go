package controller

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/audiolatency/internal/audioformat"
	"github.com/loqalabs/audiolatency/internal/config"
	"github.com/loqalabs/audiolatency/internal/eventsink"
	"github.com/loqalabs/audiolatency/internal/stream"
)

// fakeDecoder copies a pre-built working-format PCM fixture instead of
// invoking ffmpeg, so controller tests don't depend on an external binary.
type fakeDecoder struct {
	fixture []byte
}

func (f fakeDecoder) DecodeToPCM(_ context.Context, _, cacheDir, outName string, _ audioformat.Format) (string, error) {
	path := filepath.Join(cacheDir, outName)
	if err := os.WriteFile(path, f.fixture, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

var errDecodeFixture = errors.New("fixture: decode unavailable")

type failingDecoder struct{}

func (failingDecoder) DecodeToPCM(context.Context, string, string, string, audioformat.Format) (string, error) {
	return "", errDecodeFixture
}

// fakeEncoder records its inputs without shelling out to ffmpeg.
type fakeEncoder struct {
	called bool
	err    error
}

func (f *fakeEncoder) EncodePCMToM4A(_ context.Context, _, _ string, _ audioformat.Format) error {
	f.called = true
	return f.err
}

// captureSink records every event fired, for assertions.
type captureSink struct {
	configs    int
	detecting  int
	completed  int
	errors     int
	lastErrMsg string
}

func (s *captureSink) OnConfig(runID, outputCfg, inputCfg string) { s.configs++ }
func (s *captureSink) OnDetecting(runID string)                   { s.detecting++ }
func (s *captureSink) OnCompleted(runID, outputPath string, rc int, avgDelayMs float64, top3 []eventsink.CandidatePair) {
	s.completed++
}
func (s *captureSink) OnError(runID, message string, code int) {
	s.errors++
	s.lastErrMsg = message
}

func int16FixtureFile(seconds float64, sampleRate int) []byte {
	n := int(float64(sampleRate) * seconds)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(1000)))
	}
	return buf
}

func testConfig(workDir string) config.Config {
	cfg := config.Default()
	cfg.SampleRate = 48000
	cfg.Channels = 1
	cfg.PreheatMs = 0
	cfg.RingBufferMs = 1000
	cfg.WorkDir = workDir
	return cfg
}

func TestControllerFullRunProducesOutputFile(t *testing.T) {
	workDir := t.TempDir()
	cfg := testConfig(workDir)
	fixture := int16FixtureFile(0.3, cfg.SampleRate)

	backend := stream.NewMockBackend()
	decoder := fakeDecoder{fixture: fixture}
	encoder := &fakeEncoder{}
	sink := &captureSink{}

	c := New(cfg, backend, decoder, encoder, sink)
	require.NoError(t, c.Start(context.Background(), "unused-reference.wav"))

	outM4A := filepath.Join(workDir, "out.m4a")
	err := c.Wait(context.Background(), outM4A)
	require.NoError(t, err)

	assert.True(t, encoder.called)
	assert.Equal(t, 1, sink.configs)
	assert.Equal(t, 1, sink.detecting)
	assert.Equal(t, 1, sink.completed)
	assert.Equal(t, 0, sink.errors)

	mergedPath := filepath.Join(workDir, "merged_lr_f32le.pcm")
	_, statErr := os.Stat(mergedPath)
	assert.NoError(t, statErr)
}

func TestControllerDecodeFailureReportsError(t *testing.T) {
	workDir := t.TempDir()
	cfg := testConfig(workDir)

	backend := stream.NewMockBackend()
	sink := &captureSink{}
	c := New(cfg, backend, failingDecoder{}, &fakeEncoder{}, sink)

	err := c.Start(context.Background(), "unused-reference.wav")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecodeFailed)
	assert.Equal(t, Errored, c.State())
	assert.Equal(t, 1, sink.errors)
}

func TestControllerStopIsIdempotent(t *testing.T) {
	workDir := t.TempDir()
	cfg := testConfig(workDir)
	fixture := int16FixtureFile(2.0, cfg.SampleRate)

	backend := stream.NewMockBackend()
	c := New(cfg, backend, fakeDecoder{fixture: fixture}, &fakeEncoder{}, &captureSink{})
	require.NoError(t, c.Start(context.Background(), "unused-reference.wav"))

	c.Stop()
	c.Stop()
	c.Stop()
}
