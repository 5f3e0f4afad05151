package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/audiolatency/internal/audioformat"
	"github.com/loqalabs/audiolatency/internal/stream"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "exclusive", cfg.Output.Sharing)
	assert.Equal(t, "low_latency", cfg.Output.Perf)
	assert.Equal(t, "int16", cfg.Output.Format)
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, 1, cfg.Channels)
	assert.Equal(t, 1000, cfg.RingBufferMs)
	assert.Equal(t, 3000, cfg.PreheatMs)
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
sample_rate = 44100
channels = 2
preheat_ms = 500

[output]
sharing = "shared"
format = "float32"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, 2, cfg.Channels)
	assert.Equal(t, 500, cfg.PreheatMs)
	assert.Equal(t, "shared", cfg.Output.Sharing)
	assert.Equal(t, "float32", cfg.Output.Format)
	// Untouched fields keep their default.
	assert.Equal(t, 1000, cfg.RingBufferMs)
}

func TestNormalizeClampsInvalidChannels(t *testing.T) {
	cfg := Config{Channels: 5, SampleRate: -1, RingBufferMs: -1, PreheatMs: -1}
	cfg.normalize()
	assert.Equal(t, 1, cfg.Channels)
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, 1000, cfg.RingBufferMs)
	assert.Equal(t, 3000, cfg.PreheatMs)
}

func TestOutputParamsResolvesEnums(t *testing.T) {
	cfg := Default()
	cfg.Output.Sharing = "shared"
	cfg.Output.Perf = "none"
	cfg.Output.Format = "float32"

	params := cfg.OutputParams()
	assert.Equal(t, stream.Shared, params.Sharing)
	assert.Equal(t, stream.NoPerfHint, params.Perf)
	assert.Equal(t, audioformat.Float32, params.Format)
	assert.Equal(t, cfg.SampleRate, params.SampleRate)
}
