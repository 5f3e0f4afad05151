// Package codec defines the narrow external collaborators the controller
// calls out to: a PCM decoder and an M4A/AAC encoder. Both are
// consumed through interfaces so the controller can be tested without a
// real ffmpeg binary; FFmpegDecoder/FFmpegEncoder are the production
// implementations, shelling out via os/exec.
package codec

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/loqalabs/audiolatency/internal/audioformat"
)

// Decoder produces interleaved PCM in a requested format from an arbitrary
// source audio file.
type Decoder interface {
	// DecodeToPCM decodes srcPath into cacheDir/outName, resampled/remixed
	// to the requested format. Returns the produced file's path, or an
	// error (and an empty path) on failure.
	DecodeToPCM(ctx context.Context, srcPath, cacheDir, outName string, format audioformat.Format) (string, error)
}

// Encoder produces an M4A/AAC file from interleaved PCM. A non-nil error
// return is non-fatal for the run: the delay estimate still stands, only
// the inspection artifact is missing.
type Encoder interface {
	EncodePCMToM4A(ctx context.Context, pcmPath, outM4APath string, format audioformat.Format) error
}

// FFmpegDecoder shells out to the system ffmpeg binary.
type FFmpegDecoder struct {
	// BinPath overrides the ffmpeg binary to invoke; defaults to "ffmpeg"
	// on PATH when empty.
	BinPath string
}

func (d FFmpegDecoder) bin() string {
	if d.BinPath != "" {
		return d.BinPath
	}
	return "ffmpeg"
}

// DecodeToPCM implements Decoder.
func (d FFmpegDecoder) DecodeToPCM(ctx context.Context, srcPath, cacheDir, outName string, format audioformat.Format) (string, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("codec: create cache dir: %w", err)
	}
	outPath := filepath.Join(cacheDir, outName)

	sampleFmt, err := ffmpegSampleFmt(format.Kind)
	if err != nil {
		return "", err
	}

	args := []string{
		"-y",
		"-i", srcPath,
		"-f", sampleFmt,
		"-ar", itoa(format.SampleRate),
		"-ac", itoa(format.Channels),
		"-acodec", "pcm_" + sampleFmt,
		outPath,
	}
	cmd := exec.CommandContext(ctx, d.bin(), args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("codec: ffmpeg decode failed: %w (%s)", err, out)
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("codec: decoded file missing: %w", err)
	}
	return outPath, nil
}

// FFmpegEncoder shells out to the system ffmpeg binary to produce M4A/AAC.
type FFmpegEncoder struct {
	BinPath string
}

func (e FFmpegEncoder) bin() string {
	if e.BinPath != "" {
		return e.BinPath
	}
	return "ffmpeg"
}

// EncodePCMToM4A implements Encoder.
func (e FFmpegEncoder) EncodePCMToM4A(ctx context.Context, pcmPath, outM4APath string, format audioformat.Format) error {
	sampleFmt, err := ffmpegSampleFmt(format.Kind)
	if err != nil {
		return err
	}
	args := []string{
		"-y",
		"-f", sampleFmt,
		"-ar", itoa(format.SampleRate),
		"-ac", itoa(format.Channels),
		"-i", pcmPath,
		"-c:a", "aac",
		outM4APath,
	}
	cmd := exec.CommandContext(ctx, e.bin(), args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("codec: ffmpeg encode failed: %w (%s)", err, out)
	}
	return nil
}

func ffmpegSampleFmt(kind audioformat.SampleKind) (string, error) {
	switch kind {
	case audioformat.Int16:
		return "s16le", nil
	case audioformat.Float32:
		return "f32le", nil
	default:
		return "", fmt.Errorf("codec: unsupported sample kind %v", kind)
	}
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
