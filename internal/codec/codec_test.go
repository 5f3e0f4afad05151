package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/audiolatency/internal/audioformat"
)

func TestFFmpegSampleFmt(t *testing.T) {
	fmtInt16, err := ffmpegSampleFmt(audioformat.Int16)
	require.NoError(t, err)
	assert.Equal(t, "s16le", fmtInt16)

	fmtFloat, err := ffmpegSampleFmt(audioformat.Float32)
	require.NoError(t, err)
	assert.Equal(t, "f32le", fmtFloat)

	_, err = ffmpegSampleFmt(audioformat.SampleKind(99))
	assert.Error(t, err)
}

func TestDecoderInterfaceIsSatisfiable(t *testing.T) {
	var _ Decoder = FFmpegDecoder{}
	var _ Encoder = FFmpegEncoder{}
}
