//go:build !portaudio

// Stub backend compiled when the real PortAudio driver isn't linked in
// (cgo toolchain unavailable, or the build omits -tags portaudio). Mirrors
// harperreed-resonate-go's pkg/audio/output/portaudio_stub.go pattern.
package stream

import "fmt"

// PortAudioBackend is a placeholder returned when the engine is built
// without PortAudio support.
type PortAudioBackend struct{}

// NewPortAudioBackend constructs the stub backend.
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

var errPortAudioDisabled = fmt.Errorf("stream: built without PortAudio support (build with -tags portaudio)")

func (b *PortAudioBackend) Initialize() error { return errPortAudioDisabled }
func (b *PortAudioBackend) Terminate() error  { return nil }

func (b *PortAudioBackend) OpenOutputStream(OpenParams, OutputCallback) (OutputStream, error) {
	return nil, errPortAudioDisabled
}

func (b *PortAudioBackend) OpenInputStream(OpenParams, InputCallback) (InputStream, error) {
	return nil, errPortAudioDisabled
}
