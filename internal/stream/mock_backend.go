// MockBackend implements Backend without hardware, adapted from the
// teacher's internal/audio/mock_backend.go: the same error-injection
// setters and background-goroutine input simulation, generalized to drive
// the real OutputCallback/InputCallback form instead of a stored
// StreamCallback field.
package stream

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/audiolatency/internal/audioformat"
)

// MockBackend is a hardware-independent test double for Backend.
type MockBackend struct {
	mu                 sync.Mutex
	initialized        bool
	initError          error
	createStreamError  error
	simulateRealTiming bool
	streamCounter      int
}

// NewMockBackend creates a ready-to-configure mock backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// SetInitError configures Initialize to fail with err.
func (m *MockBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetCreateStreamError configures stream creation to fail with err.
func (m *MockBackend) SetCreateStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createStreamError = err
}

// SetSimulateRealTiming controls whether mock streams sleep to approximate
// real audio timing between callback invocations.
func (m *MockBackend) SetSimulateRealTiming(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = v
}

func (m *MockBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initError != nil {
		return m.initError
	}
	m.initialized = true
	return nil
}

func (m *MockBackend) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	return nil
}

func (m *MockBackend) OpenOutputStream(params OpenParams, cb OutputCallback) (OutputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, ErrNotInitialized
	}
	if m.createStreamError != nil {
		return nil, m.createStreamError
	}
	m.streamCounter++
	return &mockOutputStream{
		id:         fmt.Sprintf("output_%d", m.streamCounter),
		params:     params,
		cb:         cb,
		realTiming: m.simulateRealTiming,
		stopCh:     make(chan struct{}),
	}, nil
}

func (m *MockBackend) OpenInputStream(params OpenParams, cb InputCallback) (InputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, ErrNotInitialized
	}
	if m.createStreamError != nil {
		return nil, m.createStreamError
	}
	m.streamCounter++
	return &mockInputStream{
		id:         fmt.Sprintf("input_%d", m.streamCounter),
		params:     params,
		cb:         cb,
		realTiming: m.simulateRealTiming,
		stopCh:     make(chan struct{}),
		generator:  defaultSineGenerator(440, float64(params.SampleRate)),
	}, nil
}

// SampleGenerator fills a mono/stereo int16 or float32 byte buffer with
// synthetic audio for a mock input stream. A custom generator can be
// installed via mockInputStream.SetGenerator.
type SampleGenerator func(dst []byte, frame audioformat.Format, frameCount int, tStart float64)

func defaultSineGenerator(freqHz, sampleRate float64) SampleGenerator {
	return func(dst []byte, format audioformat.Format, frameCount int, tStart float64) {
		writeSine(dst, format, frameCount, tStart, freqHz, sampleRate, 0.1)
	}
}

type mockOutputStream struct {
	mu         sync.Mutex
	id         string
	params     OpenParams
	cb         OutputCallback
	realTiming bool
	active     atomic.Bool
	errCB      ErrorCallback
	errFired   atomic.Bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

func (s *mockOutputStream) Negotiated() Negotiated {
	return Negotiated{
		SampleRate:   s.params.SampleRate,
		Channels:     s.params.Channels,
		Format:       s.params.Format,
		Sharing:      s.params.Sharing,
		Perf:         s.params.Perf,
		BurstFrames:  s.params.BufferSize,
		BufferFrames: s.params.BufferSize * 2,
	}
}

func (s *mockOutputStream) Start() error {
	if s.active.Swap(true) {
		return fmt.Errorf("stream: already active")
	}
	s.wg.Add(1)
	go s.pump()
	return nil
}

func (s *mockOutputStream) Stop() error {
	if !s.active.Swap(false) {
		return nil
	}
	close(s.stopCh)
	s.wg.Wait()
	return nil
}

func (s *mockOutputStream) Close() error { return nil }

func (s *mockOutputStream) SetErrorCallback(cb ErrorCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errCB = cb
}

// InjectError simulates an asynchronous driver failure, delivering err to
// the installed error callback at most once.
func (s *mockOutputStream) InjectError(err error) {
	if s.errFired.Swap(true) {
		return
	}
	s.mu.Lock()
	cb := s.errCB
	s.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (s *mockOutputStream) pump() {
	defer s.wg.Done()
	frameBytes := audioformat.Format{Channels: s.params.Channels, Kind: s.params.Format}.FrameBytes()
	frames := s.params.BufferSize
	if frames <= 0 {
		frames = 480
	}
	interval := time.Duration(float64(frames) / float64(s.params.SampleRate) * float64(time.Second))
	dst := make([]byte, frames*frameBytes)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		action := s.cb(dst, frames)
		if s.realTiming {
			time.Sleep(interval)
		}
		if action == Stop {
			s.active.Store(false)
			return
		}
	}
}

type mockInputStream struct {
	mu         sync.Mutex
	id         string
	params     OpenParams
	cb         InputCallback
	realTiming bool
	active     atomic.Bool
	errCB      ErrorCallback
	errFired   atomic.Bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
	generator  SampleGenerator
}

func (s *mockInputStream) Negotiated() Negotiated {
	return Negotiated{
		SampleRate:   s.params.SampleRate,
		Channels:     s.params.Channels,
		Format:       s.params.Format,
		Sharing:      s.params.Sharing,
		Perf:         s.params.Perf,
		BurstFrames:  s.params.BufferSize,
		BufferFrames: s.params.BufferSize * 2,
	}
}

// SetGenerator overrides the synthetic audio generator (e.g. to simulate
// a delayed loopback capture in delay-detector integration tests).
func (s *mockInputStream) SetGenerator(gen SampleGenerator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generator = gen
}

func (s *mockInputStream) Start() error {
	if s.active.Swap(true) {
		return fmt.Errorf("stream: already active")
	}
	s.wg.Add(1)
	go s.pump()
	return nil
}

func (s *mockInputStream) Stop() error {
	if !s.active.Swap(false) {
		return nil
	}
	close(s.stopCh)
	s.wg.Wait()
	return nil
}

func (s *mockInputStream) Close() error { return nil }

func (s *mockInputStream) SetErrorCallback(cb ErrorCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errCB = cb
}

// InjectError simulates an asynchronous driver failure.
func (s *mockInputStream) InjectError(err error) {
	if s.errFired.Swap(true) {
		return
	}
	s.mu.Lock()
	cb := s.errCB
	s.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (s *mockInputStream) pump() {
	defer s.wg.Done()
	format := audioformat.Format{Channels: s.params.Channels, Kind: s.params.Format}
	frameBytes := format.FrameBytes()
	frames := s.params.BufferSize
	if frames <= 0 {
		frames = 480
	}
	interval := time.Duration(float64(frames) / float64(s.params.SampleRate) * float64(time.Second))
	buf := make([]byte, frames*frameBytes)
	var t float64
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.mu.Lock()
		gen := s.generator
		s.mu.Unlock()
		if gen != nil {
			gen(buf, format, frames, t)
		}
		action := s.cb(buf, frames)
		t += float64(frames) / float64(s.params.SampleRate)
		if s.realTiming {
			time.Sleep(interval)
		}
		if action == Stop {
			s.active.Store(false)
			return
		}
	}
}
