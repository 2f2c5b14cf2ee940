package media

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
)

// SimDevices is a scriptable in-process implementation of Devices used by
// the dev CLI and the test suite. Failure injection covers the
// permission-denied paths of real hardware.
type SimDevices struct {
	MicErr    error
	CameraErr error

	Mic    *SimMicrophone
	Camera *SimCamera
}

func NewSimDevices() *SimDevices {
	return &SimDevices{
		Mic:    NewSimMicrophone(),
		Camera: NewSimCamera(),
	}
}

func (d *SimDevices) OpenMicrophone(_ context.Context) (Microphone, error) {
	if d.MicErr != nil {
		return nil, d.MicErr
	}
	if d.Mic == nil {
		d.Mic = NewSimMicrophone()
	}
	return d.Mic, nil
}

func (d *SimDevices) OpenCamera(_ context.Context, _ CameraConfig) (Camera, error) {
	if d.CameraErr != nil {
		return nil, d.CameraErr
	}
	if d.Camera == nil {
		d.Camera = NewSimCamera()
	}
	return d.Camera, nil
}

// SimMicrophone synthesizes a sine wave at a configurable amplitude for the
// level meter and hands configured payloads to recorders.
type SimMicrophone struct {
	mu        sync.Mutex
	amplitude float64 // 0..1
	phase     float64
	payload   [][]byte // chunks the next recorder will produce
	supported map[string]bool
	closed    bool
}

func NewSimMicrophone() *SimMicrophone {
	return &SimMicrophone{
		amplitude: 0.2,
		supported: map[string]bool{
			"audio/webm;codecs=opus": true,
			"audio/webm":             true,
		},
	}
}

// SetAmplitude tunes the synthesized signal level (0..1).
func (m *SimMicrophone) SetAmplitude(a float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.amplitude = math.Max(0, math.Min(1, a))
}

// SetPayload configures the chunks the next recorder delivers. nil payload
// makes recordings come back empty (the "no answer produced" path).
func (m *SimMicrophone) SetPayload(chunks ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = chunks
}

// SetSupported overrides the supported encodings.
func (m *SimMicrophone) SetSupported(mimeTypes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supported = make(map[string]bool, len(mimeTypes))
	for _, mt := range mimeTypes {
		m.supported[mt] = true
	}
}

func (m *SimMicrophone) ReadSamples(buf []int16) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("microphone stream is closed")
	}

	const step = 2 * math.Pi * 440.0 / 48000.0
	for i := range buf {
		buf[i] = int16(m.amplitude * math.Sin(m.phase) * 32767)
		m.phase += step
	}
	if m.phase > 2*math.Pi {
		m.phase -= 2 * math.Pi
	}
	return len(buf), nil
}

func (m *SimMicrophone) SupportsMimeType(mimeType string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supported[mimeType]
}

func (m *SimMicrophone) NewRecorder(mimeType string) (Recorder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("microphone stream is closed")
	}
	payload := make([][]byte, len(m.payload))
	copy(payload, m.payload)
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	return &SimRecorder{mimeType: mimeType, payload: payload}, nil
}

func (m *SimMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SimRecorder delivers its payload chunks and the stop event asynchronously,
// mirroring how a platform recorder completes after stop is requested.
type SimRecorder struct {
	mu       sync.Mutex
	mimeType string
	payload  [][]byte
	onData   func([]byte)
	onStop   func()
	started  bool
	stopped  bool
}

func (r *SimRecorder) OnData(fn func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = fn
}

func (r *SimRecorder) OnStop(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStop = fn
}

func (r *SimRecorder) MimeType() string { return r.mimeType }

func (r *SimRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("recorder already started")
	}
	r.started = true
	return nil
}

func (r *SimRecorder) RequestStop() error {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	payload := r.payload
	onData := r.onData
	onStop := r.onStop
	r.mu.Unlock()

	go func() {
		for _, chunk := range payload {
			if onData != nil {
				onData(chunk)
			}
		}
		if onStop != nil {
			onStop()
		}
	}()
	return nil
}

// SimCamera serves a canned frame. FrameFn can be swapped to script
// camera behavior in tests.
type SimCamera struct {
	mu      sync.Mutex
	frameFn func() (image.Image, bool)
	closed  bool
}

func NewSimCamera() *SimCamera {
	frame := image.NewGray(image.Rect(0, 0, 8, 8))
	return &SimCamera{
		frameFn: func() (image.Image, bool) { return frame, true },
	}
}

func (c *SimCamera) SetFrameFn(fn func() (image.Image, bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameFn = fn
}

func (c *SimCamera) Frame() (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.frameFn == nil {
		return nil, false
	}
	return c.frameFn()
}

func (c *SimCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
