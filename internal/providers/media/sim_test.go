package media

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickMimeTypePrefersOpusWebm(t *testing.T) {
	mic := NewSimMicrophone()
	assert.Equal(t, "audio/webm;codecs=opus", PickMimeType(mic))

	mic.SetSupported("audio/ogg;codecs=opus")
	assert.Equal(t, "audio/ogg;codecs=opus", PickMimeType(mic))

	mic.SetSupported()
	assert.Equal(t, "", PickMimeType(mic))
}

func TestFileExtension(t *testing.T) {
	assert.Equal(t, "webm", FileExtension("audio/webm;codecs=opus"))
	assert.Equal(t, "ogg", FileExtension("audio/ogg;codecs=opus"))
	assert.Equal(t, "webm", FileExtension(""))
}

func TestRecorderDeliversPayloadThenStop(t *testing.T) {
	mic := NewSimMicrophone()
	mic.SetPayload([]byte("one"), []byte("two"))

	rec, err := mic.NewRecorder(PickMimeType(mic))
	require.NoError(t, err)

	var mu sync.Mutex
	var chunks [][]byte
	stopped := make(chan struct{})

	rec.OnData(func(b []byte) {
		mu.Lock()
		chunks = append(chunks, b)
		mu.Unlock()
	})
	rec.OnStop(func() { close(stopped) })

	require.NoError(t, rec.Start())
	require.Error(t, rec.Start(), "double start must be rejected")
	require.NoError(t, rec.RequestStop())
	require.NoError(t, rec.RequestStop(), "double stop is a no-op")

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("recorder never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, chunks, 2)
	assert.Equal(t, "one", string(chunks[0]))
	assert.Equal(t, "two", string(chunks[1]))
}

func TestStopBeforeStartProducesNothing(t *testing.T) {
	mic := NewSimMicrophone()
	rec, err := mic.NewRecorder("")
	require.NoError(t, err)

	stopped := false
	rec.OnStop(func() { stopped = true })
	require.NoError(t, rec.RequestStop())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, stopped, "stop callback only fires for started recorders")
}

func TestClosedMicrophoneRejectsWork(t *testing.T) {
	mic := NewSimMicrophone()
	require.NoError(t, mic.Close())

	buf := make([]int16, 64)
	_, err := mic.ReadSamples(buf)
	require.Error(t, err)

	_, err = mic.NewRecorder("audio/webm")
	require.Error(t, err)
}

func TestReadSamplesAmplitude(t *testing.T) {
	mic := NewSimMicrophone()
	mic.SetAmplitude(0)

	buf := make([]int16, 256)
	n, err := mic.ReadSamples(buf)
	require.NoError(t, err)
	require.Equal(t, 256, n)
	for _, s := range buf {
		assert.Zero(t, s)
	}

	mic.SetAmplitude(1)
	_, err = mic.ReadSamples(buf)
	require.NoError(t, err)
	var peak int16
	for _, s := range buf {
		if s > peak {
			peak = s
		}
	}
	assert.Greater(t, peak, int16(30000), "full amplitude sine should approach full scale")
}
