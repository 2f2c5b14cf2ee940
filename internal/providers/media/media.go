package media

import (
	"context"
	"image"
)

// Devices acquires capture hardware. Acquisition happens once per interview
// session; each returned handle is exclusively owned by one subsystem until
// the cleanup coordinator releases it.
type Devices interface {
	OpenMicrophone(ctx context.Context) (Microphone, error)
	OpenCamera(ctx context.Context, cfg CameraConfig) (Camera, error)
}

// CameraConfig mirrors the constraints used for proctoring capture:
// front-facing, modest resolution.
type CameraConfig struct {
	Width       int
	Height      int
	FacingFront bool
}

// Microphone is a persistent capture stream. ReadSamples exposes the most
// recent time-domain window for the live level meter; recorders are created
// per question on top of the same stream.
type Microphone interface {
	ReadSamples(buf []int16) (int, error)
	SupportsMimeType(mimeType string) bool
	NewRecorder(mimeType string) (Recorder, error)
	Close() error
}

// Recorder captures one answer. Data arrives incrementally through OnData;
// RequestStop is asynchronous and completion is delivered through OnStop
// after the final chunk. Both callbacks must be registered before Start.
type Recorder interface {
	Start() error
	RequestStop() error
	OnData(fn func(chunk []byte))
	OnStop(fn func())
	MimeType() string
}

// Camera exposes the latest video frame. The bool result is false while the
// camera has no data yet (mirrors readyState gating on the video element).
type Camera interface {
	Frame() (image.Image, bool)
	Close() error
}

// PreferredMimeTypes is the encoding preference order for answer recordings.
var PreferredMimeTypes = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg;codecs=opus",
	"audio/ogg",
}

// PickMimeType returns the best-supported encoding, or empty string to let
// the platform pick its default.
func PickMimeType(mic Microphone) string {
	for _, mt := range PreferredMimeTypes {
		if mic.SupportsMimeType(mt) {
			return mt
		}
	}
	return ""
}

// FileExtension maps a selected mime type to the upload file extension.
func FileExtension(mimeType string) string {
	switch {
	case mimeType == "":
		return "webm"
	case len(mimeType) >= 9 && mimeType[:9] == "audio/ogg":
		return "ogg"
	default:
		return "webm"
	}
}
