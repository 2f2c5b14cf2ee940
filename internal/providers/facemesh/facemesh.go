package facemesh

import (
	"context"
	"image"
)

// Engine is the face-landmark inference boundary. Implementations may wrap
// a native binding, a WASM module, or an embedded library, as long as the
// configure / per-frame submit / result callback contract holds.
type Engine interface {
	Configure(opts Options) error
	OnResult(fn func(Result))
	SubmitFrame(ctx context.Context, frame image.Image) error
	Close() error
}

// Options mirrors the inference configuration used for proctoring.
type Options struct {
	MaxNumFaces            int
	RefineLandmarks        bool
	MinDetectionConfidence float64
	MinTrackingConfidence  float64
}

// DefaultOptions is the proctoring configuration: a single refined face at
// moderate confidence.
func DefaultOptions() Options {
	return Options{
		MaxNumFaces:            1,
		RefineLandmarks:        true,
		MinDetectionConfidence: 0.6,
		MinTrackingConfidence:  0.6,
	}
}

// Landmark is one face-mesh point in normalized image coordinates.
type Landmark struct {
	X, Y, Z float64
}

// Result is one inference outcome. Faces is empty when no face is detected.
type Result struct {
	Faces [][]Landmark
}

// Canonical FaceMesh topology indices for the eye and iris landmarks used
// by the attention signal. RefineLandmarks must be on for the iris points.
const (
	LeftEyeOuter  = 33
	LeftEyeInner  = 133
	LeftEyeTop    = 159
	LeftEyeBottom = 145
	LeftIris      = 468

	RightEyeInner  = 362
	RightEyeOuter  = 263
	RightEyeTop    = 386
	RightEyeBottom = 374
	RightIris      = 473

	// MeshPoints is the refined landmark count (468 mesh + 10 iris).
	MeshPoints = 478
)
