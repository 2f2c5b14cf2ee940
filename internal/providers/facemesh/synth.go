package facemesh

// Synthetic faces for the scripted engine. The geometry places both eyes on
// a horizontal axis so the openness and iris-position ratios come out to the
// requested values exactly.

// SyntheticFace builds a full refined mesh where both eyes have the given
// openness ratio (vertical lid distance over horizontal eye width) and both
// irises sit at irisRatio across the eye's horizontal extent (0 = outer
// corner side, 1 = inner corner side).
func SyntheticFace(irisRatio, openness float64) []Landmark {
	face := make([]Landmark, MeshPoints)

	const eyeWidth = 0.10
	vertical := openness * eyeWidth

	// left eye spans x 0.30..0.40 at y 0.50
	placeEye(face, LeftEyeOuter, LeftEyeInner, LeftEyeTop, LeftEyeBottom, LeftIris,
		0.30, eyeWidth, vertical, irisRatio)
	// right eye spans x 0.60..0.70 at y 0.50
	placeEye(face, RightEyeInner, RightEyeOuter, RightEyeTop, RightEyeBottom, RightIris,
		0.60, eyeWidth, vertical, irisRatio)

	return face
}

func placeEye(face []Landmark, cornerA, cornerB, top, bottom, iris int, x0, width, vertical, irisRatio float64) {
	const y = 0.50
	face[cornerA] = Landmark{X: x0, Y: y}
	face[cornerB] = Landmark{X: x0 + width, Y: y}
	face[top] = Landmark{X: x0 + width/2, Y: y - vertical/2}
	face[bottom] = Landmark{X: x0 + width/2, Y: y + vertical/2}
	face[iris] = Landmark{X: x0 + irisRatio*width, Y: y}
}

// LookingFace is a centered, open-eyed face that passes the attention check.
func LookingFace() Result {
	return Result{Faces: [][]Landmark{SyntheticFace(0.5, 0.3)}}
}

// AwayFace has both irises pushed to the edge of the eye, failing the
// centered-band condition.
func AwayFace() Result {
	return Result{Faces: [][]Landmark{SyntheticFace(0.92, 0.3)}}
}

// ClosedFace has eye openness under the minimum, failing the openness
// condition.
func ClosedFace() Result {
	return Result{Faces: [][]Landmark{SyntheticFace(0.5, 0.05)}}
}

// NoFace is an empty detection result.
func NoFace() Result { return Result{} }
