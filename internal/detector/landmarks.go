// Package detector provides hand detection interfaces and types for gesture recognition.
package detector

import "math"

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D represents a landmark position in normalized image coordinates (0..1).
// Z is relative depth and may be zero when the recognizer does not report it.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point3D) float64 {
	return math.Sqrt((a.X-b.X)*(a.X-b.X) + (a.Y-b.Y)*(a.Y-b.Y) + (a.Z-b.Z)*(a.Z-b.Z))
}

// Hand is one detected hand in a frame. Category and Score describe the
// recognizer's top gesture for the hand; Score is nil when no gesture was scored.
type Hand struct {
	Landmarks  []Point3D `json:"landmarks"`
	Handedness string    `json:"handedness,omitempty"` // "Left" or "Right"
	Category   string    `json:"category,omitempty"`
	Score      *float64  `json:"score"`
}

// Landmark returns the landmark at index i and whether it is present.
func (h *Hand) Landmark(i int) (Point3D, bool) {
	if h == nil || i < 0 || i >= len(h.Landmarks) {
		return Point3D{}, false
	}
	return h.Landmarks[i], true
}

// Result is the recognizer output for a single frame.
type Result struct {
	Hands []Hand `json:"hands"`
}

// FirstWithLandmarks returns the first hand that carries any landmarks, or nil.
func (r Result) FirstWithLandmarks() *Hand {
	for i := range r.Hands {
		if len(r.Hands[i].Landmarks) > 0 {
			return &r.Hands[i]
		}
	}
	return nil
}

// ScorePtr is a helper for building hands with a gesture score.
func ScorePtr(v float64) *float64 {
	return &v
}
