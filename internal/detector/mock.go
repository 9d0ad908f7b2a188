package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It returns a fixed result, or plays back a scripted sequence of results
// one per call and then keeps returning the last one.
type MockDetector struct {
	mu      sync.Mutex
	results []Result
	index   int
	err     error
	calls   int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by every Detect call.
func (m *MockDetector) SetHands(hands []Hand) {
	m.SetResults([]Result{{Hands: hands}})
}

// SetResults sets a sequence of results returned by consecutive Detect calls.
func (m *MockDetector) SetResults(results []Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
	m.index = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the next scripted result or the configured error.
func (m *MockDetector) Detect(frame *gocv.Mat) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return Result{}, m.err
	}
	if len(m.results) == 0 {
		return Result{}, nil
	}

	r := m.results[m.index]
	if m.index < len(m.results)-1 {
		m.index++
	}
	return r, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// ThumbsUpHand returns a right hand in a thumbs up pose scored as Thumb_Up.
// The thumb is extended upward while other fingers are curled.
func ThumbsUpHand(score float64) Hand {
	pts := make([]Point3D, NumLandmarks)

	pts[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	// Thumb extended upward (Y decreases going up)
	pts[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.0}
	pts[ThumbMCP] = Point3D{X: 0.58, Y: 0.65, Z: 0.0}
	pts[ThumbIP] = Point3D{X: 0.58, Y: 0.50, Z: 0.0}
	pts[ThumbTip] = Point3D{X: 0.58, Y: 0.35, Z: 0.0}

	curl(pts, IndexMCP, 0.55)
	curl(pts, MiddleMCP, 0.50)
	curl(pts, RingMCP, 0.45)
	curl(pts, PinkyMCP, 0.40)

	return Hand{
		Landmarks:  pts,
		Handedness: "Right",
		Category:   "Thumb_Up",
		Score:      ScorePtr(score),
	}
}

// ThumbsDownHand returns a right hand in a thumbs down pose scored as Thumb_Down.
func ThumbsDownHand(score float64) Hand {
	pts := make([]Point3D, NumLandmarks)

	pts[Wrist] = Point3D{X: 0.5, Y: 0.4, Z: 0.0}

	// Thumb extended downward
	pts[ThumbCMC] = Point3D{X: 0.55, Y: 0.45, Z: 0.0}
	pts[ThumbMCP] = Point3D{X: 0.58, Y: 0.55, Z: 0.0}
	pts[ThumbIP] = Point3D{X: 0.58, Y: 0.70, Z: 0.0}
	pts[ThumbTip] = Point3D{X: 0.58, Y: 0.85, Z: 0.0}

	curl(pts, IndexMCP, 0.55)
	curl(pts, MiddleMCP, 0.50)
	curl(pts, RingMCP, 0.45)
	curl(pts, PinkyMCP, 0.40)

	return Hand{
		Landmarks:  pts,
		Handedness: "Right",
		Category:   "Thumb_Down",
		Score:      ScorePtr(score),
	}
}

// OpenPalmHand returns a right hand with all fingers extended, scored as Open_Palm.
func OpenPalmHand(score float64) Hand {
	pts := make([]Point3D, NumLandmarks)

	pts[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	pts[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
	pts[ThumbMCP] = Point3D{X: 0.62, Y: 0.70, Z: 0.03}
	pts[ThumbIP] = Point3D{X: 0.68, Y: 0.65, Z: 0.03}
	pts[ThumbTip] = Point3D{X: 0.73, Y: 0.60, Z: 0.03}

	extend(pts, IndexMCP, 0.57)
	extend(pts, MiddleMCP, 0.50)
	extend(pts, RingMCP, 0.43)
	extend(pts, PinkyMCP, 0.36)

	return Hand{
		Landmarks:  pts,
		Handedness: "Right",
		Category:   "Open_Palm",
		Score:      ScorePtr(score),
	}
}

// curl places a finger's four joints folded back toward the palm.
func curl(pts []Point3D, mcp int, x float64) {
	pts[mcp] = Point3D{X: x, Y: 0.70, Z: -0.02}
	pts[mcp+1] = Point3D{X: x, Y: 0.68, Z: -0.05}
	pts[mcp+2] = Point3D{X: x - 0.03, Y: 0.70, Z: -0.04}
	pts[mcp+3] = Point3D{X: x - 0.05, Y: 0.72, Z: -0.02}
}

// extend places a finger's four joints pointing straight up.
func extend(pts []Point3D, mcp int, x float64) {
	pts[mcp] = Point3D{X: x, Y: 0.68, Z: 0.0}
	pts[mcp+1] = Point3D{X: x, Y: 0.55, Z: 0.0}
	pts[mcp+2] = Point3D{X: x, Y: 0.45, Z: 0.0}
	pts[mcp+3] = Point3D{X: x, Y: 0.35, Z: 0.0}
}
