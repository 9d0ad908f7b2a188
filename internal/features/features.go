// Package features accumulates per-frame hand kinematics over a trailing
// time window and summarizes the motion behind a committed gesture.
package features

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/thumbtrial/internal/detector"
)

const (
	// DefaultWindow is the trailing span of samples kept for summaries.
	DefaultWindow = 1200 * time.Millisecond

	// NoiseFloor is the minimum vertical thumb delta that counts toward a repetition.
	NoiseFloor = 0.02

	// precision is the number of decimal places kept in summaries.
	precision = 4
)

// Sample is the kinematic state of one frame.
type Sample struct {
	Timestamp time.Duration
	Distance  float64 // wrist to thumb tip
	ThumbY    float64
	WristY    float64
}

// Summary characterizes the motion in a window.
type Summary struct {
	Amplitude   float64 `json:"amplitude"`
	Jitter      float64 `json:"jitter"`
	Stability   float64 `json:"stability"`
	Repetitions int     `json:"repetitions"`
}

// Accumulator keeps a time-ordered window of samples. It is not safe for
// concurrent use; the owning session serializes access.
type Accumulator struct {
	window  time.Duration
	samples []Sample
}

// NewAccumulator creates an accumulator with the given window.
// Non-positive windows fall back to DefaultWindow.
func NewAccumulator(window time.Duration) *Accumulator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Accumulator{window: window}
}

// Window returns the configured window length.
func (a *Accumulator) Window() time.Duration {
	return a.window
}

// SetWindow changes the window length. Non-positive values are ignored.
func (a *Accumulator) SetWindow(window time.Duration) {
	if window > 0 {
		a.window = window
	}
}

// Len returns the number of retained samples.
func (a *Accumulator) Len() int {
	return len(a.samples)
}

// Capture derives a sample from the hand's wrist and thumb tip. Frames
// without both anchors are skipped; gaps in coverage are expected.
func (a *Accumulator) Capture(hand *detector.Hand, ts time.Duration) bool {
	wrist, ok := hand.Landmark(detector.Wrist)
	if !ok {
		return false
	}
	thumbTip, ok := hand.Landmark(detector.ThumbTip)
	if !ok {
		return false
	}

	a.Add(Sample{
		Timestamp: ts,
		Distance:  detector.Distance(thumbTip, wrist),
		ThumbY:    thumbTip.Y,
		WristY:    wrist.Y,
	})
	return true
}

// Add appends a sample and drops anything older than the window.
func (a *Accumulator) Add(s Sample) {
	a.samples = append(a.samples, s)
	a.prune(s.Timestamp - a.window)
}

func (a *Accumulator) prune(minTimestamp time.Duration) {
	i := 0
	for i < len(a.samples) && a.samples[i].Timestamp < minTimestamp {
		i++
	}
	if i > 0 {
		a.samples = append(a.samples[:0], a.samples[i:]...)
	}
}

// SummarizeLatest summarizes the window ending at the newest sample.
func (a *Accumulator) SummarizeLatest() Summary {
	if len(a.samples) == 0 {
		return Summary{}
	}
	return a.Summarize(a.samples[len(a.samples)-1].Timestamp - a.window)
}

// Summarize computes the summary over retained samples at or after windowStart.
// An empty window yields the zero Summary.
func (a *Accumulator) Summarize(windowStart time.Duration) Summary {
	if len(a.samples) == 0 {
		return Summary{}
	}
	a.prune(a.samples[len(a.samples)-1].Timestamp - a.window)

	first := len(a.samples)
	for i, s := range a.samples {
		if s.Timestamp >= windowStart {
			first = i
			break
		}
	}
	windowed := a.samples[first:]
	if len(windowed) == 0 {
		return Summary{}
	}

	distances := make([]float64, len(windowed))
	for i, s := range windowed {
		distances[i] = s.Distance
	}

	amplitude := floats.Max(distances) - floats.Min(distances)
	_, jitter := stat.PopMeanStdDev(distances, nil)
	if math.IsNaN(jitter) {
		jitter = 0
	}

	var stability float64
	if amplitude > 0 {
		stability = math.Max(0, 1-jitter/amplitude)
	}

	return Summary{
		Amplitude:   round(amplitude),
		Jitter:      round(jitter),
		Stability:   round(stability),
		Repetitions: countRepetitions(windowed),
	}
}

// countRepetitions counts direction flips of the thumb's vertical motion where
// both the incoming and outgoing deltas clear NoiseFloor.
func countRepetitions(samples []Sample) int {
	if len(samples) < 3 {
		return 0
	}
	reps := 0
	prevDelta := 0.0
	for i := 1; i < len(samples); i++ {
		delta := samples[i].ThumbY - samples[i-1].ThumbY
		if sign(delta) != sign(prevDelta) && math.Abs(delta) > NoiseFloor && math.Abs(prevDelta) > NoiseFloor {
			reps++
		}
		if delta != 0 {
			prevDelta = delta
		}
	}
	return reps
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func round(v float64) float64 {
	p := math.Pow(10, precision)
	return math.Round(v*p) / p
}
