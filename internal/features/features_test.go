package features

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ayusman/thumbtrial/internal/detector"
)

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func TestAccumulator_EmptySummary(t *testing.T) {
	a := NewAccumulator(DefaultWindow)

	if diff := cmp.Diff(Summary{}, a.SummarizeLatest()); diff != "" {
		t.Errorf("empty summary mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Summary{}, a.Summarize(0)); diff != "" {
		t.Errorf("empty summary mismatch (-want +got):\n%s", diff)
	}
}

func TestAccumulator_Summarize(t *testing.T) {
	a := NewAccumulator(DefaultWindow)

	distances := []float64{0.1, 0.5, 0.1, 0.5}
	thumbY := []float64{0.3, 0.4, 0.3, 0.4}
	for i := range distances {
		a.Add(Sample{Timestamp: ms(i * 16), Distance: distances[i], ThumbY: thumbY[i]})
	}

	got := a.Summarize(0)
	want := Summary{Amplitude: 0.4, Jitter: 0.2, Stability: 0.5, Repetitions: 2}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if got.Stability < 0 || got.Stability > 1 {
		t.Errorf("stability out of range: %f", got.Stability)
	}
}

func TestAccumulator_ConstantDistance(t *testing.T) {
	a := NewAccumulator(DefaultWindow)
	for i := 0; i < 5; i++ {
		a.Add(Sample{Timestamp: ms(i * 10), Distance: 0.3, ThumbY: 0.5})
	}

	got := a.SummarizeLatest()
	if got.Amplitude != 0 || got.Jitter != 0 || got.Stability != 0 {
		t.Errorf("expected zero amplitude, jitter and stability, got %+v", got)
	}
}

func TestAccumulator_Rounding(t *testing.T) {
	a := NewAccumulator(DefaultWindow)
	a.Add(Sample{Timestamp: 0, Distance: 0.123456})
	a.Add(Sample{Timestamp: ms(10), Distance: 0.2})

	got := a.SummarizeLatest()
	if got.Amplitude != 0.0765 {
		t.Errorf("expected amplitude rounded to 0.0765, got %v", got.Amplitude)
	}
	scaled := got.Jitter * 1e4
	if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
		t.Errorf("expected jitter rounded to 4 places, got %v", got.Jitter)
	}
}

func TestAccumulator_Prune(t *testing.T) {
	a := NewAccumulator(ms(100))

	a.Add(Sample{Timestamp: 0, Distance: 0.1})
	a.Add(Sample{Timestamp: ms(50), Distance: 0.2})
	if a.Len() != 2 {
		t.Fatalf("expected 2 samples, got %d", a.Len())
	}

	a.Add(Sample{Timestamp: ms(200), Distance: 0.3})
	if a.Len() != 1 {
		t.Errorf("expected samples older than the window to be pruned, got %d", a.Len())
	}
}

func TestAccumulator_WindowStart(t *testing.T) {
	a := NewAccumulator(time.Second)
	a.Add(Sample{Timestamp: 0, Distance: 0.9})
	a.Add(Sample{Timestamp: ms(100), Distance: 0.2})
	a.Add(Sample{Timestamp: ms(200), Distance: 0.4})

	got := a.Summarize(ms(100))
	if got.Amplitude != 0.2 {
		t.Errorf("expected amplitude 0.2 for samples from 100ms, got %v", got.Amplitude)
	}

	if diff := cmp.Diff(Summary{}, a.Summarize(ms(500))); diff != "" {
		t.Errorf("expected empty summary after last sample (-want +got):\n%s", diff)
	}
}

func TestCountRepetitions_IgnoresMicroJitter(t *testing.T) {
	var samples []Sample
	ys := []float64{0.5, 0.51, 0.5, 0.51, 0.5, 0.51}
	for i, y := range ys {
		samples = append(samples, Sample{Timestamp: ms(i * 16), ThumbY: y})
	}
	if reps := countRepetitions(samples); reps != 0 {
		t.Errorf("expected micro jitter to be ignored, got %d repetitions", reps)
	}

	if reps := countRepetitions(samples[:2]); reps != 0 {
		t.Errorf("expected 0 repetitions for fewer than 3 samples, got %d", reps)
	}
}

func TestCountRepetitions_SkipsFlatDeltas(t *testing.T) {
	ys := []float64{0.3, 0.4, 0.4, 0.3}
	var samples []Sample
	for i, y := range ys {
		samples = append(samples, Sample{Timestamp: ms(i * 16), ThumbY: y})
	}
	if reps := countRepetitions(samples); reps != 1 {
		t.Errorf("expected a flat step not to hide the flip, got %d repetitions", reps)
	}
}

func TestAccumulator_Capture(t *testing.T) {
	t.Run("captures wrist to thumb distance", func(t *testing.T) {
		a := NewAccumulator(DefaultWindow)
		hand := detector.ThumbsUpHand(0.9)

		if !a.Capture(&hand, ms(16)) {
			t.Fatal("expected capture to succeed")
		}
		if a.Len() != 1 {
			t.Fatalf("expected 1 sample, got %d", a.Len())
		}
		want := detector.Distance(hand.Landmarks[detector.ThumbTip], hand.Landmarks[detector.Wrist])
		if a.samples[0].Distance != want {
			t.Errorf("expected distance %f, got %f", want, a.samples[0].Distance)
		}
		if a.samples[0].ThumbY != 0.35 {
			t.Errorf("expected thumb Y 0.35, got %f", a.samples[0].ThumbY)
		}
	})

	t.Run("skips hands without anchors", func(t *testing.T) {
		a := NewAccumulator(DefaultWindow)
		hand := detector.Hand{Landmarks: []detector.Point3D{{X: 0.5, Y: 0.5}}}

		if a.Capture(&hand, 0) {
			t.Error("expected capture without thumb tip to be skipped")
		}
		if a.Capture(nil, 0) {
			t.Error("expected capture of nil hand to be skipped")
		}
		if a.Len() != 0 {
			t.Errorf("expected no samples, got %d", a.Len())
		}
	})
}

func TestAccumulator_SetWindow(t *testing.T) {
	a := NewAccumulator(0)
	if a.Window() != DefaultWindow {
		t.Errorf("expected default window, got %v", a.Window())
	}

	a.SetWindow(-time.Second)
	if a.Window() != DefaultWindow {
		t.Errorf("expected negative window to be ignored, got %v", a.Window())
	}

	a.SetWindow(ms(500))
	if a.Window() != ms(500) {
		t.Errorf("expected 500ms window, got %v", a.Window())
	}
}
