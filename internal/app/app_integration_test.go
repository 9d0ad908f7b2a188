package app

import (
	"errors"
	"testing"
	"time"

	"github.com/ayusman/thumbtrial/internal/capture"
	"github.com/ayusman/thumbtrial/internal/config"
	"github.com/ayusman/thumbtrial/internal/detector"
	"github.com/ayusman/thumbtrial/internal/gesture"
	"gocv.io/x/gocv"
)

func TestApp_Pipeline_CommitsHeldGesture(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	base := config.Default()
	base.MaxFPS = 60
	a, sink, obs := newTestApp(t, base, nil)

	frame := gocv.NewMatWithSize(capture.DefaultHeight, capture.DefaultWidth, gocv.MatTypeCV8UC3)
	defer frame.Close()
	a.SetCamera(capture.NewMockCamera([]*gocv.Mat{&frame}, true))

	mock := detector.NewMockDetector()
	mock.SetHands([]detector.Hand{detector.ThumbsUpHand(0.95)})
	a.SetDetector(mock)

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop()

	p := sink.next(t)
	if p.Gesture != gesture.LabelUp || p.Trial != 1 {
		t.Errorf("unexpected packet %+v", p)
	}
	if p.HoldMs < 900 {
		t.Errorf("expected hold of at least 900ms, got %d", p.HoldMs)
	}

	_, statuses := obs.snapshot()
	if len(statuses) == 0 || statuses[0] != StatusOK {
		t.Errorf("expected ok status, got %v", statuses)
	}
}

func TestApp_Pipeline_DetectorErrorsDoNotCommit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	a, sink, obs := newTestApp(t, nil, nil)

	frame := gocv.NewMatWithSize(capture.DefaultHeight, capture.DefaultWidth, gocv.MatTypeCV8UC3)
	defer frame.Close()
	a.SetCamera(capture.NewMockCamera([]*gocv.Mat{&frame}, true))

	mock := detector.NewMockDetector()
	mock.SetHands([]detector.Hand{detector.ThumbsUpHand(0.95)})
	mock.SetError(errors.New("recognizer crashed"))
	a.SetDetector(mock)

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(1500 * time.Millisecond)
	a.Stop()

	select {
	case p := <-sink.packets:
		t.Errorf("expected no packets while the detector fails, got %+v", p)
	default:
	}

	frames, statuses := obs.snapshot()
	if len(frames) != 0 {
		t.Errorf("expected no frames to reach the session, got %d", len(frames))
	}
	if len(statuses) != 1 || statuses[0] != StatusDetectorError {
		t.Errorf("expected a single detector-error status, got %v", statuses)
	}
	if mock.Calls() == 0 {
		t.Error("expected the detector to be called")
	}
}

func TestApp_Pipeline_Snapshot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	a, _, _ := newTestApp(t, nil, nil)

	frame := gocv.NewMatWithSize(capture.DefaultHeight, capture.DefaultWidth, gocv.MatTypeCV8UC3)
	defer frame.Close()
	a.SetCamera(capture.NewMockCamera([]*gocv.Mat{&frame}, true))

	a.Snapshot() // request encoding
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		data, err := a.Snapshot()
		if err == nil {
			if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
				t.Errorf("expected JPEG data, got %d bytes", len(data))
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for snapshot: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
