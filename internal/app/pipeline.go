package app

import (
	"log"
	"time"

	"github.com/ayusman/thumbtrial/internal/capture"
	"github.com/ayusman/thumbtrial/internal/detector"
	"github.com/ayusman/thumbtrial/internal/session"
	"gocv.io/x/gocv"
)

// runPipeline reads, detects and processes one frame per tick. The tick
// follows max_fps and picks up changes from ApplySettings.
func (a *App) runPipeline(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := a.frameInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if next := a.frameInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}

			// Skip processing if the pipeline is paused
			if !a.IsEnabled() {
				continue
			}

			a.step()
		}
	}
}

func (a *App) frameInterval() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.FrameInterval()
}

// step processes one camera frame. Camera and detector failures are
// reported as status and leave the session untouched.
func (a *App) step() {
	a.mu.RLock()
	camera, det := a.camera, a.detector
	a.mu.RUnlock()

	frame, err := camera.ReadFrame()
	if err != nil {
		a.setStatus(StatusCameraError, err)
		return
	}
	defer frame.Close()

	// Frame time is taken at capture, before detection latency.
	now := a.session.Now()
	a.keepSnapshot(frame)

	res, err := det.Detect(frame)
	if err != nil {
		a.setStatus(StatusDetectorError, err)
		return
	}

	a.setStatus(StatusOK, nil)
	a.handleResult(res, now)
}

// handleResult runs one detector result through the session and publishes it.
func (a *App) handleResult(res detector.Result, now time.Duration) session.Frame {
	f := a.session.HandleFrame(res, now)
	a.publish(f)
	return f
}

func (a *App) publish(f session.Frame) {
	if p := f.Packet; p != nil {
		log.Printf("Trial %d committed: %s (hold %dms, rt %dms)", p.Trial, p.Gesture, p.HoldMs, p.RTMs)
		if err := a.dispatcher.Enqueue(*p); err != nil {
			log.Printf("Failed to queue trial %d: %v", p.Trial, err)
		}
	}

	stable := a.session.Config().Stable

	a.mu.RLock()
	observers := a.observers
	a.mu.RUnlock()

	for _, o := range observers {
		o.PublishFrame(f, stable)
	}
}

// setStatus logs and broadcasts status transitions only.
func (a *App) setStatus(status string, err error) {
	a.mu.Lock()
	if a.status == status {
		a.mu.Unlock()
		return
	}
	a.status = status
	observers := a.observers
	a.mu.Unlock()

	if err != nil {
		log.Printf("Pipeline status %s: %v", status, err)
	} else {
		log.Printf("Pipeline status %s", status)
	}
	for _, o := range observers {
		o.PublishStatus(status, err)
	}
}

// Status returns the last reported pipeline status.
func (a *App) Status() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

func (a *App) keepSnapshot(frame *gocv.Mat) {
	requested := time.Unix(0, a.snapshotAt.Load())
	if time.Since(requested) > snapshotTTL {
		return
	}

	data, err := capture.EncodeJPEG(frame)
	if err != nil {
		return
	}

	a.mu.Lock()
	a.snapshot = data
	a.mu.Unlock()
}
