// Package session owns the per-run stabilization state: the engine, the
// feature accumulator and the trial builder. All calls are serialized by one
// mutex so the frame loop and the control plane never interleave.
package session

import (
	"sync"
	"time"

	"github.com/ayusman/thumbtrial/internal/detector"
	"github.com/ayusman/thumbtrial/internal/engine"
	"github.com/ayusman/thumbtrial/internal/features"
	"github.com/ayusman/thumbtrial/internal/gesture"
	"github.com/ayusman/thumbtrial/internal/trial"
)

// Options configures a Session.
type Options struct {
	Engine        engine.Config
	Gesture       gesture.Options
	FeatureWindow time.Duration
	Meta          trial.Meta
}

// Frame is the result of handling one detector result or control action.
type Frame struct {
	Event  gesture.Event
	Output engine.Output
	Packet *trial.Packet // set when the frame committed
	Trials int
}

// Session is the explicit context for one experiment run.
type Session struct {
	mu       sync.Mutex
	start    time.Time
	opts     gesture.Options
	engine   *engine.Engine
	features *features.Accumulator
	builder  *trial.Builder
	last     *Frame
}

// New creates a session whose clock starts now.
func New(o Options) *Session {
	acc := features.NewAccumulator(o.FeatureWindow)
	return &Session{
		start:    time.Now(),
		opts:     o.Gesture,
		engine:   engine.New(o.Engine, 0),
		features: acc,
		builder:  trial.NewBuilder(o.Meta, acc),
	}
}

// Now returns the monotonic session clock.
func (s *Session) Now() time.Duration {
	return time.Since(s.start)
}

// HandleFrame folds one detector result observed at now into the session.
// Kinematic samples come from the first hand that has landmarks; the
// gesture comes from the highest scoring hand.
func (s *Session) HandleFrame(res detector.Result, now time.Duration) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hand := res.FirstWithLandmarks(); hand != nil {
		s.features.Capture(hand, now)
	}

	ev := gesture.Classify(res, s.opts)
	out := s.engine.Process(ev, now)
	return s.finish(ev, out)
}

// Simulate commits label immediately and builds its packet.
func (s *Session) Simulate(label gesture.Label, now time.Duration) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.engine.Force(label, now)
	ev := gesture.Event{
		Label:    out.Label,
		Name:     string(out.Label),
		Score:    out.Score,
		Accepted: out.Label != gesture.LabelNeutral,
		Reason:   gesture.ReasonAccepted,
	}
	return s.finish(ev, out)
}

// UpdateMeta applies a partial metadata update stamped at now.
func (s *Session) UpdateMeta(u trial.MetaUpdate, now time.Duration) trial.Meta {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.builder.Update(u, now)
	return s.builder.Meta()
}

// Reconfigure applies new timings, thresholds and feature window without
// resetting the trial counter or the current candidate.
func (s *Session) Reconfigure(o Options) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.engine.SetConfig(o.Engine)
	s.opts = o.Gesture
	s.features.SetWindow(o.FeatureWindow)
}

// Meta returns the current trial metadata.
func (s *Session) Meta() trial.Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builder.Meta()
}

// Trials returns the number of committed trials.
func (s *Session) Trials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builder.Trials()
}

// Last returns the most recent frame, or nil before the first one.
func (s *Session) Last() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	f := *s.last
	return &f
}

// Config returns the engine timings.
func (s *Session) Config() engine.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Config()
}

func (s *Session) finish(ev gesture.Event, out engine.Output) Frame {
	f := Frame{Event: ev, Output: out}
	if out.Committed {
		p := s.builder.Build(*out.Commit)
		f.Packet = &p
	}
	f.Trials = s.builder.Trials()
	s.last = &f
	return f
}
