// Package engine turns a stream of normalized per-frame gesture events into
// debounced candidates and discrete commits.
//
// Each frame passes through five steps: the frame state is smoothed, the
// candidate is promoted once the frame label has dwelt long enough, the hold
// duration is derived, the post-commit cooldown is tracked and finally a commit
// fires when an accepted candidate has been held for the stable duration.
// Demoting a candidate to neutral for a soft reason (detector dropout, low
// score) needs the longer grace dwell instead of the debounce dwell.
//
// The engine is a pure state transition over caller-supplied monotonic
// timestamps. It holds no locks; callers serialize access.
package engine

import (
	"math"
	"time"

	"github.com/ayusman/thumbtrial/internal/gesture"
)

// DisplayNoHand is shown instead of the candidate label once no named gesture
// has been seen for EmptyGestureTimeout.
const DisplayNoHand = "no hand"

// Config holds the stabilization timings. Values are used as given; callers
// normalize configuration before constructing an Engine.
type Config struct {
	Stable              time.Duration // hold required to commit
	Debounce            time.Duration // dwell required to promote a frame label
	Reset               time.Duration // neutral quiet period after a commit
	ScoreGrace          time.Duration // dwell required to demote to neutral for a soft reason
	EmptyGestureTimeout time.Duration
	Smoothing           float64 // EMA factor in (0, 1]
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		Stable:              900 * time.Millisecond,
		Debounce:            120 * time.Millisecond,
		Reset:               250 * time.Millisecond,
		ScoreGrace:          180 * time.Millisecond,
		EmptyGestureTimeout: 1800 * time.Millisecond,
		Smoothing:           0.35,
	}
}

// Mode gates whether a commit may fire.
type Mode int

const (
	ModeArmed Mode = iota
	ModeAwaitingReset
)

func (m Mode) String() string {
	if m == ModeAwaitingReset {
		return "awaiting-reset"
	}
	return "armed"
}

// FrameState is the smoothed belief about the instantaneous gesture.
type FrameState struct {
	Label  gesture.Label
	Since  time.Duration
	Score  float64
	Name   string
	Reason gesture.Reason
}

// CandidateState is the debounced gesture that drives hold timing and commits.
type CandidateState struct {
	Label    gesture.Label
	Since    time.Duration
	Score    float64
	Name     string
	Accepted bool
}

// Commit describes one finalized gesture.
type Commit struct {
	Label gesture.Label
	Name  string
	Score float64
	Start time.Duration // candidate since
	End   time.Duration // commit timestamp
	Hold  time.Duration
}

// Output is what a renderer observes after each frame.
type Output struct {
	Label        gesture.Label
	DisplayLabel string
	Hold         time.Duration // zero while neutral or awaiting reset
	Score        float64
	Mode         Mode
	Committed    bool
	Commit       *Commit
}

// Engine is the stabilization state machine.
type Engine struct {
	cfg       Config
	frame     FrameState
	candidate CandidateState
	hold      time.Duration
	mode      Mode

	resetSince    time.Duration
	resetTracking bool

	noGestureSince    time.Duration
	noGestureTracking bool

	lastCommit *Commit
}

// New creates an engine whose frame and candidate start neutral at now.
func New(cfg Config, now time.Duration) *Engine {
	return &Engine{
		cfg:       cfg,
		frame:     FrameState{Label: gesture.LabelNeutral, Since: now},
		candidate: CandidateState{Label: gesture.LabelNeutral, Since: now},
		mode:      ModeArmed,
	}
}

// Config returns the engine timings.
func (e *Engine) Config() Config { return e.cfg }

// SetConfig replaces the timings. Frame, candidate and mode are kept; the new
// values apply from the next Process call.
func (e *Engine) SetConfig(cfg Config) { e.cfg = cfg }

// Frame returns the current frame state.
func (e *Engine) Frame() FrameState { return e.frame }

// Candidate returns the current candidate state.
func (e *Engine) Candidate() CandidateState { return e.candidate }

// Mode returns whether the engine is armed or awaiting reset.
func (e *Engine) Mode() Mode { return e.mode }

// Hold returns the current hold duration.
func (e *Engine) Hold() time.Duration { return e.hold }

// LastCommit returns the most recent commit, or nil.
func (e *Engine) LastCommit() *Commit { return e.lastCommit }

// Process folds one normalized event observed at now into the state and
// reports whether it produced a commit.
func (e *Engine) Process(ev gesture.Event, now time.Duration) Output {
	if ev.Name != "" {
		e.noGestureTracking = false
	} else if !e.noGestureTracking {
		e.noGestureTracking = true
		e.noGestureSince = now
	}

	e.smoothFrame(ev, now)
	e.promote(ev, now)

	if e.candidate.Label == gesture.LabelNeutral || e.mode == ModeAwaitingReset {
		e.hold = 0
	} else {
		e.hold = nonNegative(now - e.candidate.Since)
	}

	e.trackReset(now)

	var commit *Commit
	if e.mode == ModeArmed && e.candidate.Accepted &&
		e.candidate.Label != gesture.LabelNeutral && e.hold >= e.cfg.Stable {
		commit = e.commit(now)
	}

	return e.output(now, commit)
}

// Force commits label immediately as if it had been held for the stable
// duration, bypassing the cooldown. Used to simulate trials.
func (e *Engine) Force(label gesture.Label, now time.Duration) Output {
	if !label.Valid() {
		label = gesture.LabelNeutral
	}
	e.mode = ModeArmed
	e.candidate = CandidateState{
		Label:    label,
		Since:    now - e.cfg.Stable,
		Score:    1,
		Name:     string(label),
		Accepted: label != gesture.LabelNeutral,
	}
	e.hold = e.cfg.Stable
	return e.output(now, e.commit(now))
}

func (e *Engine) smoothFrame(ev gesture.Event, now time.Duration) {
	if ev.Label != e.frame.Label {
		e.frame = FrameState{Label: ev.Label, Since: now, Score: ev.Score}
	} else {
		e.frame.Score = mix(e.frame.Score, ev.Score, e.cfg.Smoothing)
	}
	e.frame.Name = ev.Name
	e.frame.Reason = ev.Reason
}

func (e *Engine) promote(ev gesture.Event, now time.Duration) {
	if e.frame.Label == e.candidate.Label {
		e.candidate.Score = mix(e.candidate.Score, ev.Score, e.cfg.Smoothing)
		e.candidate.Name = ev.Name
		e.candidate.Accepted = ev.Accepted
		return
	}

	threshold := e.cfg.Debounce
	if e.frame.Label == gesture.LabelNeutral && e.candidate.Label != gesture.LabelNeutral && ev.Reason.Soft() {
		threshold = e.cfg.ScoreGrace
	}
	if now-e.frame.Since >= threshold {
		e.candidate = CandidateState{
			Label:    e.frame.Label,
			Since:    e.frame.Since,
			Score:    ev.Score,
			Name:     ev.Name,
			Accepted: ev.Accepted,
		}
	}
}

func (e *Engine) trackReset(now time.Duration) {
	if e.mode != ModeAwaitingReset {
		return
	}
	if e.candidate.Label != gesture.LabelNeutral {
		e.resetTracking = false
		return
	}
	if !e.resetTracking {
		e.resetTracking = true
		e.resetSince = now
	}
	if now-e.resetSince >= e.cfg.Reset {
		e.mode = ModeArmed
		e.resetTracking = false
	}
}

func (e *Engine) commit(now time.Duration) *Commit {
	c := &Commit{
		Label: e.candidate.Label,
		Name:  e.candidate.Name,
		Score: e.candidate.Score,
		Start: e.candidate.Since,
		End:   now,
		Hold:  e.hold,
	}
	e.mode = ModeAwaitingReset
	e.resetTracking = false
	e.hold = 0
	e.lastCommit = c
	return c
}

func (e *Engine) output(now time.Duration, commit *Commit) Output {
	display := string(e.candidate.Label)
	if e.noGestureTracking && now-e.noGestureSince > e.cfg.EmptyGestureTimeout {
		display = DisplayNoHand
	}

	hold := e.hold
	if e.mode == ModeAwaitingReset {
		hold = 0
	}

	return Output{
		Label:        e.candidate.Label,
		DisplayLabel: display,
		Hold:         hold,
		Score:        e.candidate.Score,
		Mode:         e.mode,
		Committed:    commit != nil,
		Commit:       commit,
	}
}

// mix blends next into current with factor alpha. A non-finite current value
// is replaced outright.
func mix(current, next, alpha float64) float64 {
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return next
	}
	return current + alpha*(next-current)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
