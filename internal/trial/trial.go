// Package trial assembles the record logged for each committed gesture.
package trial

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/thumbtrial/internal/engine"
	"github.com/ayusman/thumbtrial/internal/features"
	"github.com/ayusman/thumbtrial/internal/gesture"
)

// Packet is the immutable record of one commit. Unset identifiers are null.
type Packet struct {
	ID            string        `json:"id"`
	ParticipantID *string       `json:"participant_id"`
	SessionID     *string       `json:"session_id"`
	Trial         int           `json:"trial"`
	ItemID        *string       `json:"item_id"`
	Gesture       gesture.Label `json:"gesture"`
	TStart        float64       `json:"t_start"` // milliseconds on the session clock
	TEnd          float64       `json:"t_end"`
	RTMs          int64         `json:"rt_ms"`
	HoldMs        int64         `json:"hold_ms"`
	Amplitude     float64       `json:"amplitude"`
	Jitter        float64       `json:"jitter"`
	Stability     float64       `json:"stability"`
	Repetitions   int           `json:"repetitions"`
	ImplicitConf  *float64      `json:"implicit_conf"`
	ProbeShown    bool          `json:"probe_shown"`
	ExplicitConf  *float64      `json:"explicit_conf"`
}

// Meta is the externally supplied trial metadata. Identifiers persist across
// trials; probe and confidence fields apply to the next trial only.
type Meta struct {
	ParticipantID string
	SessionID     string
	ItemID        string

	ProbeShown   bool
	ProbeShownAt time.Duration
	ImplicitConf *float64
	ExplicitConf *float64
}

// MetaUpdate is a partial update to Meta. Nil fields are left unchanged.
type MetaUpdate struct {
	ParticipantID *string  `json:"participant_id,omitempty"`
	SessionID     *string  `json:"session_id,omitempty"`
	ItemID        *string  `json:"item_id,omitempty"`
	ProbeShown    *bool    `json:"probe_shown,omitempty"`
	ImplicitConf  *float64 `json:"implicit_conf,omitempty"`
	ExplicitConf  *float64 `json:"explicit_conf,omitempty"`
}

// Summarizer provides the motion summary for a window.
type Summarizer interface {
	Summarize(windowStart time.Duration) features.Summary
	Window() time.Duration
}

// Builder turns commits into packets and owns the session's trial counter.
type Builder struct {
	meta     Meta
	trial    int
	features Summarizer
}

// NewBuilder creates a builder starting at trial zero.
func NewBuilder(meta Meta, s Summarizer) *Builder {
	return &Builder{meta: meta, features: s}
}

// Meta returns the current metadata.
func (b *Builder) Meta() Meta {
	return b.meta
}

// Trials returns the number of packets built so far.
func (b *Builder) Trials() int {
	return b.trial
}

// Update applies a partial metadata update. Setting ProbeShown stamps the
// probe time with now, which becomes the reaction time origin.
func (b *Builder) Update(u MetaUpdate, now time.Duration) {
	if u.ParticipantID != nil {
		b.meta.ParticipantID = *u.ParticipantID
	}
	if u.SessionID != nil {
		b.meta.SessionID = *u.SessionID
	}
	if u.ItemID != nil {
		b.meta.ItemID = *u.ItemID
	}
	if u.ImplicitConf != nil {
		b.meta.ImplicitConf = finite(u.ImplicitConf)
	}
	if u.ExplicitConf != nil {
		b.meta.ExplicitConf = finite(u.ExplicitConf)
	}
	if u.ProbeShown != nil {
		b.meta.ProbeShown = *u.ProbeShown
		if *u.ProbeShown {
			b.meta.ProbeShownAt = now
		}
	}
}

// Build assembles the packet for a commit and clears the per-trial metadata.
func (b *Builder) Build(c engine.Commit) Packet {
	var summary features.Summary
	if b.features != nil {
		summary = b.features.Summarize(c.End - b.features.Window())
	}

	origin := c.Start
	if b.meta.ProbeShown {
		origin = b.meta.ProbeShownAt
	}

	b.trial++
	p := Packet{
		ID:            uuid.NewString(),
		ParticipantID: optional(b.meta.ParticipantID),
		SessionID:     optional(b.meta.SessionID),
		Trial:         b.trial,
		ItemID:        optional(b.meta.ItemID),
		Gesture:       c.Label,
		TStart:        millis(c.Start),
		TEnd:          millis(c.End),
		RTMs:          roundMillis(c.End - origin),
		HoldMs:        roundMillis(c.Hold),
		Amplitude:     summary.Amplitude,
		Jitter:        summary.Jitter,
		Stability:     summary.Stability,
		Repetitions:   summary.Repetitions,
		ImplicitConf:  b.meta.ImplicitConf,
		ProbeShown:    b.meta.ProbeShown,
		ExplicitConf:  b.meta.ExplicitConf,
	}

	b.meta.ProbeShown = false
	b.meta.ProbeShownAt = 0
	b.meta.ImplicitConf = nil
	b.meta.ExplicitConf = nil

	return p
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// roundMillis rounds to whole milliseconds and clamps at zero.
func roundMillis(d time.Duration) int64 {
	v := math.Round(millis(d))
	if v < 0 {
		return 0
	}
	return int64(v)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func finite(v *float64) *float64 {
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	c := *v
	return &c
}
