// Package gesture maps recognizer categories to semantic trial labels.
package gesture

import "math"

// Label is the semantic meaning of a gesture.
type Label string

const (
	LabelUp      Label = "up"
	LabelDown    Label = "down"
	LabelNeutral Label = "neutral"
)

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	return l == LabelUp || l == LabelDown || l == LabelNeutral
}

// Reason explains why an event was accepted or rejected.
type Reason string

const (
	ReasonAccepted       Reason = "accepted"
	ReasonBelowThreshold Reason = "below-threshold"
	ReasonMissingName    Reason = "missing-name"
	ReasonDenyList       Reason = "deny-list"
	ReasonNotMapped      Reason = "not-mapped"
	ReasonNoGesture      Reason = "no-gesture"
)

// Soft reports whether the reason is a soft disqualification, i.e. one that
// usually means the recognizer dropped out rather than the subject relaxing.
// not-mapped is deliberately absent.
func (r Reason) Soft() bool {
	switch r {
	case ReasonBelowThreshold, ReasonMissingName, ReasonDenyList, ReasonNoGesture:
		return true
	}
	return false
}

// Default thresholds.
const (
	DefaultMinScore         = 0.6
	DefaultCategoryMinScore = 0.65
)

var nameToLabel = map[string]Label{
	"Thumb_Up":   LabelUp,
	"Thumb_Down": LabelDown,
}

// builtinDeny lists recognizer categories that never count as a trial gesture.
var builtinDeny = []string{"None", "Closed_Fist", "Open_Palm", "Victory", "Thumb_Up_Left", "Thumb_Down_Left"}

// BuiltinDenyList returns the category names that are always rejected.
func BuiltinDenyList() []string {
	return append([]string(nil), builtinDeny...)
}

// DefaultMinScoreByCategory returns the per-category thresholds applied when
// the configuration does not override them.
func DefaultMinScoreByCategory() map[string]float64 {
	return map[string]float64{
		"Thumb_Up":   DefaultCategoryMinScore,
		"Thumb_Down": DefaultCategoryMinScore,
	}
}

// MapCategory returns the label for a recognizer category, neutral if unmapped.
func MapCategory(name string) Label {
	if l, ok := nameToLabel[name]; ok {
		return l
	}
	return LabelNeutral
}

// Options control acceptance.
type Options struct {
	MinScore           float64
	MinScoreByCategory map[string]float64
	DenyList           []string
}

// minScoreFor returns the per-category override if present, else the global minimum.
func (o Options) minScoreFor(name string) float64 {
	if v, ok := o.MinScoreByCategory[name]; ok {
		return v
	}
	return o.MinScore
}

func (o Options) denied(name string) bool {
	for _, d := range builtinDeny {
		if d == name {
			return true
		}
	}
	for _, d := range o.DenyList {
		if d == name {
			return true
		}
	}
	return false
}

// Event is the per-frame normalized classification.
type Event struct {
	Label    Label   `json:"label"`
	Name     string  `json:"name,omitempty"`
	Score    float64 `json:"score"`
	Accepted bool    `json:"accepted"`
	Reason   Reason  `json:"reason"`

	// MinScore is the threshold that rejected the event; set only for below-threshold.
	MinScore float64 `json:"min_score,omitempty"`
}

// Normalize classifies a raw (name, score) pair. The first matching rule wins:
// missing name, deny list, below threshold, unmapped, accepted.
// Non-finite scores are treated as 0.
func Normalize(name string, score float64, opts Options) Event {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		score = 0
	}

	if name == "" {
		return Event{Label: LabelNeutral, Score: score, Reason: ReasonMissingName}
	}
	if opts.denied(name) {
		return Event{Label: LabelNeutral, Name: name, Score: score, Reason: ReasonDenyList}
	}

	if threshold := opts.minScoreFor(name); score < threshold {
		return Event{Label: LabelNeutral, Name: name, Score: score, Reason: ReasonBelowThreshold, MinScore: threshold}
	}

	label := MapCategory(name)
	if label == LabelNeutral {
		return Event{Label: LabelNeutral, Name: name, Score: score, Reason: ReasonNotMapped}
	}
	return Event{Label: label, Name: name, Score: score, Accepted: true, Reason: ReasonAccepted}
}

// NoGesture is the event for a frame with no scored hand.
func NoGesture() Event {
	return Event{Label: LabelNeutral, Reason: ReasonNoGesture}
}
