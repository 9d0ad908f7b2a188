package gesture

import (
	"math"

	"github.com/ayusman/thumbtrial/internal/detector"
)

// PickTop returns the hand with the highest gesture score. Hands without a
// category or with a missing or non-finite score are skipped. Ties keep the
// first hand in iteration order. Returns nil if no hand qualifies.
func PickTop(hands []detector.Hand) *detector.Hand {
	var best *detector.Hand
	for i := range hands {
		h := &hands[i]
		if h.Category == "" || h.Score == nil {
			continue
		}
		s := *h.Score
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		if best == nil || s > *best.Score {
			best = h
		}
	}
	return best
}

// Classify selects the top hand of a frame and normalizes it.
func Classify(r detector.Result, opts Options) Event {
	top := PickTop(r.Hands)
	if top == nil {
		return NoGesture()
	}
	return Normalize(top.Category, *top.Score, opts)
}
