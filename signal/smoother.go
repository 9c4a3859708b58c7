package signal

import "time"

// ──────────────────────────────────────────────
// State smoother: exponentially weighted emotion estimate
// ──────────────────────────────────────────────

const (
	// DefaultAlpha is the weight a same-label reading gets against the running estimate.
	DefaultAlpha = 0.3
	// SwitchConfidence is the confidence a different label needs to take over outright.
	SwitchConfidence = 0.6
	// holdDecay shrinks the current confidence when a weak different label is ignored.
	holdDecay    = 0.95
	maxStateTags = 8
)

// EmotionState is the smoothed emotion estimate kept for the session lifetime.
type EmotionState struct {
	Label      Emotion   `json:"label"`
	Confidence float64   `json:"confidence"`
	LastUpdate time.Time `json:"last_update"`
	Tags       []Tag     `json:"tags,omitempty"` // tags of the most recent readings, newest last
}

// Smooth folds a new reading into the current estimate.
//
//   - same label: confidence := current*(1-alpha) + new*alpha
//   - different label, new confidence < 0.6: keep the label, confidence *= 0.95
//   - different label, new confidence >= 0.6: switch outright
//
// A nil current adopts the reading as-is. alpha outside (0,1] uses DefaultAlpha.
func Smooth(current *EmotionState, next Reading, alpha float64, now time.Time) EmotionState {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	if !next.Label.Valid() {
		next.Label = Neutral
	}
	next.Confidence = clamp01(next.Confidence)

	if current == nil || !current.Label.Valid() {
		return EmotionState{
			Label:      next.Label,
			Confidence: next.Confidence,
			LastUpdate: now,
			Tags:       appendTags(nil, next.Tags),
		}
	}

	out := EmotionState{
		Label:      current.Label,
		LastUpdate: now,
		Tags:       appendTags(current.Tags, next.Tags),
	}
	switch {
	case next.Label == current.Label:
		out.Confidence = current.Confidence*(1-alpha) + next.Confidence*alpha
	case next.Confidence < SwitchConfidence:
		out.Confidence = current.Confidence * holdDecay
	default:
		out.Label = next.Label
		out.Confidence = next.Confidence
	}
	out.Confidence = clamp01(out.Confidence)
	return out
}

func appendTags(prev, add []Tag) []Tag {
	out := make([]Tag, 0, len(prev)+len(add))
	out = append(out, prev...)
	out = append(out, add...)
	if len(out) > maxStateTags {
		out = out[len(out)-maxStateTags:]
	}
	return out
}

// Smoother holds the running estimate for one session.
type Smoother struct {
	Alpha float64
	state *EmotionState
}

// NewSmoother creates a smoother. alpha <= 0 uses DefaultAlpha.
func NewSmoother(alpha float64) *Smoother {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Smoother{Alpha: alpha}
}

// Update folds a reading into the estimate and returns the new state.
func (s *Smoother) Update(next Reading, now time.Time) EmotionState {
	st := Smooth(s.state, next, s.Alpha, now)
	s.state = &st
	return st
}

// State returns the current estimate and whether one exists yet.
func (s *Smoother) State() (EmotionState, bool) {
	if s.state == nil {
		return EmotionState{Label: Neutral}, false
	}
	return *s.state, true
}

// Reset drops the estimate (new session).
func (s *Smoother) Reset() {
	s.state = nil
}
