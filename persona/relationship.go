package persona

import (
	"math"
	"time"
)

// Dimension is a long-horizon relationship dimension.
type Dimension string

const (
	DimensionTrust      Dimension = "trust"
	DimensionConfidence Dimension = "confidence"
	DimensionOpenness   Dimension = "openness"
	DimensionCloseness  Dimension = "closeness"
)

const maxHistory = 20

// RelationshipState is the long-horizon relationship between companion and
// user. It is owned by the profile store; the synthesizer only reads it.
type RelationshipState struct {
	// Closeness is the relationship depth, 0-100.
	Closeness  int     `json:"closeness"`
	Trust      float64 `json:"trust"`      // 0-1
	Confidence float64 `json:"confidence"` // 0-1
	Openness   float64 `json:"openness"`   // 0-1

	InteractionCount    int           `json:"interaction_count"`
	LastInteractionTime time.Time     `json:"last_interaction_time"`
	History             []ChangeEvent `json:"history"` // sliding window, max 20
}

// ChangeEvent is one discrete change to a dimension. Type names what
// happened (shared_personal, laughed, dismissed, ...). Magnitude is in
// points for closeness and a fraction otherwise.
type ChangeEvent struct {
	Dimension Dimension `json:"dimension"`
	Type      string    `json:"type"`
	Magnitude float64   `json:"magnitude"`
	Turn      int       `json:"turn"`
	At        time.Time `json:"at"`
}

// DefaultRelationshipState is the state before a first interaction.
func DefaultRelationshipState() *RelationshipState {
	return &RelationshipState{
		Closeness:  10,
		Trust:      0.5,
		Confidence: 0.5,
		Openness:   0.5,
		History:    []ChangeEvent{},
	}
}

// Apply applies ev, clamping the dimension to its range and keeping the
// last 20 events.
func (r *RelationshipState) Apply(ev ChangeEvent) {
	switch ev.Dimension {
	case DimensionTrust:
		r.Trust = clampUnit(r.Trust + ev.Magnitude)
	case DimensionConfidence:
		r.Confidence = clampUnit(r.Confidence + ev.Magnitude)
	case DimensionOpenness:
		r.Openness = clampUnit(r.Openness + ev.Magnitude)
	case DimensionCloseness:
		c := r.Closeness + int(math.Round(ev.Magnitude))
		if c < 0 {
			c = 0
		}
		if c > 100 {
			c = 100
		}
		r.Closeness = c
	default:
		return
	}
	if !ev.At.IsZero() && ev.At.After(r.LastInteractionTime) {
		r.LastInteractionTime = ev.At
	}
	r.History = append(r.History, ev)
	if len(r.History) > maxHistory {
		r.History = append([]ChangeEvent(nil), r.History[len(r.History)-maxHistory:]...)
	}
}

// Normalize clamps every dimension into range. Used on values read from
// outside the core.
func (r RelationshipState) Normalize() RelationshipState {
	r.Trust = clampUnit(r.Trust)
	r.Confidence = clampUnit(r.Confidence)
	r.Openness = clampUnit(r.Openness)
	if r.Closeness < 0 {
		r.Closeness = 0
	}
	if r.Closeness > 100 {
		r.Closeness = 100
	}
	return r
}

func clampUnit(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
