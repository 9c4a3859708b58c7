package persona

import (
	"time"

	"github.com/cyberFlowTech/zapry-companion-go/signal"
)

// EnergyLevel is the energy the companion should project this turn.
type EnergyLevel string

const (
	EnergyHigh     EnergyLevel = "high"
	EnergyModerate EnergyLevel = "moderate"
	EnergyLow      EnergyLevel = "low"
	EnergyVariable EnergyLevel = "variable"
)

// Stance is how the companion relates to the user this turn.
type Stance string

const (
	StanceCurious    Stance = "curious"
	StanceSupportive Stance = "supportive"
	StancePlayful    Stance = "playful"
	StanceReflective Stance = "reflective"
	StanceQuiet      Stance = "quiet"
	StanceEngaged    Stance = "engaged"
)

// IdentitySnapshot is the per-turn synthesized identity the generation
// backend conditions on. It is recomputed every turn and never persisted.
type IdentitySnapshot struct {
	TickTime      time.Time   `json:"tick_time"`
	EmotionalCore string      `json:"emotional_core"`
	Tone          string      `json:"tone"`
	Energy        EnergyLevel `json:"energy_level"`
	Stance        Stance      `json:"relational_stance"`
	Confidence    float64     `json:"confidence"`
	Narrative     []string    `json:"narrative,omitempty"`
	Absorbed      Absorbed    `json:"absorbed"`
}

// Absorbed records the sub-states folded into a snapshot.
type Absorbed struct {
	CompanionMood MoodState      `json:"companion_mood"`
	CompanionBase string         `json:"companion_base_mood"`
	UserEmotion   signal.Emotion `json:"user_emotion"`
	UserCertainty float64        `json:"user_emotion_confidence"`
	DepthBracket  DepthBracket   `json:"depth_bracket"`
	TimeBracket   Bracket        `json:"time_bracket"`
	Trait         Trait          `json:"trait"`
	Quality       float64        `json:"interaction_quality"`
	Ambient       string         `json:"ambient,omitempty"`
}

// DepthBracket buckets relationship depth.
type DepthBracket string

const (
	DepthNew      DepthBracket = "new"
	DepthFamiliar DepthBracket = "familiar"
	DepthClose    DepthBracket = "close"
	DepthDeep     DepthBracket = "deep"
)

// BracketForDepth maps closeness (0-100) to its bracket.
func BracketForDepth(closeness int) DepthBracket {
	switch {
	case closeness >= 80:
		return DepthDeep
	case closeness >= 50:
		return DepthClose
	case closeness >= 25:
		return DepthFamiliar
	default:
		return DepthNew
	}
}
