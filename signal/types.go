// Package signal turns a raw utterance and a few session counters into the
// per-turn signals the rest of the pipeline reasons about: a perceived
// emotion, an engagement class and a verbosity class.
//
// Everything in this package is deterministic and never fails: empty or
// malformed input degrades to neutral, low-confidence readings.
package signal

import "time"

// Emotion is the closed set of emotional labels attributed to the user.
type Emotion string

const (
	Neutral    Emotion = "neutral"
	Tired      Emotion = "tired"
	Stressed   Emotion = "stressed"
	Down       Emotion = "down"
	Frustrated Emotion = "frustrated"
	Calm       Emotion = "calm"
	Focused    Emotion = "focused"
	Upbeat     Emotion = "upbeat"
)

// Emotions lists every label in scoring order. Ties resolve to the earlier label.
var Emotions = []Emotion{Neutral, Tired, Stressed, Down, Frustrated, Calm, Focused, Upbeat}

// Valid reports whether e is one of the known labels.
func (e Emotion) Valid() bool {
	for _, x := range Emotions {
		if x == e {
			return true
		}
	}
	return false
}

// IsLow reports whether the label reads as low energy or low mood.
func (e Emotion) IsLow() bool {
	return e == Tired || e == Down
}

// IsTense reports whether the label reads as pressure or irritation.
func (e Emotion) IsTense() bool {
	return e == Stressed || e == Frustrated
}

// Valence maps a label onto a rough -1..1 pleasantness axis.
func (e Emotion) Valence() float64 {
	switch e {
	case Upbeat:
		return 0.8
	case Calm:
		return 0.4
	case Focused:
		return 0.2
	case Tired:
		return -0.3
	case Stressed:
		return -0.5
	case Frustrated:
		return -0.6
	case Down:
		return -0.7
	default:
		return 0
	}
}

// ReplyKind describes how the user's turn arrived.
type ReplyKind string

const (
	ReplyText    ReplyKind = "text"
	ReplyVoice   ReplyKind = "voice"
	ReplySilence ReplyKind = "silence" // no utterance; the turn is a silence event
)

// Engagement is how much the user invites continued interaction.
type Engagement string

const (
	EngagementOpen    Engagement = "open"
	EngagementNeutral Engagement = "neutral"
	EngagementClosed  Engagement = "closed"
)

// Verbosity classifies the length of the latest user message.
type Verbosity string

const (
	VerbosityShort  Verbosity = "short"
	VerbosityMedium Verbosity = "medium"
	VerbosityLong   Verbosity = "long"
)

// Tag names a lexical or contextual cue found while classifying.
type Tag string

const (
	TagNegation        Tag = "negation"
	TagNegatedPositive Tag = "negated_positive"
	TagExclamation     Tag = "exclamation"
	TagHedging         Tag = "hedging"
	TagProfanity       Tag = "profanity"
	TagWorkload        Tag = "workload"
	TagFatigue         Tag = "fatigue"
	TagSadness         Tag = "sadness"
	TagPositive        Tag = "positive"
	TagCalm            Tag = "calm"
	TagFocus           Tag = "focus"
	TagFrustration     Tag = "frustration"
	TagStress          Tag = "stress"
	TagLateNight       Tag = "late_night"
	TagEarlyMorning    Tag = "early_morning"
	TagClosedStreak    Tag = "closed_streak"
	TagShortStreak     Tag = "short_streak"
	TagTerse           Tag = "terse"
)

// Context carries the session counters the emotion classifier looks at.
type Context struct {
	// Now is the user's local time. Zero disables time-of-day cues.
	Now time.Time
	// ClosedReplies is the number of consecutive prior replies classified closed.
	ClosedReplies int
	// ShortReplies is the number of consecutive prior replies classified short.
	ShortReplies int
}

// Reading is the output of ClassifyEmotion.
type Reading struct {
	Label      Emotion             `json:"label"`
	Confidence float64             `json:"confidence"`
	Tags       []Tag               `json:"tags,omitempty"`
	Scores     map[Emotion]float64 `json:"scores,omitempty"`
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
