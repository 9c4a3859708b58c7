package persona

import (
	"fmt"
	"strings"
	"time"
)

// Instruction renders the snapshot for the generation backend. A snapshot
// below MinConfidence is too unstable to condition on and renders empty.
func (s IdentitySnapshot) Instruction() string {
	if s.Confidence < MinConfidence {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Current self] It is %s. You are %s.", formatTimeDesc(s.TickTime), s.EmotionalCore)
	fmt.Fprintf(&b, "\n[Tone] %s; energy %s; stance %s.", s.Tone, s.Energy, s.Stance)
	if len(s.Narrative) > 0 {
		fmt.Fprintf(&b, "\n[Context] %s.", strings.Join(s.Narrative, "; "))
	}
	return b.String()
}

func formatTimeDesc(now time.Time) string {
	if now.IsZero() {
		return "some time of day"
	}
	hour := now.Hour()

	var period string
	switch TimeBracket(hour) {
	case BracketEarlyMorning:
		period = "early morning"
	case BracketMorning:
		period = "morning"
	case BracketMidday:
		period = "midday"
	case BracketAfternoon:
		period = "afternoon"
	case BracketEvening:
		period = "evening"
	default:
		period = "late at night"
	}

	return fmt.Sprintf("%s, %d:%02d", period, hour, now.Minute())
}
