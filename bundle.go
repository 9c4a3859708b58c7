package companion

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cyberFlowTech/zapry-companion-go/behavior"
	"github.com/cyberFlowTech/zapry-companion-go/persona"
	"github.com/cyberFlowTech/zapry-companion-go/policy"
	"github.com/cyberFlowTech/zapry-companion-go/signal"
)

// ──────────────────────────────────────────────
// Bundle: the per-turn output handed to the generation backend
// ──────────────────────────────────────────────

// Bundle collects everything the engine decided for one turn.
type Bundle struct {
	TurnID string    `json:"turn_id"`
	At     time.Time `json:"at"`

	Reading    signal.Reading      `json:"reading"`
	Emotion    signal.EmotionState `json:"emotion"`
	Engagement signal.Engagement   `json:"engagement"`
	Verbosity  signal.Verbosity    `json:"verbosity"`

	Decision policy.Decision `json:"decision"`
	// Taken is the action recorded in the policy history for this turn.
	Taken policy.Action `json:"taken"`

	// Ambient is the surfaced ambient behavior, nil when none fired.
	Ambient  *behavior.Candidate      `json:"ambient,omitempty"`
	Identity persona.IdentitySnapshot `json:"identity"`
	Session  SessionState             `json:"session"`

	// Instruction is the rendered identity, empty when its confidence is
	// too low to condition on.
	Instruction string `json:"instruction"`

	// Warnings records decisions for debugging; never sent to the backend.
	Warnings []string `json:"warnings,omitempty"`
}

func newBundle(at time.Time) *Bundle {
	return &Bundle{TurnID: uuid.NewString(), At: at}
}

// Text assembles the sections for the generation backend: identity, reply
// guidance and ambient content, separated by blank lines.
func (b *Bundle) Text() string {
	var parts []string
	if b.Instruction != "" {
		parts = append(parts, b.Instruction)
	}
	if g := b.Guidance(); g != "" {
		parts = append(parts, g)
	}
	if b.Ambient != nil && b.Ambient.Text != "" {
		parts = append(parts, fmt.Sprintf("[Ambient] Work this in naturally, in your own words: %s", b.Ambient.Text))
	}
	return strings.Join(parts, "\n\n")
}

// Guidance renders the policy decision.
func (b *Bundle) Guidance() string {
	if len(b.Decision.Allowed) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Reply] Lean toward %s.", article(b.Decision.Preferred))
	fmt.Fprintf(&sb, " Allowed: %s.", joinActions(b.Decision.Allowed))
	if !b.Decision.Allows(policy.Question) {
		sb.WriteString(" Do not ask a question.")
	}
	return sb.String()
}

// AddWarning records a debug message.
func (b *Bundle) AddWarning(format string, args ...interface{}) {
	b.Warnings = append(b.Warnings, fmt.Sprintf(format, args...))
}

func joinActions(actions []policy.Action) string {
	s := make([]string, len(actions))
	for i, a := range actions {
		s[i] = string(a)
	}
	return strings.Join(s, ", ")
}

func article(a policy.Action) string {
	switch a {
	case policy.Acknowledgment, policy.Observation:
		return "an " + string(a)
	default:
		return "a " + string(a)
	}
}
