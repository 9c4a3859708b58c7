package companion

// ──────────────────────────────────────────────
// Re-exports: stable public API
// ──────────────────────────────────────────────
//
// The most used types of the sub-packages, reachable from the root package:
//
//	var snap companion.IdentitySnapshot = bundle.Identity
//
// For classifiers, generators, the scheduler or the stores, import the
// sub-package directly:
//
//	import "github.com/cyberFlowTech/zapry-companion-go/behavior"

import (
	"github.com/cyberFlowTech/zapry-companion-go/behavior"
	"github.com/cyberFlowTech/zapry-companion-go/persona"
	"github.com/cyberFlowTech/zapry-companion-go/policy"
	"github.com/cyberFlowTech/zapry-companion-go/signal"
)

// ─── Signals ───

// Emotion is a user emotion label.
type Emotion = signal.Emotion

// EmotionState is the smoothed user emotion.
type EmotionState = signal.EmotionState

// ─── Policy ───

// Action is a reply category.
type Action = policy.Action

// Decision is the per-turn permission set.
type Decision = policy.Decision

// ─── Behavior ───

// Candidate is a surfaced ambient behavior.
type Candidate = behavior.Candidate

// Trigger names a proactive recall trigger.
type Trigger = behavior.Trigger

// RecallSourceFunc adapts a function to a recall source.
type RecallSourceFunc = behavior.RecallSourceFunc

// ─── Persona ───

// IdentitySnapshot is the per-turn synthesized identity.
type IdentitySnapshot = persona.IdentitySnapshot

// RelationshipState is the long-horizon relationship read by the engine.
type RelationshipState = persona.RelationshipState

// PersonaProfile is the companion's fixed character.
type PersonaProfile = persona.Profile

// LoadPersonaProfile reads a YAML persona profile.
var LoadPersonaProfile = persona.LoadProfile
