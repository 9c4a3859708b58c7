package persona

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cyberFlowTech/zapry-companion-go/signal"
)

func afternoon() time.Time { return time.Date(2025, 6, 15, 15, 0, 0, 0, time.UTC) }

func baseInput(now time.Time) SynthesisInput {
	p := DefaultProfile()
	return SynthesisInput{
		Now:          now,
		Profile:      p,
		Companion:    ResolveState(p, now),
		User:         signal.EmotionState{Label: signal.Neutral, Confidence: 0.3},
		Relationship: *DefaultRelationshipState(),
	}
}

// ══════════════════════════════════════════════
// Synthesize tests
// ══════════════════════════════════════════════

func TestSynthesize_DeeplyConnected(t *testing.T) {
	in := baseInput(afternoon())
	in.Relationship.Closeness = 85
	in.Relationship.Confidence = 0.85
	in.Relationship.Trust = 0.85

	s := Synthesize(in)
	if s.Confidence < 0.9 {
		t.Fatalf("expected confidence >= 0.9, got %.2f", s.Confidence)
	}
	found := false
	for _, n := range s.Narrative {
		if strings.Contains(n, "deeply connected") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a deeply connected clause, got %v", s.Narrative)
	}
	require.Equal(t, DepthDeep, s.Absorbed.DepthBracket)
	require.NotEmpty(t, s.Instruction())
}

func TestSynthesize_ConfidenceContributions(t *testing.T) {
	cases := []struct {
		closeness  int
		confidence float64
		trust      float64
		want       float64
	}{
		{10, 0.5, 0.5, 0.5},
		{50, 0.5, 0.5, 0.6},
		{70, 0.5, 0.5, 0.7},
		{10, 0.8, 0.5, 0.65},
		{10, 0.3, 0.5, 0.3},
		{0, 0.0, 0.0, 0.3},
		{100, 1, 1, 0.9},
	}
	for _, c := range cases {
		in := baseInput(afternoon())
		in.Relationship.Closeness = c.closeness
		in.Relationship.Confidence = c.confidence
		in.Relationship.Trust = c.trust
		s := Synthesize(in)
		if math.Abs(s.Confidence-c.want) > 1e-9 {
			t.Fatalf("%+v: expected %.2f, got %.2f", c, c.want, s.Confidence)
		}
	}
}

func TestSynthesize_LowConfidenceEmptyInstruction(t *testing.T) {
	in := baseInput(afternoon())
	in.Relationship.Confidence = 0.2
	s := Synthesize(in)
	require.Less(t, s.Confidence, MinConfidence)
	require.Equal(t, "", s.Instruction())
}

func TestSynthesize_Deterministic(t *testing.T) {
	in := baseInput(time.Date(2025, 6, 15, 23, 10, 0, 0, time.UTC))
	in.User = signal.EmotionState{Label: signal.Stressed, Confidence: 0.7}
	in.Ambient = "comfort"
	a, b := Synthesize(in), Synthesize(in)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical snapshots:\n%+v\n%+v", a, b)
	}
}

func TestSynthesize_MirrorsLowUser(t *testing.T) {
	in := baseInput(afternoon())
	in.Companion = CurrentState{BaseMood: "calm", Mood: MoodState{Label: "relaxed", Value: 60}, Energy: 70}
	in.User = signal.EmotionState{Label: signal.Down, Confidence: 0.7}

	s := Synthesize(in)
	require.Equal(t, StanceSupportive, s.Stance)
	require.Equal(t, EnergyModerate, s.Energy)
	require.Contains(t, s.EmotionalCore, "down")
	require.Contains(t, s.Tone, "gentle")
}

func TestSynthesize_ConflictingNudgesAreVariable(t *testing.T) {
	in := baseInput(time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC))
	in.Companion = CurrentState{BaseMood: "happy", Mood: MoodState{Label: "in good spirits", Value: 75}, Energy: 80}
	in.User = signal.EmotionState{Label: signal.Upbeat, Confidence: 0.8}

	s := Synthesize(in)
	require.Equal(t, EnergyVariable, s.Energy)
	require.Equal(t, StancePlayful, s.Stance)
}

func TestSynthesize_UncertainUserIsNotMirrored(t *testing.T) {
	in := baseInput(afternoon())
	in.User = signal.EmotionState{Label: signal.Frustrated, Confidence: 0.2}
	s := Synthesize(in)
	require.NotContains(t, s.EmotionalCore, "frustrated")
	for _, n := range s.Narrative {
		require.NotContains(t, n, "frustrated")
	}
}

func TestSynthesize_AmbientShapesStance(t *testing.T) {
	in := baseInput(afternoon())
	in.Profile.DominantTrait = TraitGrounded
	in.Ambient = "casual_question"
	s := Synthesize(in)
	require.Equal(t, StanceCurious, s.Stance)
	require.Equal(t, "casual_question", s.Absorbed.Ambient)

	// A low user outranks the ambient lean.
	in.User = signal.EmotionState{Label: signal.Down, Confidence: 0.9}
	s = Synthesize(in)
	require.Equal(t, StanceSupportive, s.Stance)
}

func TestSynthesize_DegradesOnBadInput(t *testing.T) {
	in := baseInput(afternoon())
	in.User.Label = "confused"
	in.Profile.DominantTrait = "mysterious"
	in.Relationship.Trust = math.NaN()
	in.Relationship.Confidence = 7
	in.Relationship.Closeness = -40

	s := Synthesize(in)
	require.Equal(t, signal.Neutral, s.Absorbed.UserEmotion)
	require.Equal(t, TraitWarm, s.Absorbed.Trait)
	require.GreaterOrEqual(t, s.Confidence, 0.0)
	require.LessOrEqual(t, s.Confidence, 1.0)
}

func TestInstruction_Format(t *testing.T) {
	in := baseInput(time.Date(2025, 6, 15, 9, 5, 0, 0, time.UTC))
	text := Synthesize(in).Instruction()
	require.True(t, strings.HasPrefix(text, "[Current self] It is morning, 9:05."), text)
	require.Contains(t, text, "[Tone]")
	require.Contains(t, text, "[Context]")
}

// ══════════════════════════════════════════════
// State + relationship tests
// ══════════════════════════════════════════════

func TestResolveState_StableWithinDay(t *testing.T) {
	p := DefaultProfile()
	morning := ResolveState(p, time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC))
	evening := ResolveState(p, time.Date(2025, 6, 15, 20, 0, 0, 0, time.UTC))
	require.Equal(t, morning.BaseMood, evening.BaseMood)
	require.Equal(t, 25, ResolveState(p, time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC)).Energy)
	require.Equal(t, BracketEvening, evening.Bracket)
}

func TestCalculateMood(t *testing.T) {
	m := CalculateMood("happy", 80)
	if math.Abs(m.Value-77) > 1e-9 || m.Label != "in good spirits" {
		t.Fatalf("unexpected mood %+v", m)
	}
	if m := CalculateMood("tired", 20); m.Label != "a bit worn out but settled" {
		t.Fatalf("unexpected low-energy mood %+v", m)
	}
}

func TestRelationship_ApplyClampsAndBoundsHistory(t *testing.T) {
	r := DefaultRelationshipState()
	for i := 0; i < 30; i++ {
		r.Apply(ChangeEvent{Dimension: DimensionTrust, Type: "shared_personal", Magnitude: 0.1, Turn: i})
	}
	require.Equal(t, 1.0, r.Trust)
	require.Len(t, r.History, maxHistory)
	require.Equal(t, 10, r.History[0].Turn)

	r.Apply(ChangeEvent{Dimension: DimensionOpenness, Magnitude: -3})
	require.Equal(t, 0.0, r.Openness)

	r.Apply(ChangeEvent{Dimension: DimensionCloseness, Magnitude: 500})
	require.Equal(t, 100, r.Closeness)

	before := len(r.History)
	r.Apply(ChangeEvent{Dimension: "charisma", Magnitude: 1})
	require.Len(t, r.History, before)
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("name: mori\ndominant_trait: playful\n"), 0o644))
	p, err := LoadProfile(good)
	require.NoError(t, err)
	require.Equal(t, "mori", p.Name)
	require.Equal(t, TraitPlayful, p.DominantTrait)
	require.Equal(t, "night_low", p.EnergyCurve)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("dominant_trait: brooding\n"), 0o644))
	_, err = LoadProfile(bad)
	require.Error(t, err)
}
