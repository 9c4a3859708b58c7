package policy

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cyberFlowTech/zapry-companion-go/signal"
)

// ══════════════════════════════════════════════
// State tests
// ══════════════════════════════════════════════

func TestState_RingBuffer(t *testing.T) {
	s := NewState()
	require.Empty(t, s.Recent())
	require.Equal(t, Action(""), s.Last())

	for _, a := range []Action{Statement, Question, Observation, Acknowledgment, Statement, Observation, Question} {
		s = s.Advance(a, "some words here to say", "")
	}
	require.Equal(t, []Action{Statement, Observation, Question}, s.Recent())
	require.Equal(t, Question, s.Last())
}

func TestState_CooldownAfterQuestion(t *testing.T) {
	s := NewState().Advance(Question, "tell me about your day please", "weekend")
	require.Equal(t, QuestionCooldown, s.QuestionCooldown)
	require.True(t, s.AskedRecently("weekend"))

	for i := QuestionCooldown - 1; i >= 0; i-- {
		s = s.Advance(Statement, "fine thanks for asking me", "")
		require.Equal(t, i, s.QuestionCooldown)
	}
	s = s.Advance(Statement, "and another one", "")
	require.Equal(t, 0, s.QuestionCooldown)
}

func TestState_TopicsBounded(t *testing.T) {
	s := NewState()
	for _, topic := range []string{"a", "b", "c", "d", "e", "f", "a"} {
		s = s.Advance(Question, "", topic)
	}
	require.Len(t, s.RecentTopics, maxTopics)
	require.Equal(t, []string{"c", "d", "e", "f", "a"}, s.RecentTopics)
}

func TestState_SilenceKeepsVerbosity(t *testing.T) {
	s := NewState().Advance(Statement, "k", "")
	require.Equal(t, signal.VerbosityShort, s.LastVerbosity)
	s = s.Advance(Observation, "", "")
	require.Equal(t, signal.VerbosityShort, s.LastVerbosity)
}

// ══════════════════════════════════════════════
// Decide tests
// ══════════════════════════════════════════════

func TestDecide_ClosedForbidsQuestion(t *testing.T) {
	d := Decide(NewState(), Input{Engagement: signal.EngagementClosed, Verbosity: signal.VerbosityShort, Emotion: signal.Neutral})
	require.False(t, d.Allows(Question))
	require.Equal(t, Statement, d.Preferred)
	require.ElementsMatch(t, []Action{Statement, Acknowledgment, Observation}, d.Allowed)
}

func TestDecide_ShortVerbosityForbidsQuestion(t *testing.T) {
	d := Decide(NewState(), Input{Engagement: signal.EngagementNeutral, Verbosity: signal.VerbosityShort, Emotion: signal.Upbeat})
	if d.Allows(Question) {
		t.Fatalf("short verbosity must forbid questions even when upbeat: %+v", d)
	}
}

func TestDecide_AfterQuestion(t *testing.T) {
	s := NewState().Advance(Question, "what a lovely long afternoon it has been", "afternoon")
	d := Decide(s, Input{Engagement: signal.EngagementOpen, Verbosity: signal.VerbosityLong, Emotion: signal.Upbeat})
	require.False(t, d.Allows(Question))
	require.Equal(t, QuestionCooldown, s.QuestionCooldown)
	require.Contains(t, d.Forbidden, Question)
}

func TestDecide_OpenEngagementPrefersQuestion(t *testing.T) {
	d := Decide(NewState(), Input{Engagement: signal.EngagementOpen, Verbosity: signal.VerbosityLong, Emotion: signal.Neutral})
	require.True(t, d.Allows(Question))
	require.Equal(t, Question, d.Preferred)
}

func TestDecide_LongSilence(t *testing.T) {
	d := Decide(NewState(), Input{Silent: true, Silence: 45 * time.Second, Engagement: signal.EngagementNeutral})
	require.Equal(t, []Action{Observation, Statement}, d.Allowed)
	require.Equal(t, Observation, d.Preferred)
	require.False(t, d.Allows(Question))
}

func TestDecide_ShortSilence(t *testing.T) {
	d := Decide(NewState(), Input{Silent: true, Silence: 10 * time.Second, Engagement: signal.EngagementNeutral, Emotion: signal.Upbeat})
	require.Equal(t, []Action{Acknowledgment}, d.Allowed)
	require.Equal(t, Acknowledgment, d.Preferred)
}

func TestDecide_EmotionPreferences(t *testing.T) {
	base := Input{Engagement: signal.EngagementNeutral, Verbosity: signal.VerbosityMedium}

	in := base
	in.Emotion = signal.Tired
	d := Decide(NewState(), in)
	require.Equal(t, Observation, d.Preferred)
	require.False(t, d.Allows(Question))

	in.Emotion = signal.Frustrated
	d = Decide(NewState(), in)
	require.Equal(t, Acknowledgment, d.Preferred)
	require.False(t, d.Allows(Question))

	in.Emotion = signal.Upbeat
	d = Decide(NewState(), in)
	require.True(t, d.Allows(Question))
}

func TestDecide_UpbeatDoesNotOverrideCooldown(t *testing.T) {
	s := NewState()
	s.QuestionCooldown = 2
	d := Decide(s, Input{Engagement: signal.EngagementOpen, Verbosity: signal.VerbosityLong, Emotion: signal.Upbeat})
	require.False(t, d.Allows(Question))
}

func TestDecide_LateNightTerseScenario(t *testing.T) {
	now := time.Date(2025, 6, 15, 23, 30, 0, 0, time.UTC)
	reading := signal.ClassifyEmotion("k", signal.ReplyText, signal.Context{Now: now, ClosedReplies: 3})
	require.Contains(t, []signal.Emotion{signal.Tired, signal.Neutral}, reading.Label)

	d := Decide(NewState(), Input{
		Engagement: signal.ClassifyEngagement("k"),
		Verbosity:  signal.ClassifyVerbosity("k"),
		Emotion:    reading.Label,
	})
	require.False(t, d.Allows(Question))
	require.Contains(t, []Action{Statement, Acknowledgment}, d.Preferred)
}

func TestFinalize_EmptyAllowedFallsBackToStatement(t *testing.T) {
	d := finalize(nil, map[Action]bool{}, Question, nil)
	require.Equal(t, []Action{Statement}, d.Allowed)
	require.Equal(t, Statement, d.Preferred)
	require.Contains(t, d.Reasons, "empty_allowed_fallback")

	d = finalize([]Action{Question}, map[Action]bool{Question: true}, Question, nil)
	require.Equal(t, []Action{Statement}, d.Allowed)
	require.Equal(t, Statement, d.Preferred)
}

func TestFinalize_PreferredForbiddenFallsBack(t *testing.T) {
	d := finalize([]Action{Observation, Question}, map[Action]bool{Question: true}, Question, nil)
	require.Equal(t, Observation, d.Preferred)
}

// ══════════════════════════════════════════════
// Property tests
// ══════════════════════════════════════════════

func TestDecide_Properties(t *testing.T) {
	engagements := []signal.Engagement{signal.EngagementOpen, signal.EngagementNeutral, signal.EngagementClosed}
	verbosities := []signal.Verbosity{signal.VerbosityShort, signal.VerbosityMedium, signal.VerbosityLong}

	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		s := NewState()
		questions, turns := 0, 500

		for i := 0; i < turns; i++ {
			in := Input{
				Engagement: engagements[rng.Intn(len(engagements))],
				Verbosity:  verbosities[rng.Intn(len(verbosities))],
				Emotion:    signal.Emotions[rng.Intn(len(signal.Emotions))],
			}
			if rng.Intn(10) == 0 {
				in.Silent = true
				in.Silence = time.Duration(rng.Intn(60)) * time.Second
			}

			prev := s.Last()
			d := Decide(s, in)

			if len(d.Allowed) == 0 {
				t.Fatalf("seed %d turn %d: empty allowed", seed, i)
			}
			if !d.Allows(d.Preferred) {
				t.Fatalf("seed %d turn %d: preferred %s not in allowed %v", seed, i, d.Preferred, d.Allowed)
			}
			if (in.Engagement == signal.EngagementClosed || in.Verbosity == signal.VerbosityShort) && d.Allows(Question) {
				t.Fatalf("seed %d turn %d: closed/short allowed a question: %+v", seed, i, in)
			}
			if prev == Question && d.Allows(Question) {
				t.Fatalf("seed %d turn %d: question allowed right after a question", seed, i)
			}

			if d.Preferred == Question {
				questions++
			}
			s = s.Advance(d.Preferred, "", "")
			if d.Preferred == Question && s.QuestionCooldown != QuestionCooldown {
				t.Fatalf("seed %d turn %d: expected cooldown %d, got %d", seed, i, QuestionCooldown, s.QuestionCooldown)
			}
		}

		if rate := float64(questions) / float64(turns); rate >= 0.2 {
			t.Fatalf("seed %d: question rate %.2f should stay under 20%%", seed, rate)
		}
	}
}
