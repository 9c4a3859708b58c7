package companion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/cyberFlowTech/zapry-companion-go/behavior"
	"github.com/cyberFlowTech/zapry-companion-go/persona"
	"github.com/cyberFlowTech/zapry-companion-go/policy"
	"github.com/cyberFlowTech/zapry-companion-go/signal"
	"github.com/cyberFlowTech/zapry-companion-go/store"
)

// fixedRand never damps and always passes the re-roll of a probability-1
// candidate.
type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) Intn(int) int     { return 0 }

// alwaysGen proposes the same candidate every turn.
type alwaysGen struct {
	kind  behavior.Kind
	text  string
	topic string
}

func (g alwaysGen) Kind() behavior.Kind { return g.kind }

func (g alwaysGen) Propose(behavior.TurnContext) (behavior.Candidate, bool) {
	return behavior.Candidate{Kind: g.kind, Shape: g.kind.Shape(), Probability: 1, Text: g.text, Topic: g.topic}, true
}

type staticProfile struct {
	rel persona.RelationshipState
}

func (p staticProfile) Relationship(context.Context) (persona.RelationshipState, error) {
	return p.rel, nil
}

func afternoon() time.Time { return time.Date(2025, 6, 15, 15, 0, 0, 0, time.UTC) }

func newTestEngine(t *testing.T, clk *FixedClock, opts ...Option) (*Engine, store.Store) {
	t.Helper()
	st := store.NewMemory()
	base := []Option{WithClock(clk), WithRand(fixedRand{f: 0.99}), WithStore(st)}
	eng, err := NewEngine(context.Background(), DefaultConfig(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng, st
}

func turn(eng *Engine, clk *FixedClock, utterance string) *Bundle {
	clk.Advance(5 * time.Second)
	return eng.Turn(context.Background(), TurnInput{Utterance: utterance})
}

// ══════════════════════════════════════════════
// Engine.Turn tests
// ══════════════════════════════════════════════

func TestEngine_LateNightClosedReply(t *testing.T) {
	clk := NewFixedClock(time.Date(2025, 6, 15, 23, 29, 0, 0, time.UTC))
	eng, _ := newTestEngine(t, clk, WithGenerators())

	for _, u := range []string{"ok", "sure", "fine"} {
		turn(eng, clk, u)
	}
	clk.Set(time.Date(2025, 6, 15, 23, 30, 0, 0, time.UTC))
	b := eng.Turn(context.Background(), TurnInput{Utterance: "k"})

	if b.Emotion.Label != signal.Tired && b.Emotion.Label != signal.Neutral {
		t.Fatalf("expected tired or neutral, got %s", b.Emotion.Label)
	}
	if b.Decision.Allows(policy.Question) {
		t.Fatalf("question must be forbidden, got %v", b.Decision.Allowed)
	}
	if b.Decision.Preferred != policy.Statement && b.Decision.Preferred != policy.Acknowledgment {
		t.Fatalf("expected statement or acknowledgment, got %s", b.Decision.Preferred)
	}
	require.Equal(t, 3, b.Session.PriorClosed)
	require.Contains(t, b.Text(), "Do not ask a question.")
}

func TestEngine_QuestionStartsCooldown(t *testing.T) {
	clk := NewFixedClock(afternoon())
	eng, _ := newTestEngine(t, clk, WithGenerators(alwaysGen{kind: behavior.CasualQuestion, text: "what are you reading lately", topic: "books"}))

	b := turn(eng, clk, "I spent the whole afternoon wandering around the old town and found a tiny bookshop with a cat asleep on the counter")
	require.NotNil(t, b.Ambient)
	require.Equal(t, policy.Question, b.Taken)
	require.Equal(t, policy.QuestionCooldown, eng.Policy().QuestionCooldown)
	require.True(t, eng.Policy().AskedRecently("books"))

	next := turn(eng, clk, "It was lovely, I might go back next weekend with a friend and spend the whole day there reading")
	if next.Decision.Allows(policy.Question) {
		t.Fatalf("question allowed right after a question: %v", next.Decision.Allowed)
	}
	if next.Ambient != nil {
		t.Fatalf("question-shaped ambient surfaced on a turn forbidding questions: %+v", next.Ambient)
	}
}

func TestEngine_ClosedStreakRecall(t *testing.T) {
	clk := NewFixedClock(afternoon())
	src := behavior.RecallSourceFunc(func(context.Context, behavior.Trigger) (string, error) {
		return "you had that dentist appointment today", nil
	})
	eng, st := newTestEngine(t, clk, WithGenerators(), WithRecallSource(src))

	require.Nil(t, turn(eng, clk, "ok").Ambient)
	require.Nil(t, turn(eng, clk, "k").Ambient)
	b := turn(eng, clk, "fine")
	require.NotNil(t, b.Ambient)
	require.Equal(t, behavior.ProactiveRecall, b.Ambient.Kind)
	require.Contains(t, b.Text(), "dentist appointment")
	require.Equal(t, 1, eng.Ledger().SessionCount())

	n, err := st.DayCount(context.Background(), string(behavior.ProactiveRecall), "2025-06-15")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Once per trigger per session.
	b = turn(eng, clk, "yep")
	require.Nil(t, b.Ambient)
	require.Equal(t, 1, eng.Ledger().SessionCount())
}

func TestEngine_MemoryDisabledSuppressesRecall(t *testing.T) {
	clk := NewFixedClock(afternoon())
	src := behavior.RecallSourceFunc(func(context.Context, behavior.Trigger) (string, error) {
		return "something from memory", nil
	})
	eng, _ := newTestEngine(t, clk, WithGenerators(), WithRecallSource(src))
	eng.SetMemoryEnabled(false)

	var last *Bundle
	for _, u := range []string{"ok", "k", "fine", "sure"} {
		last = turn(eng, clk, u)
		require.Nil(t, last.Ambient)
	}
	require.Contains(t, strings.Join(last.Warnings, " "), string(behavior.SkippedDisabled))
}

func TestEngine_MilestoneFiresOnceAcrossRestarts(t *testing.T) {
	clk := NewFixedClock(afternoon())
	st := store.NewMemory()
	opts := []Option{WithClock(clk), WithRand(fixedRand{f: 0.99}), WithStore(st), WithGenerators()}
	ctx := context.Background()

	eng, err := NewEngine(ctx, DefaultConfig(), opts...)
	require.NoError(t, err)

	fired := 0
	for i := 1; i <= 12; i++ {
		b := turn(eng, clk, "just finished dinner and now sorting laundry")
		if b.Ambient != nil && b.Ambient.Kind == behavior.Milestone {
			fired++
			require.Equal(t, 10, b.Session.TotalTurns)
			require.Contains(t, b.Ambient.Text, "10")
		}
	}
	require.Equal(t, 1, fired)
	require.NoError(t, eng.Close())

	members, err := st.Members(ctx, "celebrated")
	require.NoError(t, err)
	require.Contains(t, members, "milestone:10")

	// A restarted engine keeps counting and does not celebrate 10 again.
	again, err := NewEngine(ctx, DefaultConfig(), opts...)
	require.NoError(t, err)
	defer again.Close()
	for i := 0; i < 5; i++ {
		b := turn(again, clk, "just finished dinner and now sorting laundry")
		if b.Ambient != nil && b.Ambient.Kind == behavior.Milestone {
			t.Fatalf("milestone refired at total %d", b.Session.TotalTurns)
		}
	}
}

func TestEngine_SilenceEvent(t *testing.T) {
	clk := NewFixedClock(afternoon())
	eng, _ := newTestEngine(t, clk, WithGenerators())

	first := turn(eng, clk, "work has been a lot this week honestly")
	clk.Advance(45 * time.Second)
	b := eng.Turn(context.Background(), TurnInput{Kind: signal.ReplySilence, Silence: 45 * time.Second})

	require.Equal(t, policy.Observation, b.Decision.Preferred)
	require.False(t, b.Decision.Allows(policy.Question))
	require.Equal(t, first.Session.TotalTurns, b.Session.TotalTurns, "silence is not a reply")
	require.Equal(t, first.Session.TurnIndex+1, b.Session.TurnIndex)

	short := eng.Turn(context.Background(), TurnInput{Kind: signal.ReplySilence, Silence: 10 * time.Second})
	require.Equal(t, []policy.Action{policy.Acknowledgment}, short.Decision.Allowed)
}

func TestEngine_DeepRelationship(t *testing.T) {
	clk := NewFixedClock(afternoon())
	rel := *persona.DefaultRelationshipState()
	rel.Closeness, rel.Confidence, rel.Trust = 85, 0.85, 0.85
	eng, st := newTestEngine(t, clk, WithGenerators())
	require.NoError(t, StoreProfile{Store: st}.SaveRelationship(context.Background(), rel))

	b := turn(eng, clk, "back from the gym, feeling pretty good actually")
	if b.Identity.Confidence < 0.9 {
		t.Fatalf("expected confidence >= 0.9, got %.2f", b.Identity.Confidence)
	}
	require.Contains(t, b.Instruction, "deeply connected")
}

func TestEngine_LowConfidenceDropsIdentity(t *testing.T) {
	clk := NewFixedClock(afternoon())
	rel := persona.RelationshipState{Closeness: 0, Trust: 0.1, Confidence: 0.1, Openness: 0.5}
	eng, _ := newTestEngine(t, clk, WithGenerators(), WithProfile(staticProfile{rel: rel}))

	b := turn(eng, clk, "hey, what's new with you today")
	require.Empty(t, b.Instruction)
	text := b.Text()
	require.NotContains(t, text, "[Current self]")
	require.Contains(t, text, "[Reply]")
}

func TestEngine_NewSessionAfterGap(t *testing.T) {
	clk := NewFixedClock(afternoon())
	src := behavior.RecallSourceFunc(func(context.Context, behavior.Trigger) (string, error) {
		return "the plant you repotted", nil
	})
	eng, _ := newTestEngine(t, clk, WithGenerators(), WithRecallSource(src))

	for _, u := range []string{"ok", "k", "fine"} {
		turn(eng, clk, u)
	}
	require.Equal(t, 1, eng.Ledger().SessionCount())

	clk.Advance(2 * time.Hour)
	b := turn(eng, clk, "good morning, slept badly but coffee is helping")
	require.True(t, b.Session.NewSession)
	require.Equal(t, 1, b.Session.TurnIndex)
	require.Equal(t, 0, eng.Ledger().SessionCount())
	require.Equal(t, 2, b.Session.TotalSessions)
}

func TestEngine_CooldownCarriesAcrossSessions(t *testing.T) {
	clk := NewFixedClock(afternoon())
	eng, _ := newTestEngine(t, clk, WithGenerators(alwaysGen{kind: behavior.Comfort, text: "that sounds like a lot"}))
	cooldown := behavior.DefaultCooldowns[behavior.Comfort]
	const u = "I spent the afternoon sorting old photos and listening to records with the window open"

	var last int
	for i := 1; i <= 20; i++ {
		if b := turn(eng, clk, u); b.Ambient != nil && b.Ambient.Kind == behavior.Comfort {
			last = i
		}
	}
	require.NotZero(t, last)

	clk.Advance(2 * time.Hour)
	var fired []int
	for i := 1; i <= 15; i++ {
		b := turn(eng, clk, u)
		if i == 1 {
			require.True(t, b.Session.NewSession)
			require.Equal(t, 1, b.Session.TurnIndex)
		}
		if b.Ambient != nil && b.Ambient.Kind == behavior.Comfort {
			fired = append(fired, i)
		}
	}
	if len(fired) == 0 || fired[0] > cooldown {
		t.Fatalf("comfort should fire within %d turns of the new session, fired on %v", cooldown, fired)
	}
	// Turn 20 of the first session is lifetime turn 20; the gap spans sessions.
	if gap := 20 - last + fired[0]; gap < cooldown {
		t.Fatalf("comfort refired %d turns after its last firing, cooldown %d", gap, cooldown)
	}
	for i := 1; i < len(fired); i++ {
		if fired[i]-fired[i-1] < cooldown {
			t.Fatalf("comfort fired on %v, cooldown %d", fired, cooldown)
		}
	}
}

func TestEngine_QuestionRateStaysLow(t *testing.T) {
	utterances := []string{
		"ok", "k", "sure", "haha yes",
		"today was long but I finally finished the report and now I just want to sleep for a week",
		"I'm so excited, we got the apartment!",
		"ugh this bug is driving me crazy, nothing works",
		"not sure what to cook tonight",
		"went for a walk by the river, it was calm and quiet",
		"tired",
	}
	for seed := int64(1); seed <= 10; seed++ {
		clk := NewFixedClock(afternoon())
		eng, err := NewEngine(context.Background(), DefaultConfig(),
			WithClock(clk), WithRand(behavior.NewRand(seed)), WithStore(store.NewMemory()))
		require.NoError(t, err)

		questions := 0
		const turns = 300
		pick := behavior.NewRand(seed * 31)
		for i := 0; i < turns; i++ {
			b := turn(eng, clk, utterances[pick.Intn(len(utterances))])
			if b.Taken == policy.Question {
				questions++
			}
			if b.Ambient != nil && !b.Decision.Allows(b.Ambient.Shape) {
				t.Fatalf("seed %d turn %d: ambient %s shape %s not allowed by %v", seed, i, b.Ambient.Kind, b.Ambient.Shape, b.Decision.Allowed)
			}
		}
		if rate := float64(questions) / turns; rate >= 0.2 {
			t.Fatalf("seed %d: question rate %.2f", seed, rate)
		}
		_ = eng.Close()
	}
}

// ══════════════════════════════════════════════
// Engine.Reply tests
// ══════════════════════════════════════════════

func TestEngine_ReplyRegeneratesForbiddenQuestion(t *testing.T) {
	clk := NewFixedClock(afternoon())
	var reqs []GenerateRequest
	backend := BackendFunc(func(_ context.Context, req GenerateRequest) (string, error) {
		reqs = append(reqs, req)
		if len(reqs) == 1 {
			return "How did it go?", nil
		}
		return "Sounds like it's been a long one.", nil
	})
	eng, _ := newTestEngine(t, clk, WithGenerators(), WithBackend(backend))

	clk.Advance(time.Second)
	reply, b, err := eng.Reply(context.Background(), TurnInput{Utterance: "k"}, []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "Sounds like it's been a long one.", reply)
	require.Len(t, reqs, 2)

	retry := reqs[1].History
	require.Len(t, retry, 3)
	require.Equal(t, "system", retry[2].Role)
	require.Contains(t, retry[2].Content, "Do not ask a question.")
	require.Len(t, reqs[0].History, 1, "original history must not be mutated")
	require.NotEmpty(t, b.Warnings)
}

func TestEngine_ReplyWithoutBackend(t *testing.T) {
	clk := NewFixedClock(afternoon())
	eng, _ := newTestEngine(t, clk)
	_, _, err := eng.Reply(context.Background(), TurnInput{Utterance: "hello"}, nil)
	require.Error(t, err)
}

func TestEngine_UnavailableStoreFallsBackToMemory(t *testing.T) {
	notDir := filepath.Join(t.TempDir(), "taken")
	require.NoError(t, os.WriteFile(notDir, []byte("x"), 0o644))

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	down := "redis://" + mr.Addr() + "/0"
	mr.Close()

	cases := map[string]StoreConfig{
		"file":  {Backend: "file", Dir: notDir, Namespace: "u1"},
		"redis": {Backend: "redis", RedisURL: down, Namespace: "u1", Prefix: "companion"},
	}
	for name, sc := range cases {
		cfg := DefaultConfig()
		cfg.Store = sc
		clk := NewFixedClock(afternoon())
		eng, err := NewEngine(context.Background(), cfg, WithClock(clk), WithRand(fixedRand{f: 0.99}))
		require.NoError(t, err, name)
		require.IsType(t, &store.Memory{}, eng.store, name)

		b := turn(eng, clk, "finally home, long day at the office")
		require.Equal(t, 1, b.Session.TotalTurns, name)
		require.NoError(t, eng.Close(), name)
	}

	cfg := DefaultConfig()
	cfg.Store.Backend = "etcd"
	_, err := NewEngine(context.Background(), cfg)
	require.ErrorIs(t, err, store.ErrUnknownBackend)
}

func TestEngine_StartWithoutSenderIsNoop(t *testing.T) {
	clk := NewFixedClock(afternoon())
	eng, _ := newTestEngine(t, clk)
	require.NoError(t, eng.Start())
}
