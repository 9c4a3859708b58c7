// Package behavior produces optional ambient content (recall, musings,
// casual questions, quirks, comfort, small talk, impulses, milestones) and
// arbitrates at most one of them per turn under cooldowns and caps.
package behavior

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cyberFlowTech/zapry-companion-go/policy"
	"github.com/cyberFlowTech/zapry-companion-go/signal"
)

// ──────────────────────────────────────────────
// Kinds
// ──────────────────────────────────────────────

// Kind names an ambient behavior type.
type Kind string

const (
	ProactiveRecall Kind = "proactive_recall"
	IdleMusing      Kind = "idle_musing"
	CasualQuestion  Kind = "casual_question"
	PersonalQuirk   Kind = "personal_quirk"
	Comfort         Kind = "comfort"
	SmallTalk       Kind = "small_talk"
	HiddenImpulse   Kind = "hidden_impulse"
	Milestone       Kind = "milestone"
	Streak          Kind = "streak"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{
	ProactiveRecall, IdleMusing, CasualQuestion, PersonalQuirk,
	Comfort, SmallTalk, HiddenImpulse, Milestone, Streak,
}

// Shape returns the reply category a behavior of this kind takes.
func (k Kind) Shape() policy.Action {
	switch k {
	case CasualQuestion:
		return policy.Question
	case IdleMusing, SmallTalk:
		return policy.Observation
	case Comfort:
		return policy.Acknowledgment
	default:
		return policy.Statement
	}
}

// DefaultCooldowns are the per-kind cooldowns in turns.
// Recall, milestones and streaks are bounded by caps and thresholds instead.
var DefaultCooldowns = map[Kind]int{
	IdleMusing:     8,
	CasualQuestion: 6,
	PersonalQuirk:  10,
	Comfort:        5,
	SmallTalk:      7,
	HiddenImpulse:  15,
}

// ──────────────────────────────────────────────
// Randomness
// ──────────────────────────────────────────────

// Rand is the random source behind every Bernoulli draw and pool pick.
// *rand.Rand satisfies it; tests inject a seeded one.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand returns a Rand safe for use from the turn path and timers at once.
func NewRand(seed int64) Rand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// ──────────────────────────────────────────────
// Turn context + candidates
// ──────────────────────────────────────────────

// TurnContext is everything a generator may look at when proposing.
type TurnContext struct {
	// Turn only ever grows: cooldowns are measured on it across sessions.
	Turn       int
	Now        time.Time
	Emotion    signal.EmotionState
	Engagement signal.Engagement
	// Depth is the relationship depth, 0..100.
	Depth float64
	// Valence is the recent emotional valence, -1..1.
	Valence       float64
	PriorQuestion bool
	Decision      policy.Decision
	Policy        policy.State
	// MemoryEnabled gates everything read from the memory/profile store.
	// When it is off, generators see no relationship depth.
	MemoryEnabled bool
}

// depth is the relationship depth generators may use, 0..100.
func (tc TurnContext) depth() float64 {
	if !tc.MemoryEnabled {
		return 0
	}
	return clamp(tc.Depth, 0, 100)
}

// Candidate is one proposed ambient behavior.
type Candidate struct {
	Kind        Kind          `json:"kind"`
	Shape       policy.Action `json:"shape"`
	Probability float64       `json:"probability"`
	Text        string        `json:"text"`
	Topic       string        `json:"topic,omitempty"`

	onDeliver func(ctx context.Context)
	onDrop    func()
}

func (c Candidate) deliver(ctx context.Context) {
	if c.onDeliver != nil {
		c.onDeliver(ctx)
	}
}

func (c Candidate) drop() {
	if c.onDrop != nil {
		c.onDrop()
	}
}

// Generator proposes at most one candidate per turn.
type Generator interface {
	Kind() Kind
	Propose(tc TurnContext) (Candidate, bool)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func seedNow() int64 {
	return time.Now().UnixNano()
}
