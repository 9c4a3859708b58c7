package behavior

import "github.com/cyberFlowTech/zapry-companion-go/signal"

// ──────────────────────────────────────────────
// Cooldown-gated generators
// ──────────────────────────────────────────────

// Probability caps per kind.
const (
	CasualQuestionCap = 0.20
	ComfortCap        = 0.17
	PersonalQuirkCap  = 0.12
	IdleMusingCap     = 0.10
	SmallTalkCap      = 0.12
	HiddenImpulseCap  = 0.05

	priorQuestionFactor  = 0.25
	comfortMinConfidence = 0.5
	quirkMinDepth        = 20
)

// gated is a cooldown-gated generator: the Arbitrator checks the cooldown,
// this decides eligibility and the capped trigger probability.
type gated struct {
	kind  Kind
	cap   float64
	pools *Pools
	// chance returns the uncapped probability, or a value <= 0 when the
	// behavior does not apply to this turn.
	chance func(tc TurnContext) float64
	// pick selects the text; nil uses a plain pool pick.
	pick func(p *Pools, tc TurnContext) (Line, bool)
}

func (g *gated) Kind() Kind { return g.kind }

func (g *gated) Propose(tc TurnContext) (Candidate, bool) {
	p := g.chance(tc)
	if p <= 0 {
		return Candidate{}, false
	}
	p = clamp(p, 0, g.cap)

	var (
		line Line
		ok   bool
	)
	if g.pick != nil {
		line, ok = g.pick(g.pools, tc)
	} else {
		line, ok = g.pools.Pick(g.kind, nil)
	}
	if !ok {
		return Candidate{}, false
	}
	return Candidate{
		Kind:        g.kind,
		Shape:       g.kind.Shape(),
		Probability: p,
		Text:        line.Text,
		Topic:       line.Topic,
	}, true
}

// DefaultGenerators returns the six cooldown-gated generators.
func DefaultGenerators(pools *Pools) []Generator {
	return []Generator{
		NewCasualQuestion(pools),
		NewComfort(pools),
		NewPersonalQuirk(pools),
		NewIdleMusing(pools),
		NewSmallTalk(pools),
		NewHiddenImpulse(pools),
	}
}

// NewCasualQuestion proposes a light question. It grows with relationship
// depth (known only with memory enabled), halves when the user reads low or
// tense, drops to a quarter right after a question, and skips topics asked
// recently.
func NewCasualQuestion(pools *Pools) Generator {
	return &gated{
		kind:  CasualQuestion,
		cap:   CasualQuestionCap,
		pools: pools,
		chance: func(tc TurnContext) float64 {
			p := 0.08 + 0.12*tc.depth()/100
			if tc.Emotion.Label.IsLow() || tc.Emotion.Label.IsTense() {
				p *= 0.5
			}
			if tc.PriorQuestion {
				p *= priorQuestionFactor
			}
			return p
		},
		pick: func(p *Pools, tc TurnContext) (Line, bool) {
			return p.Pick(CasualQuestion, func(l Line) bool {
				return tc.Policy.AskedRecently(l.Topic)
			})
		},
	}
}

// NewComfort proposes a warmth-only remark when the user reads low or tense
// with enough confidence, or recent valence is clearly negative.
func NewComfort(pools *Pools) Generator {
	return &gated{
		kind:  Comfort,
		cap:   ComfortCap,
		pools: pools,
		chance: func(tc TurnContext) float64 {
			e := tc.Emotion
			if (e.Label.IsLow() || e.Label.IsTense()) && e.Confidence >= comfortMinConfidence {
				return ComfortCap * e.Confidence
			}
			if tc.Valence < -0.3 {
				return ComfortCap * -tc.Valence
			}
			return 0
		},
	}
}

// NewPersonalQuirk shares a small anecdote once the relationship has some
// depth. It stays quiet while memory is disabled.
func NewPersonalQuirk(pools *Pools) Generator {
	return &gated{
		kind:  PersonalQuirk,
		cap:   PersonalQuirkCap,
		pools: pools,
		chance: func(tc TurnContext) float64 {
			if tc.depth() < quirkMinDepth || tc.Emotion.Label.IsTense() {
				return 0
			}
			return 0.04 + 0.08*tc.depth()/100
		},
	}
}

// NewIdleMusing voices a passing thought, more likely when the mood is good.
func NewIdleMusing(pools *Pools) Generator {
	return &gated{
		kind:  IdleMusing,
		cap:   IdleMusingCap,
		pools: pools,
		chance: func(tc TurnContext) float64 {
			if tc.Emotion.Label.IsTense() {
				return 0
			}
			return 0.05 + 0.05*clamp(tc.Valence, 0, 1)
		},
	}
}

// NewSmallTalk fills neutral moments when the user is not shutting the thread.
func NewSmallTalk(pools *Pools) Generator {
	return &gated{
		kind:  SmallTalk,
		cap:   SmallTalkCap,
		pools: pools,
		chance: func(tc TurnContext) float64 {
			if tc.Engagement == signal.EngagementClosed {
				return 0
			}
			switch tc.Emotion.Label {
			case signal.Neutral, signal.Calm, signal.Focused, "":
				return SmallTalkCap
			default:
				return 0.04
			}
		},
	}
}

// NewHiddenImpulse voices the unexplained impulse of the day. The line is
// stable for a calendar day.
func NewHiddenImpulse(pools *Pools) Generator {
	return &gated{
		kind:  HiddenImpulse,
		cap:   HiddenImpulseCap,
		pools: pools,
		chance: func(tc TurnContext) float64 {
			if tc.Emotion.Label.IsLow() || tc.Emotion.Label.IsTense() {
				return 0
			}
			return HiddenImpulseCap
		},
		pick: func(p *Pools, tc TurnContext) (Line, bool) {
			return p.Daily(HiddenImpulse, tc.Now.Format("2006-01-02"))
		},
	}
}
