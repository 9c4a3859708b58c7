package behavior

import (
	"context"

	"github.com/rs/zerolog"
)

// ──────────────────────────────────────────────
// Arbitrator
// ──────────────────────────────────────────────

// Arbitrator surfaces at most one ambient behavior per turn.
type Arbitrator struct {
	Ledger *Ledger
	Rand   Rand
	Log    zerolog.Logger
}

// NewArbitrator creates an arbitrator over ledger.
func NewArbitrator(ledger *Ledger, rng Rand, logger zerolog.Logger) *Arbitrator {
	if rng == nil {
		rng = NewRand(seedNow())
	}
	return &Arbitrator{
		Ledger: ledger,
		Rand:   rng,
		Log:    logger.With().Str("component", "arbitrator").Logger(),
	}
}

// Propose collects the proposals of every generator for this turn.
func Propose(tc TurnContext, gens []Generator) []Candidate {
	var out []Candidate
	for _, g := range gens {
		if c, ok := g.Propose(tc); ok {
			out = append(out, c)
		}
	}
	return out
}

// Select picks the behavior to surface this turn, if any.
//
// Candidates whose kind is still cooling down, or whose shape the policy
// does not allow this turn, are dropped. One of the rest is chosen uniformly
// at random and then re-rolled against its own probability. The winner is
// marked fired and delivered; every other candidate is dropped, which gives
// back any reservation it holds.
func (a *Arbitrator) Select(ctx context.Context, tc TurnContext, cands []Candidate) (Candidate, bool) {
	eligible := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		switch {
		case !a.Ledger.Ready(c.Kind, tc.Turn):
			a.Log.Debug().Str("kind", string(c.Kind)).Int("turn", tc.Turn).Msg("cooling down")
			c.drop()
		case !tc.Decision.Allows(c.Shape):
			a.Log.Debug().Str("kind", string(c.Kind)).Str("shape", string(c.Shape)).Msg("shape not allowed this turn")
			c.drop()
		default:
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return Candidate{}, false
	}

	idx := a.Rand.Intn(len(eligible))
	chosen := eligible[idx]
	fire := a.Rand.Float64() < chosen.Probability

	for i, c := range eligible {
		if i != idx || !fire {
			c.drop()
		}
	}
	if !fire {
		return Candidate{}, false
	}

	a.Ledger.MarkFired(chosen.Kind, tc.Turn)
	chosen.deliver(ctx)
	a.Log.Debug().Str("kind", string(chosen.Kind)).Int("turn", tc.Turn).Float64("p", chosen.Probability).Msg("surfaced")
	return chosen, true
}
