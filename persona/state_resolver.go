package persona

import (
	"math/rand"
	"time"

	"github.com/cespare/xxhash/v2"
)

// CurrentState is the companion's resolved state for a moment in time.
type CurrentState struct {
	BaseMood string    `json:"base_mood"`
	Mood     MoodState `json:"mood"`
	Energy   int       `json:"energy"` // 0-100
	Bracket  Bracket   `json:"bracket"`
}

// Bracket is a time-of-day bracket.
type Bracket string

const (
	BracketEarlyMorning Bracket = "early_morning"
	BracketMorning      Bracket = "morning"
	BracketMidday       Bracket = "midday"
	BracketAfternoon    Bracket = "afternoon"
	BracketEvening      Bracket = "evening"
	BracketLateNight    Bracket = "late_night"
)

// TimeBracket maps an hour to its bracket.
func TimeBracket(hour int) Bracket {
	switch {
	case hour >= 5 && hour < 8:
		return BracketEarlyMorning
	case hour >= 8 && hour < 12:
		return BracketMorning
	case hour >= 12 && hour < 14:
		return BracketMidday
	case hour >= 14 && hour < 18:
		return BracketAfternoon
	case hour >= 18 && hour < 22:
		return BracketEvening
	default:
		return BracketLateNight
	}
}

// ResolveState determines the companion's mood and energy at now. The base
// mood is stable for a calendar day.
func ResolveState(p Profile, now time.Time) CurrentState {
	base := "neutral"
	if len(p.BaseMoods) > 0 {
		base = pickWeighted(p.BaseMoods, p.MoodWeights, daySeed(p.Name, now))
	}
	energy := energyAt(p.EnergyCurve, now.Hour())
	return CurrentState{
		BaseMood: base,
		Mood:     CalculateMood(base, energy),
		Energy:   energy,
		Bracket:  TimeBracket(now.Hour()),
	}
}

// daySeed is a deterministic seed from the companion name and date.
func daySeed(name string, now time.Time) int64 {
	return int64(xxhash.Sum64String(name + ":" + now.Format("2006-01-02")))
}

// pickWeighted selects an item by weight with a seeded source. Missing or
// mismatched weights fall back to a uniform pick.
func pickWeighted(items []string, weights []float64, seed int64) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	r := rand.New(rand.NewSource(seed))

	var total float64
	if len(weights) == len(items) {
		for _, w := range weights {
			if w > 0 {
				total += w
			}
		}
	}
	if total <= 0 {
		return items[r.Intn(len(items))]
	}

	roll := r.Float64() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if roll -= w; roll <= 0 {
			return items[i]
		}
	}
	return items[len(items)-1]
}

// energySpan covers hours [from, to): energy starts at start and moves by
// step per hour.
type energySpan struct {
	from, to    int
	start, step int
}

type energyCurve struct {
	spans []energySpan
	rest  int // outside every span
}

const flatEnergy = 60

var energyCurves = map[string]energyCurve{
	"night_low": {
		spans: []energySpan{{6, 10, 60, 5}, {10, 14, 80, 0}, {14, 18, 70, 0}, {18, 22, 50, -5}},
		rest:  25,
	},
	"morning_high": {
		spans: []energySpan{{5, 10, 90, 0}, {10, 14, 70, 0}, {14, 20, 50, 0}},
		rest:  30,
	},
}

// energyAt returns energy (0-100) at hour on the named curve. Unknown curves
// are flat.
func energyAt(curve string, hour int) int {
	c, ok := energyCurves[curve]
	if !ok {
		return flatEnergy
	}
	for _, sp := range c.spans {
		if hour >= sp.from && hour < sp.to {
			return sp.start + (hour-sp.from)*sp.step
		}
	}
	return c.rest
}
