package persona

// MoodState is the companion's own mood on a 0-100 scale.
type MoodState struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Bright reports whether the mood sits in the upper band.
func (m MoodState) Bright() bool { return m.Value >= 70 }

var baseMoodLevels = map[string]float64{
	"happy":      75,
	"playful":    70,
	"calm":       55,
	"neutral":    50,
	"melancholy": 35,
	"tired":      30,
}

// moodBands map a blended value to a label, highest floor first.
var moodBands = []struct {
	floor float64
	label string
}{
	{70, "in good spirits"},
	{50, "relaxed"},
	{35, "a little lazy"},
	{0, "quiet"},
}

const (
	baseWeight   = 0.6
	energyWeight = 0.4
	lowEnergy    = 30
)

// CalculateMood blends the day's base mood with current energy. Unknown base
// moods count as neutral.
func CalculateMood(baseMood string, energy int) MoodState {
	base, ok := baseMoodLevels[baseMood]
	if !ok {
		base = baseMoodLevels["neutral"]
	}
	value := clampRange(base*baseWeight+float64(energy)*energyWeight, 0, 100)

	m := MoodState{Value: value}
	switch {
	case energy < lowEnergy && value < 40:
		m.Label = "a bit worn out but settled"
	case energy < lowEnergy:
		m.Label = "somewhat tired"
	default:
		for _, b := range moodBands {
			if value >= b.floor {
				m.Label = b.label
				break
			}
		}
	}
	return m
}

func clampRange(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
