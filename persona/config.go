package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is the companion's fixed character: the part of identity that
// does not change from turn to turn.
type Profile struct {
	Name          string `json:"name" yaml:"name"`
	DominantTrait Trait  `json:"dominant_trait" yaml:"dominant_trait"`
	// EnergyCurve is morning_high, night_low or flat.
	EnergyCurve string `json:"energy_curve" yaml:"energy_curve"`
	// BaseMoods and MoodWeights pick the companion's mood for the day.
	BaseMoods   []string  `json:"base_moods" yaml:"base_moods"`
	MoodWeights []float64 `json:"mood_weights" yaml:"mood_weights"`
}

// DefaultProfile returns a warm, evening-leaning companion.
func DefaultProfile() Profile {
	return Profile{
		Name:          "companion",
		DominantTrait: TraitWarm,
		EnergyCurve:   "night_low",
		BaseMoods:     []string{"calm", "happy", "neutral", "tired", "melancholy"},
		MoodWeights:   []float64{0.35, 0.3, 0.2, 0.1, 0.05},
	}
}

// LoadProfile reads a YAML profile. Missing fields keep their defaults.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return DefaultProfile(), fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return DefaultProfile(), err
	}
	return p, nil
}

// Validate checks the profile for values the synthesizer cannot use.
func (p Profile) Validate() error {
	if !p.DominantTrait.Valid() {
		return fmt.Errorf("profile %q: unknown dominant trait %q", p.Name, p.DominantTrait)
	}
	switch p.EnergyCurve {
	case "morning_high", "night_low", "flat", "":
	default:
		return fmt.Errorf("profile %q: unknown energy curve %q", p.Name, p.EnergyCurve)
	}
	if len(p.MoodWeights) > 0 && len(p.MoodWeights) != len(p.BaseMoods) {
		return fmt.Errorf("profile %q: %d mood weights for %d base moods", p.Name, len(p.MoodWeights), len(p.BaseMoods))
	}
	return nil
}
