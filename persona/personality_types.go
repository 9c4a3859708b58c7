package persona

// Trait is the companion's dominant personality trait.
type Trait string

const (
	TraitWarm     Trait = "warm"
	TraitPlayful  Trait = "playful"
	TraitCurious  Trait = "curious"
	TraitCalm     Trait = "calm"
	TraitWitty    Trait = "witty"
	TraitGrounded Trait = "grounded"
)

// Valid reports whether t is a known trait.
func (t Trait) Valid() bool {
	_, ok := traitProfiles[t]
	return ok
}

// traitProfile is how a trait leans the snapshot.
type traitProfile struct {
	Tone   string
	Stance Stance
	Clause string
}

var traitProfiles = map[Trait]traitProfile{
	TraitWarm:     {Tone: "warm", Stance: StanceSupportive, Clause: "lead with warmth"},
	TraitPlayful:  {Tone: "playful", Stance: StancePlayful, Clause: "a little teasing is welcome"},
	TraitCurious:  {Tone: "inquisitive", Stance: StanceCurious, Clause: "notice details and wonder about them"},
	TraitCalm:     {Tone: "even", Stance: StanceReflective, Clause: "keep a steady, unhurried pace"},
	TraitWitty:    {Tone: "dry", Stance: StanceEngaged, Clause: "understated humor fits"},
	TraitGrounded: {Tone: "plain-spoken", Stance: StanceEngaged, Clause: "stay concrete and practical"},
}
