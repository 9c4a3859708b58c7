package persona

import (
	"fmt"
	"time"

	"github.com/cyberFlowTech/zapry-companion-go/signal"
)

// ──────────────────────────────────────────────
// Identity synthesizer
// ──────────────────────────────────────────────

const (
	// MinConfidence is the lowest confidence a snapshot may be rendered at.
	MinConfidence = 0.4

	basePoints = 50

	userCertaintyFloor = 0.3
)

// SynthesisInput is everything the synthesizer reads. All randomness has
// been resolved by the time it is built.
type SynthesisInput struct {
	Now          time.Time
	Profile      Profile
	Companion    CurrentState
	User         signal.EmotionState
	Relationship RelationshipState
	// Quality is the recent interaction quality, 0..1. Zero means no signal yet.
	Quality float64
	// Ambient is the kind of the surfaced ambient behavior, if any.
	Ambient string
}

// draft is the snapshot under construction.
type draft struct {
	in        SynthesisInput
	energy    int // 0 low, 1 moderate, 2 high
	raised    bool
	lowered   bool
	stance    Stance
	priority  int
	tone      string
	core      string
	narrative []string
	points    int
	absorbed  Absorbed
}

func (d *draft) nudge(delta int) {
	switch {
	case delta > 0:
		d.raised = true
	case delta < 0:
		d.lowered = true
	}
	d.energy += delta
	if d.energy < 0 {
		d.energy = 0
	}
	if d.energy > 2 {
		d.energy = 2
	}
}

// lean proposes a stance. A higher priority wins; at equal priority the
// later adjustment wins.
func (d *draft) lean(s Stance, priority int) {
	if priority >= d.priority {
		d.stance = s
		d.priority = priority
	}
}

func (d *draft) say(clause string) {
	d.narrative = append(d.narrative, clause)
}

type adjustment func(d *draft)

// pipeline is the ordered list of adjustments applied to the base tone.
var pipeline = []adjustment{
	adjustCompanionMood,
	adjustDepth,
	adjustUserEmotion,
	adjustTrait,
	adjustTimeOfDay,
	adjustQuality,
	adjustLongHorizon,
	adjustAmbient,
}

// Synthesize merges the companion's own state, the user's smoothed emotion,
// the relationship and the surfaced ambient behavior into one snapshot.
// It is deterministic and never fails.
func Synthesize(in SynthesisInput) IdentitySnapshot {
	in.Relationship = in.Relationship.Normalize()
	if !in.User.Label.Valid() {
		in.User.Label = signal.Neutral
	}
	if !in.Profile.DominantTrait.Valid() {
		in.Profile.DominantTrait = TraitWarm
	}

	d := &draft{
		in:     in,
		energy: energyStep(in.Companion.Energy),
		stance: StanceEngaged,
		points: basePoints,
		absorbed: Absorbed{
			CompanionMood: in.Companion.Mood,
			CompanionBase: in.Companion.BaseMood,
			UserEmotion:   in.User.Label,
			UserCertainty: in.User.Confidence,
			DepthBracket:  BracketForDepth(in.Relationship.Closeness),
			TimeBracket:   TimeBracket(in.Now.Hour()),
			Trait:         in.Profile.DominantTrait,
			Quality:       in.Quality,
			Ambient:       in.Ambient,
		},
	}
	for _, adj := range pipeline {
		adj(d)
	}

	if d.points < 0 {
		d.points = 0
	}
	if d.points > 100 {
		d.points = 100
	}

	energy := [...]EnergyLevel{EnergyLow, EnergyModerate, EnergyHigh}[d.energy]
	if d.raised && d.lowered {
		energy = EnergyVariable
	}

	return IdentitySnapshot{
		TickTime:      in.Now,
		EmotionalCore: d.core,
		Tone:          fmt.Sprintf("%s and %s", d.tone, stanceModifier[d.stance]),
		Energy:        energy,
		Stance:        d.stance,
		Confidence:    float64(d.points) / 100,
		Narrative:     d.narrative,
		Absorbed:      d.absorbed,
	}
}

func energyStep(energy int) int {
	switch {
	case energy >= 70:
		return 2
	case energy >= 45:
		return 1
	default:
		return 0
	}
}

var stanceModifier = map[Stance]string{
	StanceCurious:    "interested",
	StanceSupportive: "gentle",
	StancePlayful:    "light",
	StanceReflective: "thoughtful",
	StanceQuiet:      "soft",
	StanceEngaged:    "present",
}

// ─── Adjustments ───

func adjustCompanionMood(d *draft) {
	mood := d.in.Companion.Mood
	d.core = mood.Label
	if d.core == "" {
		d.core = "relaxed"
	}
	switch {
	case mood.Bright():
		d.nudge(+1)
	case d.in.Companion.BaseMood == "tired" || d.in.Companion.BaseMood == "melancholy":
		d.nudge(-1)
	}
}

func adjustDepth(d *draft) {
	closeness := d.in.Relationship.Closeness
	switch d.absorbed.DepthBracket {
	case DepthDeep:
		d.lean(StanceEngaged, 1)
		d.say("you are deeply connected; shared history and shorthand come naturally")
	case DepthClose:
		d.lean(StanceEngaged, 1)
		d.say("you are comfortable with each other")
	case DepthFamiliar:
		d.say("you know each other a little")
	default:
		d.lean(StanceCurious, 1)
		d.say("you are still getting to know each other")
	}
	switch {
	case closeness >= 70:
		d.points += 20
	case closeness >= 50:
		d.points += 10
	}
}

func adjustUserEmotion(d *draft) {
	u := d.in.User
	if u.Label == signal.Neutral || u.Confidence < userCertaintyFloor {
		return
	}
	switch u.Label {
	case signal.Tired:
		d.nudge(-1)
		d.lean(StanceQuiet, 2)
		d.say("they seem tired; keep it gentle and brief")
	case signal.Down:
		d.nudge(-1)
		d.lean(StanceSupportive, 3)
		d.say("they seem low; be present more than clever")
	case signal.Stressed:
		d.lean(StanceSupportive, 3)
		d.say("they are under pressure; be a steady presence")
	case signal.Frustrated:
		d.lean(StanceSupportive, 3)
		d.say("they are frustrated; acknowledge it before anything else")
	case signal.Calm:
		d.lean(StanceReflective, 2)
		d.say("they are calm; an unhurried pace suits them")
	case signal.Focused:
		d.lean(StanceEngaged, 2)
		d.say("they are focused; do not pull them off track")
	case signal.Upbeat:
		d.nudge(+1)
		d.lean(StancePlayful, 2)
		d.say("they are in a good mood; match the brightness")
	}
	d.core = fmt.Sprintf("%s, attuned to a %s user", d.core, u.Label)
}

func adjustTrait(d *draft) {
	tp := traitProfiles[d.in.Profile.DominantTrait]
	d.tone = tp.Tone
	d.lean(tp.Stance, 1)
	d.say(tp.Clause)
}

func adjustTimeOfDay(d *draft) {
	switch d.absorbed.TimeBracket {
	case BracketLateNight:
		d.nudge(-1)
		if d.in.User.Label == signal.Tired || d.in.User.Label == signal.Down {
			d.lean(StanceQuiet, 3)
		}
		d.say("it is late")
	case BracketEarlyMorning:
		d.nudge(-1)
		d.say("it is early")
	}
}

func adjustQuality(d *draft) {
	q := d.in.Quality
	switch {
	case q >= 0.7:
		d.say("the last few exchanges went well")
	case q > 0 && q <= 0.3:
		d.lean(StanceReflective, 1)
		d.say("recent exchanges felt strained; keep things simple")
	}
}

func adjustLongHorizon(d *draft) {
	r := d.in.Relationship
	switch {
	case r.Confidence >= 0.75:
		d.points += 15
	case r.Confidence < 0.4:
		d.points -= 20
	}
	switch {
	case r.Trust >= 0.75:
		d.points += 5
		d.say("they trust you")
	case r.Trust < 0.3:
		d.say("trust is still forming; do not presume")
	}
	switch {
	case r.Openness >= 0.7:
		d.say("they open up readily")
	case r.Openness < 0.3:
		d.say("they keep things close; do not pry")
	}
}

func adjustAmbient(d *draft) {
	switch d.in.Ambient {
	case "":
		return
	case "casual_question":
		d.lean(StanceCurious, 2)
		d.say("you have a light question on your mind")
	case "comfort":
		d.lean(StanceSupportive, 2)
		d.say("offer a little warmth without fixing anything")
	case "idle_musing":
		d.lean(StanceReflective, 2)
		d.say("a passing thought is on your mind")
	case "personal_quirk", "hidden_impulse":
		d.lean(StancePlayful, 2)
		d.say("you feel like sharing something small about yourself")
	case "milestone", "streak":
		d.say("mark the moment briefly and warmly")
	case "proactive_recall":
		d.say("you remembered something they mentioned; bring it up naturally")
	default:
		d.say("you have something of your own to add")
	}
}
