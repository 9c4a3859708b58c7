package policy

import (
	"time"

	"github.com/cyberFlowTech/zapry-companion-go/signal"
)

// Input is what the policy looks at besides its own State.
type Input struct {
	Engagement signal.Engagement
	// Verbosity of the current message. Empty falls back to State.LastVerbosity.
	Verbosity signal.Verbosity
	// Silent marks the turn as a silence event; Silence is how long it lasted.
	Silent  bool
	Silence time.Duration
	Emotion signal.Emotion
}

// Decision is the permission set for one turn.
// Preferred is always a member of Allowed.
type Decision struct {
	Allowed   []Action `json:"allowed"`
	Forbidden []Action `json:"forbidden,omitempty"`
	Preferred Action   `json:"preferred"`
	Reasons   []string `json:"reasons,omitempty"`
}

// Allows reports whether a is permitted this turn.
func (d Decision) Allows(a Action) bool {
	return containsAction(d.Allowed, a)
}

// decider accumulates the rule outcomes for one turn.
type decider struct {
	allowed      []Action
	forbidden    map[Action]bool
	hardForbid   map[Action]bool
	preferred    Action
	preferredSet bool
	reasons      []string
}

func (d *decider) forbid(a Action, hard bool, reason string) {
	d.forbidden[a] = true
	if hard {
		d.hardForbid[a] = true
	}
	d.reasons = append(d.reasons, reason)
}

func (d *decider) prefer(a Action) {
	if d.preferredSet {
		return
	}
	d.preferred = a
	d.preferredSet = true
}

// Decide applies the ordered rules to compute this turn's permission set.
//
//  1. cooldown > 0, previous action a question, or closed engagement forbid questions.
//  2. closed engagement or short verbosity: prefer statement from {statement, acknowledgment, observation}.
//  3. silence events: over 30s allow {observation, statement} preferring observation, else only acknowledgment.
//  4. tired/down prefer observation, stressed/frustrated prefer acknowledgment, both forbid questions;
//     upbeat re-allows questions unless an earlier rule forbade them.
//  5. nothing allowed yet: {statement, observation, acknowledgment}, plus question when off cooldown and not short.
//
// Rules 2 and 3 describe what the user gave us and win over rule 4 for the
// preferred action; rule 4 only picks one when neither structural rule did.
func Decide(s State, in Input) Decision {
	verbosity := in.Verbosity
	if verbosity == "" {
		verbosity = s.LastVerbosity
	}

	d := &decider{
		forbidden:  make(map[Action]bool),
		hardForbid: make(map[Action]bool),
	}

	// Rule 1
	recent := s.Recent()
	lastTwoQuestions := len(recent) >= 2 && recent[len(recent)-1] == Question && recent[len(recent)-2] == Question
	switch {
	case s.QuestionCooldown > 0:
		d.forbid(Question, true, "question_cooldown")
	case s.Last() == Question:
		d.forbid(Question, true, "previous_question")
	case lastTwoQuestions:
		d.forbid(Question, true, "consecutive_questions")
	}
	if in.Engagement == signal.EngagementClosed {
		d.forbid(Question, true, "closed_engagement")
	}

	// Rule 3 runs ahead of rule 2 for the preferred slot: a silence event has no
	// utterance, so its structure comes from the silence itself.
	if in.Silent {
		if in.Silence > SilenceThreshold {
			d.allowed = []Action{Observation, Statement}
			d.forbid(Question, true, "long_silence")
			d.prefer(Observation)
		} else {
			d.allowed = []Action{Acknowledgment}
			d.reasons = append(d.reasons, "short_silence")
			d.prefer(Acknowledgment)
		}
	} else if in.Engagement == signal.EngagementClosed || verbosity == signal.VerbosityShort {
		// Rule 2
		d.allowed = []Action{Statement, Acknowledgment, Observation}
		d.forbid(Question, true, "closed_or_short")
		d.prefer(Statement)
	}

	// Rule 4
	reallowQuestion := false
	switch {
	case in.Emotion.IsLow():
		d.forbid(Question, false, "low_mood")
		d.prefer(Observation)
	case in.Emotion.IsTense():
		d.forbid(Question, false, "tense_mood")
		d.prefer(Acknowledgment)
	case in.Emotion == signal.Upbeat:
		if !d.hardForbid[Question] {
			delete(d.forbidden, Question)
			reallowQuestion = true
			d.reasons = append(d.reasons, "upbeat_reallow_question")
		}
	}

	// Rule 5
	if len(d.allowed) == 0 {
		d.allowed = []Action{Statement, Observation, Acknowledgment}
		if s.QuestionCooldown == 0 && verbosity != signal.VerbosityShort && !d.forbidden[Question] {
			d.allowed = append(d.allowed, Question)
		}
	}
	if reallowQuestion && !containsAction(d.allowed, Question) && !d.hardForbid[Question] && !in.Silent {
		d.allowed = append(d.allowed, Question)
	}

	if !d.preferredSet && in.Engagement == signal.EngagementOpen && containsAction(d.allowed, Question) && !d.forbidden[Question] {
		d.prefer(Question)
	}
	d.prefer(Statement)

	return finalize(d.allowed, d.forbidden, d.preferred, d.reasons)
}

// finalize removes forbidden actions from allowed, falls back to {statement}
// when nothing is left, and keeps preferred inside allowed.
func finalize(allowed []Action, forbidden map[Action]bool, preferred Action, reasons []string) Decision {
	out := make([]Action, 0, len(allowed))
	for _, a := range allowed {
		if !forbidden[a] && !containsAction(out, a) {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		out = []Action{Statement}
		reasons = append(reasons, "empty_allowed_fallback")
	}

	if !containsAction(out, preferred) || forbidden[preferred] {
		preferred = out[0]
	}

	var forbid []Action
	for _, a := range []Action{Question, Statement, Acknowledgment, Observation} {
		if forbidden[a] {
			forbid = append(forbid, a)
		}
	}

	return Decision{
		Allowed:   out,
		Forbidden: forbid,
		Preferred: preferred,
		Reasons:   reasons,
	}
}

func containsAction(list []Action, a Action) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
