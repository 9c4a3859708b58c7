// Package policy is the rule-based dialogue state machine that decides which
// reply categories the companion may use this turn.
package policy

import (
	"fmt"
	"time"

	"github.com/cyberFlowTech/zapry-companion-go/signal"
)

// Action is a reply category.
type Action string

const (
	Question       Action = "question"
	Statement      Action = "statement"
	Acknowledgment Action = "acknowledgment"
	Observation    Action = "observation"
)

const (
	// QuestionCooldown is the number of turns questions stay forbidden after one is asked.
	QuestionCooldown = 5
	// SilenceThreshold separates a long silence from a short pause.
	SilenceThreshold = 30 * time.Second

	historySize = 3
	maxTopics   = 5
)

// State is the dialogue policy state carried from turn to turn.
// It is a value type: Advance returns a new State.
type State struct {
	recent   [historySize]Action
	count    int // number of actions ever pushed, caps at historySize for reads
	cooldown int // turns a question forbids further questions, 0 = QuestionCooldown

	LastVerbosity    signal.Verbosity `json:"last_verbosity"`
	QuestionCooldown int              `json:"question_cooldown"`
	RecentTopics     []string         `json:"recent_topics,omitempty"`
}

// NewState returns the initial policy state.
func NewState() State {
	return State{LastVerbosity: signal.VerbosityMedium}
}

// NewStateWithCooldown returns the initial state with a custom question
// cooldown. n <= 0 uses QuestionCooldown.
func NewStateWithCooldown(n int) State {
	s := NewState()
	if n > 0 {
		s.cooldown = n
	}
	return s
}

// Recent returns the last actions, oldest first.
func (s State) Recent() []Action {
	n := s.count
	if n > historySize {
		n = historySize
	}
	out := make([]Action, 0, n)
	for i := n; i >= 1; i-- {
		out = append(out, s.recent[(s.count-i)%historySize])
	}
	return out
}

// Last returns the most recent action, or "" if none.
func (s State) Last() Action {
	if s.count == 0 {
		return ""
	}
	return s.recent[(s.count-1)%historySize]
}

// AskedRecently reports whether topic is among the recently asked topics.
func (s State) AskedRecently(topic string) bool {
	if topic == "" {
		return false
	}
	for _, t := range s.RecentTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// Advance records the action taken this turn.
//
// The action goes into the 3-slot ring buffer, the question cooldown is set
// to 5 after a question and otherwise counts down toward 0, and verbosity is
// reclassified from the latest message. An empty utterance (silence event)
// keeps the previous verbosity. topic is remembered when a question was asked.
func (s State) Advance(taken Action, latestUtterance string, topic string) State {
	next := s
	next.recent[next.count%historySize] = taken
	next.count++
	if next.count > 2*historySize {
		// keep the index small while preserving position mod historySize
		next.count = historySize + next.count%historySize
	}

	if taken == Question {
		next.QuestionCooldown = QuestionCooldown
		if s.cooldown > 0 {
			next.QuestionCooldown = s.cooldown
		}
		if topic != "" && !s.AskedRecently(topic) {
			topics := append(append([]string{}, s.RecentTopics...), topic)
			if len(topics) > maxTopics {
				topics = topics[len(topics)-maxTopics:]
			}
			next.RecentTopics = topics
		}
	} else if next.QuestionCooldown > 0 {
		next.QuestionCooldown--
	}

	if signal.WordCount(latestUtterance) > 0 {
		next.LastVerbosity = signal.ClassifyVerbosity(latestUtterance)
	}
	return next
}

func (s State) String() string {
	return fmt.Sprintf("recent=%v cooldown=%d verbosity=%s", s.Recent(), s.QuestionCooldown, s.LastVerbosity)
}
