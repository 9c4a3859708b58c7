package signal

import "strings"

// ──────────────────────────────────────────────
// Engagement + verbosity: word-count and phrase-table driven
// ──────────────────────────────────────────────

const (
	closedMaxWords       = 2
	closedPhraseMaxWords = 3
	openMinWords         = 15
	openVocabMinWords    = 5

	shortMaxWords = 4
	longMinWords  = 25
)

// closedPhrases are replies that shut a thread down when they make up most of a short message.
var closedPhrases = []string{
	"ok", "okay", "k", "kk", "fine", "sure", "whatever", "idk", "nope", "yeah", "yep", "yup", "no",
	"not really", "i guess", "nothing much", "cool", "mhm", "hmm", "meh", "nm", "nvm", "same",
	"all good", "i'm fine", "im fine", "it's fine", "its fine", "not much",
}

// openVocabulary marks emotional or explanatory content worth following.
var openVocabulary = []string{
	"because", "feel", "feeling", "felt", "think", "thought", "honestly", "actually", "since",
	"i mean", "excited", "worried", "wish", "remember", "realized", "wondering", "story", "why",
	"love", "afraid", "hope", "guess what", "so that",
}

// ClassifyEngagement decides how much the user invites continued interaction.
//
// Two words or fewer, or three words or fewer that match a closed phrase,
// read as closed. More than fifteen words, or more than five words with
// emotional/explanatory vocabulary, read as open. Everything else is neutral.
func ClassifyEngagement(utterance string) Engagement {
	words := tokenize(utterance)
	n := len(words)
	text := " " + strings.Join(words, " ") + " "

	switch {
	case n <= closedMaxWords:
		return EngagementClosed
	case n <= closedPhraseMaxWords && matchAny(text, closedPhrases):
		return EngagementClosed
	case n > openMinWords:
		return EngagementOpen
	case n > openVocabMinWords && matchAny(text, openVocabulary):
		return EngagementOpen
	default:
		return EngagementNeutral
	}
}

// ClassifyVerbosity buckets the latest message by word count.
func ClassifyVerbosity(utterance string) Verbosity {
	n := len(tokenize(utterance))
	switch {
	case n <= shortMaxWords:
		return VerbosityShort
	case n > longMinWords:
		return VerbosityLong
	default:
		return VerbosityMedium
	}
}

// WordCount returns the number of words ClassifyEngagement sees.
func WordCount(utterance string) int {
	return len(tokenize(utterance))
}
