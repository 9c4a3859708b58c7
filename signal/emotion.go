package signal

import (
	"strings"
	"unicode"
)

// ──────────────────────────────────────────────
// Emotion classifier: lexical cue tables + fixed per-label scoring
// ──────────────────────────────────────────────

const (
	// neutralBaseline is the score neutral starts with, so a message without
	// any cue still resolves to neutral.
	neutralBaseline = 0.3
	// minWinningScore below which the reading is forced to neutral.
	minWinningScore = 0.4
	// ambiguityGap: top two scores closer than this are penalised.
	ambiguityGap = 0.2

	silentConfidence   = 0.3
	weakPenalty        = 0.7
	ambiguityPenalty   = 0.8
	closedStreakMin    = 3
	shortStreakMin     = 3
	negationLookbehind = 2
)

// Lexicon holds the phrase tables the classifier matches against.
// Entries are lower-case; multi-word entries match on word boundaries.
type Lexicon struct {
	Negation    []string
	Hedging     []string
	Profanity   []string
	Workload    []string
	Fatigue     []string
	Sadness     []string
	Positive    []string
	Calm        []string
	Focus       []string
	Frustration []string
	Stress      []string
}

// DefaultLexicon returns the built-in English cue tables.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Negation:  []string{"not", "no", "never", "don't", "dont", "can't", "cant", "isn't", "isnt", "wasn't", "won't", "nothing", "hardly"},
		Hedging:   []string{"maybe", "i guess", "kinda", "kind of", "sort of", "idk", "perhaps", "probably", "i suppose", "not sure", "dunno"},
		Profanity: []string{"damn", "shit", "fuck", "fucking", "wtf", "crap", "hell", "bs", "pissed"},
		Workload: []string{"deadline", "deadlines", "work", "meeting", "meetings", "exam", "exams", "busy", "project",
			"boss", "overtime", "due", "shift", "homework", "inbox", "tasks"},
		Fatigue: []string{"tired", "exhausted", "sleepy", "drained", "worn out", "long day", "yawn", "no energy",
			"can't sleep", "cant sleep", "need sleep", "beat", "knackered"},
		Sadness: []string{"sad", "lonely", "down", "miss", "cry", "crying", "upset", "hurt", "depressed", "empty",
			"alone", "heartbroken", "blue"},
		Positive: []string{"great", "awesome", "happy", "excited", "love", "yay", "nice", "amazing", "haha", "lol",
			"good", "fantastic", "glad", "wonderful", "fun"},
		Calm:        []string{"relaxed", "chill", "chilling", "peaceful", "calm", "cozy", "quiet", "slow morning", "at ease"},
		Focus:       []string{"working on", "coding", "studying", "focus", "focused", "concentrating", "in the zone", "writing", "debugging"},
		Frustration: []string{"annoying", "annoyed", "ugh", "hate", "stupid", "sick of", "fed up", "seriously", "ridiculous", "whatever"},
		Stress:      []string{"stressed", "anxious", "overwhelmed", "panic", "worried", "pressure", "too much", "freaking out", "nervous"},
	}
}

// ScoreTable maps each cue tag to the weight it adds to each label.
type ScoreTable map[Tag]map[Emotion]float64

// DefaultScoreTable returns the fixed per-label scoring table.
func DefaultScoreTable() ScoreTable {
	return ScoreTable{
		TagFatigue:         {Tired: 0.6},
		TagSadness:         {Down: 0.6},
		TagPositive:        {Upbeat: 0.5},
		TagNegatedPositive: {Down: 0.3, Frustrated: 0.1},
		TagCalm:            {Calm: 0.5},
		TagFocus:           {Focused: 0.5},
		TagFrustration:     {Frustrated: 0.5},
		TagStress:          {Stressed: 0.6},
		TagWorkload:        {Stressed: 0.3, Focused: 0.2},
		TagProfanity:       {Frustrated: 0.4, Stressed: 0.1},
		TagExclamation:     {Upbeat: 0.2, Frustrated: 0.15},
		TagNegation:        {Down: 0.1, Frustrated: 0.1},
		TagHedging:         {Down: 0.1, Tired: 0.05, Stressed: 0.05},
		TagLateNight:       {Tired: 0.3},
		TagEarlyMorning:    {Tired: 0.15},
		TagClosedStreak:    {Tired: 0.2, Down: 0.15},
		TagShortStreak:     {Tired: 0.1, Down: 0.05},
		TagTerse:           {Tired: 0.1},
	}
}

// EmotionClassifier scores utterances against a Lexicon and ScoreTable.
type EmotionClassifier struct {
	lexicon Lexicon
	table   ScoreTable
}

// NewEmotionClassifier creates a classifier with the built-in tables.
func NewEmotionClassifier() *EmotionClassifier {
	return &EmotionClassifier{
		lexicon: DefaultLexicon(),
		table:   DefaultScoreTable(),
	}
}

// NewEmotionClassifierWith creates a classifier with custom tables.
func NewEmotionClassifierWith(lex Lexicon, table ScoreTable) *EmotionClassifier {
	return &EmotionClassifier{lexicon: lex, table: table}
}

var defaultEmotionClassifier = NewEmotionClassifier()

// ClassifyEmotion classifies an utterance with the built-in tables.
func ClassifyEmotion(utterance string, kind ReplyKind, ctx Context) Reading {
	return defaultEmotionClassifier.Classify(utterance, kind, ctx)
}

// Classify attributes an emotion to the utterance.
//
// The highest scoring label wins with confidence min(1, score*(1+0.1*tags)).
// A winning score under 0.4 is forced to neutral at 70% confidence, and a
// runner-up within 0.2 of the winner costs another 20%.
func (c *EmotionClassifier) Classify(utterance string, kind ReplyKind, ctx Context) Reading {
	words := tokenize(utterance)
	if kind == ReplySilence || len(words) == 0 {
		return Reading{Label: Neutral, Confidence: silentConfidence}
	}

	tags := c.detectTags(utterance, words, ctx)

	scores := make(map[Emotion]float64, len(Emotions))
	for _, e := range Emotions {
		scores[e] = 0
	}
	scores[Neutral] = neutralBaseline
	for _, tag := range tags {
		for e, w := range c.table[tag] {
			scores[e] += w
		}
	}

	top, second := Neutral, Emotion("")
	for _, e := range Emotions {
		if scores[e] > scores[top] {
			second = top
			top = e
		} else if e != top && (second == "" || scores[e] > scores[second]) {
			second = e
		}
	}

	topScore := scores[top]
	confidence := clamp01(topScore * (1 + 0.1*float64(len(tags))))
	label := top

	if topScore < minWinningScore {
		label = Neutral
		confidence *= weakPenalty
	}
	if second != "" && topScore-scores[second] < ambiguityGap {
		confidence *= ambiguityPenalty
	}

	return Reading{
		Label:      label,
		Confidence: clamp01(confidence),
		Tags:       tags,
		Scores:     scores,
	}
}

func (c *EmotionClassifier) detectTags(raw string, words []string, ctx Context) []Tag {
	var tags []Tag
	add := func(t Tag, ok bool) {
		if ok {
			tags = append(tags, t)
		}
	}

	text := " " + strings.Join(words, " ") + " "
	lex := c.lexicon

	negated := negatedPositive(words, lex)
	add(TagNegatedPositive, negated)
	add(TagPositive, !negated && matchAny(text, lex.Positive))
	add(TagNegation, !negated && matchAny(text, lex.Negation))
	add(TagHedging, matchAny(text, lex.Hedging))
	add(TagProfanity, matchAny(text, lex.Profanity))
	add(TagWorkload, matchAny(text, lex.Workload))
	add(TagFatigue, matchAny(text, lex.Fatigue))
	add(TagSadness, matchAny(text, lex.Sadness))
	add(TagCalm, matchAny(text, lex.Calm))
	add(TagFocus, matchAny(text, lex.Focus))
	add(TagFrustration, matchAny(text, lex.Frustration))
	add(TagStress, matchAny(text, lex.Stress))

	exclam := strings.Count(raw, "!") + strings.Count(raw, "！")
	add(TagExclamation, exclam >= 2 || (exclam == 1 && len(words) <= 3))

	if !ctx.Now.IsZero() {
		h := ctx.Now.Hour()
		add(TagLateNight, h >= 23 || h < 5)
		add(TagEarlyMorning, h >= 5 && h < 7)
	}
	add(TagClosedStreak, ctx.ClosedReplies >= closedStreakMin)
	add(TagShortStreak, ctx.ShortReplies >= shortStreakMin)
	add(TagTerse, len(words) <= 2)

	return tags
}

// negatedPositive reports a positive word preceded closely by a negation ("not great").
func negatedPositive(words []string, lex Lexicon) bool {
	for i, w := range words {
		if !contains(lex.Positive, w) {
			continue
		}
		for j := i - 1; j >= 0 && j >= i-negationLookbehind; j-- {
			if contains(lex.Negation, words[j]) {
				return true
			}
		}
	}
	return false
}

func matchAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, " "+p+" ") {
			return true
		}
	}
	return false
}

func contains(list []string, w string) bool {
	for _, x := range list {
		if x == w {
			return true
		}
	}
	return false
}

// tokenize lower-cases and splits on anything that is not a letter, digit or apostrophe.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
