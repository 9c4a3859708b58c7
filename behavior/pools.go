package behavior

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"
	"gopkg.in/yaml.v3"
)

// ──────────────────────────────────────────────
// Content pools
// ──────────────────────────────────────────────

// Line is one canned phrase. Topic is set for casual questions so that a
// recently asked topic can be skipped.
type Line struct {
	Text  string `yaml:"text" json:"text"`
	Topic string `yaml:"topic,omitempty" json:"topic,omitempty"`
}

// UnmarshalYAML accepts either a bare string or a {text, topic} mapping.
func (l *Line) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		l.Text = value.Value
		return nil
	}
	type plain Line
	return value.Decode((*plain)(l))
}

// Pools holds the phrase pools per kind and remembers the last pick so the
// same line is never returned twice in a row.
type Pools struct {
	mu    sync.Mutex
	lines map[Kind][]Line
	last  map[Kind]string
	rng   Rand
}

// NewPools creates pools from lines. A nil rng uses a time-seeded source.
func NewPools(lines map[Kind][]Line, rng Rand) *Pools {
	if rng == nil {
		rng = NewRand(seedNow())
	}
	p := &Pools{
		lines: make(map[Kind][]Line, len(lines)),
		last:  make(map[Kind]string),
		rng:   rng,
	}
	for k, ls := range lines {
		for _, l := range ls {
			if strings.TrimSpace(l.Text) != "" {
				p.lines[k] = append(p.lines[k], l)
			}
		}
	}
	return p
}

// DefaultPools returns the built-in phrase pools.
func DefaultPools(rng Rand) *Pools {
	return NewPools(defaultLines, rng)
}

// LoadPools reads a YAML pools file. Kinds present in the file replace the
// built-in pool for that kind; the others keep their defaults.
//
// Example:
//
//	idle_musing:
//	  - "I keep thinking about how clouds are just slow rivers."
//	casual_question:
//	  - text: "Any plans for the weekend?"
//	    topic: weekend
func LoadPools(path string, rng Rand) (*Pools, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pools file: %w", err)
	}
	var raw map[string][]Line
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse pools file %s: %w", path, err)
	}

	merged := make(map[Kind][]Line, len(defaultLines))
	for k, ls := range defaultLines {
		merged[k] = ls
	}
	for name, ls := range raw {
		k := Kind(name)
		if !knownKind(k) {
			return nil, fmt.Errorf("pools file %s: unknown kind %q", path, name)
		}
		merged[k] = ls
	}
	return NewPools(merged, rng), nil
}

func knownKind(k Kind) bool {
	for _, x := range Kinds {
		if x == k {
			return true
		}
	}
	return false
}

// Len returns how many lines kind k has.
func (p *Pools) Len(k Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lines[k])
}

// Pick returns a random line of kind k, skipping lines for which skip
// returns true and avoiding the previous pick when there is a choice.
func (p *Pools) Pick(k Kind, skip func(Line) bool) (Line, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var eligible []Line
	for _, l := range p.lines[k] {
		if skip != nil && skip(l) {
			continue
		}
		eligible = append(eligible, l)
	}
	if len(eligible) == 0 {
		return Line{}, false
	}
	if len(eligible) > 1 {
		fresh := eligible[:0:0]
		for _, l := range eligible {
			if l.Text != p.last[k] {
				fresh = append(fresh, l)
			}
		}
		if len(fresh) > 0 {
			eligible = fresh
		}
	}

	l := eligible[p.rng.Intn(len(eligible))]
	p.last[k] = l.Text
	return l, true
}

// Daily returns the line of kind k for day. The choice is stable for a
// given day and pool, and moves minimally when lines are added or removed.
func (p *Pools) Daily(k Kind, day string) (Line, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lines := p.lines[k]
	if len(lines) == 0 {
		return Line{}, false
	}
	nodes := make([]string, len(lines))
	for i := range lines {
		nodes[i] = strconv.Itoa(i)
	}
	pick := rendezvous.New(nodes, xxhash.Sum64String).Lookup(string(k) + ":" + day)
	i, err := strconv.Atoi(pick)
	if err != nil || i < 0 || i >= len(lines) {
		return lines[0], true
	}
	return lines[i], true
}

// Render substitutes {n} in a line with n.
func Render(text string, n int) string {
	return strings.ReplaceAll(text, "{n}", strconv.Itoa(n))
}

var defaultLines = map[Kind][]Line{
	IdleMusing: {
		{Text: "I was just thinking about how rain sounds different at night."},
		{Text: "Random thought: I wonder what the oldest song anyone still hums is."},
		{Text: "Sometimes I like how quiet it gets between messages."},
		{Text: "I keep coming back to the idea that clouds are just very slow rivers."},
	},
	CasualQuestion: {
		{Text: "Any plans for the weekend?", Topic: "weekend"},
		{Text: "Had anything good to eat today?", Topic: "food"},
		{Text: "What have you been listening to lately?", Topic: "music"},
		{Text: "Read or watched anything interesting recently?", Topic: "media"},
		{Text: "How's the sleep situation these days?", Topic: "sleep"},
	},
	PersonalQuirk: {
		{Text: "Confession: I always count the stairs when someone mentions stairs."},
		{Text: "I have a soft spot for words that sound like what they mean."},
		{Text: "I secretly rank every sunset I hear about."},
	},
	Comfort: {
		{Text: "I'm here, no rush."},
		{Text: "That sounds like a lot. Take whatever time you need."},
		{Text: "You don't have to have it all figured out tonight."},
	},
	SmallTalk: {
		{Text: "The week always feels longer in the middle somehow."},
		{Text: "It's the kind of day that feels like it should have a soundtrack."},
		{Text: "Tea weather, if you ask me."},
	},
	HiddenImpulse: {
		{Text: "I have an odd urge to talk about lighthouses today."},
		{Text: "For no reason at all I'm in a very noodle-ish mood."},
		{Text: "Something about today makes me want to reorganize a bookshelf."},
	},
	Milestone: {
		{Text: "We just passed {n} messages together. That's kind of nice."},
		{Text: "{n} conversations in. I've enjoyed every strange tangent."},
	},
	Streak: {
		{Text: "{n} days in a row now. I like this rhythm."},
		{Text: "That's {n} days straight we've talked."},
	},
	ProactiveRecall: {
		{Text: "By the way, I remembered something you mentioned earlier."},
	},
}
