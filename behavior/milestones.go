package behavior

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ──────────────────────────────────────────────
// Count-driven milestones and streaks
// ──────────────────────────────────────────────

// Default thresholds.
var (
	DefaultTurnMilestones = []int{10, 50, 100, 250, 500, 1000}
	DefaultStreakDays     = []int{3, 7, 14, 30, 100}
)

// CelebratedStore persists the set of thresholds already celebrated.
type CelebratedStore interface {
	Members(ctx context.Context, set string) ([]string, error)
	AddMembers(ctx context.Context, set string, members ...string) error
}

const celebratedSet = "celebrated"

// Milestones fires each turn-count and streak threshold at most once ever.
type Milestones struct {
	turns  []int
	streak []int
	pools  *Pools
	store  CelebratedStore
	log    zerolog.Logger

	mu   sync.Mutex
	done map[string]bool
}

// NewMilestones creates a tracker. Nil threshold slices use the defaults.
func NewMilestones(turns, streak []int, pools *Pools, store CelebratedStore, logger zerolog.Logger) *Milestones {
	if turns == nil {
		turns = DefaultTurnMilestones
	}
	if streak == nil {
		streak = DefaultStreakDays
	}
	return &Milestones{
		turns:  sortedCopy(turns),
		streak: sortedCopy(streak),
		pools:  pools,
		store:  store,
		log:    logger.With().Str("component", "milestones").Logger(),
		done:   make(map[string]bool),
	}
}

func sortedCopy(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	return out
}

func milestoneKey(k Kind, n int) string {
	return string(k) + ":" + strconv.Itoa(n)
}

// Load reads the celebrated set. A failed or corrupt read starts from an
// empty set.
func (m *Milestones) Load(ctx context.Context) {
	if m.store == nil {
		return
	}
	members, err := m.store.Members(ctx, celebratedSet)
	if err != nil {
		m.log.Warn().Err(err).Msg("load celebrated set failed, starting empty")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range members {
		if kind, n, ok := strings.Cut(key, ":"); ok {
			if _, err := strconv.Atoi(n); err == nil && (Kind(kind) == Milestone || Kind(kind) == Streak) {
				m.done[key] = true
			}
		}
	}
}

// Celebrated reports whether the threshold n of kind k was celebrated.
func (m *Milestones) Celebrated(k Kind, n int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done[milestoneKey(k, n)]
}

// Candidates returns a candidate for the highest uncelebrated turn threshold
// at or below totalTurns and one for the streak, if any. Delivering a
// candidate marks its threshold and every lower one as celebrated.
func (m *Milestones) Candidates(totalTurns, streakDays int) []Candidate {
	var out []Candidate
	if c, ok := m.candidate(Milestone, m.turns, totalTurns); ok {
		out = append(out, c)
	}
	if c, ok := m.candidate(Streak, m.streak, streakDays); ok {
		out = append(out, c)
	}
	return out
}

func (m *Milestones) candidate(k Kind, thresholds []int, value int) (Candidate, bool) {
	m.mu.Lock()
	var (
		hit     = -1
		pending []string
	)
	for _, n := range thresholds {
		if n > value {
			break
		}
		key := milestoneKey(k, n)
		if !m.done[key] {
			hit = n
			pending = append(pending, key)
		}
	}
	m.mu.Unlock()

	if hit < 0 {
		return Candidate{}, false
	}
	text := ""
	if m.pools != nil {
		if line, ok := m.pools.Pick(k, nil); ok {
			text = Render(line.Text, hit)
		}
	}
	return Candidate{
		Kind:        k,
		Shape:       k.Shape(),
		Probability: 1,
		Text:        text,
		onDeliver: func(ctx context.Context) {
			m.mark(ctx, pending...)
		},
	}, true
}

func (m *Milestones) mark(ctx context.Context, keys ...string) {
	m.mu.Lock()
	for _, key := range keys {
		m.done[key] = true
	}
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	if err := m.store.AddMembers(ctx, celebratedSet, keys...); err != nil {
		m.log.Warn().Err(err).Strs("keys", keys).Msg("persist celebrated failed")
	}
}
