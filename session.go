package companion

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyberFlowTech/zapry-companion-go/persona"
	"github.com/cyberFlowTech/zapry-companion-go/signal"
	"github.com/cyberFlowTech/zapry-companion-go/store"
)

// ──────────────────────────────────────────────
// Session tracker: turn counters and streaks
// ──────────────────────────────────────────────

// SessionState is the per-turn session metadata, computed without any
// model call. NewSession reports that a gap since the previous reply
// started a fresh session; the first session of a process is not reported.
type SessionState struct {
	TurnIndex     int           `json:"turn_index"`     // turns in this session, silence events included
	TotalTurns    int           `json:"total_turns"`    // lifetime user replies, persisted
	TotalSessions int           `json:"total_sessions"` // persisted
	NewSession    bool          `json:"new_session"`
	IsFollowUp    bool          `json:"is_followup"`
	Duration      time.Duration `json:"session_duration"`

	// PriorClosed and PriorShort count consecutive closed/short replies
	// before this turn. ClosedStreak includes this turn.
	PriorClosed  int `json:"prior_closed"`
	PriorShort   int `json:"prior_short"`
	ClosedStreak int `json:"closed_streak"`

	StreakDays int             `json:"streak_days"`
	TimeOfDay  persona.Bracket `json:"time_of_day"`
	LocalTime  time.Time       `json:"local_time"`
}

const (
	counterTotalTurns    = "total_turns"
	counterTotalSessions = "total_sessions"
	keyStreak            = "streak"
)

// streakMeta is persisted as JSON under keyStreak.
type streakMeta struct {
	LastDay string `json:"last_day"` // YYYY-MM-DD
	Days    int    `json:"days"`
}

// SessionTracker computes SessionState for each turn and persists the
// lifetime counters.
type SessionTracker struct {
	store          store.Store
	followUpWindow time.Duration
	sessionGap     time.Duration
	log            zerolog.Logger

	mu           sync.Mutex
	turnIndex    int
	startedAt    time.Time
	lastActivity time.Time
	closed       int
	short        int
	streak       streakMeta
	loaded       bool
}

// NewSessionTracker creates a tracker over st. A silence longer than
// sessionGap between user replies starts a new session; 0 means 30 minutes.
func NewSessionTracker(st store.Store, sessionGap time.Duration, logger zerolog.Logger) *SessionTracker {
	if sessionGap <= 0 {
		sessionGap = 30 * time.Minute
	}
	return &SessionTracker{
		store:          st,
		followUpWindow: 60 * time.Second,
		sessionGap:     sessionGap,
		log:            logger.With().Str("component", "session").Logger(),
	}
}

// Track records one turn. engagement and verbosity are the classes of the
// current reply; a silence event leaves the reply counters and streaks
// untouched.
func (t *SessionTracker) Track(ctx context.Context, now time.Time, kind signal.ReplyKind, engagement signal.Engagement, verbosity signal.Verbosity) SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.loadLocked(ctx)
	silent := kind == signal.ReplySilence

	st := SessionState{
		PriorClosed: t.closed,
		PriorShort:  t.short,
		TimeOfDay:   persona.TimeBracket(now.Hour()),
		LocalTime:   now,
	}

	if !silent {
		if t.lastActivity.IsZero() || now.Sub(t.lastActivity) > t.sessionGap {
			st.NewSession = !t.lastActivity.IsZero()
			t.turnIndex = 0
			t.startedAt = now
			t.closed, t.short = 0, 0
			st.PriorClosed, st.PriorShort = 0, 0
			t.bump(ctx, counterTotalSessions)
		}
		st.IsFollowUp = !t.lastActivity.IsZero() && now.Sub(t.lastActivity) <= t.followUpWindow
		t.lastActivity = now

		if engagement == signal.EngagementClosed {
			t.closed++
		} else {
			t.closed = 0
		}
		if verbosity == signal.VerbosityShort {
			t.short++
		} else {
			t.short = 0
		}
		t.bump(ctx, counterTotalTurns)
		t.touchStreakLocked(ctx, now)
	}
	if t.startedAt.IsZero() {
		t.startedAt = now
	}

	t.turnIndex++
	st.TurnIndex = t.turnIndex
	st.Duration = now.Sub(t.startedAt)
	st.ClosedStreak = t.closed
	st.StreakDays = t.streak.Days
	st.TotalTurns = int(t.counter(ctx, counterTotalTurns))
	st.TotalSessions = int(t.counter(ctx, counterTotalSessions))
	return st
}

// LastActivity returns the time of the last user reply.
func (t *SessionTracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

func (t *SessionTracker) loadLocked(ctx context.Context) {
	if t.loaded {
		return
	}
	t.loaded = true
	raw, err := t.store.Get(ctx, keyStreak)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			t.log.Warn().Err(err).Msg("load streak failed, starting fresh")
		}
		return
	}
	var meta streakMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		t.log.Warn().Err(err).Msg("corrupt streak, starting fresh")
		return
	}
	t.streak = meta
}

// touchStreakLocked extends the day streak when now falls on the day after
// the last active day and restarts it after a gap.
func (t *SessionTracker) touchStreakLocked(ctx context.Context, now time.Time) {
	today := localDay(now)
	if t.streak.LastDay == today {
		return
	}
	yesterday := localDay(now.AddDate(0, 0, -1))
	if t.streak.LastDay == yesterday {
		t.streak.Days++
	} else {
		t.streak.Days = 1
	}
	t.streak.LastDay = today

	data, _ := json.Marshal(t.streak)
	if err := t.store.Set(ctx, keyStreak, string(data)); err != nil {
		t.log.Warn().Err(err).Msg("persist streak failed")
	}
}

func (t *SessionTracker) bump(ctx context.Context, name string) {
	if _, err := t.store.IncrCounter(ctx, name); err != nil {
		t.log.Warn().Err(err).Str("counter", name).Msg("persist counter failed")
	}
}

func (t *SessionTracker) counter(ctx context.Context, name string) int64 {
	n, err := t.store.Counter(ctx, name)
	if err != nil {
		t.log.Warn().Err(err).Str("counter", name).Msg("read counter failed")
		return 0
	}
	return n
}
