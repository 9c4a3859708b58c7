package behavior

import (
	"sync"

	"go.uber.org/atomic"
)

// ──────────────────────────────────────────────
// Ledger: cooldowns, recall caps, per-session trigger use
// ──────────────────────────────────────────────

// Ledger is the explicit state object behind every gate in this package.
// Session and day recall counters are shared between the turn path and
// timer-driven checks; they are only moved through Reserve and a Claim.
type Ledger struct {
	mu        sync.Mutex
	cooldowns map[Kind]int
	lastFired map[Kind]int
	triggers  map[Trigger]triggerUse

	session *atomic.Int32
	day     *atomic.Int32
	dayKey  *atomic.String
}

type triggerUse int

const (
	triggerFree triggerUse = iota
	triggerPending
	triggerUsed
)

// NewLedger creates a ledger. Kinds missing from cooldowns have no cooldown.
func NewLedger(cooldowns map[Kind]int) *Ledger {
	cd := make(map[Kind]int, len(cooldowns))
	for k, v := range cooldowns {
		cd[k] = v
	}
	return &Ledger{
		cooldowns: cd,
		lastFired: make(map[Kind]int),
		triggers:  make(map[Trigger]triggerUse),
		session:   atomic.NewInt32(0),
		day:       atomic.NewInt32(0),
		dayKey:    atomic.NewString(""),
	}
}

// Cooldown returns the cooldown in turns for k.
func (l *Ledger) Cooldown(k Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cooldowns[k]
}

// Ready reports whether k may fire on turn: it never fired, or at least
// its cooldown has elapsed since it last did. Turns must come from a counter
// that never resets; a turn below the last firing counts as ready.
func (l *Ledger) Ready(k Kind, turn int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	last, ok := l.lastFired[k]
	if !ok || turn < last {
		return true
	}
	return turn-last >= l.cooldowns[k]
}

// MarkFired records that k surfaced on turn.
func (l *Ledger) MarkFired(k Kind, turn int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastFired[k] = turn
}

// LastFired returns the turn k last fired on.
func (l *Ledger) LastFired(k Kind) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	turn, ok := l.lastFired[k]
	return turn, ok
}

// SessionCount is the number of recalls delivered this session.
func (l *Ledger) SessionCount() int {
	return int(l.session.Load())
}

// DayCount is the number of recalls delivered on day (YYYY-MM-DD).
func (l *Ledger) DayCount(day string) int {
	if l.dayKey.Load() != day {
		return 0
	}
	return int(l.day.Load())
}

// RestoreDay seeds the day counter from persisted state.
func (l *Ledger) RestoreDay(day string, count int) {
	l.dayKey.Store(day)
	l.day.Store(int32(count))
}

// TriggerUsed reports whether tr already delivered this session.
func (l *Ledger) TriggerUsed(tr Trigger) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.triggers[tr] == triggerUsed
}

// ResetSession clears session-scoped state. Day counts and cooldown history survive.
func (l *Ledger) ResetSession() {
	l.mu.Lock()
	l.triggers = make(map[Trigger]triggerUse)
	l.mu.Unlock()
	l.session.Store(0)
}

func (l *Ledger) rollDay(day string) {
	for {
		cur := l.dayKey.Load()
		if cur == day {
			return
		}
		if l.dayKey.CompareAndSwap(cur, day) {
			l.day.Store(0)
			return
		}
	}
}

// reserveSlot increments c unless it already reached max.
func reserveSlot(c *atomic.Int32, max int) bool {
	for {
		cur := c.Load()
		if int(cur) >= max {
			return false
		}
		if c.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Reserve takes one session slot, one day slot and the trigger for this
// session. It returns nil and the reason when any of them is unavailable.
// Nothing is consumed until the returned Claim is committed; Release gives
// every slot back.
func (l *Ledger) Reserve(tr Trigger, day string, sessionCap, dayCap int) (*Claim, Outcome) {
	l.mu.Lock()
	if l.triggers[tr] != triggerFree {
		l.mu.Unlock()
		return nil, SkippedTriggerUsed
	}
	l.triggers[tr] = triggerPending
	l.mu.Unlock()

	l.rollDay(day)

	if !reserveSlot(l.session, sessionCap) {
		l.freeTrigger(tr)
		return nil, SkippedSessionCap
	}
	if !reserveSlot(l.day, dayCap) {
		l.session.Dec()
		l.freeTrigger(tr)
		return nil, SkippedDayCap
	}
	return &Claim{ledger: l, trigger: tr, day: day}, Fired
}

func (l *Ledger) freeTrigger(tr Trigger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.triggers[tr] == triggerPending {
		delete(l.triggers, tr)
	}
}

// Claim is an outstanding recall reservation.
type Claim struct {
	ledger  *Ledger
	trigger Trigger
	day     string
	once    sync.Once
}

// Commit marks the reservation as delivered.
func (c *Claim) Commit() {
	c.once.Do(func() {
		c.ledger.mu.Lock()
		c.ledger.triggers[c.trigger] = triggerUsed
		c.ledger.mu.Unlock()
	})
}

// Release returns every reserved slot.
func (c *Claim) Release() {
	c.once.Do(func() {
		c.ledger.session.Dec()
		if c.ledger.dayKey.Load() == c.day {
			c.ledger.day.Dec()
		}
		c.ledger.freeTrigger(c.trigger)
	})
}
