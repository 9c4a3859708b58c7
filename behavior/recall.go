package behavior

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cyberFlowTech/zapry-companion-go/signal"
)

// ──────────────────────────────────────────────
// Trigger-driven proactive recall
// ──────────────────────────────────────────────

// Trigger names what caused a recall attempt.
//
// Idle and event-poll triggers fire into a conversation the user may still
// be in and must wait RecallConfig.MinSinceActivity after the last user
// activity. Boot fires before any activity exists, and closed-streak fires
// from the turn path in reply to the user, so neither waits. Every trigger
// is subject to the session and day caps and fires at most once per session.
type Trigger string

const (
	TriggerBoot         Trigger = "boot"
	TriggerIdle         Trigger = "idle"
	TriggerEventPoll    Trigger = "event_poll"
	TriggerClosedStreak Trigger = "closed_streak"
)

// Triggers lists every trigger.
var Triggers = []Trigger{TriggerBoot, TriggerIdle, TriggerEventPoll, TriggerClosedStreak}

// interrupting reports whether tr must respect the activity threshold.
func (tr Trigger) interrupting() bool {
	return tr == TriggerIdle || tr == TriggerEventPoll
}

// Outcome is the result of a recall attempt. Anything other than Fired means
// nothing was consumed.
type Outcome string

const (
	Fired              Outcome = "fired"
	SkippedDisabled    Outcome = "memory_disabled"
	SkippedActivity    Outcome = "recent_activity"
	SkippedTriggerUsed Outcome = "trigger_used"
	SkippedSessionCap  Outcome = "session_cap"
	SkippedDayCap      Outcome = "day_cap"
	SkippedDamped      Outcome = "damped"
	SkippedRateLimited Outcome = "rate_limited"
	SkippedFetchFailed Outcome = "fetch_failed"
	SkippedEmpty       Outcome = "empty"
	SkippedCancelled   Outcome = "cancelled"
	SkippedUndelivered Outcome = "undelivered"
)

// RecallSource fetches recall content from the external memory/profile
// store. It may block on the network and must honor ctx.
type RecallSource interface {
	Recall(ctx context.Context, tr Trigger) (string, error)
}

// RecallSourceFunc adapts a function to RecallSource.
type RecallSourceFunc func(ctx context.Context, tr Trigger) (string, error)

func (f RecallSourceFunc) Recall(ctx context.Context, tr Trigger) (string, error) {
	return f(ctx, tr)
}

// DayCounter persists the daily recall count.
type DayCounter interface {
	DayCount(ctx context.Context, name, day string) (int64, error)
	IncrDay(ctx context.Context, name, day string) (int64, error)
}

// RecallConfig holds the recall caps and thresholds.
type RecallConfig struct {
	SessionCap int
	DayCap     int
	// MinSinceActivity is how long the user must have been quiet before an
	// idle or poll trigger may interrupt.
	MinSinceActivity time.Duration
	// Damping is the suppression probability while the user reads stressed,
	// tired or down.
	Damping float64
	// FetchEvery and FetchBurst bound calls into the RecallSource.
	FetchEvery time.Duration
	FetchBurst int
}

// DefaultRecallConfig returns the standard caps.
func DefaultRecallConfig() RecallConfig {
	return RecallConfig{
		SessionCap:       2,
		DayCap:           5,
		MinSinceActivity: 20 * time.Second,
		Damping:          0.5,
		FetchEvery:       10 * time.Second,
		FetchBurst:       2,
	}
}

// Recaller gates proactive recall on triggers, caps, user activity and mood.
type Recaller struct {
	cfg     RecallConfig
	source  RecallSource
	ledger  *Ledger
	rng     Rand
	now     func() time.Time
	limiter *rate.Limiter
	counter DayCounter
	log     zerolog.Logger

	mu            sync.Mutex
	lastActivity  time.Time
	memoryEnabled bool
}

// RecallerOption configures a Recaller.
type RecallerOption func(*Recaller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RecallerOption {
	return func(r *Recaller) { r.now = now }
}

// WithRand overrides the random source used for damping.
func WithRand(rng Rand) RecallerOption {
	return func(r *Recaller) { r.rng = rng }
}

// WithDayCounter persists daily counts through c.
func WithDayCounter(c DayCounter) RecallerOption {
	return func(r *Recaller) { r.counter = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) RecallerOption {
	return func(r *Recaller) { r.log = l }
}

// NewRecaller creates a recaller. Memory starts enabled.
func NewRecaller(cfg RecallConfig, source RecallSource, ledger *Ledger, opts ...RecallerOption) *Recaller {
	r := &Recaller{
		cfg:           cfg,
		source:        source,
		ledger:        ledger,
		now:           time.Now,
		log:           zerolog.Nop(),
		memoryEnabled: true,
	}
	for _, o := range opts {
		o(r)
	}
	if r.rng == nil {
		r.rng = NewRand(seedNow())
	}
	every := rate.Inf
	if cfg.FetchEvery > 0 {
		every = rate.Every(cfg.FetchEvery)
	}
	burst := cfg.FetchBurst
	if burst <= 0 {
		burst = 1
	}
	r.limiter = rate.NewLimiter(every, burst)
	r.log = r.log.With().Str("component", "recaller").Logger()
	return r
}

// Restore seeds today's count from the persisted counter. A failed read
// starts the day from zero.
func (r *Recaller) Restore(ctx context.Context) {
	if r.counter == nil {
		return
	}
	day := r.now().Format("2006-01-02")
	n, err := r.counter.DayCount(ctx, string(ProactiveRecall), day)
	if err != nil {
		r.log.Warn().Err(err).Msg("restore day count failed, starting from zero")
		return
	}
	r.ledger.RestoreDay(day, int(n))
}

// SetMemoryEnabled toggles the global memory flag. Disabled memory
// suppresses every recall.
func (r *Recaller) SetMemoryEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memoryEnabled = on
}

// NoteActivity records user activity at t.
func (r *Recaller) NoteActivity(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.After(r.lastActivity) {
		r.lastActivity = t
	}
}

// LastActivity returns the last recorded user activity.
func (r *Recaller) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// Recall is a prepared recall. When Outcome is Fired it holds a reservation
// that must be resolved with Commit after delivery or Cancel otherwise.
type Recall struct {
	Trigger Trigger
	Text    string
	Outcome Outcome

	r     *Recaller
	claim *Claim
}

// Fired reports whether the recall is ready to deliver.
func (rc Recall) Fired() bool { return rc.Outcome == Fired }

// Commit consumes the reservation and persists the day count.
func (rc Recall) Commit(ctx context.Context) {
	if rc.claim == nil {
		return
	}
	rc.claim.Commit()
	if rc.r.counter != nil {
		if _, err := rc.r.counter.IncrDay(ctx, string(ProactiveRecall), rc.claim.day); err != nil {
			rc.r.log.Warn().Err(err).Msg("persist day count failed")
		}
	}
	rc.r.log.Info().Str("trigger", string(rc.Trigger)).
		Int("session", rc.r.ledger.SessionCount()).
		Int("day", rc.r.ledger.DayCount(rc.claim.day)).
		Msg("recall delivered")
}

// Cancel gives the reservation back.
func (rc Recall) Cancel() {
	if rc.claim != nil {
		rc.claim.Release()
	}
}

// Candidate wraps a fired recall for arbitration on the turn path.
func (rc Recall) Candidate() Candidate {
	return Candidate{
		Kind:        ProactiveRecall,
		Shape:       ProactiveRecall.Shape(),
		Probability: 1,
		Text:        rc.Text,
		onDeliver:   rc.Commit,
		onDrop:      rc.Cancel,
	}
}

// Prepare runs every gate for tr and, when they pass, fetches the recall
// text. Failure, timeout and cancellation of the fetch are "not fired":
// they are logged and consume nothing.
func (r *Recaller) Prepare(ctx context.Context, tr Trigger, mood signal.Emotion) Recall {
	out := Recall{Trigger: tr, r: r}
	now := r.now()

	r.mu.Lock()
	enabled, last := r.memoryEnabled, r.lastActivity
	r.mu.Unlock()

	if !enabled || r.source == nil {
		out.Outcome = SkippedDisabled
		return out
	}
	if tr.interrupting() && !last.IsZero() && now.Sub(last) < r.cfg.MinSinceActivity {
		out.Outcome = SkippedActivity
		return out
	}

	claim, why := r.ledger.Reserve(tr, now.Format("2006-01-02"), r.cfg.SessionCap, r.cfg.DayCap)
	if claim == nil {
		out.Outcome = why
		return out
	}
	fail := func(o Outcome) Recall {
		claim.Release()
		out.Outcome = o
		return out
	}

	if (mood.IsLow() || mood == signal.Stressed) && r.rng.Float64() < r.cfg.Damping {
		return fail(SkippedDamped)
	}
	if !r.limiter.AllowN(now, 1) {
		return fail(SkippedRateLimited)
	}

	text, err := r.source.Recall(ctx, tr)
	if ctxErr := ctx.Err(); ctxErr != nil {
		r.log.Debug().Str("trigger", string(tr)).Err(ctxErr).Msg("recall cancelled")
		return fail(SkippedCancelled)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fail(SkippedCancelled)
		}
		r.log.Warn().Str("trigger", string(tr)).Err(err).Msg("recall fetch failed")
		return fail(SkippedFetchFailed)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fail(SkippedEmpty)
	}

	out.Text = text
	out.Outcome = Fired
	out.claim = claim
	return out
}
