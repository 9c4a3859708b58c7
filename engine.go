// Package companion is the per-turn behavior orchestration core of a
// conversational companion. For every user turn it classifies the reply,
// smooths the user's emotion, decides which reply categories are allowed,
// arbitrates at most one ambient behavior and synthesizes the identity the
// generation backend conditions on.
//
// Usage:
//
//	eng, err := companion.NewEngine(ctx, companion.DefaultConfig())
//	if err != nil { ... }
//	defer eng.Close()
//
//	b := eng.Turn(ctx, companion.TurnInput{Utterance: "long day, finally done"})
//	fmt.Println(b.Text())
package companion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/cyberFlowTech/zapry-companion-go/behavior"
	"github.com/cyberFlowTech/zapry-companion-go/persona"
	"github.com/cyberFlowTech/zapry-companion-go/policy"
	"github.com/cyberFlowTech/zapry-companion-go/signal"
	"github.com/cyberFlowTech/zapry-companion-go/store"
)

// ──────────────────────────────────────────────
// External collaborators
// ──────────────────────────────────────────────

// Message is one entry of the conversation history.
type Message struct {
	Role    string `json:"role"` // user | assistant | system
	Content string `json:"content"`
}

// GenerateRequest is what the generation backend receives.
type GenerateRequest struct {
	Instruction string    `json:"instruction"`
	History     []Message `json:"history"`
	Utterance   string    `json:"utterance"`
}

// Backend is the external text-generation backend.
type Backend interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req GenerateRequest) (string, error)

func (f BackendFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

// ──────────────────────────────────────────────
// Engine
// ──────────────────────────────────────────────

// TurnInput is one incoming user turn.
type TurnInput struct {
	Utterance string           `json:"utterance"`
	Kind      signal.ReplyKind `json:"kind,omitempty"` // default text
	// Silence is how long the user has been quiet; used for silence events.
	Silence time.Duration `json:"silence,omitempty"`
}

const (
	defaultClosedStreak = 3
	qualityAlpha        = 0.3
	maxReplyRetries     = 1
)

// Engine runs the turn pipeline. Turns are serialized; the timer path runs
// on its own goroutines and shares only the behavior ledger with turns.
type Engine struct {
	cfg     Config
	clock   Clock
	rng     behavior.Rand
	log     zerolog.Logger
	store   store.Store
	ownsSt  bool
	profile ProfileProvider
	backend Backend
	source  behavior.RecallSource
	send    behavior.SendFunc
	persona persona.Profile
	pools   *behavior.Pools

	generators []behavior.Generator
	ledger     *behavior.Ledger
	arbitrator *behavior.Arbitrator
	recaller   *behavior.Recaller
	milestones *behavior.Milestones
	scheduler  *behavior.Scheduler
	tracker    *SessionTracker

	// mood mirrors the smoothed label for the timer path.
	mood *atomic.String

	mu       sync.Mutex
	smoother *signal.Smoother
	policy   policy.State
	quality  float64
	valence  float64
	// turns counts every turn of this engine and never resets with the
	// session; the cooldown ledger is keyed on it.
	turns int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock.
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithRand overrides the random source behind every draw.
func WithRand(r behavior.Rand) Option { return func(e *Engine) { e.rng = r } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithStore uses st instead of opening Config.Store. The engine does not
// close a store it was given.
func WithStore(st store.Store) Option { return func(e *Engine) { e.store = st } }

// WithProfile sets the relationship provider. Default: the store.
func WithProfile(p ProfileProvider) Option { return func(e *Engine) { e.profile = p } }

// WithBackend sets the generation backend used by Reply.
func WithBackend(b Backend) Option { return func(e *Engine) { e.backend = b } }

// WithRecallSource sets where proactive recall text comes from.
func WithRecallSource(s behavior.RecallSource) Option { return func(e *Engine) { e.source = s } }

// WithSender enables the timer path: idle, poll and boot recalls are
// delivered through send.
func WithSender(send behavior.SendFunc) Option { return func(e *Engine) { e.send = send } }

// WithPersona overrides the companion profile.
func WithPersona(p persona.Profile) Option { return func(e *Engine) { e.persona = p } }

// WithPools overrides the content pools.
func WithPools(p *behavior.Pools) Option { return func(e *Engine) { e.pools = p } }

// WithGenerators replaces the cooldown-gated generators.
func WithGenerators(gens ...behavior.Generator) Option {
	return func(e *Engine) { e.generators = append([]behavior.Generator{}, gens...) }
}

// NewEngine builds an engine from cfg. Failures to read persisted counters
// are logged and start from first-run defaults. A configured store that
// cannot be opened is replaced by an in-memory one for this run. Only an
// unusable configuration returns an error.
func NewEngine(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:  cfg,
		log:  zerolog.Nop(),
		mood: atomic.NewString(string(signal.Neutral)),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.clock == nil {
		loc, _ := cfg.Location()
		e.clock = SystemClock{Location: loc}
	}
	if e.rng == nil {
		e.rng = behavior.NewRand(time.Now().UnixNano())
	}
	if e.store == nil {
		st, err := store.Open(ctx, cfg.Store.open())
		switch {
		case errors.Is(err, store.ErrUnknownBackend):
			return nil, fmt.Errorf("open store: %w", err)
		case err != nil:
			e.log.Warn().Err(err).Str("backend", cfg.Store.Backend).Msg("store unavailable, running on memory")
			st = store.NewMemory()
		}
		e.store, e.ownsSt = st, true
	}
	if e.profile == nil {
		e.profile = StoreProfile{Store: e.store}
	}
	if e.persona.Name == "" {
		e.persona = persona.DefaultProfile()
		if cfg.ProfileFile != "" {
			p, err := persona.LoadProfile(cfg.ProfileFile)
			if err != nil {
				e.closeOwned()
				return nil, err
			}
			e.persona = p
		}
	}
	if e.pools == nil {
		e.pools = behavior.DefaultPools(e.rng)
		if cfg.PoolsFile != "" {
			p, err := behavior.LoadPools(cfg.PoolsFile, e.rng)
			if err != nil {
				e.closeOwned()
				return nil, err
			}
			e.pools = p
		}
	}
	if e.generators == nil {
		e.generators = behavior.DefaultGenerators(e.pools)
	}

	e.ledger = behavior.NewLedger(cfg.cooldowns())
	e.arbitrator = behavior.NewArbitrator(e.ledger, e.rng, e.log)
	e.recaller = behavior.NewRecaller(cfg.recall(), e.source, e.ledger,
		behavior.WithClock(e.clock.Now),
		behavior.WithRand(e.rng),
		behavior.WithDayCounter(e.store),
		behavior.WithLogger(e.log),
	)
	e.recaller.SetMemoryEnabled(cfg.MemoryEnabled)
	e.recaller.Restore(ctx)

	e.milestones = behavior.NewMilestones(cfg.TurnMilestones, cfg.StreakDays, e.pools, e.store, e.log)
	e.milestones.Load(ctx)

	e.tracker = NewSessionTracker(e.store, 0, e.log)
	e.smoother = signal.NewSmoother(cfg.Alpha)
	e.policy = policy.NewStateWithCooldown(cfg.QuestionCooldown)

	if e.send != nil {
		e.scheduler = behavior.NewScheduler(cfg.scheduler(), e.recaller, e.send, e.currentMood, e.rng, e.log)
	}
	e.log = e.log.With().Str("component", "engine").Logger()
	return e, nil
}

func (e *Engine) currentMood() signal.Emotion {
	return signal.Emotion(e.mood.Load())
}

// Start starts the timer path. It is a no-op without a sender.
func (e *Engine) Start() error {
	if e.scheduler == nil {
		return nil
	}
	return e.scheduler.Start()
}

// Close stops the timer path and closes a store the engine opened.
func (e *Engine) Close() error {
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	return e.closeOwned()
}

func (e *Engine) closeOwned() error {
	if e.ownsSt && e.store != nil {
		return e.store.Close()
	}
	return nil
}

// SetMemoryEnabled toggles memory-dependent ambient behaviors at runtime.
func (e *Engine) SetMemoryEnabled(on bool) {
	e.mu.Lock()
	e.cfg.MemoryEnabled = on
	e.mu.Unlock()
	e.recaller.SetMemoryEnabled(on)
	if !on && e.scheduler != nil {
		for _, tr := range behavior.Triggers {
			e.scheduler.Cancel(tr)
		}
	}
}

// Policy returns the current dialogue policy state.
func (e *Engine) Policy() policy.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// Ledger exposes cooldown and cap bookkeeping, mainly for inspection.
func (e *Engine) Ledger() *behavior.Ledger { return e.ledger }

// Turn runs the pipeline for one user turn:
// classify, smooth, decide, arbitrate, synthesize, then advance the policy.
// It never fails; degraded inputs produce a neutral, low-confidence bundle.
func (e *Engine) Turn(ctx context.Context, in TurnInput) *Bundle {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	b := newBundle(now)
	e.turns++

	kind := in.Kind
	if kind == "" {
		kind = signal.ReplyText
	}
	silent := kind == signal.ReplySilence
	utterance := in.Utterance
	if silent {
		utterance = ""
	}

	// Classify. A silence event carries no reply to classify.
	engagement, verbosity := signal.EngagementNeutral, signal.Verbosity("")
	if !silent {
		engagement = signal.ClassifyEngagement(utterance)
		verbosity = signal.ClassifyVerbosity(utterance)
		if e.scheduler != nil {
			e.scheduler.NoteActivity(now)
		} else {
			e.recaller.NoteActivity(now)
		}
	}
	b.Engagement, b.Verbosity = engagement, verbosity

	sess := e.tracker.Track(ctx, now, kind, engagement, verbosity)
	if sess.NewSession {
		e.startSessionLocked()
		b.AddWarning("session.new:gap")
	}
	b.Session = sess

	b.Reading = signal.ClassifyEmotion(utterance, kind, signal.Context{
		Now:           now,
		ClosedReplies: sess.PriorClosed,
		ShortReplies:  sess.PriorShort,
	})
	emo := e.smoother.Update(b.Reading, now)
	b.Emotion = emo
	e.mood.Store(string(emo.Label))

	// Decide.
	b.Decision = policy.Decide(e.policy, policy.Input{
		Engagement: engagement,
		Verbosity:  verbosity,
		Silent:     silent,
		Silence:    in.Silence,
		Emotion:    emo.Label,
	})

	rel, err := e.profile.Relationship(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("relationship unavailable, using defaults")
		rel = *persona.DefaultRelationshipState()
		b.AddWarning("relationship.default:%v", err)
	}

	// Arbitrate.
	tc := behavior.TurnContext{
		Turn:          e.turns,
		Now:           now,
		Emotion:       emo,
		Engagement:    engagement,
		Depth:         float64(rel.Closeness),
		Valence:       e.valence,
		PriorQuestion: e.policy.Last() == policy.Question,
		Decision:      b.Decision,
		Policy:        e.policy,
		MemoryEnabled: e.cfg.MemoryEnabled,
	}
	cands := behavior.Propose(tc, e.generators)
	if !silent {
		cands = append(cands, e.milestones.Candidates(sess.TotalTurns, sess.StreakDays)...)
		threshold := e.cfg.ClosedStreakRecall
		if threshold <= 0 {
			threshold = defaultClosedStreak
		}
		if sess.ClosedStreak >= threshold {
			rc := e.recaller.Prepare(ctx, behavior.TriggerClosedStreak, emo.Label)
			if rc.Fired() {
				cands = append(cands, rc.Candidate())
			} else {
				b.AddWarning("recall.closed_streak:%s", rc.Outcome)
			}
		}
	}

	taken := b.Decision.Preferred
	topic := ""
	if chosen, ok := e.arbitrator.Select(ctx, tc, cands); ok {
		b.Ambient = &chosen
		if chosen.Shape == policy.Question {
			taken, topic = policy.Question, chosen.Topic
		}
	}
	b.Taken = taken

	// Synthesize.
	ambient := ""
	if b.Ambient != nil {
		ambient = string(b.Ambient.Kind)
	}
	b.Identity = persona.Synthesize(persona.SynthesisInput{
		Now:          now,
		Profile:      e.persona,
		Companion:    persona.ResolveState(e.persona, now),
		User:         emo,
		Relationship: rel,
		Quality:      e.quality,
		Ambient:      ambient,
	})
	b.Instruction = b.Identity.Instruction()
	if b.Instruction == "" {
		b.AddWarning("identity.suppressed:confidence_%.2f", b.Identity.Confidence)
	}

	// Advance.
	e.policy = e.policy.Advance(taken, utterance, topic)
	if !silent {
		e.quality = ema(e.quality, engagementScore(engagement), qualityAlpha)
		e.valence = ema(e.valence, emo.Label.Valence()*emo.Confidence, qualityAlpha)
	}

	e.log.Debug().
		Int("turn", sess.TurnIndex).
		Str("emotion", string(emo.Label)).
		Float64("confidence", emo.Confidence).
		Str("engagement", string(engagement)).
		Str("preferred", string(b.Decision.Preferred)).
		Str("taken", string(taken)).
		Str("ambient", ambient).
		Msg("turn")
	return b
}

// startSessionLocked resets the per-session state after a long gap.
func (e *Engine) startSessionLocked() {
	e.ledger.ResetSession()
	e.smoother.Reset()
	e.policy = policy.NewStateWithCooldown(e.cfg.QuestionCooldown)
}

// Reply runs Turn and then the backend. A reply that breaks the turn's
// decision is regenerated once; the second reply is returned as-is.
func (e *Engine) Reply(ctx context.Context, in TurnInput, history []Message) (string, *Bundle, error) {
	if e.backend == nil {
		return "", nil, fmt.Errorf("companion: no backend configured")
	}
	b := e.Turn(ctx, in)
	req := GenerateRequest{
		Instruction: b.Text(),
		History:     history,
		Utterance:   in.Utterance,
	}

	var reply string
	for attempt := 0; ; attempt++ {
		out, err := e.backend.Generate(ctx, req)
		if err != nil {
			return "", b, fmt.Errorf("generate: %w", err)
		}
		reply = strings.TrimSpace(out)
		vs := CheckReply(reply, b.Decision)
		for _, v := range vs {
			b.AddWarning("reply.%s:%s", v.Type, v.Detail)
		}
		if !hasHard(vs) || attempt >= maxReplyRetries {
			break
		}
		e.log.Info().Str("turn_id", b.TurnID).Int("violations", len(vs)).Msg("regenerating reply")
		req.History = append(append([]Message{}, req.History...),
			Message{Role: "assistant", Content: reply},
			Message{Role: "system", Content: retryNote(vs)},
		)
	}
	return reply, b, nil
}

func ema(prev, next, alpha float64) float64 {
	if prev == 0 {
		return next
	}
	return prev*(1-alpha) + next*alpha
}

func engagementScore(e signal.Engagement) float64 {
	switch e {
	case signal.EngagementOpen:
		return 1
	case signal.EngagementClosed:
		return 0.1
	default:
		return 0.5
	}
}
