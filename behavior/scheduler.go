package behavior

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/cyberFlowTech/zapry-companion-go/signal"
)

// ──────────────────────────────────────────────
// Scheduler: idle window + periodic event poll
// ──────────────────────────────────────────────

// SendFunc delivers a timer-driven behavior. A nil error means delivered.
type SendFunc func(ctx context.Context, tr Trigger, text string) error

// SchedulerConfig configures the timer path.
type SchedulerConfig struct {
	IdleMin      time.Duration
	IdleMax      time.Duration
	PollInterval time.Duration
	// Boot fires a boot trigger on Start.
	Boot bool
}

// DefaultSchedulerConfig returns a 25-40s idle window and a 5 minute poll.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		IdleMin:      25 * time.Second,
		IdleMax:      40 * time.Second,
		PollInterval: 5 * time.Minute,
		Boot:         true,
	}
}

// Scheduler runs recall checks outside the turn path as cancellable tasks
// keyed by trigger. User activity cancels every in-flight check and re-arms
// the idle timer.
//
// Usage:
//
//	s := behavior.NewScheduler(cfg, recaller, send, mood, rng, logger)
//	s.Start()
//	defer s.Stop()
//
//	s.NoteActivity(time.Now()) // on every user turn
type Scheduler struct {
	cfg      SchedulerConfig
	recaller *Recaller
	send     SendFunc
	mood     func() signal.Emotion
	rng      Rand
	log      zerolog.Logger

	mu       sync.Mutex
	running  bool
	base     context.Context
	stop     context.CancelFunc
	cron     *cron.Cron
	idle     *time.Timer
	inflight map[Trigger]*check
	wg       sync.WaitGroup
}

type check struct {
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. mood reports the user's current smoothed
// emotion for damping; nil reads as neutral.
func NewScheduler(cfg SchedulerConfig, recaller *Recaller, send SendFunc, mood func() signal.Emotion, rng Rand, logger zerolog.Logger) *Scheduler {
	if mood == nil {
		mood = func() signal.Emotion { return signal.Neutral }
	}
	if rng == nil {
		rng = NewRand(seedNow())
	}
	if cfg.IdleMax < cfg.IdleMin {
		cfg.IdleMax = cfg.IdleMin
	}
	return &Scheduler{
		cfg:      cfg,
		recaller: recaller,
		send:     send,
		mood:     mood,
		rng:      rng,
		log:      logger.With().Str("component", "scheduler").Logger(),
		inflight: make(map[Trigger]*check),
	}
}

// Start arms the idle timer, registers the poll job and fires the boot
// trigger. Non-blocking.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.base, s.stop = context.WithCancel(context.Background())
	s.running = true

	if s.cfg.PollInterval > 0 {
		base := s.base
		s.cron = cron.New()
		spec := fmt.Sprintf("@every %s", s.cfg.PollInterval)
		if _, err := s.cron.AddFunc(spec, func() { s.RunTrigger(base, TriggerEventPoll) }); err != nil {
			s.running = false
			s.stop()
			s.mu.Unlock()
			return fmt.Errorf("register poll job: %w", err)
		}
		s.cron.Start()
	}
	s.armIdleLocked()
	s.mu.Unlock()

	if s.cfg.Boot {
		s.goTrigger(TriggerBoot)
	}
	s.log.Info().Dur("idle_min", s.cfg.IdleMin).Dur("idle_max", s.cfg.IdleMax).
		Dur("poll", s.cfg.PollInterval).Msg("started")
	return nil
}

// Stop cancels everything in flight and waits for running checks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stop()
	if s.idle != nil {
		s.idle.Stop()
	}
	c := s.cron
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	s.wg.Wait()
	s.log.Info().Msg("stopped")
}

// NoteActivity records user activity: in-flight checks are cancelled so a
// stale behavior never lands after the user re-engaged, and the idle window
// starts over.
func (s *Scheduler) NoteActivity(t time.Time) {
	s.recaller.NoteActivity(t)

	s.mu.Lock()
	defer s.mu.Unlock()
	for tr, c := range s.inflight {
		c.cancel()
		delete(s.inflight, tr)
		s.log.Debug().Str("trigger", string(tr)).Msg("cancelled on activity")
	}
	if s.running {
		s.armIdleLocked()
	}
}

// Cancel aborts the in-flight check for tr, if any.
func (s *Scheduler) Cancel(tr Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.inflight[tr]; ok {
		c.cancel()
		delete(s.inflight, tr)
	}
}

func (s *Scheduler) armIdleLocked() {
	if s.idle != nil {
		s.idle.Stop()
	}
	delay := s.cfg.IdleMin
	if span := s.cfg.IdleMax - s.cfg.IdleMin; span > 0 {
		delay += time.Duration(s.rng.Float64() * float64(span))
	}
	s.idle = time.AfterFunc(delay, func() { s.goTrigger(TriggerIdle) })
}

func (s *Scheduler) goTrigger(tr Trigger) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	base := s.base
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.RunTrigger(base, tr)
	}()
}

// RunTrigger evaluates tr once, delivers through the SendFunc and commits
// only when delivery succeeded on a context that was not cancelled.
func (s *Scheduler) RunTrigger(ctx context.Context, tr Trigger) Outcome {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("trigger", string(tr)).Interface("panic", r).Msg("trigger panicked")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	self := &check{cancel: cancel}
	s.mu.Lock()
	if prev, ok := s.inflight[tr]; ok {
		prev.cancel()
	}
	s.inflight[tr] = self
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		if s.inflight[tr] == self {
			delete(s.inflight, tr)
		}
		s.mu.Unlock()
	}()

	rc := s.recaller.Prepare(ctx, tr, s.mood())
	if !rc.Fired() {
		s.log.Debug().Str("trigger", string(tr)).Str("outcome", string(rc.Outcome)).Msg("not fired")
		return rc.Outcome
	}

	if ctx.Err() != nil {
		rc.Cancel()
		return SkippedCancelled
	}
	if s.send == nil {
		rc.Cancel()
		s.log.Warn().Str("trigger", string(tr)).Msg("no send func, dropping recall")
		return SkippedUndelivered
	}
	if err := s.send(ctx, tr, rc.Text); err != nil {
		rc.Cancel()
		s.log.Warn().Str("trigger", string(tr)).Err(err).Msg("send failed")
		return SkippedUndelivered
	}
	rc.Commit(context.WithoutCancel(ctx))
	return Fired
}
