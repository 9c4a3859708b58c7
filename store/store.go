// Package store persists what the companion must remember across restarts:
// daily recall counts, lifetime counters, celebrated milestones and small
// JSON documents such as the relationship state.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrUnknownBackend is returned by Open for a backend name it does not know.
var ErrUnknownBackend = errors.New("store: unknown backend")

// Store is the persistence backend. Counters that were never written read
// as zero; only Get reports ErrNotFound.
type Store interface {
	// DayCount and IncrDay keep a counter per name per local date (YYYY-MM-DD).
	DayCount(ctx context.Context, name, day string) (int64, error)
	IncrDay(ctx context.Context, name, day string) (int64, error)

	// Counter, IncrCounter and SetCounter keep lifetime counters.
	Counter(ctx context.Context, name string) (int64, error)
	IncrCounter(ctx context.Context, name string) (int64, error)
	SetCounter(ctx context.Context, name string, value int64) error

	// Members and AddMembers keep string sets.
	Members(ctx context.Context, set string) ([]string, error)
	AddMembers(ctx context.Context, set string, members ...string) error

	// Get and Set keep small documents.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error

	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend   string // memory | file | redis
	Namespace string // typically the user ID
	Dir       string // file backend directory
	RedisURL  string // redis backend URL, redis://host:port/db
	Prefix    string // redis key prefix, default "companion"
}

// Open creates the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return OpenFile(cfg.Dir, cfg.Namespace)
	case "redis":
		return OpenRedis(ctx, cfg.RedisURL, RedisConfig{Prefix: cfg.Prefix, Namespace: cfg.Namespace})
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, cfg.Backend)
	}
}

// ──────────────────────────────────────────────
// Memory (default)
// ──────────────────────────────────────────────

// snapshot is the full state of a memory or file store.
type snapshot struct {
	Days     map[string]int64    `json:"days"`
	Counters map[string]int64    `json:"counters"`
	Sets     map[string][]string `json:"sets"`
	KV       map[string]string   `json:"kv"`
}

func newSnapshot() snapshot {
	return snapshot{
		Days:     make(map[string]int64),
		Counters: make(map[string]int64),
		Sets:     make(map[string][]string),
		KV:       make(map[string]string),
	}
}

func dayKey(name, day string) string { return name + "|" + day }

// Memory is a thread-safe in-memory Store. Data is lost on restart.
type Memory struct {
	mu   sync.RWMutex
	data snapshot
	// persist is called with the lock held after every write.
	persist func(snapshot) error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: newSnapshot()}
}

func (m *Memory) written() error {
	if m.persist == nil {
		return nil
	}
	return m.persist(m.data)
}

func (m *Memory) DayCount(_ context.Context, name, day string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Days[dayKey(name, day)], nil
}

func (m *Memory) IncrDay(_ context.Context, name, day string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := dayKey(name, day)
	m.data.Days[k]++
	return m.data.Days[k], m.written()
}

func (m *Memory) Counter(_ context.Context, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Counters[name], nil
}

func (m *Memory) IncrCounter(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Counters[name]++
	return m.data.Counters[name], m.written()
}

func (m *Memory) SetCounter(_ context.Context, name string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Counters[name] = value
	return m.written()
}

func (m *Memory) Members(_ context.Context, set string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]string(nil), m.data.Sets[set]...)
	sort.Strings(out)
	return out, nil
}

func (m *Memory) AddMembers(_ context.Context, set string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := make(map[string]bool, len(m.data.Sets[set]))
	for _, x := range m.data.Sets[set] {
		existing[x] = true
	}
	changed := false
	for _, x := range members {
		if !existing[x] {
			existing[x] = true
			m.data.Sets[set] = append(m.data.Sets[set], x)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return m.written()
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data.KV[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.KV[key] = value
	return m.written()
}

func (m *Memory) Close() error { return nil }

// Compile-time interface check.
var _ Store = (*Memory)(nil)
