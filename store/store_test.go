package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// ══════════════════════════════════════════════
// Shared behavior, run against every backend
// ══════════════════════════════════════════════

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	n, err := s.DayCount(ctx, "proactive_recall", "2025-06-15")
	require.NoError(t, err)
	require.Zero(t, n)

	for i := int64(1); i <= 3; i++ {
		n, err = s.IncrDay(ctx, "proactive_recall", "2025-06-15")
		require.NoError(t, err)
		require.Equal(t, i, n)
	}
	n, _ = s.DayCount(ctx, "proactive_recall", "2025-06-16")
	require.Zero(t, n, "days are independent")

	n, err = s.IncrCounter(ctx, "total_turns")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, s.SetCounter(ctx, "total_turns", 99))
	n, _ = s.Counter(ctx, "total_turns")
	require.Equal(t, int64(99), n)

	require.NoError(t, s.AddMembers(ctx, "celebrated", "milestone:10", "streak:3"))
	require.NoError(t, s.AddMembers(ctx, "celebrated", "milestone:10"))
	require.NoError(t, s.AddMembers(ctx, "celebrated"))
	members, err := s.Members(ctx, "celebrated")
	require.NoError(t, err)
	require.Equal(t, []string{"milestone:10", "streak:3"}, members)

	empty, err := s.Members(ctx, "nothing")
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = s.Get(ctx, "relationship")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	require.NoError(t, s.Set(ctx, "relationship", `{"closeness":40}`))
	v, err := s.Get(ctx, "relationship")
	require.NoError(t, err)
	require.Equal(t, `{"closeness":40}`, v)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFile(dir, "u1")
	require.NoError(t, err)
	exerciseStore(t, f)
	require.NoError(t, f.Close())

	// Everything survives a reopen.
	again, err := OpenFile(dir, "u1")
	require.NoError(t, err)
	ctx := context.Background()
	n, _ := again.DayCount(ctx, "proactive_recall", "2025-06-15")
	require.Equal(t, int64(3), n)
	members, _ := again.Members(ctx, "celebrated")
	require.Equal(t, []string{"milestone:10", "streak:3"}, members)
	n, _ = again.Counter(ctx, "total_turns")
	require.Equal(t, int64(99), n)
}

func TestFile_CorruptFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "u1.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	f, err := OpenFile(dir, "u1")
	require.NoError(t, err)
	n, err := f.Counter(context.Background(), "total_turns")
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = os.Stat(path + ".corrupt")
	require.NoError(t, err, "corrupt document should be kept aside")
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedis(client, RedisConfig{Namespace: "u1"})
	exerciseStore(t, s)

	require.True(t, mr.Exists("companion:u1:day:proactive_recall:2025-06-15"))
	ttl := mr.TTL("companion:u1:day:proactive_recall:2025-06-15")
	require.Equal(t, 48*time.Hour, ttl)

	mr.FastForward(49 * time.Hour)
	n, err := s.DayCount(context.Background(), "proactive_recall", "2025-06-15")
	require.NoError(t, err)
	require.Zero(t, n, "daily counters expire")
	require.NoError(t, s.Close())
}

func TestRedis_Namespaces(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	a := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), RedisConfig{Namespace: "a"})
	b := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), RedisConfig{Namespace: "b"})

	_, err := a.IncrCounter(ctx, "total_turns")
	require.NoError(t, err)
	n, err := b.Counter(ctx, "total_turns")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)

	s, err = Open(ctx, Config{Backend: "file", Dir: t.TempDir(), Namespace: "u1"})
	require.NoError(t, err)
	require.IsType(t, &File{}, s)

	mr := miniredis.RunT(t)
	s, err = Open(ctx, Config{Backend: "redis", RedisURL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	require.IsType(t, &Redis{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Backend: "etcd"})
	require.ErrorIs(t, err, ErrUnknownBackend)
}
