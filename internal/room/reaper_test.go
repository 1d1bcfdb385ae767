/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"testing"
	"time"

	"github.com/Seednode/rustam/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReapDeletesExpiredRooms(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	repo := NewRepository(mem)

	now := time.UnixMilli(10_000_000)

	old := lobby("1111", "host", 4)
	old.CreatedAt = now.Add(-3 * time.Hour).UnixMilli()
	fresh := lobby("2222", "host", 4)
	fresh.CreatedAt = now.Add(-time.Minute).UnixMilli()

	seedRoom(t, repo, old, "a", "b")
	seedRoom(t, repo, fresh)

	require.NoError(t, mem.Set(ctx, "rooms/3333", map[string]any{"hostUid": "h"}))

	r := NewReaper(repo, 2*time.Hour, zerolog.Nop())
	r.now = func() time.Time { return now }

	var reaped []string
	r.OnReap = func(code string) { reaped = append(reaped, code) }

	n, err := r.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"1111"}, reaped)

	_, err = repo.Room(ctx, "1111")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	players, err := repo.Players(ctx, "1111")
	require.NoError(t, err)
	assert.Empty(t, players)

	_, err = repo.Room(ctx, "2222")
	assert.NoError(t, err)

	codes, err := repo.Codes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2222", "3333"}, codes)
}

func TestReapDeletesHeadlessRooms(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	repo := NewRepository(mem)

	seedRoom(t, repo, lobby("1111", "host", 4))
	require.NoError(t, repo.Delete(ctx, "1111"))

	// A join that lands after the delete recreates the subtree without a host.
	require.NoError(t, repo.AddPlayer(ctx, "1111", Player{UID: "late", Name: "Late", JoinedAt: 1}))

	ok, err := repo.Exists(ctx, "1111")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Create(ctx, lobby("1111", "host", 4))
	require.NoError(t, err)
	assert.False(t, ok, "the leftover subtree blocks the code")

	r := NewReaper(repo, 2*time.Hour, zerolog.Nop())

	var reaped []string
	r.OnReap = func(code string) { reaped = append(reaped, code) }

	n, err := r.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"1111"}, reaped)

	codes, err := repo.Codes(ctx)
	require.NoError(t, err)
	assert.Empty(t, codes)

	ok, err = repo.Create(ctx, lobby("1111", "host", 4))
	require.NoError(t, err)
	assert.True(t, ok, "the code is free again")
}

func TestReaperRunStopsWithContext(t *testing.T) {
	mem := store.NewMemory()
	repo := NewRepository(mem)

	seedRoom(t, repo, lobby("1111", "host", 4))

	r := NewReaper(repo, time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		r.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		ok, err := repo.Exists(context.Background(), "1111")
		return err == nil && !ok
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
