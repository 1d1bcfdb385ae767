/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package view

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Seednode/rustam/internal/room"
	"github.com/Seednode/rustam/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

// tapStore lets a test fail a subscription's listener on demand, or hold
// back a path's values until it is released.
type tapStore struct {
	store.Store

	mu       sync.Mutex
	onErrors map[string]func(error)
	gates    map[string]chan struct{}
}

func newTapStore() *tapStore {
	return &tapStore{
		Store:    store.NewMemory(),
		onErrors: make(map[string]func(error)),
		gates:    make(map[string]chan struct{}),
	}
}

func (s *tapStore) Subscribe(path string, onValue func(store.Snapshot), onError func(error)) func() {
	s.mu.Lock()
	s.onErrors[path] = onError
	gate := s.gates[path]
	s.mu.Unlock()

	if gate != nil {
		next := onValue
		onValue = func(snap store.Snapshot) {
			<-gate
			next(snap)
		}
	}

	return s.Store.Subscribe(path, onValue, onError)
}

// hold delays values for path on subscriptions opened afterwards. The
// returned func lets them through and may be called more than once.
func (s *tapStore) hold(path string) func() {
	gate := make(chan struct{})

	s.mu.Lock()
	s.gates[path] = gate
	s.mu.Unlock()

	var once sync.Once

	return func() { once.Do(func() { close(gate) }) }
}

func (s *tapStore) fail(path string, err error) {
	s.mu.Lock()
	fn := s.onErrors[path]
	s.mu.Unlock()

	fn(err)
}

func setup(t *testing.T) (*Model, *room.Repository, *tapStore) {
	t.Helper()

	s := newTapStore()
	repo := room.NewRepository(s)

	ok, err := repo.Create(context.Background(), room.Room{
		Code:        "1234",
		HostUID:     "host",
		Status:      room.StatusLobby,
		TotalRounds: 4,
		CreatedAt:   1,
	})
	require.NoError(t, err)
	require.True(t, ok)

	return New(repo), repo, s
}

func join(t *testing.T, repo *room.Repository, uid, name string, at int64) {
	t.Helper()
	require.NoError(t, repo.AddPlayer(context.Background(), "1234", room.Player{UID: uid, Name: name, JoinedAt: at}))
}

func playerCount(m *Model, n int) func() bool {
	return func() bool { return len(m.Snapshot().Players) == n }
}

var ignoreErr = cmpopts.IgnoreFields(Snapshot{}, "Err")

func TestSubscribeMergesRoomAndPlayers(t *testing.T) {
	m, repo, _ := setup(t)

	cancel := m.Subscribe("1234")
	defer cancel()

	require.Eventually(t, func() bool { return m.Snapshot().Room != nil }, wait, time.Millisecond)

	join(t, repo, "b", "Bea", 2)
	join(t, repo, "a", "Ann", 1)

	require.Eventually(t, playerCount(m, 2), wait, time.Millisecond)

	want := Snapshot{
		Code: "1234",
		Room: &room.Room{
			Code:        "1234",
			HostUID:     "host",
			Status:      room.StatusLobby,
			TotalRounds: 4,
			CreatedAt:   1,
		},
		Players: []room.Player{
			{UID: "a", Name: "Ann", JoinedAt: 1},
			{UID: "b", Name: "Bea", JoinedAt: 2},
		},
		Loaded: true,
	}

	if diff := cmp.Diff(want, m.Snapshot(), ignoreErr); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestListenerErrorKeepsLastSnapshot(t *testing.T) {
	m, repo, s := setup(t)

	cancel := m.Subscribe("1234")
	defer cancel()

	join(t, repo, "a", "Ann", 1)
	require.Eventually(t, playerCount(m, 1), wait, time.Millisecond)

	before := m.Snapshot()

	denied := errors.New("permission denied")
	s.fail("rooms/1234/players", denied)

	got := m.Snapshot()
	require.Error(t, got.Err)
	assert.ErrorIs(t, got.Err, room.ErrStore)
	assert.ErrorIs(t, got.Err, denied)
	assert.True(t, room.IsRetryable(got.Err))

	if diff := cmp.Diff(before, got, ignoreErr); diff != "" {
		t.Errorf("snapshot changed on listener error (-before +after):\n%s", diff)
	}

	join(t, repo, "b", "Bea", 2)

	require.Eventually(t, func() bool {
		snap := m.Snapshot()
		return len(snap.Players) == 2 && snap.Err == nil
	}, wait, time.Millisecond)
}

func TestOnChangeAndCancel(t *testing.T) {
	m, repo, _ := setup(t)

	var (
		mu    sync.Mutex
		seen  []Snapshot
		count = func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(seen)
		}
	)

	remove := m.OnChange(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer remove()

	cancel := m.Subscribe("1234")

	join(t, repo, "a", "Ann", 1)
	require.Eventually(t, playerCount(m, 1), wait, time.Millisecond)
	require.Eventually(t, func() bool { return count() >= 2 }, wait, time.Millisecond)

	cancel()
	cancel()

	settled := count()
	join(t, repo, "b", "Bea", 2)

	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, settled, count())
	assert.Len(t, m.Snapshot().Players, 1)
}

func TestRoomDeletionClearsRoom(t *testing.T) {
	m, repo, _ := setup(t)

	cancel := m.Subscribe("1234")
	defer cancel()

	require.Eventually(t, func() bool { return m.Snapshot().Room != nil }, wait, time.Millisecond)

	require.NoError(t, repo.Delete(context.Background(), "1234"))

	require.Eventually(t, func() bool { return m.Snapshot().Gone }, wait, time.Millisecond)

	snap := m.Snapshot()
	assert.Nil(t, snap.Room)
	assert.True(t, snap.Loaded)
	assert.Empty(t, snap.Players)
}

func TestPlayersBeforeRoomIsNotGone(t *testing.T) {
	m, repo, s := setup(t)

	join(t, repo, "a", "Ann", 1)

	release := s.hold("rooms/1234")
	defer release()

	var (
		mu   sync.Mutex
		seen []Snapshot
	)
	all := func() []Snapshot {
		mu.Lock()
		defer mu.Unlock()
		return slices.Clone(seen)
	}

	remove := m.OnChange(func(snap Snapshot) {
		mu.Lock()
		seen = append(seen, snap)
		mu.Unlock()
	})
	defer remove()

	cancel := m.Subscribe("1234")
	defer cancel()

	require.Eventually(t, playerCount(m, 1), wait, time.Millisecond)

	first := all()
	require.NotEmpty(t, first)
	assert.Len(t, first[0].Players, 1, "subscribing alone notifies nobody")

	for _, snap := range first {
		assert.Nil(t, snap.Room)
		assert.False(t, snap.Loaded)
		assert.False(t, snap.Gone)
	}

	release()

	require.Eventually(t, func() bool { return m.Snapshot().Loaded }, wait, time.Millisecond)

	snap := m.Snapshot()
	require.NotNil(t, snap.Room)
	assert.False(t, snap.Gone)
	assert.Equal(t, "host", snap.Room.HostUID)
}

func TestRoomWithoutHostIsGone(t *testing.T) {
	m, repo, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, repo.Delete(ctx, "1234"))
	join(t, repo, "late", "Late", 1)

	cancel := m.Subscribe("1234")
	defer cancel()

	require.Eventually(t, func() bool { return m.Snapshot().Gone }, wait, time.Millisecond)

	snap := m.Snapshot()
	assert.Nil(t, snap.Room)
	assert.NoError(t, snap.Err)
}

func TestSubscribeToAnotherRoomResets(t *testing.T) {
	m, repo, _ := setup(t)

	cancel := m.Subscribe("1234")
	join(t, repo, "a", "Ann", 1)
	require.Eventually(t, playerCount(m, 1), wait, time.Millisecond)
	cancel()

	cancel = m.Subscribe("9999")
	defer cancel()

	snap := m.Snapshot()
	assert.Equal(t, "9999", snap.Code)
	assert.Nil(t, snap.Room)
	assert.Empty(t, snap.Players)
}

func TestSubscribeRole(t *testing.T) {
	m, repo, _ := setup(t)
	ctx := context.Background()

	join(t, repo, "a", "Ann", 1)
	join(t, repo, "b", "Bea", 2)

	var (
		mu   sync.Mutex
		last RoleSnapshot
	)
	current := func() RoleSnapshot {
		mu.Lock()
		defer mu.Unlock()
		return last
	}

	cancel := m.SubscribeRole("1234", "a", func(r RoleSnapshot) {
		mu.Lock()
		last = r
		mu.Unlock()
	})
	defer cancel()

	require.Eventually(t, func() bool { return current().Err == nil && !current().Assigned }, wait, time.Millisecond)

	require.NoError(t, repo.Apply(ctx, "1234", map[string]any{
		"roles": map[string]any{
			"a": map[string]any{"isRustam": false, "theme": "Fruits", "option": "Mango"},
			"b": map[string]any{"isRustam": true},
		},
		"status": "active",
	}))

	require.Eventually(t, func() bool { return current().Assigned }, wait, time.Millisecond)
	assert.Equal(t, room.Role{Theme: "Fruits", Option: "Mango"}, current().Role)
}
