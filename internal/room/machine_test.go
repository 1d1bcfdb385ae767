/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"testing"

	"github.com/Seednode/rustam/internal/catalog"
	"github.com/Seednode/rustam/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMachine(t *testing.T, opts ...MachineOption) (*Machine, *Repository, *flakyStore) {
	t.Helper()

	flaky := &flakyStore{Store: store.NewMemory()}
	repo := NewRepository(flaky)

	return NewMachine(repo, catalog.Default(), opts...), repo, flaky
}

func TestStartRoundAssignsExactlyOneRustam(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newMachine(t)

	seedRoom(t, repo, lobby("1234", "host", 4), "a", "b", "c", "d")

	start, err := m.StartRound(ctx, "1234", "Kitchen Appliances")
	require.NoError(t, err)
	assert.Equal(t, 1, start.Round)
	assert.Equal(t, "Kitchen Appliances", start.Theme)
	assert.NotEmpty(t, start.Word)

	roles, err := repo.Roles(ctx, "1234")
	require.NoError(t, err)
	require.Len(t, roles, 4)

	rustams := 0
	for uid, role := range roles {
		if role.IsRustam {
			rustams++
			assert.Equal(t, start.RustamUID, uid)
			assert.Empty(t, role.Theme)
			assert.Empty(t, role.Option)
			continue
		}
		assert.Equal(t, "Kitchen Appliances", role.Theme)
		assert.Equal(t, start.Word, role.Option)
	}
	assert.Equal(t, 1, rustams)

	room, err := repo.Room(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, room.Status)
	assert.Equal(t, 1, room.CurrentRound)
	assert.Equal(t, "Kitchen Appliances", room.CurrentTheme)
	assert.Equal(t, start.RustamUID, room.RustamUID)
}

func TestStartRoundPicksUniformly(t *testing.T) {
	ctx := context.Background()
	counts := make(map[string]int)

	for range 200 {
		m, repo, _ := newMachine(t)
		seedRoom(t, repo, lobby("1234", "host", 1), "a", "b")

		start, err := m.StartRound(ctx, "1234", catalog.Random)
		require.NoError(t, err)
		counts[start.RustamUID]++
	}

	assert.Greater(t, counts["a"], 50)
	assert.Greater(t, counts["b"], 50)
}

func TestScenarioTwoPlayersExplicitTheme(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newMachine(t)

	seedRoom(t, repo, lobby("1234", "host", 4), "alice", "bob")

	_, err := m.As("host").StartRound(ctx, "1234", "Vehicles")
	require.NoError(t, err)

	alice, ok, err := repo.Role(ctx, "1234", "alice")
	require.NoError(t, err)
	require.True(t, ok)

	bob, ok, err := repo.Role(ctx, "1234", "bob")
	require.NoError(t, err)
	require.True(t, ok)

	assert.NotEqual(t, alice.IsRustam, bob.IsRustam)

	other := alice
	if alice.IsRustam {
		other = bob
	}
	assert.Equal(t, "Vehicles", other.Theme)
}

func TestStartRoundPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("missing room", func(t *testing.T) {
		m, _, _ := newMachine(t)
		_, err := m.StartRound(ctx, "1234", "")
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("one player", func(t *testing.T) {
		m, repo, _ := newMachine(t)
		seedRoom(t, repo, lobby("1234", "host", 4), "solo")

		_, err := m.StartRound(ctx, "1234", "")
		assert.ErrorIs(t, err, ErrInsufficientPlayers)

		room, err := repo.Room(ctx, "1234")
		require.NoError(t, err)
		assert.Equal(t, StatusLobby, room.Status)
	})

	t.Run("unknown theme", func(t *testing.T) {
		m, repo, _ := newMachine(t)
		seedRoom(t, repo, lobby("1234", "host", 4), "a", "b")

		_, err := m.StartRound(ctx, "1234", "Spaceships")
		assert.ErrorIs(t, err, ErrUnknownTheme)
		assert.Equal(t, "InvalidInput", Kind(err))
	})

	t.Run("not host", func(t *testing.T) {
		m, repo, _ := newMachine(t)
		seedRoom(t, repo, lobby("1234", "host", 4), "a", "b")

		_, err := m.As("a").StartRound(ctx, "1234", "")
		assert.ErrorIs(t, err, ErrNotHost)
	})

	t.Run("already active", func(t *testing.T) {
		m, repo, _ := newMachine(t)
		seedRoom(t, repo, lobby("1234", "host", 4), "a", "b")

		_, err := m.StartRound(ctx, "1234", "")
		require.NoError(t, err)

		_, err = m.StartRound(ctx, "1234", "")
		assert.ErrorIs(t, err, ErrInvalidTransition)

		var te *TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, StatusActive, te.From)
	})

	t.Run("store down", func(t *testing.T) {
		m, repo, flaky := newMachine(t)
		seedRoom(t, repo, lobby("1234", "host", 4), "a", "b")

		flaky.down.Store(true)

		_, err := m.StartRound(ctx, "1234", "")
		assert.ErrorIs(t, err, ErrStore)
		assert.True(t, IsRetryable(err))
	})
}

func TestRoundRotationFollowsCatalog(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newMachine(t)
	cat := catalog.Default()

	seedRoom(t, repo, lobby("1234", "host", 3), "a", "b")

	for round := 1; round <= 3; round++ {
		var (
			start RoundStart
			err   error
		)
		if round == 1 {
			start, err = m.StartRound(ctx, "1234", "")
		} else {
			start, err = m.NextRound(ctx, "1234", "")
		}
		require.NoError(t, err)
		assert.Equal(t, round, start.Round)
		assert.Equal(t, cat.ThemeForRound(round), start.Theme)

		require.NoError(t, m.RevealRustam(ctx, "1234"))
	}

	_, err := m.NextRound(ctx, "1234", "")
	assert.ErrorIs(t, err, ErrRoundLimitReached)
}

func TestRevealKeepsRustam(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newMachine(t, WithPicker(func(int) int { return 1 }))

	seedRoom(t, repo, lobby("1234", "host", 4), "a", "b")

	assert.ErrorIs(t, m.RevealRustam(ctx, "1234"), ErrInvalidTransition)

	_, err := m.StartRound(ctx, "1234", "Animals")
	require.NoError(t, err)
	require.NoError(t, m.RevealRustam(ctx, "1234"))

	room, err := repo.Room(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, StatusRevealed, room.Status)
	assert.Equal(t, "b", room.RustamUID)
	assert.Equal(t, "Animals", room.CurrentTheme)

	roles, err := repo.Roles(ctx, "1234")
	require.NoError(t, err)
	assert.Len(t, roles, 2)

	assert.ErrorIs(t, m.RevealRustam(ctx, "1234"), ErrInvalidTransition)
}

func TestClearRoundResetsToLobby(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newMachine(t)

	seedRoom(t, repo, lobby("1234", "host", 4), "a", "b")

	_, err := m.StartRound(ctx, "1234", "")
	require.NoError(t, err)

	assert.ErrorIs(t, m.ClearRound(ctx, "1234"), ErrInvalidTransition)

	require.NoError(t, m.RevealRustam(ctx, "1234"))
	require.NoError(t, m.ClearRound(ctx, "1234"))

	room, err := repo.Room(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, StatusLobby, room.Status)
	assert.Equal(t, 1, room.CurrentRound)
	assert.Empty(t, room.RustamUID)
	assert.Empty(t, room.CurrentTheme)

	roles, err := repo.Roles(ctx, "1234")
	require.NoError(t, err)
	assert.Empty(t, roles)

	players, err := repo.Players(ctx, "1234")
	require.NoError(t, err)
	assert.Len(t, players, 2)
}

func TestScenarioFinalRound(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newMachine(t)

	seedRoom(t, repo, Room{
		Code:         "1234",
		HostUID:      "host",
		Status:       StatusRevealed,
		CurrentRound: 4,
		TotalRounds:  4,
		CurrentTheme: "Fruits",
		RustamUID:    "a",
		CreatedAt:    1,
	}, "a", "b")

	assert.ErrorIs(t, m.ClearRound(ctx, "1234"), ErrRoundLimitReached)

	_, err := m.NextRound(ctx, "1234", "")
	assert.ErrorIs(t, err, ErrRoundLimitReached)

	require.NoError(t, m.EndGame(ctx, "1234"))

	room, err := repo.Room(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, room.Status)

	assert.ErrorIs(t, m.EndGame(ctx, "1234"), ErrInvalidTransition)
	_, err = m.StartRound(ctx, "1234", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEndGameEarly(t *testing.T) {
	ctx := context.Background()
	m, repo, _ := newMachine(t)

	seedRoom(t, repo, lobby("1234", "host", 4), "a", "b")

	assert.ErrorIs(t, m.EndGame(ctx, "1234"), ErrInvalidTransition)

	_, err := m.StartRound(ctx, "1234", "")
	require.NoError(t, err)
	assert.ErrorIs(t, m.EndGame(ctx, "1234"), ErrInvalidTransition)

	require.NoError(t, m.RevealRustam(ctx, "1234"))
	require.NoError(t, m.As("host").EndGame(ctx, "1234"))
}

func TestObserverSeesEveryOperation(t *testing.T) {
	ctx := context.Background()

	type call struct {
		op string
		ok bool
	}
	var calls []call

	m, repo, _ := newMachine(t, WithObserver(func(op string, err error) {
		calls = append(calls, call{op, err == nil})
	}))

	seedRoom(t, repo, lobby("1234", "host", 4), "a", "b")

	_ = m.RevealRustam(ctx, "1234")
	_, _ = m.StartRound(ctx, "1234", "")
	_ = m.RevealRustam(ctx, "1234")
	_, _ = m.NextRound(ctx, "1234", "")

	assert.Equal(t, []call{
		{"reveal", false},
		{"start", true},
		{"reveal", true},
		{"clear", true},
		{"start", true},
	}, calls)
}
