/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package view merges a room's push streams into one snapshot for a
// device to render.
package view

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Seednode/rustam/internal/room"
)

// Snapshot is the latest known state of a room. Loaded turns true with the
// first room push and Gone with a push that finds the room deleted; Room is
// set only while the room exists. Err holds the most recent listener
// failure; the rest of the snapshot is left as it was.
type Snapshot struct {
	Code    string
	Room    *room.Room
	Players []room.Player
	Loaded  bool
	Gone    bool
	Err     error
}

func (s Snapshot) clone() Snapshot {
	if s.Room != nil {
		r := *s.Room
		s.Room = &r
	}
	s.Players = slices.Clone(s.Players)

	return s
}

// RoleSnapshot is one player's view of their own role.
type RoleSnapshot struct {
	Role     room.Role
	Assigned bool
	Err      error
}

type listener struct {
	fn func(Snapshot)
}

type Model struct {
	repo *room.Repository

	// emit serializes notifications so listeners see changes in the order
	// they were applied.
	emit sync.Mutex

	mu        sync.Mutex
	snap      Snapshot
	listeners []*listener
}

func New(repo *room.Repository) *Model {
	return &Model{
		repo: repo,
		snap: Snapshot{Players: []room.Player{}},
	}
}

// Snapshot returns a copy of the current state.
func (m *Model) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snap.clone()
}

// OnChange registers fn to receive every new snapshot. The returned func
// removes it.
func (m *Model) OnChange(fn func(Snapshot)) func() {
	l := &listener{fn: fn}

	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		m.listeners = slices.DeleteFunc(m.listeners, func(x *listener) bool { return x == l })
		m.mu.Unlock()
	}
}

func (m *Model) apply(change func(*Snapshot)) {
	m.emit.Lock()
	defer m.emit.Unlock()

	m.mu.Lock()
	change(&m.snap)
	snap := m.snap.clone()
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		l.fn(snap.clone())
	}
}

// Subscribe follows the room's fields and its player list. Every call opens
// its own pair of subscriptions; cancel the previous one before following a
// different room. The returned func tears both down and may be called more
// than once.
func (m *Model) Subscribe(code string) func() {
	var live atomic.Bool
	live.Store(true)

	// Listeners hear nothing until the store answers.
	m.emit.Lock()
	m.mu.Lock()
	if m.snap.Code != code {
		m.snap = Snapshot{Code: code, Players: []room.Player{}}
	}
	m.mu.Unlock()
	m.emit.Unlock()

	onError := func(err error) {
		if !live.Load() {
			return
		}
		m.apply(func(s *Snapshot) { s.Err = err })
	}

	stopRoom := m.repo.SubscribeRoom(code, func(r room.Room, exists bool) {
		if !live.Load() {
			return
		}
		m.apply(func(s *Snapshot) {
			s.Err = nil
			s.Loaded = true
			s.Gone = !exists
			if !exists {
				s.Room = nil
				return
			}
			s.Room = &r
		})
	}, onError)

	stopPlayers := m.repo.SubscribePlayers(code, func(players []room.Player) {
		if !live.Load() {
			return
		}
		m.apply(func(s *Snapshot) {
			s.Err = nil
			s.Players = players
		})
	}, onError)

	var once sync.Once

	return func() {
		once.Do(func() {
			live.Store(false)
			stopRoom()
			stopPlayers()
		})
	}
}

// SubscribeRole follows one player's role. fn runs on every change, with
// Assigned false while no round is in progress.
func (m *Model) SubscribeRole(code, uid string, fn func(RoleSnapshot)) func() {
	var (
		live atomic.Bool
		mu   sync.Mutex
		last RoleSnapshot
	)
	live.Store(true)

	stop := m.repo.SubscribeRole(code, uid, func(r room.Role, assigned bool) {
		if !live.Load() {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		last = RoleSnapshot{Role: r, Assigned: assigned}
		fn(last)
	}, func(err error) {
		if !live.Load() {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		last.Err = err
		fn(last)
	})

	var once sync.Once

	return func() {
		once.Do(func() {
			live.Store(false)
			stop()
		})
	}
}
