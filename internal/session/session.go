/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package session binds devices to rooms: it hands out room codes, creates
// and joins rooms, and restores a device's room after a reload.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Seednode/rustam/internal/room"
	"github.com/rs/zerolog"
)

const DefaultTotalRounds = 4

var codeSpace = big.NewInt(10000)

// IsValidPlayerName reports whether n has visible content and fits the
// display limit.
func IsValidPlayerName(n string) bool {
	return strings.TrimSpace(n) != "" && utf8.RuneCountInString(n) <= room.MaxNameLength
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%04d", n.Int64()), nil
}

// Manager holds what every device's session shares.
type Manager struct {
	repo      *room.Repository
	log       zerolog.Logger
	now       func() time.Time
	draw      func() (string, error)
	onCreated func(code string)
}

type Option func(*Manager)

func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithCodeSource replaces the random code generator.
func WithCodeSource(draw func() (string, error)) Option {
	return func(m *Manager) {
		m.draw = draw
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// OnRoomCreated registers a callback run after each room is created.
func OnRoomCreated(fn func(code string)) Option {
	return func(m *Manager) {
		m.onCreated = fn
	}
}

func NewManager(repo *room.Repository, opts ...Option) *Manager {
	m := &Manager{
		repo:      repo,
		log:       zerolog.Nop(),
		now:       time.Now,
		draw:      randomCode,
		onCreated: func(string) {},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// GenerateRoomCode draws codes until one is not in use. There is no retry
// cap; the loop only degrades as the 10,000 codes fill up.
func (m *Manager) GenerateRoomCode(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code, err := m.draw()
		if err != nil {
			return "", err
		}

		exists, err := m.repo.Exists(ctx, code)
		if err != nil {
			return "", err
		}

		if !exists {
			return code, nil
		}

		m.log.Debug().Str("room", code).Msg("room code in use, drawing again")
	}
}

// Session is one device's view of the manager. An empty uid means the
// device has not signed in yet.
type Session struct {
	m        *Manager
	uid      string
	bindings Bindings
}

func (m *Manager) Session(uid string, bindings Bindings) *Session {
	return &Session{m: m, uid: uid, bindings: bindings}
}

func (s *Session) UID() string {
	return s.uid
}

// CreateRoom creates a lobby hosted by this device and remembers it. When
// another host claims the drawn code first, a new code is drawn.
func (s *Session) CreateRoom(ctx context.Context, totalRounds int) (string, error) {
	if s.uid == "" {
		return "", room.ErrNotAuthenticated
	}

	if totalRounds < 1 {
		return "", room.ErrInvalidRounds
	}

	for {
		code, err := s.m.GenerateRoomCode(ctx)
		if err != nil {
			return "", err
		}

		created, err := s.m.repo.Create(ctx, room.Room{
			Code:         code,
			HostUID:      s.uid,
			Status:       room.StatusLobby,
			CurrentRound: 0,
			TotalRounds:  totalRounds,
			CreatedAt:    s.m.now().UnixMilli(),
		})
		if err != nil {
			return "", err
		}

		if !created {
			s.m.log.Debug().Str("room", code).Msg("lost race for room code")
			continue
		}

		s.bindings.SetHostBinding(HostBinding{RoomCode: code})
		s.m.onCreated(code)
		s.m.log.Info().Str("room", code).Str("host", s.uid).Int("rounds", totalRounds).Msg("room created")

		return code, nil
	}
}

// JoinRoom adds this device to a lobby under the given display name.
func (s *Session) JoinRoom(ctx context.Context, code, name string) error {
	if s.uid == "" {
		return room.ErrNotAuthenticated
	}

	if !room.IsValidRoomCode(code) {
		return room.ErrInvalidRoomCode
	}

	if !IsValidPlayerName(name) {
		return room.ErrInvalidPlayerName
	}

	r, err := s.m.repo.Room(ctx, code)
	if err != nil {
		return err
	}

	if r.Status != room.StatusLobby {
		return room.ErrRoomNotJoinable
	}

	err = s.m.repo.AddPlayer(ctx, code, room.Player{
		UID:      s.uid,
		Name:     strings.TrimSpace(name),
		JoinedAt: s.m.now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	s.bindings.SetPlayerBinding(PlayerBinding{RoomCode: code, DeviceUID: s.uid})
	s.m.log.Info().Str("room", code).Str("player", s.uid).Msg("player joined")

	return nil
}

// RestoreHostSession returns the room this device created, provided it
// still exists and is still hosted by this device.
func (s *Session) RestoreHostSession(ctx context.Context) (string, bool, error) {
	if s.bindings.TakeSkipRestore() {
		return "", false, nil
	}

	b, ok := s.bindings.HostBinding()
	if !ok || s.uid == "" || !room.IsValidRoomCode(b.RoomCode) {
		return "", false, nil
	}

	r, err := s.m.repo.Room(ctx, b.RoomCode)
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return "", false, nil
	case err != nil:
		return "", false, err
	}

	if r.HostUID != s.uid {
		s.m.log.Warn().Str("room", b.RoomCode).Str("device", s.uid).Msg("host binding belongs to another device")
		return "", false, nil
	}

	return b.RoomCode, true, nil
}

// RestorePlayerSession returns the room this device joined, provided the
// binding was made by this device and its player record still exists.
func (s *Session) RestorePlayerSession(ctx context.Context) (string, bool, error) {
	if s.bindings.TakeSkipRestore() {
		return "", false, nil
	}

	b, ok := s.bindings.PlayerBinding()
	if !ok || s.uid == "" || b.DeviceUID != s.uid || !room.IsValidRoomCode(b.RoomCode) {
		return "", false, nil
	}

	exists, err := s.m.repo.PlayerExists(ctx, b.RoomCode, s.uid)
	if err != nil {
		return "", false, err
	}

	if !exists {
		return "", false, nil
	}

	return b.RoomCode, true, nil
}

// OpenHostRoom restores this device's room when it can and creates a new
// one otherwise. A pending skip flag always creates.
func (s *Session) OpenHostRoom(ctx context.Context, totalRounds int) (string, bool, error) {
	code, ok, err := s.RestoreHostSession(ctx)
	if err != nil {
		return "", false, err
	}

	if ok {
		return code, true, nil
	}

	code, err = s.CreateRoom(ctx, totalRounds)

	return code, false, err
}

// LeaveRoom forgets this device's rooms. Shared state is left alone.
func (s *Session) LeaveRoom() {
	s.bindings.Clear()
}

// SkipNextRestore makes the next restore report no session.
func (s *Session) SkipNextRestore() {
	s.bindings.SetSkipRestore()
}
