/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/Seednode/rustam/internal/catalog"
	"github.com/rs/zerolog"
)

// Machine validates and applies game transitions. Each operation reads the
// current room, checks it against the transition rules and issues the write
// through the repository. Nothing is retried here.
type Machine struct {
	repo    *Repository
	catalog *catalog.Catalog
	log     zerolog.Logger
	pick    func(n int) int
	observe func(op string, err error)
	actor   string
}

type MachineOption func(*Machine)

func WithLogger(log zerolog.Logger) MachineOption {
	return func(m *Machine) {
		m.log = log
	}
}

// WithPicker replaces the uniform choice of the Impostor.
func WithPicker(pick func(n int) int) MachineOption {
	return func(m *Machine) {
		m.pick = pick
	}
}

// WithObserver is called once per operation with its outcome.
func WithObserver(observe func(op string, err error)) MachineOption {
	return func(m *Machine) {
		m.observe = observe
	}
}

func NewMachine(repo *Repository, cat *catalog.Catalog, opts ...MachineOption) *Machine {
	m := &Machine{
		repo:    repo,
		catalog: cat,
		log:     zerolog.Nop(),
		pick:    rand.IntN,
		observe: func(string, error) {},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// As returns a copy of the machine acting for the given device. Operations
// on rooms that device does not host fail with ErrNotHost. The zero actor
// is trusted.
func (m *Machine) As(uid string) *Machine {
	c := *m
	c.actor = uid

	return &c
}

// RoundStart describes the round a successful StartRound began. Word is the
// secret handed to everyone but the Impostor.
type RoundStart struct {
	Round     int
	Theme     string
	Word      string
	RustamUID string
}

func (m *Machine) load(ctx context.Context, code string) (Room, error) {
	room, err := m.repo.Room(ctx, code)
	if err != nil {
		return Room{}, err
	}

	if m.actor != "" && m.actor != room.HostUID {
		return Room{}, ErrNotHost
	}

	return room, nil
}

func (m *Machine) done(op, code string, err error) {
	m.observe(op, err)

	if err != nil {
		m.log.Debug().Str("op", op).Str("room", code).Err(err).Msg("transition rejected")
	}
}

// StartRound moves a lobby into an active round. The roles, status, round
// number, theme and Impostor are written as one update so no subscriber
// sees a half-started round.
func (m *Machine) StartRound(ctx context.Context, code, selection string) (start RoundStart, err error) {
	defer func() { m.done("start", code, err) }()

	room, err := m.load(ctx, code)
	if err != nil {
		return RoundStart{}, err
	}

	if room.Status != StatusLobby {
		return RoundStart{}, &TransitionError{From: room.Status, To: StatusActive}
	}

	players, err := m.repo.Players(ctx, code)
	if err != nil {
		return RoundStart{}, err
	}

	next := room.CurrentRound + 1

	switch {
	case len(players) < MinPlayers:
		return RoundStart{}, ErrInsufficientPlayers
	case !CanStartRound(len(players), next, room.TotalRounds):
		return RoundStart{}, ErrRoundLimitReached
	}

	theme, ok := m.catalog.Resolve(selection, next)
	if !ok {
		return RoundStart{}, fmt.Errorf("%w: %q", ErrUnknownTheme, selection)
	}

	word, ok := m.catalog.RandomWord(theme)
	if !ok {
		return RoundStart{}, fmt.Errorf("%w: %q has no words", ErrUnknownTheme, theme)
	}

	rustam := players[m.pick(len(players))].UID

	roles := make(map[string]any, len(players))
	for _, p := range players {
		if p.UID == rustam {
			roles[p.UID] = encodeRole(Role{IsRustam: true})
			continue
		}
		roles[p.UID] = encodeRole(Role{Theme: theme, Option: word.Word})
	}

	err = m.repo.Apply(ctx, code, map[string]any{
		"roles":        roles,
		"status":       string(StatusActive),
		"rustamUid":    rustam,
		"currentRound": next,
		"currentTheme": theme,
	})
	if err != nil {
		return RoundStart{}, err
	}

	m.log.Info().Str("room", code).Int("round", next).Str("theme", theme).Int("players", len(players)).Msg("round started")

	return RoundStart{Round: next, Theme: theme, Word: word.Word, RustamUID: rustam}, nil
}

// RevealRustam flips an active round to revealed. rustamUid was written at
// round start and is left alone.
func (m *Machine) RevealRustam(ctx context.Context, code string) (err error) {
	defer func() { m.done("reveal", code, err) }()

	room, err := m.load(ctx, code)
	if err != nil {
		return err
	}

	if room.Status != StatusActive {
		return &TransitionError{From: room.Status, To: StatusRevealed}
	}

	if err := m.repo.SetStatus(ctx, code, StatusRevealed); err != nil {
		return err
	}

	m.log.Info().Str("room", code).Int("round", room.CurrentRound).Msg("rustam revealed")

	return nil
}

// ClearRound returns a revealed room to the lobby so the next round can
// start. Roles, the Impostor and the theme are removed in the same update.
func (m *Machine) ClearRound(ctx context.Context, code string) (err error) {
	defer func() { m.done("clear", code, err) }()

	room, err := m.load(ctx, code)
	if err != nil {
		return err
	}

	if room.Status != StatusRevealed {
		return &TransitionError{From: room.Status, To: StatusLobby}
	}

	if room.CurrentRound >= room.TotalRounds {
		return ErrRoundLimitReached
	}

	err = m.repo.Apply(ctx, code, map[string]any{
		"roles":        nil,
		"status":       string(StatusLobby),
		"rustamUid":    nil,
		"currentTheme": nil,
	})
	if err != nil {
		return err
	}

	m.log.Info().Str("room", code).Int("round", room.CurrentRound).Msg("round cleared")

	return nil
}

// NextRound is ClearRound followed by StartRound. If the start fails the
// room stays in the lobby.
func (m *Machine) NextRound(ctx context.Context, code, selection string) (RoundStart, error) {
	if err := m.ClearRound(ctx, code); err != nil {
		return RoundStart{}, err
	}

	return m.StartRound(ctx, code, selection)
}

// EndGame finishes a revealed game, whether or not rounds remain.
func (m *Machine) EndGame(ctx context.Context, code string) (err error) {
	defer func() { m.done("end", code, err) }()

	room, err := m.load(ctx, code)
	if err != nil {
		return err
	}

	if room.Status != StatusRevealed {
		return &TransitionError{From: room.Status, To: StatusEnded}
	}

	if err := m.repo.SetStatus(ctx, code, StatusEnded); err != nil {
		return err
	}

	m.log.Info().Str("room", code).Int("rounds", room.CurrentRound).Msg("game ended")

	return nil
}
