/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package room holds the shared room model, the repository that maps it onto
// the state store, and the state machine that drives a game.
package room

import (
	"regexp"
	"sort"
	"strings"
)

type Status string

const (
	StatusLobby    Status = "lobby"
	StatusActive   Status = "active"
	StatusRevealed Status = "revealed"
	StatusEnded    Status = "ended"
)

func (s Status) Valid() bool {
	switch s {
	case StatusLobby, StatusActive, StatusRevealed, StatusEnded:
		return true
	}
	return false
}

// Room is one game session. CurrentTheme and RustamUID are only set while a
// round is active or revealed.
type Room struct {
	Code         string `json:"code"`
	HostUID      string `json:"hostUid"`
	Status       Status `json:"status"`
	CurrentRound int    `json:"currentRound"`
	TotalRounds  int    `json:"totalRounds"`
	CurrentTheme string `json:"currentTheme,omitempty"`
	RustamUID    string `json:"rustamUid,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

type Player struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joinedAt"`
}

// Role is one player's secret for the current round. The Impostor's role
// carries no theme or option.
type Role struct {
	IsRustam bool   `json:"isRustam"`
	Theme    string `json:"theme,omitempty"`
	Option   string `json:"option,omitempty"`
}

const (
	MinPlayers    = 2
	MaxNameLength = 10
)

var codePattern = regexp.MustCompile(`^[0-9]{4}$`)

func IsValidRoomCode(code string) bool {
	return codePattern.MatchString(code)
}

// validUID keeps device ids from escaping their path segment.
func validUID(uid string) bool {
	return uid != "" && !strings.ContainsAny(uid, "/.#$[]")
}

// CanStartRound reports whether round (1-based, the round about to begin)
// may start with playerCount players.
func CanStartRound(playerCount, round, totalRounds int) bool {
	return playerCount >= MinPlayers && round <= totalRounds
}

var transitions = map[Status][]Status{
	StatusLobby:    {StatusActive},
	StatusActive:   {StatusRevealed},
	StatusRevealed: {StatusActive, StatusEnded},
	StatusEnded:    {StatusLobby},
}

// CanTransition reports whether the game may move from one status to
// another. revealed -> active is carried out as ClearRound followed by
// StartRound, and ended -> lobby only happens by creating a new room.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func sortPlayers(players []Player) {
	sort.Slice(players, func(i, j int) bool {
		if players[i].JoinedAt != players[j].JoinedAt {
			return players[i].JoinedAt < players[j].JoinedAt
		}
		return players[i].UID < players[j].UID
	})
}
