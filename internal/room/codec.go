/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"encoding/json"
	"fmt"
)

// Records come back from the store as untyped trees. Each decoder checks
// the fields its type depends on and rejects anything else as malformed.

type roomRecord struct {
	HostUID      *string `json:"hostUid"`
	Status       *Status `json:"status"`
	CurrentRound *int    `json:"currentRound"`
	TotalRounds  *int    `json:"totalRounds"`
	CurrentTheme string  `json:"currentTheme"`
	RustamUID    string  `json:"rustamUid"`
	CreatedAt    int64   `json:"createdAt"`
}

type playerRecord struct {
	Name     *string `json:"name"`
	JoinedAt int64   `json:"joinedAt"`
}

type roleRecord struct {
	IsRustam *bool  `json:"isRustam"`
	Theme    string `json:"theme"`
	Option   string `json:"option"`
}

func decodeInto(v any, dst any) error {
	if _, ok := v.(map[string]any); !ok {
		return fmt.Errorf("%w: expected object, got %T", ErrMalformed, v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return nil
}

func decodeRoom(code string, v any) (Room, error) {
	var rec roomRecord
	if err := decodeInto(v, &rec); err != nil {
		return Room{}, err
	}

	switch {
	case rec.HostUID == nil || *rec.HostUID == "":
		return Room{}, fmt.Errorf("%w: room %s has no host", ErrMalformed, code)
	case rec.Status == nil || !rec.Status.Valid():
		return Room{}, fmt.Errorf("%w: room %s has no valid status", ErrMalformed, code)
	case rec.TotalRounds == nil || *rec.TotalRounds < 1:
		return Room{}, fmt.Errorf("%w: room %s has no valid round count", ErrMalformed, code)
	case rec.CurrentRound == nil || *rec.CurrentRound < 0:
		return Room{}, fmt.Errorf("%w: room %s has no valid current round", ErrMalformed, code)
	}

	return Room{
		Code:         code,
		HostUID:      *rec.HostUID,
		Status:       *rec.Status,
		CurrentRound: *rec.CurrentRound,
		TotalRounds:  *rec.TotalRounds,
		CurrentTheme: rec.CurrentTheme,
		RustamUID:    rec.RustamUID,
		CreatedAt:    rec.CreatedAt,
	}, nil
}

func decodePlayer(uid string, v any) (Player, error) {
	var rec playerRecord
	if err := decodeInto(v, &rec); err != nil {
		return Player{}, err
	}

	if rec.Name == nil || *rec.Name == "" {
		return Player{}, fmt.Errorf("%w: player %s has no name", ErrMalformed, uid)
	}

	return Player{UID: uid, Name: *rec.Name, JoinedAt: rec.JoinedAt}, nil
}

func decodePlayers(v any) ([]Player, error) {
	if v == nil {
		return []Player{}, nil
	}

	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected player map, got %T", ErrMalformed, v)
	}

	players := make([]Player, 0, len(m))
	for uid, raw := range m {
		p, err := decodePlayer(uid, raw)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}

	sortPlayers(players)

	return players, nil
}

func decodeRole(v any) (Role, error) {
	var rec roleRecord
	if err := decodeInto(v, &rec); err != nil {
		return Role{}, err
	}

	if rec.IsRustam == nil {
		return Role{}, fmt.Errorf("%w: role has no isRustam", ErrMalformed)
	}

	return Role{IsRustam: *rec.IsRustam, Theme: rec.Theme, Option: rec.Option}, nil
}

func encodeRoom(r Room) map[string]any {
	fields := map[string]any{
		"hostUid":      r.HostUID,
		"status":       string(r.Status),
		"currentRound": r.CurrentRound,
		"totalRounds":  r.TotalRounds,
		"createdAt":    r.CreatedAt,
	}

	if r.CurrentTheme != "" {
		fields["currentTheme"] = r.CurrentTheme
	}
	if r.RustamUID != "" {
		fields["rustamUid"] = r.RustamUID
	}

	return fields
}

func encodePlayer(p Player) map[string]any {
	return map[string]any{
		"name":     p.Name,
		"joinedAt": p.JoinedAt,
	}
}

func encodeRole(r Role) map[string]any {
	if r.IsRustam {
		return map[string]any{"isRustam": true}
	}

	return map[string]any{
		"isRustam": false,
		"theme":    r.Theme,
		"option":   r.Option,
	}
}
