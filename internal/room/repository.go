/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"

	"github.com/Seednode/rustam/internal/store"
)

const roomsRoot = "rooms"

func roomPath(code string) string {
	return roomsRoot + "/" + code
}

func fieldPath(code, field string) string {
	return roomPath(code) + "/" + field
}

func playersPath(code string) string {
	return roomPath(code) + "/players"
}

func playerPath(code, uid string) string {
	return playersPath(code) + "/" + uid
}

func rolesPath(code string) string {
	return roomPath(code) + "/roles"
}

func rolePath(code, uid string) string {
	return rolesPath(code) + "/" + uid
}

// Repository maps room operations onto store paths. Every failure it
// returns is either a typed business error or a *StoreError.
type Repository struct {
	store store.Store
}

func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

func (r *Repository) Exists(ctx context.Context, code string) (bool, error) {
	if !IsValidRoomCode(code) {
		return false, ErrInvalidRoomCode
	}

	snap, err := r.store.Get(ctx, fieldPath(code, "hostUid"))
	if err != nil {
		return false, storeErr("get", fieldPath(code, "hostUid"), err)
	}

	return snap.Exists(), nil
}

// Create writes a new room unless one already holds its code.
func (r *Repository) Create(ctx context.Context, room Room) (bool, error) {
	if !IsValidRoomCode(room.Code) {
		return false, ErrInvalidRoomCode
	}

	ok, err := r.store.Create(ctx, roomPath(room.Code), encodeRoom(room))
	if err != nil {
		return false, storeErr("create", roomPath(room.Code), err)
	}

	return ok, nil
}

func (r *Repository) Room(ctx context.Context, code string) (Room, error) {
	if !IsValidRoomCode(code) {
		return Room{}, ErrInvalidRoomCode
	}

	snap, err := r.store.Get(ctx, roomPath(code))
	if err != nil {
		return Room{}, storeErr("get", roomPath(code), err)
	}
	if !snap.Exists() {
		return Room{}, ErrRoomNotFound
	}

	room, err := decodeRoom(code, snap.Value)
	if err != nil {
		return Room{}, storeErr("decode", roomPath(code), err)
	}

	return room, nil
}

func (r *Repository) Players(ctx context.Context, code string) ([]Player, error) {
	if !IsValidRoomCode(code) {
		return nil, ErrInvalidRoomCode
	}

	snap, err := r.store.Get(ctx, playersPath(code))
	if err != nil {
		return nil, storeErr("get", playersPath(code), err)
	}

	players, err := decodePlayers(snap.Value)
	if err != nil {
		return nil, storeErr("decode", playersPath(code), err)
	}

	return players, nil
}

func (r *Repository) Player(ctx context.Context, code, uid string) (Player, bool, error) {
	if !IsValidRoomCode(code) {
		return Player{}, false, ErrInvalidRoomCode
	}
	if !validUID(uid) {
		return Player{}, false, nil
	}

	snap, err := r.store.Get(ctx, playerPath(code, uid))
	if err != nil {
		return Player{}, false, storeErr("get", playerPath(code, uid), err)
	}
	if !snap.Exists() {
		return Player{}, false, nil
	}

	p, err := decodePlayer(uid, snap.Value)
	if err != nil {
		return Player{}, false, storeErr("decode", playerPath(code, uid), err)
	}

	return p, true, nil
}

func (r *Repository) PlayerExists(ctx context.Context, code, uid string) (bool, error) {
	_, ok, err := r.Player(ctx, code, uid)
	return ok, err
}

// AddPlayer writes to the player's own path, so concurrent joins never
// conflict with each other or with host writes.
func (r *Repository) AddPlayer(ctx context.Context, code string, p Player) error {
	if !IsValidRoomCode(code) {
		return ErrInvalidRoomCode
	}
	if !validUID(p.UID) {
		return ErrNotAuthenticated
	}

	return storeErr("set", playerPath(code, p.UID), r.store.Set(ctx, playerPath(code, p.UID), encodePlayer(p)))
}

func (r *Repository) Role(ctx context.Context, code, uid string) (Role, bool, error) {
	if !IsValidRoomCode(code) {
		return Role{}, false, ErrInvalidRoomCode
	}
	if !validUID(uid) {
		return Role{}, false, nil
	}

	snap, err := r.store.Get(ctx, rolePath(code, uid))
	if err != nil {
		return Role{}, false, storeErr("get", rolePath(code, uid), err)
	}
	if !snap.Exists() {
		return Role{}, false, nil
	}

	role, err := decodeRole(snap.Value)
	if err != nil {
		return Role{}, false, storeErr("decode", rolePath(code, uid), err)
	}

	return role, true, nil
}

func (r *Repository) Roles(ctx context.Context, code string) (map[string]Role, error) {
	if !IsValidRoomCode(code) {
		return nil, ErrInvalidRoomCode
	}

	snap, err := r.store.Get(ctx, rolesPath(code))
	if err != nil {
		return nil, storeErr("get", rolesPath(code), err)
	}

	roles := make(map[string]Role)
	if !snap.Exists() {
		return roles, nil
	}

	m, ok := snap.Value.(map[string]any)
	if !ok {
		return nil, storeErr("decode", rolesPath(code), ErrMalformed)
	}

	for uid, raw := range m {
		role, err := decodeRole(raw)
		if err != nil {
			return nil, storeErr("decode", rolePath(code, uid), err)
		}
		roles[uid] = role
	}

	return roles, nil
}

// Apply writes fields (relative to the room) as one atomic update. A nil
// value deletes the field.
func (r *Repository) Apply(ctx context.Context, code string, fields map[string]any) error {
	if !IsValidRoomCode(code) {
		return ErrInvalidRoomCode
	}

	updates := make(map[string]any, len(fields))
	for field, v := range fields {
		updates[fieldPath(code, field)] = v
	}

	return storeErr("update", roomPath(code), r.store.Update(ctx, updates))
}

// SetStatus is a single-path write for transitions that change nothing else.
func (r *Repository) SetStatus(ctx context.Context, code string, s Status) error {
	if !IsValidRoomCode(code) {
		return ErrInvalidRoomCode
	}

	return storeErr("set", fieldPath(code, "status"), r.store.Set(ctx, fieldPath(code, "status"), string(s)))
}

func (r *Repository) Delete(ctx context.Context, code string) error {
	if !IsValidRoomCode(code) {
		return ErrInvalidRoomCode
	}

	return storeErr("delete", roomPath(code), r.store.Set(ctx, roomPath(code), nil))
}

// Codes lists every room currently in the store.
func (r *Repository) Codes(ctx context.Context) ([]string, error) {
	names, err := r.store.Children(ctx, roomsRoot)
	if err != nil {
		return nil, storeErr("list", roomsRoot, err)
	}

	codes := names[:0]
	for _, n := range names {
		if IsValidRoomCode(n) {
			codes = append(codes, n)
		}
	}

	return codes, nil
}

// hosted reports whether a room node still carries its host, the same test
// Exists makes.
func hosted(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return true
	}

	_, ok = m["hostUid"]
	return ok
}

// SubscribeRoom reports the room fields on every change. exists is false
// once the room is gone, including when only a stray player entry remains.
func (r *Repository) SubscribeRoom(code string, onRoom func(room Room, exists bool), onError func(error)) func() {
	path := roomPath(code)

	return r.store.Subscribe(path, func(s store.Snapshot) {
		if !s.Exists() || !hosted(s.Value) {
			onRoom(Room{}, false)
			return
		}

		room, err := decodeRoom(code, s.Value)
		if err != nil {
			onError(storeErr("decode", path, err))
			return
		}

		onRoom(room, true)
	}, func(err error) {
		onError(storeErr("listen", path, err))
	})
}

func (r *Repository) SubscribePlayers(code string, onPlayers func([]Player), onError func(error)) func() {
	path := playersPath(code)

	return r.store.Subscribe(path, func(s store.Snapshot) {
		players, err := decodePlayers(s.Value)
		if err != nil {
			onError(storeErr("decode", path, err))
			return
		}

		onPlayers(players)
	}, func(err error) {
		onError(storeErr("listen", path, err))
	})
}

func (r *Repository) SubscribeRole(code, uid string, onRole func(role Role, exists bool), onError func(error)) func() {
	path := rolePath(code, uid)

	return r.store.Subscribe(path, func(s store.Snapshot) {
		if !s.Exists() {
			onRole(Role{}, false)
			return
		}

		role, err := decodeRole(s.Value)
		if err != nil {
			onError(storeErr("decode", path, err))
			return
		}

		onRole(role, true)
	}, func(err error) {
		onError(storeErr("listen", path, err))
	})
}
