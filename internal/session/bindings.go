/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import "sync"

// HostBinding remembers the room a device created.
type HostBinding struct {
	RoomCode string
}

// PlayerBinding remembers the room a device joined, and as whom.
type PlayerBinding struct {
	RoomCode  string
	DeviceUID string
}

// Bindings is the device-local state a session survives reloads with. Host
// and player bindings persist for the device profile; the skip flag lives
// only as long as the current tab.
type Bindings interface {
	HostBinding() (HostBinding, bool)
	PlayerBinding() (PlayerBinding, bool)
	SetHostBinding(HostBinding)
	SetPlayerBinding(PlayerBinding)

	// Clear removes both bindings. The skip flag is left alone.
	Clear()

	SetSkipRestore()

	// TakeSkipRestore reports whether the flag was set, clearing it.
	TakeSkipRestore() bool
}

// MemoryBindings keeps bindings in process memory.
type MemoryBindings struct {
	mu     sync.Mutex
	host   *HostBinding
	player *PlayerBinding
	skip   bool
}

func NewMemoryBindings() *MemoryBindings {
	return &MemoryBindings{}
}

func (b *MemoryBindings) HostBinding() (HostBinding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.host == nil {
		return HostBinding{}, false
	}
	return *b.host, true
}

func (b *MemoryBindings) PlayerBinding() (PlayerBinding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.player == nil {
		return PlayerBinding{}, false
	}
	return *b.player, true
}

func (b *MemoryBindings) SetHostBinding(h HostBinding) {
	b.mu.Lock()
	b.host = &h
	b.mu.Unlock()
}

func (b *MemoryBindings) SetPlayerBinding(p PlayerBinding) {
	b.mu.Lock()
	b.player = &p
	b.mu.Unlock()
}

func (b *MemoryBindings) Clear() {
	b.mu.Lock()
	b.host = nil
	b.player = nil
	b.mu.Unlock()
}

func (b *MemoryBindings) SetSkipRestore() {
	b.mu.Lock()
	b.skip = true
	b.mu.Unlock()
}

func (b *MemoryBindings) TakeSkipRestore() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	skip := b.skip
	b.skip = false

	return skip
}
