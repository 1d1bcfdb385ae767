/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

// Redact returns the room as the viewer is allowed to see it. Until the
// host reveals the round, only the host sees who the Impostor is and which
// theme is in play; players learn the theme from their own role.
func Redact(r Room, viewer string) Room {
	if viewer == r.HostUID || r.Status != StatusActive {
		return r
	}

	r.RustamUID = ""
	r.CurrentTheme = ""

	return r
}

// CanReadRole reports whether viewer may read the role stored for owner.
// Roles are private to their player, the host included.
func CanReadRole(viewer, owner string) bool {
	return viewer != "" && viewer == owner
}

// CanWrite reports whether viewer may change the room's status, Impostor or
// roles.
func CanWrite(r Room, viewer string) bool {
	return viewer != "" && viewer == r.HostUID
}
