/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"time"

	"github.com/Seednode/rustam/internal/identity"
	"github.com/Seednode/rustam/internal/room"
	"github.com/Seednode/rustam/internal/session"
)

const (
	tokenCookieName      = "rustam_token"
	hostRoomCookieName   = "rustam_host_room"
	playerRoomCookieName = "rustam_player_room"
	playerUIDCookieName  = "rustam_player_uid"
	skipRestoreCookie    = "rustam_skip_restore"

	bindingMaxAge = 30 * 24 * time.Hour
)

func cookiePath(cfg *Config) string {
	return cfg.prefix + "/"
}

func setCookie(cfg *Config, w http.ResponseWriter, name, value string, maxAge time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     cookiePath(cfg),
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	}

	switch {
	case maxAge > 0:
		c.MaxAge = int(maxAge.Seconds())
	case maxAge < 0:
		c.MaxAge = -1
	}

	http.SetCookie(w, c)
}

func clearCookie(cfg *Config, w http.ResponseWriter, name string) {
	setCookie(cfg, w, name, "", -1)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// deviceIdentity signs the requesting device in, minting a new identity on
// first contact and refreshing the cookie whenever the token changes.
func deviceIdentity(a *App, w http.ResponseWriter, r *http.Request) (identity.Identity, error) {
	id, err := a.identity.SignIn(r.Context(), cookieValue(r, tokenCookieName))
	if err != nil {
		return identity.Identity{}, err
	}

	if id.Fresh {
		setCookie(a.cfg, w, tokenCookieName, id.Token, a.cfg.tokenTTL)
		logf(a.cfg, "IDENTITY: Issued device %s to %s", id.UID, realIP(r))
	}

	return id, nil
}

// cookieBindings keeps a device's room bindings in cookies. The host and
// player bindings outlive the browser session; the skip flag is a session
// cookie and so lasts only as long as the tab's browsing session.
type cookieBindings struct {
	cfg *Config
	w   http.ResponseWriter

	host   *session.HostBinding
	player *session.PlayerBinding
	skip   bool
}

var _ session.Bindings = (*cookieBindings)(nil)

func newCookieBindings(cfg *Config, w http.ResponseWriter, r *http.Request) *cookieBindings {
	b := &cookieBindings{cfg: cfg, w: w}

	if code := cookieValue(r, hostRoomCookieName); room.IsValidRoomCode(code) {
		b.host = &session.HostBinding{RoomCode: code}
	}

	code := cookieValue(r, playerRoomCookieName)
	uid := cookieValue(r, playerUIDCookieName)
	if room.IsValidRoomCode(code) && uid != "" {
		b.player = &session.PlayerBinding{RoomCode: code, DeviceUID: uid}
	}

	b.skip = cookieValue(r, skipRestoreCookie) != ""

	return b
}

func (b *cookieBindings) HostBinding() (session.HostBinding, bool) {
	if b.host == nil {
		return session.HostBinding{}, false
	}
	return *b.host, true
}

func (b *cookieBindings) PlayerBinding() (session.PlayerBinding, bool) {
	if b.player == nil {
		return session.PlayerBinding{}, false
	}
	return *b.player, true
}

func (b *cookieBindings) SetHostBinding(h session.HostBinding) {
	b.host = &h
	setCookie(b.cfg, b.w, hostRoomCookieName, h.RoomCode, bindingMaxAge)
}

func (b *cookieBindings) SetPlayerBinding(p session.PlayerBinding) {
	b.player = &p
	setCookie(b.cfg, b.w, playerRoomCookieName, p.RoomCode, bindingMaxAge)
	setCookie(b.cfg, b.w, playerUIDCookieName, p.DeviceUID, bindingMaxAge)
}

func (b *cookieBindings) Clear() {
	b.host = nil
	b.player = nil
	clearCookie(b.cfg, b.w, hostRoomCookieName)
	clearCookie(b.cfg, b.w, playerRoomCookieName)
	clearCookie(b.cfg, b.w, playerUIDCookieName)
}

func (b *cookieBindings) SetSkipRestore() {
	b.skip = true
	setCookie(b.cfg, b.w, skipRestoreCookie, "1", 0)
}

func (b *cookieBindings) TakeSkipRestore() bool {
	if !b.skip {
		return false
	}

	b.skip = false
	clearCookie(b.cfg, b.w, skipRestoreCookie)

	return true
}
