/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Seednode/rustam/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responseCookies(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range w.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestCookieBindingsRoundTrip(t *testing.T) {
	cfg := validConfig()
	cfg.prefix = "/party"

	w := httptest.NewRecorder()
	b := newCookieBindings(cfg, w, httptest.NewRequest("GET", "/", nil))

	_, ok := b.HostBinding()
	assert.False(t, ok)

	b.SetHostBinding(session.HostBinding{RoomCode: "1234"})
	b.SetPlayerBinding(session.PlayerBinding{RoomCode: "5678", DeviceUID: "uid-1"})
	b.SetSkipRestore()

	set := responseCookies(w)
	require.Contains(t, set, hostRoomCookieName)
	assert.Equal(t, "/party/", set[hostRoomCookieName].Path)
	assert.True(t, set[hostRoomCookieName].HttpOnly)
	assert.False(t, set[hostRoomCookieName].Secure)
	assert.Positive(t, set[hostRoomCookieName].MaxAge)
	assert.Zero(t, set[skipRestoreCookie].MaxAge, "the skip flag lasts for the browser session")

	r := httptest.NewRequest("GET", "/", nil)
	for _, c := range set {
		r.AddCookie(c)
	}

	next := newCookieBindings(cfg, httptest.NewRecorder(), r)

	host, ok := next.HostBinding()
	require.True(t, ok)
	assert.Equal(t, "1234", host.RoomCode)

	player, ok := next.PlayerBinding()
	require.True(t, ok)
	assert.Equal(t, session.PlayerBinding{RoomCode: "5678", DeviceUID: "uid-1"}, player)

	assert.True(t, next.TakeSkipRestore())
	assert.False(t, next.TakeSkipRestore())
}

func TestCookieBindingsIgnoreBadCodes(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: hostRoomCookieName, Value: "12"})
	r.AddCookie(&http.Cookie{Name: playerRoomCookieName, Value: "5678"})

	b := newCookieBindings(validConfig(), httptest.NewRecorder(), r)

	_, ok := b.HostBinding()
	assert.False(t, ok)

	_, ok = b.PlayerBinding()
	assert.False(t, ok, "a player binding needs the device uid as well")
}

func TestCookieBindingsClear(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: hostRoomCookieName, Value: "1234"})

	w := httptest.NewRecorder()
	b := newCookieBindings(validConfig(), w, r)
	b.Clear()

	_, ok := b.HostBinding()
	assert.False(t, ok)

	set := responseCookies(w)
	for _, name := range []string{hostRoomCookieName, playerRoomCookieName, playerUIDCookieName} {
		require.Contains(t, set, name)
		assert.Negative(t, set[name].MaxAge)
	}
}

func TestSecureCookiesOverTLS(t *testing.T) {
	cfg := validConfig()
	cfg.tlsCert, cfg.tlsKey = "cert.pem", "key.pem"

	w := httptest.NewRecorder()
	setCookie(cfg, w, tokenCookieName, "token", bindingMaxAge)

	assert.True(t, responseCookies(w)[tokenCookieName].Secure)
}
