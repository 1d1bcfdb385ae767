/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Seednode/rustam/internal/catalog"
	"github.com/Seednode/rustam/internal/identity"
	"github.com/Seednode/rustam/internal/room"
	"github.com/Seednode/rustam/internal/session"
	"github.com/julienschmidt/httprouter"
)

const maxBodySize = 4 << 10

var errBadRequest = errors.New("malformed request body")

// deviceHandler is an API handler that runs after the device has been
// signed in. A returned error is written back to the client.
type deviceHandler func(w http.ResponseWriter, r *http.Request, p httprouter.Params, id identity.Identity) error

func withDevice(a *App, limited bool, fn deviceHandler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		if limited && !a.limiter.allow(realIP(r)) {
			serveError(a, w, r, errRateLimited)

			return
		}

		id, err := deviceIdentity(a, w, r)
		if err != nil {
			serveError(a, w, r, err)

			return
		}

		if err := fn(w, r, p, id); err != nil {
			serveError(a, w, r, err)

			logf(a.cfg, "API: %s %s from %s failed in %s: %v",
				r.Method,
				r.URL.Path,
				realIP(r),
				time.Since(startTime).Round(time.Microsecond),
				err,
			)

			return
		}

		logf(a.cfg, "API: %s %s from %s in %s",
			r.Method,
			r.URL.Path,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// decodeBody reads an optional JSON body into v. An empty body leaves v as is.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	return nil
}

func (a *App) session(w http.ResponseWriter, r *http.Request, id identity.Identity) *session.Session {
	return a.sessions.Session(id.UID, newCookieBindings(a.cfg, w, r))
}

type createRoomRequest struct {
	TotalRounds *int `json:"totalRounds"`
	Resume      bool `json:"resume"`
}

type roomCodeResponse struct {
	Code     string `json:"code"`
	Restored bool   `json:"restored"`
}

func serveCreateRoom(a *App) deviceHandler {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, id identity.Identity) error {
		var req createRoomRequest
		if err := decodeBody(w, r, &req); err != nil {
			return err
		}

		rounds := a.cfg.totalRounds
		if req.TotalRounds != nil {
			rounds = *req.TotalRounds
		}

		s := a.session(w, r, id)

		var (
			code     string
			restored bool
			err      error
		)
		if req.Resume {
			code, restored, err = s.OpenHostRoom(r.Context(), rounds)
		} else {
			code, err = s.CreateRoom(r.Context(), rounds)
		}
		if err != nil {
			return err
		}

		status := http.StatusCreated
		if restored {
			status = http.StatusOK
		}

		serveJSON(a.cfg, w, status, roomCodeResponse{Code: code, Restored: restored})

		return nil
	}
}

type joinRequest struct {
	Name string `json:"name"`
}

func serveJoinRoom(a *App) deviceHandler {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params, id identity.Identity) error {
		var req joinRequest
		if err := decodeBody(w, r, &req); err != nil {
			return err
		}

		code := p.ByName("code")

		if err := a.session(w, r, id).JoinRoom(r.Context(), code, req.Name); err != nil {
			return err
		}

		a.metrics.playersJoined.Inc()

		serveJSON(a.cfg, w, http.StatusCreated, roomCodeResponse{Code: code})

		return nil
	}
}

type roomResponse struct {
	Room    room.Room     `json:"room"`
	Players []room.Player `json:"players"`
	IsHost  bool          `json:"isHost"`
}

func serveRoom(a *App) deviceHandler {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params, id identity.Identity) error {
		code := p.ByName("code")
		if !room.IsValidRoomCode(code) {
			return room.ErrInvalidRoomCode
		}

		rm, err := a.repo.Room(r.Context(), code)
		if err != nil {
			return err
		}

		players, err := a.repo.Players(r.Context(), code)
		if err != nil {
			return err
		}

		serveJSON(a.cfg, w, http.StatusOK, roomResponse{
			Room:    room.Redact(rm, id.UID),
			Players: players,
			IsHost:  room.CanWrite(rm, id.UID),
		})

		return nil
	}
}

type roleResponse struct {
	Assigned bool      `json:"assigned"`
	Role     room.Role `json:"role"`
}

func serveRole(a *App) deviceHandler {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params, id identity.Identity) error {
		code := p.ByName("code")
		if !room.IsValidRoomCode(code) {
			return room.ErrInvalidRoomCode
		}

		if _, err := a.repo.Room(r.Context(), code); err != nil {
			return err
		}

		role, ok, err := a.repo.Role(r.Context(), code, id.UID)
		if err != nil {
			return err
		}

		serveJSON(a.cfg, w, http.StatusOK, roleResponse{Assigned: ok, Role: role})

		return nil
	}
}

type roundRequest struct {
	Theme string `json:"theme"`
}

type roundResponse struct {
	Round int    `json:"round"`
	Theme string `json:"theme"`
}

// serveRound starts a round, either from the lobby or straight after a
// reveal when next is set.
func serveRound(a *App, next bool) deviceHandler {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params, id identity.Identity) error {
		req := roundRequest{Theme: catalog.Random}
		if err := decodeBody(w, r, &req); err != nil {
			return err
		}
		if req.Theme == "" {
			req.Theme = catalog.Random
		}

		m := a.machine.As(id.UID)
		code := p.ByName("code")

		var (
			start room.RoundStart
			err   error
		)
		if next {
			start, err = m.NextRound(r.Context(), code, req.Theme)
		} else {
			start, err = m.StartRound(r.Context(), code, req.Theme)
		}
		if err != nil {
			return err
		}

		serveJSON(a.cfg, w, http.StatusOK, roundResponse{Round: start.Round, Theme: start.Theme})

		return nil
	}
}

// serveTransition runs one of the argument-free state machine operations.
func serveTransition(a *App, op func(*room.Machine, context.Context, string) error) deviceHandler {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params, id identity.Identity) error {
		if err := op(a.machine.As(id.UID), r.Context(), p.ByName("code")); err != nil {
			return err
		}

		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(a.cfg, w)
		w.WriteHeader(http.StatusNoContent)

		return nil
	}
}

type sessionResponse struct {
	Code  string `json:"code,omitempty"`
	Found bool   `json:"found"`
}

func serveHostSession(a *App) deviceHandler {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, id identity.Identity) error {
		code, ok, err := a.session(w, r, id).RestoreHostSession(r.Context())
		if err != nil {
			return err
		}

		serveJSON(a.cfg, w, http.StatusOK, sessionResponse{Code: code, Found: ok})

		return nil
	}
}

func servePlayerSession(a *App) deviceHandler {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, id identity.Identity) error {
		code, ok, err := a.session(w, r, id).RestorePlayerSession(r.Context())
		if err != nil {
			return err
		}

		serveJSON(a.cfg, w, http.StatusOK, sessionResponse{Code: code, Found: ok})

		return nil
	}
}

func serveLeave(a *App) deviceHandler {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, id identity.Identity) error {
		a.session(w, r, id).LeaveRoom()

		securityHeaders(a.cfg, w)
		w.WriteHeader(http.StatusNoContent)

		return nil
	}
}

func serveSkipRestore(a *App) deviceHandler {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, id identity.Identity) error {
		a.session(w, r, id).SkipNextRestore()

		securityHeaders(a.cfg, w)
		w.WriteHeader(http.StatusNoContent)

		return nil
	}
}

type themeSummary struct {
	Name       string             `json:"name"`
	NameHindi  string             `json:"nameHindi"`
	Difficulty catalog.Difficulty `json:"difficulty"`
	Style      catalog.Style      `json:"style"`
	StyleHindi string             `json:"styleHindi"`
	Words      int                `json:"words"`
}

type themesResponse struct {
	Game            catalog.Info                          `json:"game"`
	Random          string                                `json:"random"`
	Themes          []themeSummary                        `json:"themes"`
	PhysicalFormats map[catalog.Format]catalog.FormatInfo `json:"physicalFormats"`
}

func serveThemes(a *App, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		resp := themesResponse{
			Game:            a.catalog.Info,
			Random:          catalog.Random,
			Themes:          make([]themeSummary, 0, len(a.catalog.Themes)),
			PhysicalFormats: a.catalog.PhysicalFormats,
		}

		for _, t := range a.catalog.Themes {
			resp.Themes = append(resp.Themes, themeSummary{
				Name:       t.Name,
				NameHindi:  t.NameHindi,
				Difficulty: t.Difficulty,
				Style:      t.Style,
				StyleHindi: t.StyleHindi,
				Words:      len(t.Words),
			})
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(a.cfg, w)

		if err := json.NewEncoder(w).Encode(resp); err != nil {
			errs <- err

			return
		}

		logf(a.cfg, "SERVE: Theme list to %s in %s",
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func registerAPI(a *App, errs chan<- error, mux *httprouter.Router) {
	api := a.cfg.prefix + "/api"

	mux.POST(api+"/rooms", withDevice(a, true, serveCreateRoom(a)))
	mux.GET(api+"/rooms/:code", withDevice(a, false, serveRoom(a)))
	mux.POST(api+"/rooms/:code/players", withDevice(a, true, serveJoinRoom(a)))
	mux.GET(api+"/rooms/:code/role", withDevice(a, false, serveRole(a)))
	mux.POST(api+"/rooms/:code/start", withDevice(a, false, serveRound(a, false)))
	mux.POST(api+"/rooms/:code/next", withDevice(a, false, serveRound(a, true)))
	mux.POST(api+"/rooms/:code/reveal", withDevice(a, false, serveTransition(a, (*room.Machine).RevealRustam)))
	mux.POST(api+"/rooms/:code/clear", withDevice(a, false, serveTransition(a, (*room.Machine).ClearRound)))
	mux.POST(api+"/rooms/:code/end", withDevice(a, false, serveTransition(a, (*room.Machine).EndGame)))
	mux.GET(api+"/rooms/:code/ws", serveWebsocket(a))
	mux.GET(api+"/rooms/:code/qr", serveQR(a, errs))

	mux.GET(api+"/session/host", withDevice(a, false, serveHostSession(a)))
	mux.GET(api+"/session/player", withDevice(a, false, servePlayerSession(a)))
	mux.POST(api+"/session/leave", withDevice(a, false, serveLeave(a)))
	mux.POST(api+"/session/skip", withDevice(a, false, serveSkipRestore(a)))

	mux.GET(api+"/themes", serveThemes(a, errs))
}
