/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Seednode/rustam/internal/room"
	"github.com/rs/zerolog"
)

const logDate string = `2006-01-02T15:04:05.000-07:00`

var errRateLimited = errors.New("too many requests")

func newLogger(cfg *Config, out io.Writer) zerolog.Logger {
	level := zerolog.WarnLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: logDate}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	cfg.log.Info().Msgf(format, args...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}

type apiError struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, room.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, room.ErrNotHost):
		return http.StatusForbidden
	case errors.Is(err, room.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, room.ErrInvalidRoomCode),
		errors.Is(err, room.ErrInvalidPlayerName),
		errors.Is(err, room.ErrInvalidRounds),
		errors.Is(err, room.ErrUnknownTheme):
		return http.StatusBadRequest
	case errors.Is(err, room.ErrRoomNotJoinable),
		errors.Is(err, room.ErrInsufficientPlayers),
		errors.Is(err, room.ErrRoundLimitReached),
		errors.Is(err, room.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, room.ErrStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// serveError writes err as JSON. Business rule failures keep their message;
// anything unexpected is logged and reported generically.
func serveError(a *App, w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)

	body := apiError{
		Error:     room.Kind(err),
		Message:   err.Error(),
		Retryable: room.IsRetryable(err),
	}

	switch {
	case errors.Is(err, errRateLimited):
		body.Error = "RateLimited"
		body.Retryable = true
	case errors.Is(err, errBadRequest):
		body.Error = "InvalidInput"
	case status >= http.StatusInternalServerError:
		a.log.Error().Err(err).Str("path", r.URL.Path).Str("ip", realIP(r)).Msg("request failed")
		body.Message = http.StatusText(status)
		if status == http.StatusServiceUnavailable {
			body.Message = "the game server could not reach its data store, please try again"
			a.metrics.storeErrors.Inc()
		}
	}

	serveJSON(a.cfg, w, status, body)
}

func serveJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
