/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Seednode/rustam/internal/room"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// joinURL is the link a player scans to land on the join form for code.
// The scheme follows the request, or X-Forwarded-Proto behind a proxy.
func joinURL(cfg *Config, r *http.Request, code string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	switch proto := r.Header.Get("X-Forwarded-Proto"); proto {
	case "http", "https":
		scheme = proto
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     cfg.prefix + "/",
		RawQuery: url.Values{"code": {code}}.Encode(),
	}

	return u.String()
}

func serveQR(a *App, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		code := p.ByName("code")
		if !room.IsValidRoomCode(code) {
			serveError(a, w, r, room.ErrInvalidRoomCode)

			return
		}

		png, err := qrcode.Encode(joinURL(a.cfg, r, code), qrcode.Medium, qrSize)
		if err != nil {
			serveError(a, w, r, err)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(a.cfg, w)

		written, err := w.Write(png)
		if err != nil {
			errs <- err

			return
		}

		logf(a.cfg, "SERVE: QR code for room %s (%s) to %s in %s",
			code,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}
