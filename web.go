/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/rustam/internal/catalog"
	"github.com/Seednode/rustam/internal/identity"
	"github.com/Seednode/rustam/internal/room"
	"github.com/Seednode/rustam/internal/session"
	"github.com/Seednode/rustam/internal/store"
	"github.com/go-redis/redis/v8"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const (
	timeout time.Duration = 10 * time.Second
)

// App is everything a request handler needs.
type App struct {
	cfg      *Config
	log      zerolog.Logger
	repo     *room.Repository
	machine  *room.Machine
	sessions *session.Manager
	identity *identity.Provider
	catalog  *catalog.Catalog
	metrics  *metrics
	limiter  *ipLimiter
}

func newApp(cfg *Config, s store.Store, cat *catalog.Catalog) (*App, error) {
	secret := cfg.secret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		secret = hex.EncodeToString(buf)

		cfg.log.Warn().Msg("no --secret set, device tokens will not survive a restart")
	}

	ids, err := identity.NewProvider(secret, cfg.tokenTTL)
	if err != nil {
		return nil, err
	}

	m := newMetrics()
	repo := room.NewRepository(s)

	a := &App{
		cfg:      cfg,
		log:      cfg.log,
		repo:     repo,
		identity: ids,
		catalog:  cat,
		metrics:  m,
		machine: room.NewMachine(repo, cat,
			room.WithLogger(cfg.log),
			room.WithObserver(m.observeTransition),
		),
		sessions: session.NewManager(repo,
			session.WithLogger(cfg.log),
			session.OnRoomCreated(func(string) { m.roomsCreated.Inc() }),
		),
	}

	if cfg.rateLimit > 0 {
		a.limiter = newIPLimiter(cfg.rateLimit, cfg.rateBurst)
	}

	return a, nil
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg *Config) (store.Store, func() error, error) {
	switch cfg.store {
	case "redis":
		r := store.NewRedis(redis.NewClient(&redis.Options{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		}), store.WithPrefix(cfg.redisPrefix), store.WithLogger(cfg.log))

		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := r.Ping(pingCtx); err != nil {
			_ = r.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.redisAddr, err)
		}

		return r, r.Close, nil
	default:
		m := store.NewMemory()
		return m, m.Close, nil
	}
}

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data:; connect-src 'self' ws: wss:")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("rustam v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func newRouter(a *App, errs chan<- error) *httprouter.Router {
	cfg := a.cfg

	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		a.log.Error().Interface("panic", i).Str("path", r.URL.Path).Msg("handler panicked")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	registerHome(cfg, errs, cfg.prefix+"/", mux)

	mux.GET(cfg.prefix+"/assets/*asset", serveAssets(cfg, errs))

	mux.GET(cfg.prefix+"/favicon.ico", serveFavicon(cfg, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(a, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	registerAPI(a, errs, mux)

	if cfg.metrics {
		registerMetrics(cfg, a.metrics, mux)
	}

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	return mux
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: rustam v%s", releaseVersion)

	cat, err := catalog.LoadFile(cfg.catalog)
	if err != nil {
		return err
	}

	logf(cfg, "CATALOG: Loaded %s v%s with %d themes", cat.Info.Name, cat.Info.Version, len(cat.Themes))

	s, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	logf(cfg, "STORE: Using %s backend", cfg.store)

	a, err := newApp(cfg, s, cat)
	if err != nil {
		return err
	}

	errs := make(chan error, 64)

	go func() {
		for err := range errs {
			a.log.Debug().Err(err).Msg("writing response")
		}
	}()

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(a, errs),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	if cfg.roomTTL > 0 {
		reaper := room.NewReaper(a.repo, cfg.roomTTL, cfg.log)
		reaper.OnReap = func(code string) {
			a.metrics.roomsReaped.Inc()
			logf(cfg, "REAP: Deleted room %s", code)
		}

		go reaper.Run(ctx, cfg.reapInterval)
	}

	if a.limiter != nil {
		go func() {
			ticker := time.NewTicker(limiterIdle / 2)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := a.limiter.sweep(); n > 0 {
						logf(cfg, "LIMIT: Dropped %d idle rate limiters", n)
					}
				}
			}
		}()
	}

	go func() {
		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			cfg.log.Error().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
