/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Reaper deletes rooms older than a fixed age. Rooms carry no expiry of
// their own, so without it every game would stay in the store forever.
type Reaper struct {
	repo   *Repository
	maxAge time.Duration
	now    func() time.Time
	log    zerolog.Logger

	// OnReap, if set, is called with the code of each deleted room.
	OnReap func(code string)
}

func NewReaper(repo *Repository, maxAge time.Duration, log zerolog.Logger) *Reaper {
	return &Reaper{
		repo:   repo,
		maxAge: maxAge,
		now:    time.Now,
		log:    log,
	}
}

// Reap deletes every expired room and returns how many it removed. A
// subtree with no host, left behind when a join lands after a delete, is
// removed as well. Other rooms that fail to decode are left for an
// operator to inspect.
func (r *Reaper) Reap(ctx context.Context) (int, error) {
	codes, err := r.repo.Codes(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := r.now().Add(-r.maxAge).UnixMilli()
	reaped := 0

	for _, code := range codes {
		room, err := r.repo.Room(ctx, code)
		switch {
		case errors.Is(err, ErrRoomNotFound):
			continue
		case errors.Is(err, ErrMalformed):
			ok, exErr := r.repo.Exists(ctx, code)
			if exErr != nil {
				return reaped, exErr
			}
			if ok {
				r.log.Warn().Str("room", code).Err(err).Msg("skipping malformed room")
				continue
			}

			if err := r.repo.Delete(ctx, code); err != nil {
				return reaped, err
			}

			reaped++

			if r.OnReap != nil {
				r.OnReap(code)
			}

			r.log.Info().Str("room", code).Msg("reaped room with no host")

			continue
		case err != nil:
			return reaped, err
		}

		if room.CreatedAt > cutoff {
			continue
		}

		if err := r.repo.Delete(ctx, code); err != nil {
			return reaped, err
		}

		reaped++

		if r.OnReap != nil {
			r.OnReap(code)
		}

		r.log.Info().Str("room", code).Str("status", string(room.Status)).Msg("reaped expired room")
	}

	return reaped, nil
}

// Run reaps on every tick until ctx is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Reap(ctx); err != nil && ctx.Err() == nil {
				r.log.Error().Err(err).Msg("reaping rooms")
			}
		}
	}
}
