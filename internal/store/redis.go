/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	defaultRedisRetries = 16

	redisHealthCheck = 30 * time.Second
	redisRetryMin    = 50 * time.Millisecond
	redisRetryMax    = 5 * time.Second
)

// Redis stores each top-level document (for example "rooms/1234") as one
// JSON value. Multi-path writes run as WATCH/MULTI/EXEC transactions over
// every document they touch, and each committed write publishes on the
// document's channel so that subscribers in any process re-read it.
type Redis struct {
	client  *redis.Client
	prefix  string
	retries int
	log     zerolog.Logger
}

type RedisOption func(*Redis)

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

func WithRetries(n int) RedisOption {
	return func(r *Redis) {
		if n > 0 {
			r.retries = n
		}
	}
}

func WithLogger(log zerolog.Logger) RedisOption {
	return func(r *Redis) {
		r.log = log
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client:  client,
		prefix:  "rustam:",
		retries: defaultRedisRetries,
		log:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Ping checks that the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) docKey(segs []string) string {
	return r.prefix + segs[0] + "/" + segs[1]
}

func (r *Redis) channel(segs []string) string {
	return r.prefix + "events:" + segs[0] + "/" + segs[1]
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readDoc(ctx context.Context, g stringGetter, key string) (map[string]any, error) {
	data, err := g.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	return doc, nil
}

func (r *Redis) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}

	if len(segs) == 1 {
		return r.getCollection(ctx, segs)
	}

	doc, err := readDoc(ctx, r.client, r.docKey(segs))
	if err != nil {
		return Snapshot{}, err
	}

	var v any
	if doc != nil {
		v = getAt(doc, segs[2:])
	}

	return Snapshot{Path: joinPath(segs), Value: v}, nil
}

// getCollection assembles a top-level node from its documents. Unlike
// document reads it is not atomic across documents.
func (r *Redis) getCollection(ctx context.Context, segs []string) (Snapshot, error) {
	names, err := r.Children(ctx, segs[0])
	if err != nil {
		return Snapshot{}, err
	}

	out := make(map[string]any, len(names))
	for _, name := range names {
		doc, err := readDoc(ctx, r.client, r.docKey([]string{segs[0], name}))
		if err != nil {
			return Snapshot{}, err
		}
		if doc != nil {
			out[name] = doc
		}
	}

	return Snapshot{Path: segs[0], Value: prune(out)}, nil
}

func (r *Redis) Set(ctx context.Context, path string, value any) error {
	return r.Update(ctx, map[string]any{path: value})
}

func (r *Redis) Update(ctx context.Context, updates map[string]any) error {
	prepared, err := prepareUpdates(updates)
	if err != nil {
		return err
	}

	_, err = r.transact(ctx, prepared, nil)
	return err
}

func (r *Redis) Create(ctx context.Context, path string, value any) (bool, error) {
	prepared, err := prepareUpdates(map[string]any{path: value})
	if err != nil {
		return false, err
	}

	segs := prepared[0].segs
	absent := func(docs map[string]map[string]any) bool {
		doc := docs[r.docKey(segs)]
		if len(segs) == 2 {
			return len(doc) == 0
		}
		return getAt(doc, segs[2:]) == nil
	}

	return r.transact(ctx, prepared, absent)
}

// transact applies updates to every document they touch inside one
// optimistic transaction. When precondition is set and returns false,
// nothing is written and transact reports false.
func (r *Redis) transact(ctx context.Context, updates []pathUpdate, precondition func(map[string]map[string]any) bool) (bool, error) {
	grouped := make(map[string][]pathUpdate)
	channels := make(map[string]string)

	for _, u := range updates {
		if len(u.segs) < 2 {
			return false, fmt.Errorf("%w: %q", ErrUnsupportedPath, joinPath(u.segs))
		}
		if len(u.segs) == 2 {
			if _, ok := u.value.(map[string]any); !ok && u.value != nil {
				return false, fmt.Errorf("%w: documents must be objects", ErrInvalidValue)
			}
		}

		key := r.docKey(u.segs)
		grouped[key] = append(grouped[key], u)
		channels[key] = r.channel(u.segs)
	}

	docKeys := make([]string, 0, len(grouped))
	for k := range grouped {
		docKeys = append(docKeys, k)
	}
	sort.Strings(docKeys)

	var applied bool

	txf := func(tx *redis.Tx) error {
		applied = false

		docs := make(map[string]map[string]any, len(docKeys))
		for _, key := range docKeys {
			doc, err := readDoc(ctx, tx, key)
			if err != nil {
				return err
			}
			docs[key] = doc
		}

		if precondition != nil && !precondition(docs) {
			return nil
		}

		for _, key := range docKeys {
			doc := docs[key]
			for _, u := range grouped[key] {
				if len(u.segs) == 2 {
					doc, _ = u.value.(map[string]any)
					continue
				}
				if doc == nil {
					doc = make(map[string]any)
				}
				setAt(doc, u.segs[2:], u.value)
			}
			docs[key] = doc
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, key := range docKeys {
				doc := docs[key]
				if len(doc) == 0 {
					pipe.Del(ctx, key)
				} else {
					data, err := json.Marshal(doc)
					if err != nil {
						return err
					}
					pipe.Set(ctx, key, data, 0)
				}
				pipe.Publish(ctx, channels[key], "changed")
			}
			return nil
		})
		if err != nil {
			return err
		}

		applied = true
		return nil
	}

	for attempt := 0; attempt < r.retries; attempt++ {
		err := r.client.Watch(ctx, txf, docKeys...)
		if errors.Is(err, redis.TxFailedErr) {
			r.log.Debug().Strs("keys", docKeys).Int("attempt", attempt+1).Msg("transaction conflict, retrying")
			continue
		}
		if err != nil {
			return false, err
		}
		return applied, nil
	}

	return false, ErrConflict
}

func (r *Redis) Children(ctx context.Context, path string) ([]string, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	if len(segs) > 1 {
		snap, err := r.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		return keys(snap.Value), nil
	}

	base := r.prefix + segs[0] + "/"

	var (
		out    []string
		cursor uint64
	)
	for {
		found, next, err := r.client.Scan(ctx, cursor, base+"*", 100).Result()
		if err != nil {
			return nil, err
		}

		for _, k := range found {
			name := strings.TrimPrefix(k, base)
			if name != "" && !strings.Contains(name, "/") {
				out = append(out, name)
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Strings(out)
	out = compactStrings(out)

	return out, nil
}

func compactStrings(xs []string) []string {
	if len(xs) < 2 {
		return xs
	}

	out := xs[:1]
	for _, x := range xs[1:] {
		if x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

func (r *Redis) Subscribe(path string, onValue func(Snapshot), onError func(error)) func() {
	segs, err := splitPath(path)
	if err == nil && len(segs) < 2 {
		err = fmt.Errorf("%w: %q", ErrUnsupportedPath, path)
	}
	if err != nil {
		go onError(err)
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps := r.client.Subscribe(ctx, r.channel(segs))

	go func() {
		defer ps.Close()

		var (
			last      any
			delivered bool
			wait      = redisRetryMin
		)

		fail := func(err error) bool {
			// Redeliver after a failure even if the value is unchanged.
			delivered = false
			onError(err)

			r.log.Debug().Str("path", path).Dur("wait", wait).Err(err).Msg("subscription failed, retrying")

			select {
			case <-ctx.Done():
				return false
			case <-time.After(wait):
			}

			wait = min(wait*2, redisRetryMax)

			return true
		}

		refresh := func() error {
			snap, err := r.Get(ctx, path)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				return err
			}
			wait = redisRetryMin
			if delivered && reflect.DeepEqual(last, snap.Value) {
				return nil
			}
			last, delivered = snap.Value, true
			onValue(Snapshot{Path: snap.Path, Value: clone(snap.Value)})

			return nil
		}

		for {
			msg, err := ps.ReceiveTimeout(ctx, redisHealthCheck)
			if ctx.Err() != nil {
				return
			}

			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				// Quiet channel. A failed ping drops the connection and the
				// next receive dials again.
				if err := ps.Ping(ctx); err != nil && !fail(err) {
					return
				}
				continue
			case err != nil:
				if !fail(err) {
					return
				}
				continue
			}

			switch msg.(type) {
			case *redis.Subscription, *redis.Message:
				// A confirmation follows every reconnect; re-read to catch
				// writes made while disconnected.
				for {
					err := refresh()
					if ctx.Err() != nil {
						return
					}
					if err == nil {
						break
					}
					if !fail(err) {
						return
					}
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = ps.Close()
		})
	}
}
