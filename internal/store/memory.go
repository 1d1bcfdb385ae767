/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"reflect"
	"sync"
)

// Memory is a single-process Store. Writes are serialized under one lock;
// each subscriber gets its own delivery goroutine, so a slow listener never
// holds up writers or other listeners.
type Memory struct {
	mu     sync.Mutex
	root   map[string]any
	subs   map[*subscriber]struct{}
	closed bool
}

func NewMemory() *Memory {
	return &Memory{
		root: make(map[string]any),
		subs: make(map[*subscriber]struct{}),
	}
}

func (m *Memory) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Snapshot{}, ErrClosed
	}

	return Snapshot{Path: joinPath(segs), Value: clone(getAt(m.root, segs))}, nil
}

func (m *Memory) Set(ctx context.Context, path string, value any) error {
	return m.Update(ctx, map[string]any{path: value})
}

func (m *Memory) Update(ctx context.Context, updates map[string]any) error {
	prepared, err := prepareUpdates(updates)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	for _, u := range prepared {
		setAt(m.root, u.segs, u.value)
	}

	m.notifyLocked(prepared)

	return nil
}

func (m *Memory) Create(ctx context.Context, path string, value any) (bool, error) {
	segs, err := splitPath(path)
	if err != nil {
		return false, err
	}

	value, err = normalize(value)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}

	if getAt(m.root, segs) != nil {
		return false, nil
	}

	setAt(m.root, segs, value)
	m.notifyLocked([]pathUpdate{{segs: segs, value: value}})

	return true, nil
}

func (m *Memory) Children(ctx context.Context, path string) ([]string, error) {
	snap, err := m.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	return keys(snap.Value), nil
}

func (m *Memory) Subscribe(path string, onValue func(Snapshot), onError func(error)) func() {
	segs, err := splitPath(path)
	if err != nil {
		go onError(err)
		return func() {}
	}

	s := newSubscriber(segs, onValue, onError)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		go onError(ErrClosed)
		return func() {}
	}
	m.subs[s] = struct{}{}
	s.push(clone(getAt(m.root, segs)))
	m.mu.Unlock()

	go s.run()

	return func() {
		m.mu.Lock()
		delete(m.subs, s)
		m.mu.Unlock()

		s.stop()
	}
}

// Close fails every open subscription with ErrClosed and rejects further
// calls.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for s := range m.subs {
		s.fail(ErrClosed)
		delete(m.subs, s)
	}

	return nil
}

func (m *Memory) notifyLocked(updates []pathUpdate) {
	for s := range m.subs {
		for _, u := range updates {
			if related(s.segs, u.segs) {
				s.push(clone(getAt(m.root, s.segs)))
				break
			}
		}
	}
}

// subscriber coalesces pending values: only the newest value waiting for
// delivery is kept, which preserves per-path ordering without buffering.
type subscriber struct {
	segs    []string
	onValue func(Snapshot)
	onError func(error)

	mu         sync.Mutex
	pending    any
	hasPending bool
	err        error
	last       any
	delivered  bool

	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newSubscriber(segs []string, onValue func(Snapshot), onError func(error)) *subscriber {
	return &subscriber{
		segs:    segs,
		onValue: onValue,
		onError: onError,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (s *subscriber) push(v any) {
	s.mu.Lock()
	s.pending = v
	s.hasPending = true
	s.mu.Unlock()

	s.wake()
}

func (s *subscriber) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.wake()
}

func (s *subscriber) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		s.mu.Lock()
		v, ok := s.pending, s.hasPending
		s.pending, s.hasPending = nil, false
		err := s.err
		s.err = nil
		changed := ok && (!s.delivered || !reflect.DeepEqual(s.last, v))
		if changed {
			s.last, s.delivered = v, true
		}
		s.mu.Unlock()

		select {
		case <-s.done:
			return
		default:
		}

		if changed {
			s.onValue(Snapshot{Path: joinPath(s.segs), Value: clone(v)})
		}

		if err != nil {
			s.onError(err)
			if err == ErrClosed {
				s.stop()
				return
			}
		}
	}
}
