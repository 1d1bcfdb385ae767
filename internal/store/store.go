/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package store defines the tree-structured shared state store that every
// device synchronizes through, along with in-memory and Redis backends.
//
// Paths are slash-delimited ("rooms/1234/players/abc"). Values are JSON-like:
// maps, slices, strings, numbers, booleans. Writing nil deletes a node, and
// a map left empty by a delete disappears with it.
package store

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrInvalidPath      = errors.New("invalid path")
	ErrOverlappingPaths = errors.New("update paths overlap")
	ErrUnsupportedPath  = errors.New("path not supported by this store")
	ErrInvalidValue     = errors.New("value cannot be stored")
	ErrClosed           = errors.New("store closed")
	ErrConflict         = errors.New("too many concurrent writers")
)

// Snapshot is the value found at Path at one point in time. A nil Value
// means nothing is stored there.
type Snapshot struct {
	Path  string
	Value any
}

func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Store is the contract the room repository needs from a backing store.
type Store interface {
	// Get reads the subtree at path.
	Get(ctx context.Context, path string) (Snapshot, error)

	// Set overwrites the subtree at path. A nil value deletes it.
	Set(ctx context.Context, path string, value any) error

	// Update writes every path in updates as a single unit: subscribers
	// observe either none or all of them.
	Update(ctx context.Context, updates map[string]any) error

	// Create writes value at path only when nothing is stored there yet,
	// reporting whether the write happened.
	Create(ctx context.Context, path string, value any) (bool, error)

	// Children lists the keys directly below path, sorted.
	Children(ctx context.Context, path string) ([]string, error)

	// Subscribe delivers the current value at path immediately, then again
	// after every change. Listener failures go to onError; they do not end
	// the subscription. The returned func cancels it and is safe to call
	// more than once.
	Subscribe(path string, onValue func(Snapshot), onError func(error)) func()
}

func splitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, ErrInvalidPath
	}

	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" || s == "." || s == ".." {
			return nil, ErrInvalidPath
		}
	}

	return segs, nil
}

func joinPath(segs []string) string {
	return strings.Join(segs, "/")
}

// related reports whether one path is an ancestor of (or equal to) the other,
// meaning a write to either can change the value seen at the other.
func related(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
