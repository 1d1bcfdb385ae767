/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"encoding/json"
	"fmt"
	"sort"
)

type pathUpdate struct {
	segs  []string
	value any
}

// normalize converts an arbitrary Go value into the store's JSON-like shape
// so that every backend hands out the same types (float64 numbers,
// map[string]any objects) regardless of what was written.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	return prune(out), nil
}

// prune drops empty objects, which the tree treats as absent.
func prune(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}

	for k, child := range m {
		child = prune(child)
		if child == nil {
			delete(m, k)
			continue
		}
		m[k] = child
	}

	if len(m) == 0 {
		return nil
	}
	return m
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = clone(child)
		}
		return out
	default:
		return v
	}
}

func getAt(root map[string]any, segs []string) any {
	var cur any = root
	for _, s := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[s]
		if !ok {
			return nil
		}
	}

	if m, ok := cur.(map[string]any); ok && len(m) == 0 {
		return nil
	}
	return cur
}

// setAt writes v below root, creating intermediate objects as needed and
// removing ones that a delete leaves empty.
func setAt(root map[string]any, segs []string, v any) {
	if len(segs) == 1 {
		if v == nil {
			delete(root, segs[0])
			return
		}
		root[segs[0]] = v
		return
	}

	child, ok := root[segs[0]].(map[string]any)
	if !ok {
		if v == nil {
			return
		}
		child = make(map[string]any)
		root[segs[0]] = child
	}

	setAt(child, segs[1:], v)

	if len(child) == 0 {
		delete(root, segs[0])
	}
}

func keys(v any) []string {
	m, ok := v.(map[string]any)
	if !ok {
		return []string{}
	}

	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}

// prepareUpdates validates and normalizes a multi-path update, rejecting
// paths that are ancestors of one another since their order would matter.
func prepareUpdates(updates map[string]any) ([]pathUpdate, error) {
	out := make([]pathUpdate, 0, len(updates))

	for path, value := range updates {
		segs, err := splitPath(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", err, path)
		}

		value, err = normalize(value)
		if err != nil {
			return nil, err
		}

		out = append(out, pathUpdate{segs: segs, value: value})
	}

	sort.Slice(out, func(i, j int) bool {
		return joinPath(out[i].segs) < joinPath(out[j].segs)
	})

	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if related(out[i].segs, out[j].segs) {
				return nil, fmt.Errorf("%w: %q and %q", ErrOverlappingPaths, joinPath(out[i].segs), joinPath(out[j].segs))
			}
		}
	}

	return out, nil
}
