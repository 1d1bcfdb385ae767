/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomNotJoinable     = errors.New("room is not in lobby state")
	ErrInsufficientPlayers = errors.New("at least 2 players are required")
	ErrRoundLimitReached   = errors.New("no rounds left")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrStore               = errors.New("store unavailable")

	ErrInvalidRoomCode   = errors.New("room code must be 4 digits")
	ErrInvalidPlayerName = errors.New("name must be 1-10 characters")
	ErrInvalidRounds     = errors.New("total rounds must be at least 1")
	ErrUnknownTheme      = errors.New("unknown theme")
	ErrNotHost           = errors.New("only the host can do that")
	ErrMalformed         = errors.New("malformed record")
)

// TransitionError reports a state machine operation attempted from a state
// that does not allow it.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// StoreError wraps a failure reported by the backing store, or a record the
// store returned that could not be decoded.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func storeErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Path: path, Err: err}
}

// IsRetryable reports whether retrying the operation could succeed. Only
// store failures qualify; business rule errors will fail the same way again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStore)
}

// Kind names the error category for clients.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthenticated):
		return "NotAuthenticated"
	case errors.Is(err, ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, ErrRoomNotJoinable):
		return "RoomNotJoinable"
	case errors.Is(err, ErrInsufficientPlayers):
		return "InsufficientPlayers"
	case errors.Is(err, ErrRoundLimitReached):
		return "RoundLimitReached"
	case errors.Is(err, ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, ErrStore):
		return "StoreError"
	case errors.Is(err, ErrInvalidRoomCode),
		errors.Is(err, ErrInvalidPlayerName),
		errors.Is(err, ErrInvalidRounds),
		errors.Is(err, ErrUnknownTheme):
		return "InvalidInput"
	case errors.Is(err, ErrNotHost):
		return "NotHost"
	default:
		return "Internal"
	}
}
