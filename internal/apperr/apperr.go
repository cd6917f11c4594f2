// Package apperr classifies failures at operation boundaries. None of these kinds is
// process-fatal; callers convert them into a user-visible outcome or a silent skip.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is a network or connection failure talking to the workflow webhook.
	ErrTransport = errors.New("transport error")
	// ErrProtocol is a non-200 status, a malformed envelope or a missing field.
	ErrProtocol = errors.New("protocol error")
	// ErrDecode is a single malformed stream line.
	ErrDecode = errors.New("decode error")
	// ErrNotFound is an absent session or ad.
	ErrNotFound = errors.New("not found")
	// ErrPersistence is a storage write failure.
	ErrPersistence = errors.New("persistence error")
	// ErrInvalid is a rejected argument (bad rating, unknown type filter).
	ErrInvalid = errors.New("invalid argument")
	// ErrBusy means a turn is already in flight for the dashboard session.
	ErrBusy = errors.New("turn already in flight")
)

type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Wrap(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Transport(op string, err error) error   { return Wrap(ErrTransport, op, err) }
func Protocol(op string, err error) error    { return Wrap(ErrProtocol, op, err) }
func Persistence(op string, err error) error { return Wrap(ErrPersistence, op, err) }

func NotFound(op string) error { return Wrap(ErrNotFound, op, nil) }

func Invalid(op string, format string, args ...any) error {
	return Wrap(ErrInvalid, op, fmt.Errorf(format, args...))
}
