package core

import "errors"

var (
	// ErrUnauthorized covers every failed credential check: wrong response,
	// unknown or expired session, or an exhausted session table. Callers
	// must not tell the client which of these happened.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoFreeSlot is returned when the session table is full. It is
	// reported to clients as ErrUnauthorized.
	ErrNoFreeSlot = errors.New("no free session slot")

	// ErrTooManyAttempts is returned while an address is locked out after
	// repeated failed logins.
	ErrTooManyAttempts = errors.New("too many failed login attempts")

	// ErrBadRequest marks a malformed login payload. No table state is
	// touched when it is returned.
	ErrBadRequest = errors.New("bad request")
)
