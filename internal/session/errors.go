package session

import "errors"

var (
	ErrNotConnected     = errors.New("session: wallet not connected")
	ErrAlreadyConnected = errors.New("session: wallet already connected")
	ErrNoAccount        = errors.New("session: no house account")
	ErrAccountExists    = errors.New("session: house account already exists")
	ErrPlayInFlight     = errors.New("session: a play is already in flight")
	ErrNoPlayInFlight   = errors.New("session: no play in flight")
	ErrInvalidWager     = errors.New("session: wager outside limits")
	ErrInvalidSelection = errors.New("session: unknown selection")
	ErrNothingToClaim   = errors.New("session: nothing to claim")
)
