package model

import "errors"

// Common errors used across the application
var (
	// Request errors
	ErrMalformedPayload = errors.New("malformed payload")
	ErrBadRequest       = errors.New("bad request")

	// Session errors
	ErrUnauthenticated = errors.New("operation requires a logged in session")
	ErrAlreadyLoggedIn = errors.New("session is already logged in")
	ErrAlreadyOnline   = errors.New("user is already logged in elsewhere")
	ErrForbidden       = errors.New("forbidden")

	// Account errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")

	// Round errors
	ErrInvalidRound    = errors.New("invalid round definition")
	ErrNoRounds        = errors.New("no rounds available")
	ErrRoundNotFound   = errors.New("round not found")
	ErrNoActiveRound   = errors.New("no round in progress")
	ErrRoundExpired    = errors.New("round has expired")
	ErrAlreadyFinished = errors.New("player already finished this round")

	// Guess errors (no error penalty)
	ErrInvalidWords   = errors.New("proposal contains words not in this round")
	ErrDuplicateGuess = errors.New("proposal contains words from an already guessed group")
)
