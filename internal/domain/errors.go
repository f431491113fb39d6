package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the app layer wraps one of these so the
// transport can classify it with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

var (
	// ErrUserNotFound is returned when a user ID does not resolve.
	ErrUserNotFound = fmt.Errorf("%w: user not found", ErrNotFound)
	// ErrSessionNotFound is returned when a quiz session ID does not resolve.
	ErrSessionNotFound = fmt.Errorf("%w: quiz session not found", ErrNotFound)
	// ErrNoCompletedSession is returned by rank lookups for users who never finished.
	ErrNoCompletedSession = fmt.Errorf("%w: no completed quiz found for this user", ErrNotFound)

	// ErrQuizAlreadyTaken is returned when a user with a completed session tries again.
	ErrQuizAlreadyTaken = fmt.Errorf("%w: user has already completed the quiz", ErrConflict)
	// ErrSessionNotActive is returned when mutating a session that is not in progress.
	ErrSessionNotActive = fmt.Errorf("%w: quiz session is not active", ErrConflict)
	// ErrAnswerExists is returned when a question is answered twice in one session.
	ErrAnswerExists = fmt.Errorf("%w: question already answered in this session", ErrConflict)
	// ErrQuizDisabled is returned by Start while the quiz_enabled setting is off.
	ErrQuizDisabled = fmt.Errorf("%w: quiz is currently disabled", ErrConflict)

	// ErrResetNotConfirmed is returned when the reset sentinel does not match.
	ErrResetNotConfirmed = fmt.Errorf(`%w: reset confirmation required, send {"confirmReset": %q}`, ErrValidation, ResetConfirmation)
)

// Invalid builds a validation error with a caller-supplied message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
