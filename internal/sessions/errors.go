package sessions

import (
	"errors"
	"fmt"
)

// Command failure taxonomy. Every store operation fails with exactly one of
// these (possibly wrapped); no operation partially applies.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrUnauthorized     = errors.New("admin password mismatch")
	ErrSessionClosed    = errors.New("session is not accepting questions")
	ErrEmptyText        = errors.New("question text is empty")
	ErrSessionExists    = errors.New("session already exists")

	// ErrAlreadyDeleted is a NotFound specialization for deleting a session
	// that is already gone; errors.Is(err, ErrSessionNotFound) holds.
	ErrAlreadyDeleted = fmt.Errorf("session already deleted: %w", ErrSessionNotFound)
)

// Kind maps a store error to its wire name for command acknowledgments.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyDeleted):
		return "already_deleted"
	case errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrEmptyText):
		return "empty_text"
	case errors.Is(err, ErrSessionExists):
		return "session_exists"
	default:
		return "internal"
	}
}
