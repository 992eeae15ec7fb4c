package sessions

import (
	"context"

	"github.com/askround/backend/internal/models"
)

// Repository is the persistence driver behind the Store. Implementations
// (memory, postgres) only move bytes; validation, credential checks and
// per-session command serialization live in the Store. Mutating methods may
// assume the Store has already verified the targets exist.
type Repository interface {
	// CreateSession inserts a new session. ErrSessionExists if the id is taken.
	CreateSession(ctx context.Context, s *models.Session) error
	// GetSession returns the session with its questions in submission order.
	// ErrSessionNotFound if absent. The returned aggregate is a private copy.
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// ListSessions returns visible sessions filtered by accept state,
	// ordered by name.
	ListSessions(ctx context.Context, accepting bool) ([]*models.Session, error)
	// AddQuestion appends a question to its session.
	AddQuestion(ctx context.Context, q *models.Question) error
	// AddUpvote adds voterKey to a question's upvote set (set semantics:
	// re-adding is a no-op).
	AddUpvote(ctx context.Context, sessionID, questionID, voterKey string) error
	// SetHidden sets a question's hidden flag.
	SetHidden(ctx context.Context, sessionID, questionID string, hidden bool) error
	// SetAccepting sets a session's accepting flag.
	SetAccepting(ctx context.Context, sessionID string, accepting bool) error
	// DeleteSession removes the session and all its questions atomically.
	DeleteSession(ctx context.Context, id string) error
}
