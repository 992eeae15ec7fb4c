package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askround/backend/internal/models"
)

// PostgresRepository persists sessions and questions in PostgreSQL.
// Question submission order is the monotonic position column, so snapshot
// order is stable regardless of timestamp resolution.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a postgres-backed repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, s *models.Session) error {
	const q = `INSERT INTO sessions (id, name, admin_password, is_accepting_questions, is_visible)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, s.ID, s.Name, s.AdminPassword, s.IsAcceptingQuestions, s.IsVisible)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionExists
	}
	return nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	const q = `SELECT id, name, admin_password, is_accepting_questions, is_visible
		FROM sessions WHERE id = $1`
	var s models.Session
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&s.ID, &s.Name, &s.AdminPassword, &s.IsAcceptingQuestions, &s.IsVisible)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	const qq = `SELECT id, session_id, text, created, upvotes, hidden
		FROM questions WHERE session_id = $1 ORDER BY position`
	rows, err := r.pool.Query(ctx, qq, id)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	defer rows.Close()

	s.Questions = []*models.Question{}
	for rows.Next() {
		var question models.Question
		if err := rows.Scan(&question.ID, &question.SessionID, &question.Text,
			&question.Created, &question.Upvotes, &question.Hidden); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		s.Questions = append(s.Questions, &question)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) ListSessions(ctx context.Context, accepting bool) ([]*models.Session, error) {
	const q = `SELECT id, name, admin_password, is_accepting_questions, is_visible
		FROM sessions WHERE is_visible AND is_accepting_questions = $1 ORDER BY name`
	rows, err := r.pool.Query(ctx, q, accepting)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var list []*models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.Name, &s.AdminPassword, &s.IsAcceptingQuestions, &s.IsVisible); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Questions = []*models.Question{}
		list = append(list, &s)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) AddQuestion(ctx context.Context, q *models.Question) error {
	const query = `INSERT INTO questions (id, session_id, text, created, upvotes, hidden)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, q.ID, q.SessionID, q.Text, q.Created, q.Upvotes, q.Hidden)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddUpvote(ctx context.Context, sessionID, questionID, voterKey string) error {
	// Set semantics: append only when the voter is not already present.
	const q = `UPDATE questions SET upvotes = array_append(upvotes, $3)
		WHERE id = $1 AND session_id = $2 AND NOT ($3 = ANY(upvotes))`
	_, err := r.pool.Exec(ctx, q, questionID, sessionID, voterKey)
	if err != nil {
		return fmt.Errorf("upvote question: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetHidden(ctx context.Context, sessionID, questionID string, hidden bool) error {
	const q = `UPDATE questions SET hidden = $3 WHERE id = $1 AND session_id = $2`
	_, err := r.pool.Exec(ctx, q, questionID, sessionID, hidden)
	if err != nil {
		return fmt.Errorf("set question hidden: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetAccepting(ctx context.Context, sessionID string, accepting bool) error {
	const q = `UPDATE sessions SET is_accepting_questions = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, sessionID, accepting)
	if err != nil {
		return fmt.Errorf("set session accepting: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, id string) error {
	// Questions go with the session via ON DELETE CASCADE.
	const q = `DELETE FROM sessions WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
