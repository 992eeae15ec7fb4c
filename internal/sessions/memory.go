package sessions

import (
	"context"
	"sort"
	"sync"

	"github.com/askround/backend/internal/models"
)

// MemoryRepository keeps all sessions in process memory. It backs tests and
// single-node deployments where no DATABASE_URL is configured.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*models.Session)}
}

func (r *MemoryRepository) CreateSession(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return ErrSessionExists
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryRepository) ListSessions(ctx context.Context, accepting bool) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []*models.Session
	for _, s := range r.sessions {
		if s.IsVisible && s.IsAcceptingQuestions == accepting {
			list = append(list, s.Clone())
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (r *MemoryRepository) AddQuestion(ctx context.Context, q *models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[q.SessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.Questions = append(s.Questions, q.Clone())
	return nil
}

func (r *MemoryRepository) AddUpvote(ctx context.Context, sessionID, questionID, voterKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	q := s.Question(questionID)
	if q == nil {
		return ErrQuestionNotFound
	}
	q.AddVoter(voterKey)
	return nil
}

func (r *MemoryRepository) SetHidden(ctx context.Context, sessionID, questionID string, hidden bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	q := s.Question(questionID)
	if q == nil {
		return ErrQuestionNotFound
	}
	q.Hidden = hidden
	return nil
}

func (r *MemoryRepository) SetAccepting(ctx context.Context, sessionID string, accepting bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.IsAcceptingQuestions = accepting
	return nil
}

func (r *MemoryRepository) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}
