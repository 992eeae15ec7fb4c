package sessions

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/askround/backend/internal/models"
	"github.com/askround/backend/pkg/utils"
)

// adminPasswordLength matches the generated moderator credential length.
const adminPasswordLength = 8

// Broadcaster receives the snapshot produced by every successful mutation.
// Delivery is best-effort and must not block command completion.
type Broadcaster interface {
	SessionUpdated(s *models.Session)
	SessionDeleted(sessionID string)
}

// emission is one queued broadcast: either a snapshot or a deletion notice.
type emission struct {
	session   *models.Session
	deletedID string
}

// Store serializes all mutation commands per session id and owns the
// authoritative session aggregates. All validation happens here, before any
// repository write; repositories never partially apply a command.
//
// Snapshots are queued in mutation order while the per-session lock is held
// and delivered by a single goroutine, so subscribers observe one session's
// snapshots in the order the Store produced them while commands return as
// soon as the authoritative state is updated.
type Store struct {
	repo   Repository
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	emitCh chan emission
	done   chan struct{}
}

// NewStore creates a store over a repository, emitting snapshots to bcast.
// bcast may be nil (tests that only exercise state transitions).
func NewStore(repo Repository, bcast Broadcaster, logger *zap.Logger) *Store {
	s := &Store{
		repo:   repo,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
		emitCh: make(chan emission, 256),
		done:   make(chan struct{}),
	}
	go s.emitLoop(bcast)
	return s
}

// Close stops the emission goroutine. Queued snapshots are dropped.
func (s *Store) Close() {
	close(s.done)
}

func (s *Store) emitLoop(bcast Broadcaster) {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.emitCh:
			if bcast == nil {
				continue
			}
			if e.deletedID != "" {
				bcast.SessionDeleted(e.deletedID)
				continue
			}
			bcast.SessionUpdated(e.session)
		}
	}
}

// lockFor returns the mutex serializing commands for one session id. Entries
// are kept for the store's lifetime: a command queued on a session that gets
// deleted and recreated must still serialize with the recreated session's
// commands, so the mutex for an id is never swapped out.
func (s *Store) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

// emit queues a broadcast. Called with the session lock held so the queue
// order matches mutation order.
func (s *Store) emit(e emission) {
	select {
	case s.emitCh <- e:
	default:
		s.logger.Warn("broadcast queue full, snapshot dropped",
			zap.String("session_id", e.sessionID()))
	}
}

func (e emission) sessionID() string {
	if e.session != nil {
		return e.session.ID
	}
	return e.deletedID
}

// Create makes a new session that accepts questions, with a freshly
// generated moderator password. The returned aggregate is the only place
// the password is ever handed out.
func (s *Store) Create(ctx context.Context, id, name string, visible bool) (*models.Session, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if name == "" {
		name = id
	}
	session := &models.Session{
		ID:                   id,
		Name:                 name,
		AdminPassword:        utils.GenerateAdminPassword(adminPasswordLength),
		IsAcceptingQuestions: true,
		IsVisible:            visible,
		Questions:            []*models.Question{},
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	s.emit(emission{session: session.Sanitized()})
	return session, nil
}

// Get returns the current authoritative aggregate, password included.
// Callers sanitize before anything leaves the process.
func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.repo.GetSession(ctx, id)
}

// List returns visible sessions filtered by accept state.
func (s *Store) List(ctx context.Context, accepting bool) ([]*models.Session, error) {
	return s.repo.ListSessions(ctx, accepting)
}

// Ask appends a new question while the session accepts submissions.
func (s *Store) Ask(ctx context.Context, sessionID, text string) (*models.Session, error) {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsAcceptingQuestions {
		return nil, ErrSessionClosed
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	question := models.NewQuestion(sessionID, text)
	if err := s.repo.AddQuestion(ctx, question); err != nil {
		return nil, err
	}
	return s.snapshot(ctx, sessionID)
}

// Upvote adds voterKey to a question's upvote set. Re-upvoting by the same
// voter is a no-op, not an error.
func (s *Store) Upvote(ctx context.Context, sessionID, questionID, voterKey string) (*models.Session, error) {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Question(questionID) == nil {
		return nil, ErrQuestionNotFound
	}
	if err := s.repo.AddUpvote(ctx, sessionID, questionID, voterKey); err != nil {
		return nil, err
	}
	return s.snapshot(ctx, sessionID)
}

// SetHidden hides or unhides a question. Moderator only.
func (s *Store) SetHidden(ctx context.Context, sessionID, questionID, adminPassword string, hidden bool) (*models.Session, error) {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	session, err := s.authorized(ctx, sessionID, adminPassword)
	if err != nil {
		return nil, err
	}
	if session.Question(questionID) == nil {
		return nil, ErrQuestionNotFound
	}
	if err := s.repo.SetHidden(ctx, sessionID, questionID, hidden); err != nil {
		return nil, err
	}
	return s.snapshot(ctx, sessionID)
}

// SetAccepting opens or closes the session for new questions. Moderator only.
// Upvotes and hide/unhide stay valid on a closed session.
func (s *Store) SetAccepting(ctx context.Context, sessionID, adminPassword string, accepting bool) (*models.Session, error) {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	if _, err := s.authorized(ctx, sessionID, adminPassword); err != nil {
		return nil, err
	}
	if err := s.repo.SetAccepting(ctx, sessionID, accepting); err != nil {
		return nil, err
	}
	return s.snapshot(ctx, sessionID)
}

// Delete removes the session and all its questions atomically. Any
// subscriber gets a terminal deletion notice instead of a snapshot.
func (s *Store) Delete(ctx context.Context, sessionID, adminPassword string) error {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	if _, err := s.authorized(ctx, sessionID, adminPassword); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return ErrAlreadyDeleted
		}
		return err
	}
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.emit(emission{deletedID: sessionID})
	return nil
}

// authorized fetches the session and checks the moderator credential by
// exact match. The credential is never cached or weakened into a flag.
func (s *Store) authorized(ctx context.Context, sessionID, adminPassword string) (*models.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(session.AdminPassword), []byte(adminPassword)) != 1 {
		return nil, ErrUnauthorized
	}
	return session, nil
}

// snapshot re-reads the aggregate after a mutation, queues the sanitized
// broadcast and returns the authoritative state to the caller.
func (s *Store) snapshot(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.emit(emission{session: session.Sanitized()})
	return session, nil
}
