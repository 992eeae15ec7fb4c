package models

import (
	"time"

	"github.com/google/uuid"
)

// Question is one audience-submitted question in a session.
// Text and Created are immutable after creation; only Upvotes and Hidden change.
type Question struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Created   time.Time `json:"created"`
	Upvotes   []string  `json:"upvotes"`
	Hidden    bool      `json:"hidden"`
}

// NewQuestion creates a question with a fresh ID and no upvotes.
func NewQuestion(sessionID, text string) *Question {
	return &Question{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Text:      text,
		Created:   time.Now().UTC(),
		Upvotes:   []string{},
	}
}

// VoteCount returns the number of distinct voters.
func (q *Question) VoteCount() int {
	return len(q.Upvotes)
}

// HasVoter reports whether voterKey already upvoted this question.
func (q *Question) HasVoter(voterKey string) bool {
	for _, v := range q.Upvotes {
		if v == voterKey {
			return true
		}
	}
	return false
}

// AddVoter adds voterKey to the upvote set. Returns false if the voter
// was already present (re-upvoting is a no-op, never a double count).
func (q *Question) AddVoter(voterKey string) bool {
	if q.HasVoter(voterKey) {
		return false
	}
	q.Upvotes = append(q.Upvotes, voterKey)
	return true
}

// Clone returns a deep copy.
func (q *Question) Clone() *Question {
	cp := *q
	cp.Upvotes = make([]string, len(q.Upvotes))
	copy(cp.Upvotes, q.Upvotes)
	return &cp
}
