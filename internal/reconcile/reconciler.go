// Package reconcile updates a viewer's local question view from successive
// authoritative session snapshots without full re-renders: one element per
// question id, updated in place, so scroll position and interaction state
// survive every update.
package reconcile

import (
	"github.com/askround/backend/internal/models"
)

// SortKey orders question elements in a view: all visible questions before
// all hidden ones, each group in submission order. An explicit two-key sort
// instead of the numeric offset trick, so there is no question-count ceiling.
type SortKey struct {
	Hidden bool
	Index  int
}

// Less reports whether k sorts before other.
func (k SortKey) Less(other SortKey) bool {
	if k.Hidden != other.Hidden {
		return !k.Hidden
	}
	return k.Index < other.Index
}

// View is the set of handles a reconciler drives. Implementations map these
// onto whatever rendering they own (DOM, TUI, test recorder). All calls are
// minimal: a handle is only invoked when the underlying value changed,
// except SetAccepting which is recomputed from every snapshot.
type View interface {
	// InsertQuestion materializes a new element for a question.
	InsertQuestion(q models.Question, key SortKey)
	// RemoveQuestion removes a question's element entirely.
	RemoveQuestion(questionID string)
	// SetVotes updates a question's displayed vote count.
	SetVotes(questionID string, votes int)
	// SetHidden toggles the hidden presentation state (moderator views only).
	SetHidden(questionID string, hidden bool)
	// SetSortKey moves an existing element to a new position.
	SetSortKey(questionID string, key SortKey)
	// SetAccepting drives the submission affordance and the moderator
	// open/close control from the current flag value.
	SetAccepting(accepting bool)
	// ShowDeleted renders the terminal "session deleted" state.
	ShowDeleted()
}

// elementState is what the reconciler remembers about one materialized
// question element.
type elementState struct {
	votes  int
	hidden bool
	key    SortKey
}

// Reconciler diffs snapshots for one session against the previously applied
// state and drives a View with the minimal set of updates. One reconciler
// per active view; discard it on navigation.
//
// Reconciliation is pure and synchronous. Snapshots are authoritative:
// whatever the view showed before is overwritten, so snapshots arriving
// after locally-issued commands need no speculative merging.
type Reconciler struct {
	sessionID string
	moderator bool
	view      View

	elements map[string]elementState
	deleted  bool
}

// New creates a reconciler for one session view. Moderator views keep
// hidden questions and only toggle their presentation; non-moderator views
// never materialize them.
func New(sessionID string, moderator bool, view View) *Reconciler {
	return &Reconciler{
		sessionID: sessionID,
		moderator: moderator,
		view:      view,
		elements:  make(map[string]elementState),
	}
}

// Apply reconciles one snapshot. Snapshots for other sessions, and anything
// after the deletion notice, are ignored.
func (r *Reconciler) Apply(snapshot *models.Session) {
	if r.deleted || snapshot == nil || snapshot.ID != r.sessionID {
		return
	}

	// Always recomputed from the latest flag, never diffed.
	r.view.SetAccepting(snapshot.IsAcceptingQuestions)

	seen := make(map[string]bool, len(snapshot.Questions))
	for i, q := range snapshot.Questions {
		seen[q.ID] = true
		key := SortKey{Hidden: q.Hidden, Index: i}
		state, known := r.elements[q.ID]

		if !known {
			// Never materialize a hidden question a viewer did not
			// already know about.
			if q.Hidden && !r.moderator {
				continue
			}
			r.view.InsertQuestion(*q.Clone(), key)
			r.elements[q.ID] = elementState{votes: q.VoteCount(), hidden: q.Hidden, key: key}
			continue
		}

		if q.Hidden && !r.moderator {
			// Previously visible question became hidden: remove the
			// element, do not merely style it.
			r.view.RemoveQuestion(q.ID)
			delete(r.elements, q.ID)
			continue
		}

		if votes := q.VoteCount(); votes != state.votes {
			r.view.SetVotes(q.ID, votes)
			state.votes = votes
		}
		if q.Hidden != state.hidden {
			r.view.SetHidden(q.ID, q.Hidden)
			state.hidden = q.Hidden
		}
		if key != state.key {
			r.view.SetSortKey(q.ID, key)
			state.key = key
		}
		r.elements[q.ID] = state
	}

	// Questions only ever disappear with their session, but the snapshot is
	// authoritative: drop any element it no longer contains.
	for id := range r.elements {
		if !seen[id] {
			r.view.RemoveQuestion(id)
			delete(r.elements, id)
		}
	}
}

// ApplyDeleted handles the terminal deletion notice for this session.
// Further snapshots or notices are ignored.
func (r *Reconciler) ApplyDeleted(sessionID string) {
	if r.deleted || sessionID != r.sessionID {
		return
	}
	r.deleted = true
	r.view.ShowDeleted()
}

// Deleted reports whether the terminal state has been reached.
func (r *Reconciler) Deleted() bool {
	return r.deleted
}
