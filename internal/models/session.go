package models

// Session is the aggregate for one Q&A event: its moderator-controlled
// accept state and its questions in submission order. Questions keeps
// insertion order; display order is derived client-side and never mutates
// storage order.
type Session struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	// AdminPassword is returned once at creation and otherwise stripped
	// before a session goes anywhere near a viewer.
	AdminPassword        string      `json:"admin_password,omitempty"`
	IsAcceptingQuestions bool        `json:"is_accepting_questions"`
	IsVisible            bool        `json:"is_visible"`
	Questions            []*Question `json:"questions"`
}

// Question returns the question with the given id, or nil.
func (s *Session) Question(id string) *Question {
	for _, q := range s.Questions {
		if q.ID == id {
			return q
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Questions = make([]*Question, len(s.Questions))
	for i, q := range s.Questions {
		cp.Questions[i] = q.Clone()
	}
	return &cp
}

// Sanitized returns a deep copy with the moderator credential stripped.
// This is the only shape that may be broadcast or served to viewers.
func (s *Session) Sanitized() *Session {
	cp := s.Clone()
	cp.AdminPassword = ""
	return cp
}

// VisibleOnly returns a deep copy containing only non-hidden questions,
// with the credential stripped. Used for non-moderator HTTP fetches.
func (s *Session) VisibleOnly() *Session {
	cp := s.Sanitized()
	visible := cp.Questions[:0]
	for _, q := range cp.Questions {
		if !q.Hidden {
			visible = append(visible, q)
		}
	}
	cp.Questions = visible
	return cp
}
