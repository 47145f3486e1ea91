package models

import "time"

// Operator is the authenticated identity behind a session.
type Operator struct {
	ID    string   `json:"id,omitempty"`
	Email string   `json:"email"`
	Name  string   `json:"name,omitempty"`
	Role  string   `json:"role,omitempty"`
	Orgs  []string `json:"orgs"`
}

// Session is the explicit operator context: populated at login, cleared at logout.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Operator  Operator  `json:"operator"`
	CreatedAt time.Time `json:"created_at"`
}

// Orgs returns a copy of the operator's organization scope.
func (s *Session) Orgs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.Operator.Orgs...)
}
