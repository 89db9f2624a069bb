package actor

import "github.com/google/uuid"

// Actor is the per-request authorization context handed explicitly into
// every mutating service call. Services never read identity from
// ambient state.
type Actor struct {
	UserID        uuid.UUID
	Username      string
	TraceID       string
	RequestSource string
}

// Known reports whether the actor carries an authenticated identity.
func (a Actor) Known() bool {
	return a.UserID != uuid.Nil
}
