package domain

import "context"

// SessionStore resolves a session credential to the user it belongs to.
// Backed by the portal's shared Redis session storage.
type SessionStore interface {
	ResolveSession(ctx context.Context, token string) (UserID, error)
}

// UserDirectory resolves a user id to its identity (role included).
type UserDirectory interface {
	LookupUser(ctx context.Context, id UserID) (Identity, error)
}

// ProjectMembership is the external, read-only membership record fetched on
// demand for project broadcasts. Never cached by this service.
type ProjectMembership struct {
	ProjectID       int64
	OwnerID         UserID
	AssignedStaffID UserID
}

// ProjectDirectory resolves a project id to its membership record.
type ProjectDirectory interface {
	ProjectMembers(ctx context.Context, projectID int64) (ProjectMembership, error)
}
