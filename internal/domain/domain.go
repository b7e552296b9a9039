// Package domain holds the core types of the realtime service: identities,
// wire messages, the connection state machine, and the interfaces of the
// external collaborators (session store, user directory, project directory).
package domain

import "errors"

// UserID identifies a portal user.
type UserID int64

// Role is the portal role resolved for a user at handshake time.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleClient Role = "client"
)

// Identity is resolved once during the handshake and is immutable for the
// life of its connection.
type Identity struct {
	UserID UserID
	Role   Role
}

// Sentinel errors returned by collaborator lookups.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrProjectNotFound = errors.New("project not found")
)
