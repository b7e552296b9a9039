package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"

	"github.com/camayank/clientportal-realtime/internal/domain"
	apperrors "github.com/camayank/clientportal-realtime/internal/errors"
	"github.com/camayank/clientportal-realtime/internal/metrics"
)

const sessionValueToken = "token"

// Authenticator validates an upgrade request before any connection object is
// created. It decodes the portal session cookie, resolves the credential
// against the shared session store, and resolves the user's role from the
// user directory. Every failure is terminal for the handshake; no partially
// authenticated connection ever reaches the registry.
type Authenticator struct {
	cookies    *sessions.CookieStore
	cookieName string
	sessions   domain.SessionStore
	users      domain.UserDirectory
	excluded   map[string]struct{}
}

func NewAuthenticator(sessionSecret, cookieName string, sessionStore domain.SessionStore, users domain.UserDirectory, excludedSubprotocols []string) *Authenticator {
	excluded := make(map[string]struct{}, len(excludedSubprotocols))
	for _, p := range excludedSubprotocols {
		excluded[p] = struct{}{}
	}

	return &Authenticator{
		cookies:    sessions.NewCookieStore([]byte(sessionSecret)),
		cookieName: cookieName,
		sessions:   sessionStore,
		users:      users,
		excluded:   excluded,
	}
}

// Authenticate resolves the identity for an upgrade request, or returns an
// authentication error that rejects the handshake.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (domain.Identity, error) {
	// Non-application upgrade traffic (dev-server hot-reload sockets and the
	// like) announces itself via sub-protocol and is rejected outright.
	for _, proto := range websocket.Subprotocols(r) {
		if _, found := a.excluded[proto]; found {
			return domain.Identity{}, apperrors.AuthenticationError("sub-protocol not served here").
				WithContext("subprotocol", proto)
		}
	}

	token, err := a.sessionToken(r)
	if err != nil {
		return domain.Identity{}, err
	}

	userID, err := a.sessions.ResolveSession(ctx, token)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			metrics.LookupFailures.WithLabelValues("session").Inc()
		}
		// Fail closed either way: without a resolvable session there is no
		// identity to attach.
		return domain.Identity{}, apperrors.AuthenticationError("session invalid or expired")
	}

	identity, err := a.users.LookupUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			metrics.LookupFailures.WithLabelValues("user").Inc()
		}
		return domain.Identity{}, apperrors.AuthenticationError("user unknown").
			WithContext("user_id", int64(userID))
	}

	return identity, nil
}

func (a *Authenticator) sessionToken(r *http.Request) (string, error) {
	session, err := a.cookies.Get(r, a.cookieName)
	if err != nil {
		return "", apperrors.AuthenticationError("invalid session cookie")
	}

	token, ok := session.Values[sessionValueToken].(string)
	if !ok || token == "" {
		return "", apperrors.AuthenticationError("no session credential")
	}

	return token, nil
}
