// Package server exposes the realtime service over HTTP: the single /ws
// upgrade endpoint gated by the handshake authenticator, plus health,
// version, and metrics routes.
package server
