package server

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/camayank/clientportal-realtime/internal/domain"
	apperrors "github.com/camayank/clientportal-realtime/internal/errors"
	"github.com/camayank/clientportal-realtime/internal/metrics"
	"github.com/camayank/clientportal-realtime/internal/realtime"
)

// handleWebSocket serves the upgrade path. Ordering matters: limits first
// (cheap), then authentication (may hit the session store and directory),
// and only then the upgrade. The connection object exists only after all
// gates have passed.
func (s *Server) handleWebSocket(c echo.Context) error {
	request := c.Request()
	ip := c.RealIP()

	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.ConnectionsRejected.WithLabelValues(reason).Inc()
		slog.Warn("Connection rejected", "reason", reason, "remote_ip", ip)
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many connections"})
	}

	identity, err := s.auth.Authenticate(request.Context(), request)
	if err != nil {
		s.limits.Release()
		appErr := apperrors.AsStructuredError(err)
		metrics.ConnectionsTotal.WithLabelValues("auth_rejected").Inc()
		slog.Info("Handshake rejected", "remote_ip", ip, "error", appErr)
		return c.JSON(appErr.HTTPStatus(), appErr.ToResponse())
	}

	ws, err := s.upgrader.Upgrade(c.Response(), request, nil)
	if err != nil {
		// Upgrade failures write their own response.
		s.limits.Release()
		metrics.ConnectionsTotal.WithLabelValues("upgrade_error").Inc()
		slog.Warn("WebSocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}
	defer s.limits.Release()

	conn := realtime.NewConn(ws, identity)
	s.registry.Register(conn)
	metrics.ConnectionsTotal.WithLabelValues("opened").Inc()
	slog.Info("Connection opened",
		"user_id", int64(identity.UserID),
		"role", string(identity.Role),
		"connection_id", conn.ID().String(),
	)

	if err := conn.Send(domain.SuccessNotification("connected", s.clock.Now())); err != nil {
		slog.Debug("Failed to send welcome notification", "connection_id", conn.ID().String(), "error", err)
	}

	// Blocks until the peer disconnects or the transport fails.
	conn.ReadLoop(func(data []byte) {
		s.dispatcher.HandleFrame(request.Context(), conn, data)
	})

	conn.Close("connection closed")
	s.registry.Unregister(identity.UserID, conn)
	slog.Info("Connection closed",
		"user_id", int64(identity.UserID),
		"connection_id", conn.ID().String(),
	)

	return nil
}
