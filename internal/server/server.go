package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/camayank/clientportal-realtime/internal/config"
	"github.com/camayank/clientportal-realtime/internal/realtime"
)

type Server struct {
	echo       *echo.Echo
	config     *config.Config
	clock      clockwork.Clock
	registry   *realtime.Registry
	dispatcher *realtime.Dispatcher
	auth       *Authenticator
	limits     *ConnLimits
	upgrader   websocket.Upgrader
	postgres   postgresHealthChecker
	redis      redisHealthChecker
	startTime  time.Time
}

func NewServer(
	cfg *config.Config,
	clock clockwork.Clock,
	registry *realtime.Registry,
	dispatcher *realtime.Dispatcher,
	auth *Authenticator,
	postgres postgresHealthChecker,
	redis redisHealthChecker,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:       e,
		config:     cfg,
		clock:      clock,
		registry:   registry,
		dispatcher: dispatcher,
		auth:       auth,
		limits:     NewConnLimits(cfg.MaxConnections, cfg.ConnectionsPerSecond, cfg.ConnectionBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The session cookie is the gate; the portal frontend is served
			// from behind the same proxy, so origin enforcement happens there.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		postgres:  postgres,
		redis:     redis,
		startTime: clock.Now(),
	}

	srv.registerRoutes()
	return srv
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
