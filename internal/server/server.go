// Package server exposes the HTTP surface: the submission API, the
// WebSocket subscription endpoint, and the observability endpoints.
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

	"github.com/alperenkursun/anonymous-chat-app/internal/app"
	"github.com/alperenkursun/anonymous-chat-app/internal/config"
	"github.com/alperenkursun/anonymous-chat-app/internal/domain"
	apperrors "github.com/alperenkursun/anonymous-chat-app/internal/errors"
	appredis "github.com/alperenkursun/anonymous-chat-app/internal/redis"
)

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	app         *app.Service
	bus         domain.Bus
	redis       *appredis.Client
	clock       clockwork.Clock
	limiter     *ConnectionLimiter
	upgrader    websocket.Upgrader
	startTime   time.Time
	sessionCtx  context.Context
	stopSession context.CancelFunc
}

// NewServer wires the echo instance, middleware, and routes. redisClient
// may be nil when the in-memory bus is used; readiness then skips the
// broker check.
func NewServer(cfg *config.Config, appSvc *app.Service, bus domain.Bus, redisClient *appredis.Client, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
	}))
	e.Use(apperrors.Middleware())

	sessionCtx, stopSessions := context.WithCancel(context.Background())

	srv := &Server{
		echo:    e,
		config:  cfg,
		app:     appSvc,
		bus:     bus,
		redis:   redisClient,
		clock:   clock,
		limiter: NewConnectionLimiter(cfg.MaxConnections),
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowedOrigins),
		},
		startTime:   clock.Now(),
		sessionCtx:  sessionCtx,
		stopSession: stopSessions,
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

// Shutdown drains all live subscription sessions, then stops the HTTP
// listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopSession()
	return s.echo.Shutdown(ctx)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := false
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients carry no Origin header.
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
