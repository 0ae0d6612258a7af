package server

import (
	"errors"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/alperenkursun/anonymous-chat-app/internal/domain"
	apperrors "github.com/alperenkursun/anonymous-chat-app/internal/errors"
	"github.com/alperenkursun/anonymous-chat-app/internal/metrics"
	"github.com/alperenkursun/anonymous-chat-app/internal/session"
)

type submitRequest struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

func (s *Server) handleSubmitMessage(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	msg, err := s.app.Submit(c.Request().Context(), req.Text, req.Sender)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyText):
			return apperrors.ValidationError("text must not be empty")
		case errors.Is(err, domain.ErrEmptySender):
			return apperrors.ValidationError("sender must not be empty")
		case errors.Is(err, domain.ErrRateLimited):
			return apperrors.RateLimitedError("too many submissions, slow down")
		case errors.Is(err, domain.ErrBrokerUnavailable):
			return apperrors.ExternalError("message broker unavailable", err)
		default:
			return apperrors.InternalError("failed to submit message", err)
		}
	}

	return c.JSON(201, msg)
}

func (s *Server) handleWebSocket(c echo.Context) error {
	if !s.limiter.Acquire() {
		metrics.ConnectionsRejectedTotal.Inc()
		return c.JSON(503, map[string]string{"error": "connection limit reached"})
	}
	defer s.limiter.Release()

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return nil
	}

	sess := session.New(s.bus, conn, s.clock)
	log := slog.With("session_id", sess.ID().String(), "remote", c.RealIP())
	log.Info("Subscriber connected")

	// Run blocks until disconnect or server shutdown. sessionCtx (not the
	// request context) drives shutdown so draining is coordinated.
	if err := sess.Run(s.sessionCtx); err != nil {
		log.Warn("Session ended with error", "error", err)
		return nil
	}

	log.Info("Subscriber disconnected")
	return nil
}
