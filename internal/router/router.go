package router

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"github.com/mcoot/wordgroups/internal/dependencies/clock"
	"github.com/mcoot/wordgroups/internal/model"
	"github.com/mcoot/wordgroups/internal/protocol"
	"github.com/mcoot/wordgroups/internal/services/accounts"
	"github.com/mcoot/wordgroups/internal/services/match"
	"github.com/mcoot/wordgroups/internal/session"
)

// Subscriptions tracks the notification addresses of logged in sessions
type Subscriptions interface {
	Subscribe(sessionID, username string, addr *net.UDPAddr)
	Unsubscribe(sessionID string)
	Rename(sessionID, username string)
}

// Config holds configuration for the router
type Config struct {
	AdminPassword string // Empty disables oracle and god
}

// Router decodes framed messages and dispatches them to operation handlers
type Router struct {
	accounts *accounts.Service
	registry *match.Registry
	subs     Subscriptions
	clock    clock.Clock
	logger   *slog.Logger
	cfg      Config
}

// New creates a Router; subs may be nil when notifications are disabled
func New(
	accounts *accounts.Service,
	registry *match.Registry,
	subs Subscriptions,
	clock clock.Clock,
	logger *slog.Logger,
	cfg Config,
) *Router {
	return &Router{
		accounts: accounts,
		registry: registry,
		subs:     subs,
		clock:    clock,
		logger:   logger.With(slog.String("component", "router")),
		cfg:      cfg,
	}
}

// Dispatch handles one message and returns the encoded response, or nil when there is none
func (r *Router) Dispatch(ctx context.Context, sess *session.Session, message string) []byte {
	start := time.Now()
	resp, op := r.dispatch(ctx, sess, message)

	r.logger.Debug("request handled",
		slog.String("session_id", sess.ID()),
		slog.String("operation", string(op)),
		slog.Duration("duration", time.Since(start)),
	)

	if resp == nil {
		return nil
	}
	payload, err := protocol.EncodeResponse(resp)
	if err != nil {
		r.logger.Error("failed to encode response",
			slog.String("operation", string(op)),
			slog.String("error", err.Error()),
		)
		payload, _ = protocol.EncodeResponse(internalError())
	}
	return payload
}

func (r *Router) dispatch(ctx context.Context, sess *session.Session, message string) (resp protocol.Response, op protocol.Operation) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic recovered",
				slog.Any("error", rec),
				slog.String("stack", string(debug.Stack())),
				slog.String("session_id", sess.ID()),
				slog.String("operation", string(op)),
			)
			resp = internalError()
		}
	}()

	req, err := protocol.DecodeRequest(message)
	if err != nil {
		return toErrorResponse(err), op
	}
	op = req.Operation()

	resp, err = r.Handle(ctx, sess, req)
	if err != nil {
		errResp := toErrorResponse(err)
		if errResp.Code == StatusInternal {
			r.logger.Error("request failed",
				slog.String("session_id", sess.ID()),
				slog.String("operation", string(op)),
				slog.String("error", err.Error()),
			)
		}
		return errResp, op
	}
	return resp, op
}

// Handle runs the handler for a decoded request. A nil response means nothing is sent back.
func (r *Router) Handle(ctx context.Context, sess *session.Session, req protocol.Request) (protocol.Response, error) {
	// register and login are for anonymous sessions only
	switch req.(type) {
	case *protocol.RegisterRequest, *protocol.LoginRequest:
		if sess.Authenticated() {
			return nil, model.ErrAlreadyLoggedIn
		}
	default:
		if !sess.Authenticated() {
			return nil, model.ErrUnauthenticated
		}
	}

	switch req := req.(type) {
	case *protocol.RegisterRequest:
		return r.handleRegister(ctx, req)
	case *protocol.LoginRequest:
		return r.handleLogin(sess, req)
	case *protocol.LogoutRequest:
		r.release(sess)
		return nil, nil
	case *protocol.UpdateCredentialsRequest:
		return r.handleUpdateCredentials(sess, req)
	case *protocol.SubmitProposalRequest:
		return r.handleSubmitProposal(sess, req)
	case *protocol.GameInfoRequest:
		return r.handleGameInfo(sess, req)
	case *protocol.GameStatsRequest:
		return r.handleGameStats(req)
	case *protocol.PlayerStatsRequest:
		return r.handlePlayerStats(sess)
	case *protocol.LeaderboardRequest:
		return r.handleLeaderboard(req)
	case *protocol.OracleRequest:
		return r.handleAdmin(req.Password, false)
	case *protocol.GodRequest:
		return r.handleAdmin(req.Password, true)
	default:
		return nil, fmt.Errorf("%w: unsupported request %T", model.ErrBadRequest, req)
	}
}

// Disconnect releases the login held by a closed connection
func (r *Router) Disconnect(ctx context.Context, sess *session.Session) {
	summary, hasSummary := sess.Summary()
	name, ok := r.release(sess)
	if !ok {
		return
	}

	attrs := []any{slog.String("session_id", sess.ID()), slog.String("username", name)}
	if hasSummary {
		attrs = append(attrs,
			slog.Int("round_id", int(summary.RoundID)),
			slog.Int("score", summary.Score),
			slog.Int("errors", summary.Errors),
		)
	}
	r.logger.Info("player disconnected", attrs...)
}

// release logs the session out everywhere; progress in the match is kept
func (r *Router) release(sess *session.Session) (string, bool) {
	name, ok := sess.Logout()
	if !ok {
		return "", false
	}
	r.accounts.MarkOffline(name, sess.ID())
	if r.subs != nil {
		r.subs.Unsubscribe(sess.ID())
	}
	return name, true
}

func (r *Router) checkAdmin(password string) error {
	if r.cfg.AdminPassword == "" || subtle.ConstantTimeCompare([]byte(password), []byte(r.cfg.AdminPassword)) != 1 {
		return fmt.Errorf("%w: wrong admin password", model.ErrForbidden)
	}
	return nil
}
