/*
Package call bootstraps video calls.

Unlike chat, the call id is taken verbatim from the caller, typically the
conversation's channel id carried in the invitation link.
*/
package call

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"streamify/internal/app/user"
	"streamify/internal/app/video"
	"streamify/internal/pkg/auth/jwt"
	"streamify/internal/pkg/errs"
	"streamify/internal/pkg/logx"
)

// CallType is the provider call type used for every call.
const CallType = "default"

// TokenSource issues provider tokens for the local user.
type TokenSource interface {
	ChatToken(ctx context.Context) (string, error)
}

// ClientSource hands out the shared video client. *video.Hub implements it.
type ClientSource interface {
	Acquire(ctx context.Context, identity user.Identity, token string) (video.Client, error)
}

// Bootstrapper joins video calls for the local user.
type Bootstrapper struct {
	tokens  TokenSource
	clients ClientSource
	now     func() time.Time
	logger  zerolog.Logger
}

// NewBootstrapper returns a Bootstrapper.
func NewBootstrapper(tokens TokenSource, clients ClientSource) *Bootstrapper {
	return &Bootstrapper{
		tokens:  tokens,
		clients: clients,
		now:     time.Now,
		logger:  logx.Component("call"),
	}
}

// Bootstrap joins callID as local, creating the call when nobody joined it yet.
// Every failure yields ErrFatalBootstrap, except cancellation of ctx.
func (b *Bootstrapper) Bootstrap(ctx context.Context, local user.User, callID string) (*Session, error) {
	if local.ID == "" || callID == "" {
		return nil, errs.Wrap(errs.ErrInvalidParams, errors.New("call requires a user id and a call id"))
	}

	logger := b.logger.With().Str("user_id", local.ID).Str("call_id", callID).Logger()

	token, err := b.tokens.ChatToken(ctx)
	if err != nil {
		return nil, b.fatal(ctx, logger, err, "Call token fetch failed.")
	}
	if err := jwt.CheckScope(token, local.ID, b.now()); err != nil {
		return nil, errs.Wrap(errs.ErrFatalBootstrap, err)
	}

	client, err := b.clients.Acquire(ctx, local.Identity(), token)
	if err != nil {
		return nil, b.fatal(ctx, logger, err, "Video provider connect failed.")
	}

	c := client.Call(CallType, callID)
	if err := c.Join(ctx, true); err != nil {
		return nil, b.fatal(ctx, logger, err, "Call join failed.")
	}

	logger.Info().Msg("Joined call.")

	return &Session{Token: token, CallID: callID, call: c}, nil
}

func (b *Bootstrapper) fatal(ctx context.Context, logger zerolog.Logger, err error, msg string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	logger.Warn().Err(err).Msg(msg)
	return errs.Wrap(errs.ErrFatalBootstrap, err)
}

// Session is a joined call.
type Session struct {
	Token  string
	CallID string

	call video.Call
}

// Joined reports whether the local user is currently in the call.
func (s *Session) Joined() bool {
	state := s.call.State()
	return state == video.StateJoined || state == video.StateReconnecting
}

// State returns the current calling state.
func (s *Session) State() video.CallingState {
	return s.call.State()
}

// States streams calling state changes, starting with the current state.
func (s *Session) States() <-chan video.CallingState {
	return s.call.States()
}

// Left is closed when the call reaches its terminal state. Consumers navigate away then.
func (s *Session) Left() <-chan struct{} {
	return s.call.Left()
}

// Leave exits the call.
func (s *Session) Leave(ctx context.Context) error {
	return s.call.Leave(ctx)
}
