/*
Package session bootstraps one-to-one chat sessions.

Both participants derive the channel id from their two user ids alone, so either
side can open the conversation first and they converge on the same channel
without negotiating.
*/
package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"streamify/internal/app/chat"
	"streamify/internal/app/user"
	"streamify/internal/pkg/auth/jwt"
	"streamify/internal/pkg/errs"
	"streamify/internal/pkg/logx"
)

// ChannelType is the provider channel type of one-to-one conversations.
const ChannelType = "messaging"

const channelSeparator = "-"

// ChannelID returns the channel id shared by a and b. It does not depend on argument order.
func ChannelID(a, b string) string {
	ids := []string{a, b}
	slices.Sort(ids)
	return strings.Join(ids, channelSeparator)
}

// Backend is the subset of the REST API the bootstrap needs.
type Backend interface {
	GetUser(ctx context.Context, id string) (user.User, error)
	ChatToken(ctx context.Context) (string, error)
}

// ClientSource hands out the shared chat client. *chat.Hub implements it.
type ClientSource interface {
	Acquire(ctx context.Context, identity user.Identity, token string) (chat.Client, error)
}

// Bootstrapper stands up chat sessions for the local user.
type Bootstrapper struct {
	backend Backend
	clients ClientSource
	now     func() time.Time
	logger  zerolog.Logger
}

// NewBootstrapper returns a Bootstrapper using backend for lookups and clients for the provider connection.
func NewBootstrapper(backend Backend, clients ClientSource) *Bootstrapper {
	return &Bootstrapper{
		backend: backend,
		clients: clients,
		now:     time.Now,
		logger:  logx.Component("session"),
	}
}

// Bootstrap opens the chat session between local and peerID.
//
// A peer the backend does not know yields ErrNotFound. Any other failure yields
// ErrFatalBootstrap, except cancellation of ctx, which returns ctx's error.
// No session is returned on failure; an already connected chat client stays in
// its hub.
func (b *Bootstrapper) Bootstrap(ctx context.Context, local user.User, peerID string) (*ChatSession, error) {
	if local.ID == "" || peerID == "" {
		return nil, errs.Wrap(errs.ErrInvalidParams, errors.New("chat session requires both user ids"))
	}

	logger := b.logger.With().Str("user_id", local.ID).Str("peer_id", peerID).Logger()

	var (
		peer    user.User
		peerErr error
		token   string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		peer, peerErr = b.backend.GetUser(gctx, peerID)
		return peerErr
	})
	g.Go(func() error {
		var err error
		token, err = b.backend.ChatToken(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errs.Is(peerErr, errs.ErrNotFound) {
			logger.Info().Msg("Chat peer not found.")
			return nil, peerErr
		}
		logger.Warn().Err(err).Msg("Chat bootstrap failed before connecting.")
		return nil, errs.Wrap(errs.ErrFatalBootstrap, err)
	}

	if err := jwt.CheckScope(token, local.ID, b.now()); err != nil {
		return nil, errs.Wrap(errs.ErrFatalBootstrap, err)
	}

	client, err := b.clients.Acquire(ctx, local.Identity(), token)
	if err != nil {
		return nil, b.fatal(ctx, logger, err, "Chat provider connect failed.")
	}

	channelID := ChannelID(local.ID, peerID)
	members := []string{local.ID, peerID}

	channel, err := client.Channel(ctx, ChannelType, channelID, members)
	if err != nil {
		return nil, b.fatal(ctx, logger, err, "Chat channel query failed.")
	}

	logger.Info().Str("channel_id", channelID).Msg("Chat session ready.")

	return &ChatSession{
		Token:     token,
		ChannelID: channelID,
		Members:   members,
		Local:     local,
		Peer:      peer,
		Channel:   channel,
	}, nil
}

func (b *Bootstrapper) fatal(ctx context.Context, logger zerolog.Logger, err error, msg string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	logger.Warn().Err(err).Msg(msg)
	return errs.Wrap(errs.ErrFatalBootstrap, err)
}

// ChatSession is a ready one-to-one conversation.
type ChatSession struct {
	Token     string
	ChannelID string

	// Members holds the local and peer user ids, in that order.
	Members []string

	Local user.User
	Peer  user.User

	Channel chat.Channel

	watchOnce sync.Once
	history   []chat.Message
	watchErr  error
}

// Watch subscribes to live updates of the channel. Only the first call reaches the
// provider; later calls return its result.
func (s *ChatSession) Watch(ctx context.Context) ([]chat.Message, error) {
	s.watchOnce.Do(func() {
		s.history, s.watchErr = s.Channel.Watch(ctx)
	})
	return s.history, s.watchErr
}

// Send posts text to the channel.
func (s *ChatSession) Send(ctx context.Context, text string) (chat.Message, error) {
	return s.Channel.SendMessage(ctx, text)
}

// CallURL is the link to the video call of this conversation under origin.
func (s *ChatSession) CallURL(origin string) string {
	return strings.TrimRight(origin, "/") + "/call/" + s.ChannelID
}

// StartCall posts an invitation to the conversation's video call.
func (s *ChatSession) StartCall(ctx context.Context, origin string) (chat.Message, error) {
	return s.Send(ctx, "I've started a video call. Join me here: "+s.CallURL(origin))
}
