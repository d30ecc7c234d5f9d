/*
Package chat is the client of the realtime chat provider.

This file defines Channel, a conversation between members. After Watch the provider
streams new messages, which the channel fans out to every Messages subscriber.
*/
package chat

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"streamify/internal/app/realtime"
	"streamify/internal/pkg/errs"
)

// subscriberBuffer is the per-subscriber queue of undelivered messages.
const subscriberBuffer = 64

// Channel is a handle to one provider channel.
type Channel interface {
	// CID is the provider-wide id, "{type}:{id}".
	CID() string
	ID() string
	Members() []string

	// Watch starts the realtime subscription and returns the recent history.
	Watch(ctx context.Context) ([]Message, error)

	SendMessage(ctx context.Context, text string) (Message, error)

	// Messages returns a new stream of messages received after Watch. It is closed
	// when the connection ends.
	Messages() <-chan Message
}

type wsChannel struct {
	client      *WSClient
	channelType string
	id          string
	members     []string

	mu          sync.Mutex
	subscribers []chan Message
	stopped     bool

	logger zerolog.Logger
}

func newChannel(c *WSClient, channelType, id string, members []string) *wsChannel {
	return &wsChannel{
		client:      c,
		channelType: channelType,
		id:          id,
		members:     slices.Clone(members),
		logger:      c.logger.With().Str("cid", CID(channelType, id)).Logger(),
	}
}

func (ch *wsChannel) CID() string       { return CID(ch.channelType, ch.id) }
func (ch *wsChannel) ID() string        { return ch.id }
func (ch *wsChannel) Members() []string { return slices.Clone(ch.members) }

func (ch *wsChannel) Watch(ctx context.Context) ([]Message, error) {
	var reply watchReply
	if err := ch.client.conn.Request(ctx, realtime.TypeChannelWatch, watchPayload{CID: ch.CID()}, &reply); err != nil {
		return nil, err
	}
	ch.logger.Debug().Int("history", len(reply.Messages)).Msg("Channel watched.")
	return reply.Messages, nil
}

func (ch *wsChannel) SendMessage(ctx context.Context, text string) (Message, error) {
	if text == "" {
		return Message{}, errs.Wrap(errs.ErrInvalidParams, errors.New("message text is empty"))
	}

	var reply sendReply
	if err := ch.client.conn.Request(ctx, realtime.TypeMessageSend, sendPayload{CID: ch.CID(), Text: text}, &reply); err != nil {
		return Message{}, err
	}
	return reply.Message, nil
}

func (ch *wsChannel) Messages() <-chan Message {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	sub := make(chan Message, subscriberBuffer)
	if ch.stopped {
		close(sub)
		return sub
	}
	ch.subscribers = append(ch.subscribers, sub)
	return sub
}

// broadcast delivers m to every subscriber, dropping it for subscribers whose queue is full.
func (ch *wsChannel) broadcast(m Message) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.stopped {
		return
	}

	for _, sub := range ch.subscribers {
		select {
		case sub <- m:
		default:
			ch.logger.Warn().Str("message_id", m.ID).Msg("Subscriber queue full, dropping message.")
		}
	}
}

func (ch *wsChannel) stop() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.stopped {
		return
	}
	ch.stopped = true

	for _, sub := range ch.subscribers {
		close(sub)
	}
	ch.subscribers = nil
}
