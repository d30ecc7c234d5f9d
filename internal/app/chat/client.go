/*
Package chat is the client of the realtime chat provider.

This file defines the provider connection. A client connects as one user, opens
channels on demand and routes incoming message events to the channel they belong to.
*/
package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"streamify/internal/app/provider"
	"streamify/internal/app/realtime"
	"streamify/internal/app/user"
	"streamify/internal/pkg/errs"
	"streamify/internal/pkg/logx"
)

// Client is a chat provider connection for a single user.
type Client interface {
	provider.Client

	// Channel queries the channel, creating it with members when it does not exist.
	Channel(ctx context.Context, channelType, id string, members []string) (Channel, error)
}

// Hub shares one chat client per process.
type Hub = provider.Hub[Client]

// NewHub returns a hub that dials baseURL for every new client.
func NewHub(baseURL, apiKey string) *Hub {
	return provider.NewHub[Client]("chat", apiKey, func(ctx context.Context, apiKey string, identity user.Identity, token string) (Client, error) {
		c, err := Dial(ctx, baseURL, apiKey, identity, token)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// WSClient is the websocket implementation of Client.
type WSClient struct {
	conn     *realtime.Conn
	identity user.Identity
	connID   string

	mu       sync.Mutex
	channels map[string]*wsChannel

	logger zerolog.Logger
}

// Dial connects to the chat provider at baseURL as identity and performs the connect handshake.
func Dial(ctx context.Context, baseURL, apiKey string, identity user.Identity, token string) (*WSClient, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidParams, err)
	}
	q := target.Query()
	q.Set("api_key", apiKey)
	target.RawQuery = q.Encode()

	logger := logx.Logger().With().
		Str("component", "chat").
		Str("user_id", identity.ID).
		Logger()

	c := &WSClient{
		identity: identity,
		channels: make(map[string]*wsChannel),
		logger:   logger,
	}

	conn, err := realtime.Dial(ctx, target.String(), realtime.Options{
		Header:  http.Header{"Authorization": {"Bearer " + token}},
		OnEvent: c.handleEvent,
		Logger:  &logger,
	})
	if err != nil {
		return nil, err
	}
	c.conn = conn

	var reply connectReply
	if err := conn.Request(ctx, realtime.TypeConnect, connectPayload{User: identity, Token: token}, &reply); err != nil {
		_ = conn.Close()
		return nil, err
	}
	c.connID = reply.ConnectionID

	go c.closeChannelsOnDone()

	c.logger.Info().Str("connection_id", c.connID).Msg("Connected to chat provider.")
	return c, nil
}

// UserID implements provider.Client.
func (c *WSClient) UserID() string { return c.identity.ID }

// Alive implements provider.Client.
func (c *WSClient) Alive() bool { return c.conn.Alive() }

// Close disconnects from the provider and ends every channel's message stream.
func (c *WSClient) Close() error {
	return c.conn.Close()
}

// ConnectionID is the id the provider assigned in the connect reply.
func (c *WSClient) ConnectionID() string { return c.connID }

// Channel implements Client. Repeated queries for the same channel return the same handle.
func (c *WSClient) Channel(ctx context.Context, channelType, id string, members []string) (Channel, error) {
	cid := CID(channelType, id)

	var reply channelReply
	payload := channelQueryPayload{Type: channelType, ID: id, Members: members}
	if err := c.conn.Request(ctx, realtime.TypeChannelQuery, payload, &reply); err != nil {
		return nil, err
	}
	if len(reply.Members) == 0 {
		reply.Members = members
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.channels[cid]; ok {
		return ch, nil
	}

	ch := newChannel(c, channelType, id, reply.Members)
	c.channels[cid] = ch
	return ch, nil
}

func (c *WSClient) handleEvent(f realtime.Frame) {
	if f.Type != realtime.TypeMessageNew {
		c.logger.Debug().Str("frame_type", string(f.Type)).Msg("Ignoring chat event")
		return
	}

	var ev messageEvent
	if err := json.Unmarshal(f.Payload, &ev); err != nil {
		c.logger.Warn().Err(err).Msg("Provider sent invalid message event")
		return
	}
	if ev.Message.ChannelID == "" {
		ev.Message.ChannelID = ev.CID
	}

	c.mu.Lock()
	ch, ok := c.channels[ev.CID]
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Str("cid", ev.CID).Msg("Message for unknown channel dropped")
		return
	}
	ch.broadcast(ev.Message)
}

func (c *WSClient) closeChannelsOnDone() {
	<-c.conn.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.channels {
		ch.stop()
	}
	c.logger.Info().Int("channels", len(c.channels)).Msg("Chat connection closed.")
}
