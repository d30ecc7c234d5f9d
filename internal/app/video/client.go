/*
Package video is the client of the realtime video provider.

A client connects as one user and hands out Call handles. Joining, leaving,
provider call.state events and loss of the connection drive each call's
calling-state machine.
*/
package video

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

// Client is a video provider connection for a single user.
type Client interface {
	provider.Client

	// Call returns the handle of the call identified by callType and id. No frame is sent.
	Call(callType, id string) Call
}

// Hub shares one video client per process.
type Hub = provider.Hub[Client]

// NewHub returns a hub that dials baseURL for every new client.
func NewHub(baseURL, apiKey string) *Hub {
	return provider.NewHub[Client]("video", apiKey, func(ctx context.Context, apiKey string, identity user.Identity, token string) (Client, error) {
		c, err := Dial(ctx, baseURL, apiKey, identity, token)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

type connectPayload struct {
	User  user.Identity `json:"user"`
	Token string        `json:"token"`
}

type stateEvent struct {
	CID   string       `json:"cid"`
	State CallingState `json:"state"`
}

// WSClient is the websocket implementation of Client.
type WSClient struct {
	conn     *realtime.Conn
	identity user.Identity

	mu    sync.Mutex
	calls map[string]*wsCall

	logger zerolog.Logger
}

// Dial connects to the video provider at baseURL as identity.
func Dial(ctx context.Context, baseURL, apiKey string, identity user.Identity, token string) (*WSClient, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidParams, err)
	}
	q := target.Query()
	q.Set("api_key", apiKey)
	target.RawQuery = q.Encode()

	logger := logx.Logger().With().
		Str("component", "video").
		Str("user_id", identity.ID).
		Logger()

	c := &WSClient{
		identity: identity,
		calls:    make(map[string]*wsCall),
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

	if err := conn.Request(ctx, realtime.TypeConnect, connectPayload{User: identity, Token: token}, nil); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go c.leaveCallsOnDone()

	c.logger.Info().Msg("Connected to video provider.")
	return c, nil
}

// UserID implements provider.Client.
func (c *WSClient) UserID() string { return c.identity.ID }

// Alive implements provider.Client.
func (c *WSClient) Alive() bool { return c.conn.Alive() }

// Close disconnects from the provider. Every call moves to StateLeft.
func (c *WSClient) Close() error {
	return c.conn.Close()
}

// Call implements Client. The same handle is returned until the call is left.
func (c *WSClient) Call(callType, id string) Call {
	cid := callType + ":" + id

	c.mu.Lock()
	defer c.mu.Unlock()

	if call, ok := c.calls[cid]; ok && call.State() != StateLeft {
		return call
	}

	call := newCall(c, callType, id)
	c.calls[cid] = call
	return call
}

func (c *WSClient) handleEvent(f realtime.Frame) {
	if f.Type != realtime.TypeCallState {
		c.logger.Debug().Str("frame_type", string(f.Type)).Msg("Ignoring video event")
		return
	}

	var ev stateEvent
	if err := json.Unmarshal(f.Payload, &ev); err != nil {
		c.logger.Warn().Err(err).Msg("Provider sent invalid call state event")
		return
	}

	c.mu.Lock()
	call, ok := c.calls[ev.CID]
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Str("cid", ev.CID).Msg("State for unknown call dropped")
		return
	}
	call.transition(ev.State)
}

func (c *WSClient) leaveCallsOnDone() {
	<-c.conn.Done()

	c.mu.Lock()
	calls := make([]*wsCall, 0, len(c.calls))
	for _, call := range c.calls {
		calls = append(calls, call)
	}
	c.mu.Unlock()

	for _, call := range calls {
		call.transition(StateLeft)
	}
	c.logger.Info().Int("calls", len(calls)).Msg("Video connection closed.")
}
