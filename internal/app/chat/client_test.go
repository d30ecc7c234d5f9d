package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamify/internal/app/realtime"
	"streamify/internal/app/realtime/realtimetest"
	"streamify/internal/app/user"
	"streamify/internal/pkg/errs"
)

// fakeChatProvider answers the chat frames and echoes sent messages as events.
func fakeChatProvider(p *realtimetest.Peer, f realtime.Frame) {
	switch f.Type {
	case realtime.TypeConnect:
		var in connectPayload
		_ = json.Unmarshal(f.Payload, &in)
		if in.User.ID == "banned" {
			_ = p.Fail(f.ID, 2, "user is banned")
			return
		}
		_ = p.Ack(f.ID, connectReply{ConnectionID: "conn-" + in.User.ID})

	case realtime.TypeChannelQuery:
		var in channelQueryPayload
		_ = json.Unmarshal(f.Payload, &in)
		_ = p.Ack(f.ID, channelReply{Members: in.Members})

	case realtime.TypeChannelWatch:
		var in watchPayload
		_ = json.Unmarshal(f.Payload, &in)
		_ = p.Ack(f.ID, watchReply{Messages: []Message{{ID: "old-1", ChannelID: in.CID, Text: "earlier"}}})

	case realtime.TypeMessageSend:
		var in sendPayload
		_ = json.Unmarshal(f.Payload, &in)
		m := Message{ID: "m-" + in.Text, ChannelID: in.CID, UserID: "u1", Text: in.Text}
		_ = p.Ack(f.ID, sendReply{Message: m})
		_ = p.Emit(realtime.TypeMessageNew, messageEvent{CID: in.CID, Message: m})

	default:
		_ = p.Fail(f.ID, 4, "unsupported")
	}
}

func dialTest(t *testing.T, srv *realtimetest.Server, id string) *WSClient {
	t.Helper()
	c, err := Dial(context.Background(), srv.URL(), "api-key", user.Identity{ID: id, Name: "Ana"}, "tok-"+id)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDial_ConnectHandshake(t *testing.T) {
	srv := realtimetest.NewServer(t, fakeChatProvider)
	c := dialTest(t, srv, "u1")

	assert.Equal(t, "u1", c.UserID())
	assert.Equal(t, "conn-u1", c.ConnectionID())
	assert.True(t, c.Alive())

	peer := srv.Peers()[0]
	assert.Equal(t, "api-key", peer.Query.Get("api_key"))
	assert.Equal(t, "Bearer tok-u1", peer.Header.Get("Authorization"))

	frames := srv.FramesOf(realtime.TypeConnect)
	require.Len(t, frames, 1)
	var in connectPayload
	require.NoError(t, json.Unmarshal(frames[0].Payload, &in))
	assert.Equal(t, user.Identity{ID: "u1", Name: "Ana"}, in.User)
}

func TestDial_ConnectRejected(t *testing.T) {
	srv := realtimetest.NewServer(t, fakeChatProvider)

	_, err := Dial(context.Background(), srv.URL(), "api-key", user.Identity{ID: "banned"}, "tok")
	require.Error(t, err)
	assert.Equal(t, errs.ErrProviderRejected, errs.Code(err))
}

func TestChannel_WatchSendAndReceive(t *testing.T) {
	srv := realtimetest.NewServer(t, fakeChatProvider)
	c := dialTest(t, srv, "u1")
	ctx := context.Background()

	ch, err := c.Channel(ctx, "messaging", "u1-u2", []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Equal(t, "messaging:u1-u2", ch.CID())
	assert.Equal(t, []string{"u1", "u2"}, ch.Members())

	again, err := c.Channel(ctx, "messaging", "u1-u2", []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Same(t, ch.(*wsChannel), again.(*wsChannel))

	history, err := ch.Watch(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "messaging:u1-u2", history[0].ChannelID)

	messages := ch.Messages()
	sent, err := ch.SendMessage(ctx, "hola")
	require.NoError(t, err)
	assert.Equal(t, "m-hola", sent.ID)

	select {
	case m := <-messages:
		assert.Equal(t, sent, m)
	case <-time.After(2 * time.Second):
		t.Fatal("message event not delivered")
	}
}

func TestChannel_SendEmptyText(t *testing.T) {
	srv := realtimetest.NewServer(t, fakeChatProvider)
	c := dialTest(t, srv, "u1")

	ch, err := c.Channel(context.Background(), "messaging", "u1-u2", nil)
	require.NoError(t, err)

	_, err = ch.SendMessage(context.Background(), "")
	assert.True(t, errs.Is(err, errs.ErrInvalidParams))
	assert.Empty(t, srv.FramesOf(realtime.TypeMessageSend))
}

func TestClose_EndsMessageStreams(t *testing.T) {
	srv := realtimetest.NewServer(t, fakeChatProvider)
	c := dialTest(t, srv, "u1")

	ch, err := c.Channel(context.Background(), "messaging", "u1-u2", nil)
	require.NoError(t, err)
	messages := ch.Messages()

	require.NoError(t, c.Close())

	select {
	case _, ok := <-messages:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("message stream not closed")
	}
	assert.False(t, c.Alive())

	_, ok := <-ch.Messages()
	assert.False(t, ok)
}

func TestNewHub_DialsOncePerUser(t *testing.T) {
	srv := realtimetest.NewServer(t, fakeChatProvider)
	hub := NewHub(srv.URL(), "api-key")
	defer hub.Shutdown()

	a, err := hub.Acquire(context.Background(), user.Identity{ID: "u1"}, "tok")
	require.NoError(t, err)
	b, err := hub.Acquire(context.Background(), user.Identity{ID: "u1"}, "tok")
	require.NoError(t, err)

	assert.Same(t, a.(*WSClient), b.(*WSClient))
	assert.Len(t, srv.FramesOf(realtime.TypeConnect), 1)
}
