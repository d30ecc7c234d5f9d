/*
Package realtime implements the JSON frame transport shared by the chat and video providers.

This file defines Conn, an active websocket connection to a provider. It runs a read
loop that dispatches replies and events, a write loop that drains the send queue and
keeps the connection alive with pings, and request/reply correlation over frame ids.
*/
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"streamify/internal/pkg/errs"
	"streamify/internal/pkg/logx"
	"streamify/internal/pkg/randx"
)

const (
	// timeout duration for writing to the websocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed to wait for a pong from the provider.
	pongWait = 60 * time.Second

	// frequency at which pings are sent. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame received from the provider.
	maxFrameSize = 64 << 10

	// capacity of the outbound frame queue.
	sendQueueSize = 256
)

// EventHandler receives frames that are not replies to a pending request.
// It runs on the read goroutine and must not block.
type EventHandler func(Frame)

// Options configures Dial.
type Options struct {
	// Header is sent with the websocket handshake, typically carrying the token.
	Header http.Header

	// OnEvent receives provider events. Nil drops them.
	OnEvent EventHandler

	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Logger is the parent logger; defaults to the "realtime" component logger.
	Logger *zerolog.Logger
}

// Conn is a live provider connection. It is safe for concurrent use.
type Conn struct {
	ws      *websocket.Conn
	send    chan []byte
	onEvent EventHandler

	mu      sync.Mutex
	pending map[string]chan Frame

	done      chan struct{}
	closeOnce sync.Once
	err       error

	logger zerolog.Logger
}

// Dial opens a websocket to rawURL and starts the read and write loops.
func Dial(ctx context.Context, rawURL string, opts Options) (*Conn, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, res, err := dialer.DialContext(ctx, rawURL, opts.Header)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if res != nil {
			res.Body.Close()
			if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
				return nil, errs.Wrap(errs.ErrUnauthorized, fmt.Errorf("provider handshake status %d: %w", res.StatusCode, err))
			}
			return nil, errs.Wrap(errs.ErrProviderRejected, fmt.Errorf("provider handshake status %d: %w", res.StatusCode, err))
		}
		return nil, errs.Wrap(errs.ErrTransientFetch, err)
	}

	parent := logx.Component("realtime")
	if opts.Logger != nil {
		parent = *opts.Logger
	}

	c := &Conn{
		ws:      ws,
		send:    make(chan []byte, sendQueueSize),
		onEvent: opts.OnEvent,
		pending: make(map[string]chan Frame),
		done:    make(chan struct{}),
		logger:  parent.With().Str("remote", ws.RemoteAddr().String()).Logger(),
	}

	go c.writePump()
	go c.readPump()

	c.logger.Debug().Msg("Provider connection established.")
	return c, nil
}

// readPump reads frames until the connection fails, delivering replies to their
// pending requests and everything else to the event handler.
func (c *Conn) readPump() {
	c.ws.SetReadLimit(maxFrameSize)

	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.shutdown(err)
		return
	}

	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Provider connection lost.")
			}
			c.shutdown(err)
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn().Err(err).Bytes("frame", data).Msg("Provider sent invalid JSON")
			continue
		}

		c.dispatch(f)
	}
}

func (c *Conn) dispatch(f Frame) {
	if f.ID != "" {
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()

		if ok {
			ch <- f
			return
		}
	}

	if c.onEvent == nil {
		c.logger.Debug().Str("frame_type", string(f.Type)).Msg("Dropping unhandled provider event")
		return
	}
	c.onEvent(f)
}

// writePump writes queued frames and periodic pings until the connection is done.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("Error writing frame")
				c.shutdown(err)
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Error().Err(err).Msg("Error writing ping")
				c.shutdown(err)
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}

// Request sends a frame of frameType and waits for the matching reply, decoding its
// payload into out when out is not nil. An error reply yields ErrProviderRejected.
func (c *Conn) Request(ctx context.Context, frameType FrameType, payload, out any) error {
	if !c.Alive() {
		return c.Err()
	}

	id := randx.FrameID()
	f, err := NewFrame(frameType, id, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", frameType, err)
	}

	reply := make(chan Frame, 1)
	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	select {
	case c.send <- data:
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case r := <-reply:
		if err := r.Err(); err != nil {
			return fmt.Errorf("%s: %w", frameType, err)
		}
		return r.Decode(out)
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the connection has terminated.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Alive reports whether the connection is still open.
func (c *Conn) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Err returns why the connection terminated, nil while it is alive.
func (c *Conn) Err() error {
	if c.Alive() {
		return nil
	}
	return c.err
}

// Close sends a normal closure to the provider and terminates the connection.
func (c *Conn) Close() error {
	if !c.Alive() {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Warn().Err(err).Msg("Failed to send close frame.")
	}

	c.shutdown(nil)
	return nil
}

// shutdown records cause, wakes every waiter and releases the socket. Only the first call has effect.
func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		if cause == nil {
			cause = errors.New("connection closed by client")
		}
		c.err = errs.Wrap(errs.ErrProviderClosed, cause)

		close(c.done)

		if err := c.ws.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Provider connection close error")
		}
		c.logger.Debug().Err(cause).Msg("Provider connection terminated.")
	})
}
