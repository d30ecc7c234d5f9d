/*
Package provider owns the process-wide realtime provider clients.

A Hub holds at most one connected client, keyed by the provider API key and the
user it was connected for. Sessions acquire the client from the hub instead of
constructing one, so the connection survives across chat and call screens and is
replaced, never duplicated, when the signed-in user changes.
*/
package provider

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"streamify/internal/app/user"
	"streamify/internal/pkg/errs"
	"streamify/internal/pkg/logx"
)

// Client is a provider connection managed by a Hub.
type Client interface {
	// UserID is the id of the user the client is connected as.
	UserID() string

	// Alive reports whether the connection can still be used.
	Alive() bool

	Close() error
}

// Factory connects a new client for identity with token.
type Factory[C Client] func(ctx context.Context, apiKey string, identity user.Identity, token string) (C, error)

// Hub coordinates the single shared client of one provider.
type Hub[C Client] struct {
	name    string
	apiKey  string
	factory Factory[C]

	// mu serialises acquire and release, including the connect.
	mu      sync.Mutex
	current C
	key     string
	closed  bool

	logger zerolog.Logger
}

// NewHub returns a hub that connects clients with factory.
func NewHub[C Client](name, apiKey string, factory Factory[C]) *Hub[C] {
	return &Hub[C]{
		name:    name,
		apiKey:  apiKey,
		factory: factory,
		logger:  logx.Logger().With().Str("component", "Hub").Str("provider", name).Logger(),
	}
}

func (h *Hub[C]) keyFor(userID string) string {
	return h.apiKey + "/" + userID
}

// Acquire returns the live client for identity, connecting one when none exists,
// when the previous one died, or when it belongs to another user. The previous
// client is released before the new one connects.
func (h *Hub[C]) Acquire(ctx context.Context, identity user.Identity, token string) (C, error) {
	var zero C

	if identity.ID == "" {
		return zero, errs.Wrap(errs.ErrInvalidParams, errors.New("provider identity requires a user id"))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return zero, errs.Wrap(errs.ErrProviderClosed, errors.New(h.name+" hub is shut down"))
	}

	key := h.keyFor(identity.ID)
	if h.key != "" {
		if h.key == key && h.current.Alive() {
			h.logger.Debug().Str("user_id", identity.ID).Msg("Reusing connected client.")
			return h.current, nil
		}

		h.releaseLocked("replaced")
	}

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	c, err := h.factory(ctx, h.apiKey, identity, token)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", identity.ID).Msg("Failed to connect client.")
		return zero, err
	}

	h.current = c
	h.key = key

	h.logger.Info().Str("user_id", identity.ID).Msg("Client connected.")
	return c, nil
}

// Current returns the held client, if any.
func (h *Hub[C]) Current() (C, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current, h.key != ""
}

// Release disconnects and forgets the held client. It is a no-op without one.
func (h *Hub[C]) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releaseLocked("released")
}

// Shutdown releases the held client and refuses further acquires.
func (h *Hub[C]) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.releaseLocked("shutdown")
	h.closed = true

	h.logger.Info().Msg("Hub shutdown complete.")
}

func (h *Hub[C]) releaseLocked(reason string) {
	if h.key == "" {
		return
	}

	userID := h.current.UserID()
	if err := h.current.Close(); err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("Client close error")
	}

	var zero C
	h.current = zero
	h.key = ""

	h.logger.Info().Str("user_id", userID).Str("reason", reason).Msg("Client released.")
}
